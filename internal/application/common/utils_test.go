package common

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgInterval(t *testing.T) {
	assert.Equal(t, "30 seconds", PgInterval(30*time.Second))
	assert.Equal(t, "90 seconds", PgInterval(90*time.Second))
	assert.Equal(t, "0 seconds", PgInterval(500*time.Millisecond))
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "", TruncateError(nil))
	assert.Equal(t, "boom", TruncateError(errors.New("boom")))

	long := errors.New(strings.Repeat("x", 5000))
	got := TruncateError(long)
	assert.Len(t, got, 1000)
}

func TestJitterBounds(t *testing.T) {
	assert.Equal(t, time.Duration(0), Jitter(0))
	assert.Equal(t, time.Duration(0), Jitter(-time.Second))

	for i := 0; i < 100; i++ {
		j := Jitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
}

func TestNextBackoffWithJitterGrowsToLimit(t *testing.T) {
	limit := 30 * time.Minute

	for attempts := 0; attempts < 25; attempts++ {
		d := NextBackoffWithJitter(attempts)
		assert.Greater(t, d, time.Duration(0), "attempts=%d", attempts)
		assert.LessOrEqual(t, d, limit, "attempts=%d", attempts)
	}

	// отрицательные и гигантские значения не паникуют
	assert.Greater(t, NextBackoffWithJitter(-1), time.Duration(0))
	assert.LessOrEqual(t, NextBackoffWithJitter(1000), limit)
}

func TestSleepCtxReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SleepCtx(ctx, 10*time.Second)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCtxZeroDuration(t *testing.T) {
	assert.NoError(t, SleepCtx(context.Background(), 0))
}
