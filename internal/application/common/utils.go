package common

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Version приложения, проставляется при сборке через -ldflags.
var Version = "0.1.0"

const maxStoredErrorLen = 1000

func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	return fmt.Sprintf("%d seconds", sec)
}

// TruncateError ограничивает длину текста ошибки перед записью в outbox,
// чтобы не раздувать колонку last_error произвольно длинными стектрейсами.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > maxStoredErrorLen {
		return s[:maxStoredErrorLen]
	}
	return s
}

func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit || base <= 0 {
		base = limit
	}

	return base/2 + Jitter(base/2)
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
	}()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
