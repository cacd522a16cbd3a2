package broker

import (
	"communities/pkg/config"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configWithURL(u string) config.Rabbit {
	return config.Rabbit{
		URL:           u,
		ReconnectBase: 500 * time.Millisecond,
		ReconnectCap:  30 * time.Second,
	}
}

func TestNextReconnectDelayBounds(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	for attempt := 0; attempt < 40; attempt++ {
		d := nextReconnectDelay(attempt, base, max)
		assert.Greater(t, d, time.Duration(0), "attempt=%d", attempt)
		assert.LessOrEqual(t, d, max, "attempt=%d", attempt)
	}

	// отрицательный attempt не паникует
	d := nextReconnectDelay(-5, base, max)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, base)
}

func TestNextReconnectDelayReachesCap(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	// при больших attempt нижняя граница (cap/2) стабильна
	for i := 0; i < 20; i++ {
		d := nextReconnectDelay(20, base, max)
		assert.GreaterOrEqual(t, d, max/2)
		assert.LessOrEqual(t, d, max)
	}
}

func TestIsPermanentCode(t *testing.T) {
	permanent := []int{
		amqp.ContentTooLarge,
		amqp.InvalidPath,
		amqp.AccessRefused,
		amqp.NotFound,
		amqp.PreconditionFailed,
		amqp.NotAllowed,
		amqp.NotImplemented,
	}
	for _, code := range permanent {
		assert.True(t, isPermanentCode(code), "code=%d", code)
	}

	transient := []int{
		amqp.ConnectionForced,
		amqp.ChannelError,
		amqp.ResourceError,
		amqp.InternalError,
		amqp.FrameError,
	}
	for _, code := range transient {
		assert.False(t, isPermanentCode(code), "code=%d", code)
	}
}

func TestPublishErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	transient := &PublishError{Exchange: "notifications", RoutingKey: "message.created", Err: cause}
	permanent := &PublishError{Exchange: "notifications", RoutingKey: "message.created", Permanent: true, Err: cause}

	assert.False(t, IsPermanentPublishError(transient))
	assert.True(t, IsPermanentPublishError(permanent))
	assert.False(t, IsPermanentPublishError(cause))
	assert.False(t, IsPermanentPublishError(nil))

	// классификация видна и через врапперы
	wrapped := fmt.Errorf("relay: %w", permanent)
	assert.True(t, IsPermanentPublishError(wrapped))

	assert.ErrorIs(t, transient, cause)
	assert.Contains(t, transient.Error(), "transient")
	assert.Contains(t, permanent.Error(), "permanent")
	assert.Contains(t, permanent.Error(), "notifications/message.created")
}

func TestClassifyAMQPError(t *testing.T) {
	b := &RabbitBroker{}

	pe := b.classify("ex", "key", &amqp.Error{Code: amqp.NotFound, Reason: "no exchange"})
	assert.True(t, pe.Permanent)

	pe = b.classify("ex", "key", &amqp.Error{Code: amqp.ConnectionForced, Reason: "shutdown"})
	assert.False(t, pe.Permanent)

	pe = b.classify("ex", "key", errors.New("tcp reset"))
	assert.False(t, pe.Permanent)
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "CLOSING", StateClosing.String())
	assert.Equal(t, "UNKNOWN", ConnectionState(42).String())
}

func TestPublishWhenDisconnected(t *testing.T) {
	b := &RabbitBroker{}
	b.setState(StateDisconnected)

	err := b.Publish(context.Background(), "notifications", "message.created", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, IsPermanentPublishError(err))
	assert.False(t, b.IsConnected())
}

func TestPublishReturnsPromptlyWhileReconnecting(t *testing.T) {
	b := &RabbitBroker{}
	b.setState(StateConnecting)

	// Имитируем реконнект, держащий мьютекс dial'ом
	b.mu.Lock()
	defer b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- b.Publish(context.Background(), "notifications", "message.created", []byte(`{}`))
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.False(t, IsPermanentPublishError(err))
	case <-time.After(time.Second):
		t.Fatal("publish blocked on the reconnect mutex")
	}
}

func TestNewRabbitBrokerRejectsEmptyURL(t *testing.T) {
	_, err := NewRabbitBroker(context.Background(), configWithURL(""), nil, nil, nil)
	require.Error(t, err)
}
