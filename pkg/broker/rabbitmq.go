package broker

import (
	"communities/internal/application/common"
	"communities/pkg/config"
	"communities/pkg/metrics"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConnectionState — состояние соединения с брокером. Не персистится,
// после рестарта процесса строится заново.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

var ErrNotConnected = errors.New("rabbitmq is not connected")

// PublishError отличает временные ошибки (соединение упало, брокер недоступен)
// от постоянных (кривой exchange, сообщение отвергнуто). Relay по Permanent
// решает, прерывать ли обработку батча.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Permanent  bool
	Err        error
}

func (e *PublishError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("publish to %s/%s: %s: %v", e.Exchange, e.RoutingKey, kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsPermanentPublishError сообщает, что повторная отправка бессмысленна.
func IsPermanentPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Permanent
}

// RabbitBroker владеет единственным соединением и каналом к RabbitMQ.
// Публикации и реконнекты сериализуются одним мьютексом: в полёте не бывает
// больше одной отправки и больше одного реконнекта.
type RabbitBroker struct {
	conf      config.Rabbit
	exchanges []string
	logger    *zap.SugaredLogger
	m         *metrics.Metrics

	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	state atomic.Int32

	confirmTimeout time.Duration
}

// NewRabbitBroker создаёт брокер и запускает фоновый цикл соединения.
// Недоступность RabbitMQ на старте не фатальна: цикл будет переподключаться
// с экспоненциальным бэкоффом, пока ctx жив.
func NewRabbitBroker(ctx context.Context, conf config.Rabbit, exchanges []string, logger *zap.SugaredLogger, m *metrics.Metrics) (*RabbitBroker, error) {
	if conf.URL == "" {
		return nil, errors.New("rabbitmq url is empty")
	}

	b := &RabbitBroker{
		conf:           conf,
		exchanges:      exchanges,
		logger:         logger,
		m:              m,
		confirmTimeout: 5 * time.Second,
	}
	b.setState(StateDisconnected)

	go b.run(ctx)

	return b, nil
}

// run держит соединение живым: подключается, ждёт обрыва, переподключается.
// Бэкофф уважает ctx, чтобы не было поздних реконнектов после shutdown.
func (b *RabbitBroker) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			b.close()
			return
		}

		closedCh, err := b.connect(ctx)
		if err != nil {
			delay := nextReconnectDelay(attempt, b.conf.ReconnectBase, b.conf.ReconnectCap)
			b.logger.Warnf("rabbitmq connect failed attempt=%d retry_in=%s err=%v", attempt+1, delay, err)
			attempt++
			if err := common.SleepCtx(ctx, delay); err != nil {
				return
			}
			continue
		}

		if attempt > 0 && b.m != nil {
			b.m.Broker.ReconnectsTotal.Inc()
		}
		attempt = 0
		b.logger.Infof("🚀 rabbitmq connected, exchanges declared: %v", b.exchanges)

		select {
		case <-ctx.Done():
			b.close()
			return
		case amqpErr := <-closedCh:
			b.setState(StateDisconnected)
			if amqpErr != nil {
				b.logger.Warnf("rabbitmq connection lost: %v", amqpErr)
			}
		}
	}
}

// connect устанавливает соединение, открывает канал, включает publisher
// confirms и идемпотентно декларирует топологию. Возвращает канал, который
// закроется при обрыве соединения или канала.
func (b *RabbitBroker) connect(ctx context.Context) (<-chan *amqp.Error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(StateConnecting)

	conn, err := amqp.DialConfig(b.conf.URL, amqp.Config{
		Dial:      amqp.DefaultDial(b.conf.ConnectTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		b.setState(StateDisconnected)
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		b.setState(StateDisconnected)
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		b.setState(StateDisconnected)
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	// Декларация после каждого коннекта: durable topic exchange.
	for _, exchange := range b.exchanges {
		if err := ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // auto-delete
			false,    // internal
			false,    // no-wait
			nil,
		); err != nil {
			_ = conn.Close()
			b.setState(StateDisconnected)
			return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
		}
	}

	// Обрыв канала (например, 404 на публикации) схлопываем с обрывом
	// соединения: в обоих случаях пересоздаём всё целиком.
	closedCh := make(chan *amqp.Error, 2)
	conn.NotifyClose(closedCh)
	ch.NotifyClose(closedCh)

	b.conn = conn
	b.ch = ch
	b.setState(StateConnected)

	return closedCh, nil
}

// Publish отправляет одно сообщение: content-type application/json,
// persistent delivery, с ожиданием publisher confirm. Если соединения нет,
// сразу возвращает transient-ошибку, не дожидаясь реконнекта.
func (b *RabbitBroker) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	// Проверка состояния до мьютекса: во время реконнекта mu занят dial'ом
	// на весь connect timeout, а publish обязан вернуть transient-ошибку
	// сразу, не провисев на нём всю попытку.
	if ConnectionState(b.state.Load()) != StateConnected {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: ErrNotConnected}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ConnectionState(b.state.Load()) != StateConnected || b.ch == nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: ErrNotConnected}
	}

	confirmation, err := b.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         payload,
		},
	)
	if err != nil {
		return b.classify(exchange, routingKey, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, b.confirmTimeout)
	defer cancel()

	acked, err := confirmation.WaitContext(confirmCtx)
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: fmt.Errorf("await confirm: %w", err)}
	}
	if !acked {
		// nack от брокера: сообщение отвергнуто, но доставка возможна позже
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: errors.New("broker nacked message")}
	}

	return nil
}

// classify разделяет AMQP-ошибки на постоянные и временные по коду.
func (b *RabbitBroker) classify(exchange, routingKey string, err error) *PublishError {
	var aerr *amqp.Error
	if errors.As(err, &aerr) && isPermanentCode(aerr.Code) {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Permanent: true, Err: err}
	}
	return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
}

func isPermanentCode(code int) bool {
	switch code {
	case amqp.ContentTooLarge,
		amqp.InvalidPath,
		amqp.AccessRefused,
		amqp.NotFound,
		amqp.PreconditionFailed,
		amqp.NotAllowed,
		amqp.NotImplemented:
		return true
	default:
		return false
	}
}

// IsConnected позволяет relay пропустить цикл опроса вместо того, чтобы
// сжечь батч попыток на лежачем соединении.
func (b *RabbitBroker) IsConnected() bool {
	return ConnectionState(b.state.Load()) == StateConnected
}

func (b *RabbitBroker) State() ConnectionState {
	return ConnectionState(b.state.Load())
}

func (b *RabbitBroker) HealthCheck(ctx context.Context) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (b *RabbitBroker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(StateClosing)
	if b.conn != nil && !b.conn.IsClosed() {
		_ = b.conn.Close()
	}
	b.conn = nil
	b.ch = nil
	b.setState(StateDisconnected)
	b.logger.Info("rabbitmq connection closed")
}

func (b *RabbitBroker) setState(s ConnectionState) {
	b.state.Store(int32(s))
	if b.m != nil {
		if s == StateConnected {
			b.m.Broker.Connected.Set(1)
		} else {
			b.m.Broker.Connected.Set(0)
		}
	}
}

// nextReconnectDelay — экспоненциальный бэкофф с джиттером: нижняя граница
// base/2<<attempt, верхняя — cap.
func nextReconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}

	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}

	return d/2 + common.Jitter(d/2)
}
