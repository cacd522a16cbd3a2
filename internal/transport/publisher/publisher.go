package publisher

import (
	"communities/internal/application/entity"
	"communities/internal/application/routing"
	"communities/pkg/broker"
	"communities/pkg/metrics"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, eventType entity.OutboxEventType, payload []byte) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// Broker — то, что умеет *broker.RabbitBroker.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, payload []byte) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// RabbitPublisher резолвит назначение по типу события и публикует через
// брокер. Внутри вызова ретраев нет: повтором временных ошибок занимается
// relay через статусы outbox, иначе получаем двойной retry-шторм.
type RabbitPublisher struct {
	broker Broker
	routes *routing.Table
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

func NewPublisher(b Broker, routes *routing.Table, logger *zap.SugaredLogger, m *metrics.Metrics) *RabbitPublisher {
	return &RabbitPublisher{
		broker: b,
		routes: routes,
		logger: logger,
		m:      m,
	}
}

func (p *RabbitPublisher) IsConnected() bool {
	return p.broker.IsConnected()
}

func (p *RabbitPublisher) HealthCheck(ctx context.Context) error {
	if p.broker == nil {
		return errors.New("broker is not initialized")
	}
	return p.broker.HealthCheck(ctx)
}

func (p *RabbitPublisher) Publish(ctx context.Context, eventType entity.OutboxEventType, payload []byte) error {
	route, err := p.routes.Resolve(eventType)
	if err != nil {
		// Непокрытый тип события отлавливается на старте; сюда можно попасть
		// только со старой записью, оставшейся после смены конфигурации.
		p.logger.Errorf("unroutable event type %q: %v", eventType, err)
		return &broker.PublishError{Permanent: true, Err: err}
	}

	t0 := time.Now()
	err = p.broker.Publish(ctx, route.Exchange, route.RoutingKey, payload)
	rt := time.Since(t0)

	if p.m != nil {
		res := "ok"
		if err != nil {
			res = "error"
		}
		p.m.Broker.PublishLatencySeconds.WithLabelValues(route.Exchange, res).Observe(rt.Seconds())
		p.m.Broker.PublishTotal.WithLabelValues(route.Exchange, classifyResult(ctx, err)).Inc()
	}

	if err != nil {
		if broker.IsPermanentPublishError(err) {
			p.logger.Errorf("permanent publish error exchange=%s key=%s rt=%s err=%v",
				route.Exchange, route.RoutingKey, rt, err)
		} else {
			p.logger.Warnf("transient publish error exchange=%s key=%s rt=%s err=%v",
				route.Exchange, route.RoutingKey, rt, err)
		}
		return err
	}

	p.logger.Infof("published exchange=%s key=%s bytes=%d rt=%s",
		route.Exchange, route.RoutingKey, len(payload), rt)
	return nil
}

func classifyResult(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return "canceled"
	case broker.IsPermanentPublishError(err):
		return "permanent"
	default:
		return "transient"
	}
}
