package service

import (
	"communities/internal/application/entity"
	"communities/pkg/broker"
	"context"
	"fmt"
	"time"
)

// RelayRun — цикл доставки: резервируем батч PENDING-записей, публикуем в
// порядке created_at, обновляем статусы. Живёт до отмены ctx; отмена
// проверяется между записями, но никогда посреди publish.
func (s *ServiceImpl) RelayRun(ctx context.Context) {
	s.logger.Infow("relay started",
		"batch", s.cfg.Relay.BatchSize,
		"poll", s.cfg.Relay.PollPeriod.String(),
		"lease", s.cfg.Relay.Lease.String(),
	)

	ticker := time.NewTicker(s.cfg.Relay.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("relay stopping")
			return
		case <-ticker.C:
			// Соединения нет — не жжём батч заведомо провальных попыток,
			// ждём следующий цикл.
			if !s.publisher.IsConnected() {
				s.logger.Debugw("broker disconnected, skipping poll cycle")
				continue
			}

			events, err := s.transactions.GetOutboxBatch(ctx, s.cfg.Relay)
			if err != nil {
				// Ошибка хранилища: итерация отменяется, записи не теряются —
				// статус двигается только после успешного round-trip.
				s.logger.Errorw("get outbox batch failed", "err", err)
				continue
			}

			if s.m != nil {
				s.m.Outbox.RelayBatchSize.Observe(float64(len(events)))
			}
			if len(events) == 0 {
				continue
			}

			for _, e := range events {
				if ctx.Err() != nil {
					s.logger.Infow("relay stopping mid-batch")
					return
				}
				if stop := s.ProcessOne(ctx, e); stop {
					break
				}
			}
		}
	}
}

// ProcessOne публикует одну запись outbox. Возвращает true, если остаток
// батча надо бросить (временная ошибка — соединение скорее всего упало).
// Экспортирован для тестирования.
func (s *ServiceImpl) ProcessOne(ctx context.Context, e entity.OutboxEvent) (stopBatch bool) {
	// Одна отравленная запись не должна убить цикл доставки целиком.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("[outbox %s] panic in relay: %v", e.ID, r)
			s.markFailed(e, fmt.Errorf("panic: %v", r))
			stopBatch = false
		}
	}()

	s.logger.Debugf("[outbox %s] relay-process started, event_type=%s attempt=%d", e.ID, e.EventType, e.Attempts+1)

	if err := s.publisher.Publish(ctx, e.EventType, e.Payload); err != nil {
		s.markFailed(e, err)

		if broker.IsPermanentPublishError(err) {
			// Проблема этой записи не блокирует остальные
			s.logger.Errorf("[outbox %s] permanent publish error: %v", e.ID, err)
			return false
		}

		s.logger.Warnf("[outbox %s] transient publish error, abandoning batch: %v", e.ID, err)
		return true
	}

	// Сообщение уже у брокера; если MarkSent не прошёл, запись останется
	// PENDING и уйдёт повторно — дубль допустим (at-least-once), потеря нет.
	if err := s.repo.MarkSent(ctx, e.ID); err != nil {
		s.logger.Errorf("[outbox %s] mark sent failed: %v", e.ID, err)
		return false
	}

	if s.m != nil {
		s.m.Outbox.TransitionsTotal.WithLabelValues("sent").Inc()
	}
	s.logger.Infof("[outbox %s] relay-process completed", e.ID)

	return false
}

// markFailed пишет статус на отдельном контексте: переход должен
// зафиксироваться даже если рабочий ctx уже отменён.
func (s *ServiceImpl) markFailed(e entity.OutboxEvent, cause error) {
	updCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.MarkFailed(updCtx, e.ID, cause); err != nil {
		s.logger.Errorf("[outbox %s] mark failed failed: %v", e.ID, err)
		return
	}
	if s.m != nil {
		s.m.Outbox.TransitionsTotal.WithLabelValues("failed").Inc()
	}
}

// SweepOutbox — медленная политика повторов, отдельная от горячего цикла:
// возвращает FAILED-записи ниже потолка попыток в PENDING и показывает
// оператору записи, исчерпавшие попытки.
func (s *ServiceImpl) SweepOutbox(ctx context.Context) {
	requeued, err := s.repo.RequeueFailed(ctx, s.cfg.Relay.MaxAttempts, s.cfg.Sweep.RequeueLimit)
	if err != nil {
		s.logger.Errorw("requeue failed entries", "err", err)
		return
	}
	if requeued > 0 {
		s.logger.Infow("requeued failed outbox entries", "count", requeued)
		if s.m != nil {
			s.m.Outbox.RequeuedTotal.Add(float64(requeued))
		}
	}

	gaveUp, err := s.repo.CountGaveUp(ctx, s.cfg.Relay.MaxAttempts)
	if err != nil {
		s.logger.Errorw("count gave up entries", "err", err)
		return
	}
	if s.m != nil {
		s.m.Outbox.GaveUpEntries.Set(float64(gaveUp))
	}
	if gaveUp > 0 {
		s.logger.Warnw("outbox entries exhausted retry attempts, operator attention required",
			"count", gaveUp, "maxAttempts", s.cfg.Relay.MaxAttempts)
	}
}

// PurgeOutbox удаляет старые SENT-записи по retention.
func (s *ServiceImpl) PurgeOutbox(ctx context.Context) {
	purged, err := s.repo.PurgeSent(ctx, s.cfg.Sweep.SentKeepDays)
	if err != nil {
		s.logger.Errorw("purge sent entries", "err", err)
		return
	}
	if purged > 0 {
		s.logger.Infow("purged sent outbox entries", "count", purged, "keepDays", s.cfg.Sweep.SentKeepDays)
		if s.m != nil {
			s.m.Outbox.PurgedTotal.Add(float64(purged))
		}
	}
}
