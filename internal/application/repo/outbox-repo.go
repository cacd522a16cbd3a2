package repo

import (
	"communities/internal/application/common"
	"communities/internal/application/entity"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid"
)

// InsertOutbox пишет запись журнала. Никогда не открывает собственную
// транзакцию: при вызове внутри db.WithinTransaction строка уходит тем же
// tx, что и доменная запись — вместе коммитятся, вместе откатываются.
func (r *RepoImpl) InsertOutbox(ctx context.Context, e *entity.OutboxEvent) (err error) {
	defer r.track("insert_outbox", time.Now(), &err)
	r.logger.Debugf("[outbox: %s] InsertOutbox started, event_type=%s", e.ID, e.EventType)

	_, err = r.db.Exec(ctx, insertOutboxQuery,
		e.ID, string(e.EventType), []byte(e.Payload), string(entity.OutboxPending),
	)
	if err != nil {
		return fmt.Errorf("insert outbox_event: %w", err)
	}

	return nil
}

// ReserveOutboxBatch забирает до limit PENDING-записей в порядке created_at
// и сдвигает их next_attempt_at на lease вперёд, чтобы параллельный инстанс
// их не увидел, пока мы публикуем.
func (r *RepoImpl) ReserveOutboxBatch(ctx context.Context, lease time.Duration, limit int) (res []entity.OutboxEvent, err error) {
	defer r.track("reserve_outbox", time.Now(), &err)
	r.logger.Debugf("[lease: %s, limit: %d] ReserveOutboxBatch started", lease, limit)

	rows, err := r.db.Query(ctx, reserveBatchSQL, common.PgInterval(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("reserve outbox batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         entity.OutboxEvent
			status    string
			eventType string
			lastErr   *string
		)
		if err := rows.Scan(
			&e.ID, &eventType, &e.Payload, &status, &e.Attempts, &lastErr, &e.NextAttemptAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reserved outbox: %w", err)
		}
		e.Status = entity.OutboxStatus(status)
		e.EventType = entity.OutboxEventType(eventType)
		if lastErr != nil {
			e.LastError = *lastErr
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reserve rows err: %w", err)
	}

	// UPDATE ... RETURNING не гарантирует порядок строк; FIFO по created_at
	// восстанавливаем здесь.
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })

	return res, nil
}

// MarkSent идемпотентен: переход только PENDING→SENT, по уже отправленной
// или исчезнувшей записи молча no-op.
func (r *RepoImpl) MarkSent(ctx context.Context, outboxID uuid.UUID) (err error) {
	defer r.track("mark_sent", time.Now(), &err)

	_, err = r.db.Exec(ctx, markSentSQL, outboxID)
	if err != nil {
		return fmt.Errorf("outbox mark sent: %w", err)
	}

	return nil
}

func (r *RepoImpl) MarkFailed(ctx context.Context, outboxID uuid.UUID, cause error) (err error) {
	defer r.track("mark_failed", time.Now(), &err)

	_, err = r.db.Exec(ctx, markFailedSQL, outboxID, common.TruncateError(cause))
	if err != nil {
		return fmt.Errorf("outbox mark failed: %w", err)
	}

	return nil
}

// RequeueFailed возвращает FAILED-записи ниже потолка попыток обратно в
// PENDING. Вызывается редким sweep-джобом, не горячим циклом relay.
func (r *RepoImpl) RequeueFailed(ctx context.Context, maxAttempts, limit int) (n int64, err error) {
	defer r.track("requeue_failed", time.Now(), &err)

	result, err := r.db.Exec(ctx, requeueFailedSQL, maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox requeue failed: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountGaveUp считает записи, исчерпавшие попытки. Они не ретраятся и не
// удаляются — видимость для оператора.
func (r *RepoImpl) CountGaveUp(ctx context.Context, maxAttempts int) (n int64, err error) {
	defer r.track("count_gave_up", time.Now(), &err)

	if err = r.db.QueryRow(ctx, countGaveUpSQL, maxAttempts).Scan(&n); err != nil {
		return 0, fmt.Errorf("outbox count gave up: %w", err)
	}

	return n, nil
}

func (r *RepoImpl) PurgeSent(ctx context.Context, keepDays int) (n int64, err error) {
	defer r.track("purge_sent", time.Now(), &err)

	if keepDays <= 0 {
		r.logger.Warnf("sentKeepDays is %d, skipping purge", keepDays)
		return 0, nil
	}

	result, err := r.db.Exec(ctx, purgeSentSQL, keepDays)
	if err != nil {
		return 0, fmt.Errorf("outbox purge sent: %w", err)
	}

	return result.RowsAffected(), nil
}
