package repo

import (
	"communities/internal/appers"
	"communities/internal/application/entity"
	"communities/pkg/db"
	"communities/pkg/metrics"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Repo interface {
	CreateMessage(ctx context.Context, msg *entity.Message) (bool, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*entity.Message, error)
	GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*entity.Message, error)
	UpdateMessage(ctx context.Context, id uuid.UUID, content *string, isPinned *bool) (*entity.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error

	InsertOutbox(ctx context.Context, e *entity.OutboxEvent) error
	ReserveOutboxBatch(ctx context.Context, lease time.Duration, limit int) ([]entity.OutboxEvent, error)
	MarkSent(ctx context.Context, outboxID uuid.UUID) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, cause error) error
	RequeueFailed(ctx context.Context, maxAttempts, limit int) (int64, error)
	CountGaveUp(ctx context.Context, maxAttempts int) (int64, error)
	PurgeSent(ctx context.Context, keepDays int) (int64, error)

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

func NewRepo(db db.DB, logger *zap.SugaredLogger, m *metrics.Metrics) *RepoImpl {
	return &RepoImpl{db: db, logger: logger, m: m}
}

// track пишет метрику по завершении операции репозитория.
func (r *RepoImpl) track(op string, start time.Time, err *error) {
	if r.m == nil {
		return
	}
	result := "ok"
	if err != nil && *err != nil {
		result = "error"
	}
	r.m.Repo.RequestsTotal.WithLabelValues(op, result).Inc()
	r.m.Repo.DurationSeconds.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) CreateMessage(ctx context.Context, msg *entity.Message) (inserted bool, err error) {
	defer r.track("create_message", time.Now(), &err)
	r.logger.Debugf("[message: %s] start inserting into DB", msg.ID)

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return false, fmt.Errorf("marshal attachments: %w", err)
	}

	var insertedID uuid.UUID
	err = r.db.QueryRow(ctx, createMessage,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.ReplyToMessageID, msg.IsPinned, attachments,
	).Scan(&insertedID)

	switch {
	case err == nil:
		r.logger.Debugf("[message: %s] inserted into DB successfully", msg.ID)
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// ON CONFLICT DO NOTHING вернул 0 строк - сообщение уже существует
		r.logger.Warnf("[message: %s] inserting message: already exists (conflict)", msg.ID)
		return false, appers.ErrMessageAlreadyExists
	case isDuplicateKeyError(err):
		r.logger.Warnf("[message: %s] inserting message: already exists (duplicate key)", msg.ID)
		return false, appers.ErrMessageAlreadyExists
	default:
		r.logger.Errorf("[message: %s] error inserting into DB: %v", msg.ID, err)
		return false, fmt.Errorf("error inserting into DB: %w", err)
	}
}

func (r *RepoImpl) GetMessage(ctx context.Context, id uuid.UUID) (msg *entity.Message, err error) {
	defer r.track("get_message", time.Now(), &err)

	row := r.db.QueryRow(ctx, getMessage, id)
	msg, err = scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appers.ErrMessageNotFound
	}
	if err != nil {
		r.logger.Errorf("[message: %s] error getting from DB: %v", id, err)
		return nil, fmt.Errorf("error getting from DB: %w", err)
	}
	return msg, nil
}

func (r *RepoImpl) GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) (msgs []*entity.Message, err error) {
	defer r.track("get_messages", time.Now(), &err)
	r.logger.Debugf("[channel: %s] start getting messages from DB", channelID)

	rows, err := r.db.Query(ctx, getMessagesByChannel, channelID, limit)
	if err != nil {
		r.logger.Errorf("[channel: %s] error getting from DB: %v", channelID, err)
		return nil, fmt.Errorf("error getting from DB: %w", err)
	}
	defer rows.Close()

	msgs = make([]*entity.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages rows err: %w", err)
	}
	return msgs, nil
}

func (r *RepoImpl) UpdateMessage(ctx context.Context, id uuid.UUID, content *string, isPinned *bool) (msg *entity.Message, err error) {
	defer r.track("update_message", time.Now(), &err)
	r.logger.Debugf("[message: %s] start updating in DB", id)

	row := r.db.QueryRow(ctx, updateMessage, id, content, isPinned)
	msg, err = scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Warnf("[message: %s] no rows updated", id)
		return nil, appers.ErrMessageNotFound
	}
	if err != nil {
		r.logger.Errorf("[message: %s] error updating in DB: %v", id, err)
		return nil, fmt.Errorf("error updating in DB: %w", err)
	}
	return msg, nil
}

func (r *RepoImpl) DeleteMessage(ctx context.Context, id uuid.UUID) (err error) {
	defer r.track("delete_message", time.Now(), &err)
	r.logger.Debugf("[message: %s] start deleting from DB", id)

	result, err := r.db.Exec(ctx, deleteMessage, id)
	if err != nil {
		r.logger.Errorf("[message: %s] error deleting from DB: %v", id, err)
		return fmt.Errorf("error deleting from DB: %w", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warnf("[message: %s] no rows deleted", id)
		return appers.ErrMessageNotFound
	}
	return nil
}

// scanMessage читает одну строку messages; attachments хранится как jsonb.
func scanMessage(row pgx.Row) (*entity.Message, error) {
	var (
		msg         entity.Message
		attachments []byte
	)
	if err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content,
		&msg.ReplyToMessageID, &msg.IsPinned, &attachments, &msg.CreatedAt, &msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &msg, nil
}

// isDuplicateKeyError проверяет, является ли ошибка ошибкой дубликата ключа (SQLSTATE 23505)
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
