package repo

import (
	"communities/internal/application/entity"
	"communities/pkg/config"
	"context"
	"encoding/json"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Transactions связывает доменную запись и outbox-запись в одну транзакцию.
// Инвариант: нет доменного факта без записи в outbox и нет записи в outbox
// без закоммиченного факта.
type Transactions interface {
	CreateMessage(ctx context.Context, msg *entity.Message, payload []byte) error
	UpdateMessage(ctx context.Context, id uuid.UUID, content *string, isPinned *bool) (*entity.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID, payload []byte) error
	GetOutboxBatch(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error)
}

type TransactionsImpl struct {
	repo   *RepoImpl
	logger *zap.SugaredLogger
}

func NewTransactions(repo *RepoImpl, logger *zap.SugaredLogger) *TransactionsImpl {
	return &TransactionsImpl{repo: repo, logger: logger}
}

func (t *TransactionsImpl) CreateMessage(ctx context.Context, msg *entity.Message, payload []byte) error {
	if len(payload) == 0 {
		t.logger.Warnf("[message: %s] empty payload for outbox", msg.ID)
	}

	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := t.repo.CreateMessage(ctx, msg)
		if err != nil {
			t.logger.Errorf("[message: %s] insert message failed: %v", msg.ID, err)
			return err
		}

		if !inserted {
			return nil
		}

		return t.insertOutbox(ctx, entity.EventMessageCreate, payload)
	})
}

// UpdateMessage собирает payload события уже внутри транзакции: наружу
// уходит состояние строки после апдейта.
func (t *TransactionsImpl) UpdateMessage(ctx context.Context, id uuid.UUID, content *string, isPinned *bool) (*entity.Message, error) {
	var updated *entity.Message

	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		msg, err := t.repo.UpdateMessage(ctx, id, content, isPinned)
		if err != nil {
			return err
		}
		updated = msg

		evt := entity.UpdateMessageEvent{
			MessageID:     msg.ID.String(),
			ChannelID:     msg.ChannelID.String(),
			Content:       msg.Content,
			IsPinned:      msg.IsPinned,
			NotifyEntries: []entity.NotifyEntry{},
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			return err
		}

		return t.insertOutbox(ctx, entity.EventMessageUpdate, payload)
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (t *TransactionsImpl) DeleteMessage(ctx context.Context, id uuid.UUID, payload []byte) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := t.repo.DeleteMessage(ctx, id); err != nil {
			return err
		}

		return t.insertOutbox(ctx, entity.EventMessageDelete, payload)
	})
}

func (t *TransactionsImpl) insertOutbox(ctx context.Context, eventType entity.OutboxEventType, payload []byte) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	evt := entity.OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		Status:    entity.OutboxPending,
	}

	if err := t.repo.InsertOutbox(ctx, &evt); err != nil {
		t.logger.Errorf("[outbox: %s] insert outbox failed: %v", id, err)
		return err
	}

	return nil
}

// GetOutboxBatch резервирует батч в отдельной транзакции: SKIP LOCKED
// работает, пока строки заблокированы, а lease переживает коммит.
func (t *TransactionsImpl) GetOutboxBatch(ctx context.Context, c config.RelayConfig) ([]entity.OutboxEvent, error) {
	var events []entity.OutboxEvent
	err := t.repo.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		events, err = t.repo.ReserveOutboxBatch(txCtx, c.Lease, c.BatchSize)
		return err
	})
	if err != nil {
		t.logger.Errorw("reserve outbox batch failed", "err", err)
		return nil, err
	}
	return events, nil
}
