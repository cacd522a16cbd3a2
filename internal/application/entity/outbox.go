package entity

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

type OutboxEventType string

const (
	EventMessageCreate OutboxEventType = "message.create"
	EventMessageUpdate OutboxEventType = "message.update"
	EventMessageDelete OutboxEventType = "message.delete"
)

// ProducedEventTypes — все типы событий, которые пишет этот сервис.
// Таблица маршрутизации обязана покрыть каждый из них, иначе старт падает.
func ProducedEventTypes() []OutboxEventType {
	return []OutboxEventType{
		EventMessageCreate,
		EventMessageUpdate,
		EventMessageDelete,
	}
}

// OutboxEvent — строка журнала отложенных уведомлений. Переходы статусов:
// PENDING→SENT (терминальный), PENDING→FAILED, FAILED→PENDING (requeue).
// next_attempt_at совмещает lease при резервировании батча и видимость
// для повторов.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	EventType     OutboxEventType `db:"event_type"`
	Payload       json.RawMessage `db:"payload"` // JSONB, relay его не интерпретирует
	Status        OutboxStatus    `db:"status"`
	Attempts      int             `db:"attempts"`
	LastError     string          `db:"last_error"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	CreatedAt     time.Time       `db:"created_at"`
}
