package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

// Attachment — ссылка на вложение в content-сервисе.
type Attachment struct {
	ID   string `json:"id" validate:"required,uuid4"`
	Name string `json:"name" validate:"required,max=255"`
	URL  string `json:"url" validate:"required,url"`
}

type Message struct {
	ID               uuid.UUID    `json:"id"`
	ChannelID        uuid.UUID    `json:"channelID"`
	AuthorID         uuid.UUID    `json:"authorID"`
	Content          string       `json:"content"`
	ReplyToMessageID *uuid.UUID   `json:"replyToMessageID,omitempty"`
	IsPinned         bool         `json:"isPinned"`
	Attachments      []Attachment `json:"attachments"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        *time.Time   `json:"updatedAt,omitempty"`
}

type CreateMessageRequest struct {
	AuthorID         string       `json:"authorID" validate:"required,uuid4"`
	Content          string       `json:"content" validate:"required,min=1,max=4000"`
	ReplyToMessageID string       `json:"replyToMessageID" validate:"omitempty,uuid4"`
	Attachments      []Attachment `json:"attachments" validate:"omitempty,dive"`
}

type UpdateMessageRequest struct {
	Content  *string `json:"content" validate:"omitempty,min=1,max=4000"`
	IsPinned *bool   `json:"isPinned"`
}

type PresignedURL struct {
	URL string `json:"url"`
}
