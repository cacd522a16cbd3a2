package entity

// Контракт событий для брокера: UTF-8 JSON, поля в snake_case.
// Потребители биндят очереди на topic exchange по routing key.

type NotifyEntry struct {
	UserID string `json:"user_id"`
}

type CreateMessageEvent struct {
	MessageID        string        `json:"message_id"`
	ChannelID        string        `json:"channel_id"`
	AuthorID         string        `json:"author_id"`
	Content          string        `json:"content"`
	ReplyToMessageID *string       `json:"reply_to_message_id"`
	Attachments      []Attachment  `json:"attachments"`
	NotifyEntries    []NotifyEntry `json:"notify_entries"`
}

type UpdateMessageEvent struct {
	MessageID     string        `json:"message_id"`
	ChannelID     string        `json:"channel_id"`
	Content       string        `json:"content"`
	IsPinned      bool          `json:"is_pinned"`
	NotifyEntries []NotifyEntry `json:"notify_entries"`
}

type DeleteMessageEvent struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
}
