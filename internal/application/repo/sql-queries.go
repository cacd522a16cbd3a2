package repo

const createMessage = `INSERT INTO messages (
	id, channel_id, author_id, content, reply_to_message_id, is_pinned, attachments, created_at)
VALUES ($1, $2, $3, $4, $5, $6, ($7)::jsonb, now())
ON CONFLICT (id) DO NOTHING
RETURNING id;`

const getMessage = `SELECT id, channel_id, author_id, content, reply_to_message_id, is_pinned, attachments, created_at, updated_at
FROM messages WHERE id = $1`

const getMessagesByChannel = `SELECT id, channel_id, author_id, content, reply_to_message_id, is_pinned, attachments, created_at, updated_at
FROM messages
WHERE channel_id = $1
ORDER BY created_at DESC
LIMIT $2`

const updateMessage = `UPDATE messages
SET content = COALESCE($2, content),
    is_pinned = COALESCE($3, is_pinned),
    updated_at = now()
WHERE id = $1
RETURNING id, channel_id, author_id, content, reply_to_message_id, is_pinned, attachments, created_at, updated_at`

const deleteMessage = `DELETE FROM messages WHERE id = $1`

// OUTBOX
const insertOutboxQuery = `
INSERT INTO outbox_events (
  id, event_type, payload, status, attempts, last_error, next_attempt_at, created_at
) VALUES ($1, $2, ($3)::jsonb, $4, 0, NULL, now(), now())
`

// Резервирование батча: SKIP LOCKED + сдвиг next_attempt_at на lease вперёд,
// чтобы два relay-инстанса не публиковали одну запись одновременно.
const reserveBatchSQL = `
WITH picked AS (
	SELECT id
  	FROM outbox_events
  	WHERE status = 'PENDING'
		AND next_attempt_at <= now()
  	ORDER BY created_at
  	FOR UPDATE SKIP LOCKED
	LIMIT $2
)
UPDATE outbox_events AS o
SET next_attempt_at = now() + $1::interval
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.event_type, o.payload, o.status, o.attempts, o.last_error, o.next_attempt_at, o.created_at;
`

// Переход только из PENDING: повторный вызов и вызов по чужому/исчезнувшему
// id дают 0 строк и трактуются как no-op.
const markSentSQL = `
UPDATE outbox_events
SET status = 'SENT', last_error = NULL, sent_at = now()
WHERE id = $1 AND status = 'PENDING'`

const markFailedSQL = `
UPDATE outbox_events
SET status = 'FAILED', attempts = attempts + 1, last_error = $2
WHERE id = $1 AND status = 'PENDING'`

const requeueFailedSQL = `
WITH picked AS (
	SELECT id
	FROM outbox_events
	WHERE status = 'FAILED'
		AND attempts < $1
	ORDER BY created_at
	FOR UPDATE SKIP LOCKED
	LIMIT $2
)
UPDATE outbox_events AS o
SET status = 'PENDING', next_attempt_at = now()
FROM picked
WHERE o.id = picked.id`

const countGaveUpSQL = `
SELECT count(*) FROM outbox_events
WHERE status = 'FAILED' AND attempts >= $1`

// Retention считается от момента отправки, а не вставки: запись, долго
// провисевшая в FAILED, после отправки живёт полный срок хранения.
const purgeSentSQL = `
DELETE FROM outbox_events
WHERE status = 'SENT' AND coalesce(sent_at, created_at) < now() - make_interval(days => $1)`
