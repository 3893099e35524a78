package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id INTEGER NOT NULL REFERENCES users(id),
	receiver_id INTEGER REFERENCES users(id),
	content TEXT NOT NULL,
	type TEXT NOT NULL,
	is_read INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(sender_id, receiver_id);
`

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMessagesTable); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	return nil
}

func (r *MessageRepository) Append(ctx context.Context, senderID int64, receiverID *int64, content string, typ domain.MessageType) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is empty")
	}
	if typ == domain.MessagePrivate && receiverID == nil {
		return nil, fmt.Errorf("private message requires a receiver")
	}
	if typ == domain.MessagePublic && receiverID != nil {
		return nil, fmt.Errorf("public message must not have a receiver")
	}

	var receiver sql.NullInt64
	if receiverID != nil {
		receiver = sql.NullInt64{Int64: *receiverID, Valid: true}
	}

	createdAt := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO messages (sender_id, receiver_id, content, type, is_read, created_at)
VALUES (?, ?, ?, ?, 0, ?)`,
		senderID,
		receiver,
		content,
		string(typ),
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message last insert id: %w", err)
	}

	var senderName string
	if err := r.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, senderID).Scan(&senderName); err != nil {
		return nil, fmt.Errorf("resolve sender name: %w", err)
	}

	return &domain.Message{
		ID:         id,
		SenderID:   senderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		Content:    content,
		Type:       typ,
		IsRead:     false,
		CreatedAt:  createdAt,
	}, nil
}

func (r *MessageRepository) RecentPublic(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, sender_id, sender_name, receiver_id, content, type, is_read, created_at FROM (
	SELECT m.id, m.sender_id, u.name AS sender_name, m.receiver_id, m.content, m.type, m.is_read, m.created_at
	FROM messages m
	JOIN users u ON u.id = m.sender_id
	WHERE m.type = 'PUBLIC'
	ORDER BY m.id DESC
	LIMIT ?
) ORDER BY id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query public messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepository) PrivateThread(ctx context.Context, userA, userB int64) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT m.id, m.sender_id, u.name, m.receiver_id, m.content, m.type, m.is_read, m.created_at
FROM messages m
JOIN users u ON u.id = m.sender_id
WHERE m.type = 'PRIVATE'
  AND ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
ORDER BY m.id ASC`,
		userA, userB, userB, userA,
	)
	if err != nil {
		return nil, fmt.Errorf("query private thread: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepository) MarkThreadRead(ctx context.Context, recipient, otherParty int64) error {
	if _, err := r.db.ExecContext(ctx, `
UPDATE messages SET is_read = 1
WHERE type = 'PRIVATE' AND receiver_id = ? AND sender_id = ? AND is_read = 0`,
		recipient,
		otherParty,
	); err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var (
			msg      domain.Message
			receiver sql.NullInt64
			typ      string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.SenderName,
			&receiver,
			&msg.Content,
			&typ,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if receiver.Valid {
			v := receiver.Int64
			msg.ReceiverID = &v
		}
		msg.Type = domain.MessageType(typ)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
