package domain

import "time"

// MessageType distinguishes broadcast messages from directed ones.
type MessageType string

const (
	MessagePublic  MessageType = "PUBLIC"
	MessagePrivate MessageType = "PRIVATE"
)

// Message is a durably recorded chat message. ReceiverID is set iff the
// message is private. IsRead is only meaningful for private messages.
// Insertion order (the autoincrement ID) is the canonical ordering used
// for history replay.
type Message struct {
	ID         int64
	SenderID   int64
	SenderName string
	ReceiverID *int64
	Content    string
	Type       MessageType
	IsRead     bool
	CreatedAt  time.Time
}
