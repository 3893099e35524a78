package repository

import (
	"context"

	"chatrelay/internal/domain"
)

// MessageRepository defines append-only persistence of chat messages plus
// the point queries the routing engine depends on. All ordered results are
// oldest-first in insertion order.
type MessageRepository interface {
	Init(ctx context.Context) error

	// Append stores a new message, assigning its ID and CreatedAt
	// server-side. receiverID must be non-nil iff typ is MessagePrivate.
	Append(ctx context.Context, senderID int64, receiverID *int64, content string, typ domain.MessageType) (*domain.Message, error)

	// RecentPublic returns the most recent limit public messages,
	// oldest-first.
	RecentPublic(ctx context.Context, limit int) ([]domain.Message, error)

	// PrivateThread returns every private message between the two users,
	// in either direction, oldest-first.
	PrivateThread(ctx context.Context, userA, userB int64) ([]domain.Message, error)

	// MarkThreadRead flags every private message from otherParty to
	// recipient as read.
	MarkThreadRead(ctx context.Context, recipient, otherParty int64) error
}
