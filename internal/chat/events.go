package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"chatrelay/internal/domain"
)

// Client-to-server event names.
const (
	EventSendPublic         = "send-public"
	EventSendPrivate        = "send-private"
	EventLoadPublicHistory  = "load-public-history"
	EventLoadPrivateHistory = "load-private-history"
	EventTyping             = "typing"
)

// Server-to-client event names.
const (
	EventIdentityAck      = "identity-ack"
	EventOnlineUsers      = "online-users"
	EventPublicMessage    = "public-message"
	EventPrivateMessage   = "private-message"
	EventMessageDelivered = "message-delivered"
	EventMessageRead      = "message-read"
	EventPublicHistory    = "public-history"
	EventPrivateHistory   = "private-history"
	EventError            = "error"
)

// Event is the wire envelope exchanged in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent wraps a payload into an envelope.
func NewEvent(name string, payload any) (Event, error) {
	if payload == nil {
		return Event{Event: name}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{Event: name, Data: data}, nil
}

// TargetPayload addresses an event at a single user.
type TargetPayload struct {
	TargetUserID int64 `json:"targetUserId"`
}

// SendPrivatePayload carries a directed message.
type SendPrivatePayload struct {
	TargetUserID int64  `json:"targetUserId"`
	Message      string `json:"message"`
}

// MessagePayload is the projection of a stored message delivered to clients.
type MessagePayload struct {
	ID       int64     `json:"id"`
	SenderID int64     `json:"senderId"`
	From     string    `json:"from"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// ErrorPayload is delivered only to the connection whose event failed.
type ErrorPayload struct {
	Message string `json:"message"`
}

func messagePayload(msg *domain.Message) MessagePayload {
	return MessagePayload{
		ID:       msg.ID,
		SenderID: msg.SenderID,
		From:     msg.SenderName,
		Message:  msg.Content,
		Time:     msg.CreatedAt,
	}
}

func messagePayloads(msgs []domain.Message) []MessagePayload {
	out := make([]MessagePayload, len(msgs))
	for i := range msgs {
		out[i] = messagePayload(&msgs[i])
	}
	return out
}
