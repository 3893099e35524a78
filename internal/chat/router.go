package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"chatrelay/internal/domain"
	"chatrelay/internal/repository"
)

// Router turns inbound client events into persistence calls and outbound
// deliveries. Events for a single connection arrive in order from that
// connection's read loop; events from different connections run
// concurrently, so the router itself keeps no per-event state.
type Router struct {
	messages     repository.MessageRepository
	users        repository.UserRepository
	broker       *Broker
	logger       *logrus.Logger
	historyLimit int
}

func NewRouter(messages repository.MessageRepository, users repository.UserRepository, broker *Broker, logger *logrus.Logger, historyLimit int) *Router {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Router{
		messages:     messages,
		users:        users,
		broker:       broker,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// HandleEvent dispatches one inbound event for an authenticated session.
// Malformed payloads and unknown targets are reported to the originating
// connection only and return nil; persistence failures abort the event's
// delivery and are returned so the caller can log them.
func (r *Router) HandleEvent(ctx context.Context, sess *Session, ev Event) error {
	switch ev.Event {
	case EventSendPublic:
		return r.sendPublic(ctx, sess, ev.Data)
	case EventSendPrivate:
		return r.sendPrivate(ctx, sess, ev.Data)
	case EventLoadPublicHistory:
		return r.loadPublicHistory(ctx, sess)
	case EventLoadPrivateHistory:
		return r.loadPrivateHistory(ctx, sess, ev.Data)
	case EventTyping:
		return r.typing(sess, ev.Data)
	default:
		r.sendError(sess, fmt.Sprintf("unknown event %q", ev.Event))
		return nil
	}
}

func (r *Router) sendPublic(ctx context.Context, sess *Session, data json.RawMessage) error {
	var content string
	if err := json.Unmarshal(data, &content); err != nil {
		r.sendError(sess, "send-public expects a string payload")
		return nil
	}
	if strings.TrimSpace(content) == "" {
		r.sendError(sess, "message content is empty")
		return nil
	}

	sender := sess.Identity()
	msg, err := r.messages.Append(ctx, sender.ID, nil, content, domain.MessagePublic)
	if err != nil {
		r.sendError(sess, "message could not be stored")
		return &PersistenceError{Op: "send-public", Err: err}
	}

	out, err := NewEvent(EventPublicMessage, messagePayload(msg))
	if err != nil {
		return err
	}
	r.broker.Publish(BroadcastGroup, out)
	return nil
}

func (r *Router) sendPrivate(ctx context.Context, sess *Session, data json.RawMessage) error {
	var payload SendPrivatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.sendError(sess, "send-private expects {targetUserId, message}")
		return nil
	}
	if payload.TargetUserID <= 0 || strings.TrimSpace(payload.Message) == "" {
		r.sendError(sess, "send-private expects a target user and non-empty message")
		return nil
	}

	if _, err := r.users.GetByID(ctx, payload.TargetUserID); err != nil {
		r.sendError(sess, "target user not found")
		return nil
	}

	sender := sess.Identity()
	target := payload.TargetUserID
	msg, err := r.messages.Append(ctx, sender.ID, &target, payload.Message, domain.MessagePrivate)
	if err != nil {
		r.sendError(sess, "message could not be stored")
		return &PersistenceError{Op: "send-private", Err: err}
	}

	out, err := NewEvent(EventPrivateMessage, messagePayload(msg))
	if err != nil {
		return err
	}
	// Both per-user groups receive the message so every device of the
	// sender and the recipient converge on the same record.
	r.broker.Publish(UserGroup(target), out)
	if target != sender.ID {
		r.broker.Publish(UserGroup(sender.ID), out)
	}

	ack, err := NewEvent(EventMessageDelivered, msg.ID)
	if err != nil {
		return err
	}
	r.broker.Publish(UserGroup(sender.ID), ack)
	return nil
}

func (r *Router) loadPublicHistory(ctx context.Context, sess *Session) error {
	msgs, err := r.messages.RecentPublic(ctx, r.historyLimit)
	if err != nil {
		r.sendError(sess, "history could not be loaded")
		return &PersistenceError{Op: "load-public-history", Err: err}
	}

	out, err := NewEvent(EventPublicHistory, messagePayloads(msgs))
	if err != nil {
		return err
	}
	sess.Send(out)
	return nil
}

func (r *Router) loadPrivateHistory(ctx context.Context, sess *Session, data json.RawMessage) error {
	var payload TargetPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID <= 0 {
		r.sendError(sess, "load-private-history expects {targetUserId}")
		return nil
	}

	self := sess.Identity().ID
	msgs, err := r.messages.PrivateThread(ctx, self, payload.TargetUserID)
	if err != nil {
		r.sendError(sess, "history could not be loaded")
		return &PersistenceError{Op: "load-private-history", Err: err}
	}

	out, err := NewEvent(EventPrivateHistory, messagePayloads(msgs))
	if err != nil {
		return err
	}
	sess.Send(out)

	if err := r.messages.MarkThreadRead(ctx, self, payload.TargetUserID); err != nil {
		return &PersistenceError{Op: "mark-thread-read", Err: err}
	}

	read, err := NewEvent(EventMessageRead, self)
	if err != nil {
		return err
	}
	r.broker.Publish(UserGroup(payload.TargetUserID), read)
	return nil
}

// typing forwards an ephemeral notification to the target's devices.
// Never persisted, never acknowledged; a missing target simply has no
// subscribers.
func (r *Router) typing(sess *Session, data json.RawMessage) error {
	var payload TargetPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID <= 0 {
		r.sendError(sess, "typing expects {targetUserId}")
		return nil
	}

	out, err := NewEvent(EventTyping, sess.Identity().Name)
	if err != nil {
		return err
	}
	r.broker.Publish(UserGroup(payload.TargetUserID), out)
	return nil
}

func (r *Router) sendError(sess *Session, message string) {
	ev, err := NewEvent(EventError, ErrorPayload{Message: message})
	if err != nil {
		r.logger.Warnf("build error event: %v", err)
		return
	}
	if !sess.Send(ev) {
		r.logger.Warnf("dropped error event for user %d", sess.Identity().ID)
	}
}
