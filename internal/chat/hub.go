package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chatrelay/internal/service"
)

// Hub orchestrates the connection lifecycle: authenticate, register,
// notify on connect; deregister, notify on disconnect. It owns the
// presence snapshot fan-out.
type Hub struct {
	auth       service.AuthService
	presence   *Presence
	broker     *Broker
	router     *Router
	logger     *logrus.Logger
	sendBuffer int
	wg         sync.WaitGroup
}

func NewHub(auth service.AuthService, presence *Presence, broker *Broker, router *Router, logger *logrus.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		auth:       auth,
		presence:   presence,
		broker:     broker,
		router:     router,
		logger:     logger,
		sendBuffer: sendBuffer,
	}
}

// OnConnect authenticates a new connection. On success the handle is
// subscribed to the broadcast group and its own per-user group, registered
// in presence, and every authenticated connection receives a fresh
// presence snapshot. On failure the handle is closed and no state is left
// behind.
func (h *Hub) OnConnect(ctx context.Context, handle Handle, token string) (*Session, error) {
	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	user, err := h.auth.GetUserByID(ctx, claims.UserID)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	sess := NewSession(handle, Identity{ID: user.ID, Name: user.Name, Role: user.Role})

	ack, err := NewEvent(EventIdentityAck, sess.Identity())
	if err != nil {
		handle.Close()
		return nil, err
	}
	sess.Send(ack)

	h.broker.Subscribe(BroadcastGroup, sess)
	h.broker.Subscribe(UserGroup(user.ID), sess)
	h.presence.Register(sess)
	h.broadcastPresence()

	h.logger.Infof("connected: %s (%s)", user.Name, user.Email)
	return sess, nil
}

// OnDisconnect tears down one handle. The presence snapshot is rebroadcast
// only when the user's last handle went away; a multi-device user with a
// surviving handle stays online.
func (h *Hub) OnDisconnect(sess *Session) {
	identity := sess.Identity()
	h.broker.Unsubscribe(BroadcastGroup, sess.HandleID())
	h.broker.Unsubscribe(UserGroup(identity.ID), sess.HandleID())

	_, offline := h.presence.Deregister(sess.HandleID())
	if offline {
		h.broadcastPresence()
	}

	h.logger.Infof("disconnected: %s", identity.Name)
}

// Route dispatches one inbound event, logging failures the router
// surfaces. Persistence failures have already aborted delivery by the
// time they land here.
func (h *Hub) Route(ctx context.Context, sess *Session, ev Event) {
	if err := h.router.HandleEvent(ctx, sess, ev); err != nil {
		h.logger.Errorf("user %d event %s: %v", sess.Identity().ID, ev.Event, err)
	}
}

// broadcastPresence sends every connection the online-user list minus
// itself.
func (h *Hub) broadcastPresence() {
	sessions := h.presence.Sessions()
	online := h.presence.Snapshot(0)

	for _, sess := range sessions {
		self := sess.Identity().ID
		visible := make([]Identity, 0, len(online))
		for _, id := range online {
			if id.ID != self {
				visible = append(visible, id)
			}
		}
		ev, err := NewEvent(EventOnlineUsers, visible)
		if err != nil {
			h.logger.Warnf("build online-users event: %v", err)
			return
		}
		if !sess.Send(ev) {
			h.logger.Warnf("dropped online-users event for user %d", self)
		}
	}
}

// ServeConn runs the full lifecycle for one upgraded websocket connection
// and blocks until it disconnects.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, token string) {
	client := newClient(conn, h.sendBuffer, h.logger)

	sess, err := h.OnConnect(ctx, client, token)
	if err != nil {
		h.logger.Warnf("websocket authentication failed: %v", err)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()

	h.wg.Add(1)
	func() {
		defer h.wg.Done()
		client.readPump(ctx, sess, h)
	}()
}

// Shutdown closes every live connection and waits for their pumps to
// drain, up to the given timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	for _, sess := range h.presence.Sessions() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
