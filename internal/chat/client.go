package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// client adapts one gorilla websocket connection to the Handle contract.
// The read pump processes inbound events strictly in arrival order; the
// write pump drains the buffered send channel so no other goroutine ever
// blocks on this connection's socket.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *logrus.Logger
}

func newClient(conn *websocket.Conn, sendBuffer int, logger *logrus.Logger) *client {
	return &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Event, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *client) ID() string { return c.id }

// Send queues an event without blocking. It reports false once the
// connection is closed or its buffer is full.
func (c *client) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warnf("close websocket: %v", err)
		}
	})
}

func (c *client) readPump(ctx context.Context, sess *Session, hub *Hub) {
	defer func() {
		hub.OnDisconnect(sess)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warnf("websocket read from user %d: %v", sess.Identity().ID, err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Event == "" {
			if out, evErr := NewEvent(EventError, ErrorPayload{Message: "malformed event"}); evErr == nil {
				sess.Send(out)
			}
			continue
		}

		hub.Route(ctx, sess, ev)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warnf("websocket write: %v", err)
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// isExpectedCloseError reports whether an error is routine connection
// teardown rather than something worth logging.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
