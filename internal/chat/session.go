package chat

import "chatrelay/internal/domain"

// Handle is an opaque reference to one live client connection. Send must
// never block: it reports false when the connection's buffer is full or
// the connection is gone, and the caller treats that as a failed
// best-effort delivery.
type Handle interface {
	ID() string
	Send(Event) bool
	Close()
}

// Identity is the immutable identity resolved at authentication time. It
// is created once per connection and passed by value into every event
// handler; nothing mutates it afterwards.
type Identity struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"-"`
}

// Session pairs a connection handle with the identity it authenticated as.
type Session struct {
	handle   Handle
	identity Identity
}

func NewSession(handle Handle, identity Identity) *Session {
	return &Session{handle: handle, identity: identity}
}

func (s *Session) HandleID() string   { return s.handle.ID() }
func (s *Session) Identity() Identity { return s.identity }
func (s *Session) Send(ev Event) bool { return s.handle.Send(ev) }
func (s *Session) Close()             { s.handle.Close() }
