package chat

import (
	"sort"
	"sync"
)

// Presence is the source of truth for who is online. It maps a user ID to
// the set of live sessions held by that user; a user is offline only when
// its session set is empty. All state lives behind one mutex so register,
// deregister, and snapshot serialize against each other. Nothing here
// performs I/O, so the lock is never held across a suspension point.
type Presence struct {
	mu    sync.RWMutex
	users map[int64]*presenceEntry
	byID  map[string]int64
}

type presenceEntry struct {
	identity Identity
	sessions map[string]*Session
}

func NewPresence() *Presence {
	return &Presence{
		users: make(map[int64]*presenceEntry),
		byID:  make(map[string]int64),
	}
}

// Register adds the session's handle to its user's set. Registering the
// same handle twice is a no-op.
func (p *Presence) Register(sess *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := sess.Identity().ID
	entry, ok := p.users[id]
	if !ok {
		entry = &presenceEntry{
			identity: sess.Identity(),
			sessions: make(map[string]*Session),
		}
		p.users[id] = entry
	}
	entry.sessions[sess.HandleID()] = sess
	p.byID[sess.HandleID()] = id
}

// Deregister removes the handle from whichever user's set contains it.
// offline reports whether the removal emptied the user's session set.
// Unknown handles are a no-op.
func (p *Presence) Deregister(handleID string) (userID int64, offline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.byID[handleID]
	if !ok {
		return 0, false
	}
	delete(p.byID, handleID)

	entry := p.users[userID]
	delete(entry.sessions, handleID)
	if len(entry.sessions) == 0 {
		delete(p.users, userID)
		return userID, true
	}
	return userID, false
}

// Snapshot returns the identities of all online users sorted by ID,
// excluding the given user. Pass 0 to exclude nobody.
func (p *Presence) Snapshot(excludingUserID int64) []Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Identity, 0, len(p.users))
	for id, entry := range p.users {
		if id == excludingUserID {
			continue
		}
		out = append(out, entry.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sessions returns every live session across all users.
func (p *Presence) Sessions() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Session
	for _, entry := range p.users {
		for _, sess := range entry.sessions {
			out = append(out, sess)
		}
	}
	return out
}

// Online reports whether the user currently holds at least one session.
func (p *Presence) Online(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID].sessionsOrNil()) > 0
}

func (e *presenceEntry) sessionsOrNil() map[string]*Session {
	if e == nil {
		return nil
	}
	return e.sessions
}
