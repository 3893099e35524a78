package chat

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// BroadcastGroup is the delivery channel containing every authenticated
// connection.
const BroadcastGroup = "broadcast"

// UserGroup names the per-user delivery channel holding all of one user's
// active handles.
func UserGroup(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// Broker maintains named delivery groups and fans events out to their
// members. Delivery is best effort: a member whose send buffer is full
// misses the event, the group itself is never blocked. Membership reads
// snapshot under the lock and deliver outside it.
type Broker struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Session
	logger *logrus.Logger
}

func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		groups: make(map[string]map[string]*Session),
		logger: logger,
	}
}

// Subscribe adds the session to the group, creating the group on first use.
func (b *Broker) Subscribe(group string, sess *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[group]
	if !ok {
		members = make(map[string]*Session)
		b.groups[group] = members
	}
	members[sess.HandleID()] = sess
}

// Unsubscribe removes the handle from the group, dropping the group once
// empty. Unknown handles and groups are a no-op.
func (b *Broker) Unsubscribe(group, handleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[group]
	if !ok {
		return
	}
	delete(members, handleID)
	if len(members) == 0 {
		delete(b.groups, group)
	}
}

// Publish delivers the event to every current member of the group and
// returns how many deliveries succeeded.
func (b *Broker) Publish(group string, ev Event) int {
	b.mu.RLock()
	members := make([]*Session, 0, len(b.groups[group]))
	for _, sess := range b.groups[group] {
		members = append(members, sess)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sess := range members {
		if sess.Send(ev) {
			delivered++
			continue
		}
		b.logger.Warnf("dropped %s event for user %d: send buffer full", ev.Event, sess.Identity().ID)
	}
	return delivered
}
