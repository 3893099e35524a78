package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed means the presented credential was missing, invalid,
	// or expired, or resolved to no known user. The connection is closed
	// without ever being registered.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrTargetNotFound means a directed event named a nonexistent user.
	// Non-fatal: the originating connection stays open.
	ErrTargetNotFound = errors.New("target user not found")
)

// PersistenceError wraps a message store failure. The triggering event is
// aborted and no delivery happens; the core never retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
