// Package session provides conversation history storage keyed by session.
package session

import (
	"errors"
	"fmt"

	"github.com/verdiyev/caremate/internal/domain"
)

// ErrInvalidState is returned when an operation would violate a session
// invariant, such as appending a second system message. It indicates a
// programming defect in the caller, not a user condition.
var ErrInvalidState = errors.New("invalid session state")

// Store manages conversation histories keyed by SessionKey.
//
// A history holds at most one system message, and if present it occupies
// index 0. Implementations must be safe for concurrent use, but turn-level
// ordering for a single key is the caller's responsibility.
type Store interface {
	// GetOrCreate finds an existing session by key or creates an empty one.
	GetOrCreate(key domain.SessionKey) *domain.Session

	// Append adds a message to the end of an existing session's history.
	// The session must have been created via GetOrCreate first.
	Append(key domain.SessionKey, msg domain.Message) error

	// Trim enforces the retention bound: a leading system message is always
	// kept, then only the most recent messages up to maxMessages total.
	// Older user/assistant messages are discarded permanently. Calling Trim
	// twice with the same bound produces no further change.
	Trim(key domain.SessionKey, maxMessages int) error

	// History returns a copy of the session's ordered message history,
	// or nil if the session does not exist.
	History(key domain.SessionKey) []domain.Message

	// Len returns the number of messages in the session's history.
	Len(key domain.SessionKey) int

	// List returns the canonical key strings of all known sessions.
	List() []string
}

// ValidateAppend checks the system-message invariant for appending msg to a
// history of length n. Shared by all Store implementations.
func ValidateAppend(msg domain.Message, n int) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidState, msg.Role)
	}
	if msg.Role == domain.RoleSystem {
		if n > 0 {
			return fmt.Errorf("%w: system message must be first and unique", ErrInvalidState)
		}
		return nil
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: empty %s message", ErrInvalidState, msg.Role)
	}
	return nil
}
