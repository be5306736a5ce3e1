package domain

import (
	"strings"
	"time"
)

// SessionKey uniquely identifies a conversation session. Name is stored in
// normalized form; the same (name, session id) pair always yields the same
// key.
type SessionKey struct {
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
}

// NewSessionKey builds a session key from a raw user name and session id.
// The name is lowercased and trimmed so "Aylin" and " aylin " address the
// same sessions.
func NewSessionKey(name, sessionID string) SessionKey {
	return SessionKey{
		Name:      strings.ToLower(strings.TrimSpace(name)),
		SessionID: strings.TrimSpace(sessionID),
	}
}

// String returns the canonical string form of the session key.
func (k SessionKey) String() string {
	if k.SessionID == "" {
		return k.Name
	}
	return k.Name + ":" + k.SessionID
}

// Session is one conversation thread owned by a SessionKey.
type Session struct {
	ID        string     `json:"id"`
	Key       SessionKey `json:"key"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Messages  []Message  `json:"messages,omitempty"`
}
