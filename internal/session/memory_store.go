package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verdiyev/caremate/internal/domain"
)

// MemoryStore is an in-memory Store implementation. State is process-local
// and lost on restart; entries are never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session // canonical key → session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *MemoryStore) GetOrCreate(key domain.SessionKey) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key.String()]; ok {
		return sess
	}

	sess := &domain.Session{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.sessions[key.String()] = sess
	return sess
}

func (s *MemoryStore) Append(key domain.SessionKey, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key.String()]
	if !ok {
		return fmt.Errorf("%w: no session for key %q", ErrInvalidState, key.String())
	}
	if err := ValidateAppend(msg, len(sess.Messages)); err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Trim(key domain.SessionKey, maxMessages int) error {
	if maxMessages < 1 {
		return fmt.Errorf("%w: retention bound must be positive, got %d", ErrInvalidState, maxMessages)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key.String()]
	if !ok || len(sess.Messages) <= maxMessages {
		return nil
	}

	msgs := sess.Messages
	if msgs[0].Role == domain.RoleSystem {
		keep := maxMessages - 1
		trimmed := make([]domain.Message, 0, maxMessages)
		trimmed = append(trimmed, msgs[0])
		trimmed = append(trimmed, msgs[len(msgs)-keep:]...)
		sess.Messages = trimmed
	} else {
		sess.Messages = append([]domain.Message(nil), msgs[len(msgs)-maxMessages:]...)
	}
	return nil
}

func (s *MemoryStore) History(key domain.SessionKey) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key.String()]
	if !ok {
		return nil
	}
	msgs := make([]domain.Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return msgs
}

func (s *MemoryStore) Len(key domain.SessionKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key.String()]
	if !ok {
		return 0
	}
	return len(sess.Messages)
}

func (s *MemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}
