package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verdiyev/caremate/internal/domain"
	"github.com/verdiyev/caremate/internal/session"
)

// SQLiteSessionStore implements session.Store backed by SQLite. Histories
// survive process restarts, unlike the in-memory store.
type SQLiteSessionStore struct {
	db *DB
}

var _ session.Store = (*SQLiteSessionStore)(nil)

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// GetOrCreate finds an existing session by key or creates an empty one.
func (s *SQLiteSessionStore) GetOrCreate(key domain.SessionKey) *domain.Session {
	keyStr := key.String()

	if sess := s.find(keyStr); sess != nil {
		return sess
	}

	sess := domain.Session{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO sessions (id, key_str, name, session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, keyStr, key.Name, key.SessionID,
		sess.CreatedAt.Format(time.DateTime), sess.UpdatedAt.Format(time.DateTime),
	)
	if err != nil {
		// The unique key index means a lost race with a concurrent create;
		// the winner's row is the session.
		if existing := s.find(keyStr); existing != nil {
			return existing
		}
		s.db.log.Error().Err(err).Str("key", keyStr).Msg("failed to create session")
	}

	return &sess
}

func (s *SQLiteSessionStore) find(keyStr string) *domain.Session {
	var sess domain.Session
	var createdAt, updatedAt string
	err := s.db.sql.QueryRow(
		`SELECT id, name, session_id, created_at, updated_at
		 FROM sessions WHERE key_str = ?`, keyStr,
	).Scan(&sess.ID, &sess.Key.Name, &sess.Key.SessionID, &createdAt, &updatedAt)
	if err != nil {
		return nil
	}

	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	sess.Messages = s.loadMessages(sess.ID)
	return &sess
}

// Append adds a message to the end of an existing session's history.
func (s *SQLiteSessionStore) Append(key domain.SessionKey, msg domain.Message) error {
	id, n, err := s.lookup(key)
	if err != nil {
		return err
	}
	if err := session.ValidateAppend(msg, n); err != nil {
		return err
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err := s.db.sql.Exec(
		`INSERT INTO messages (session_id, role, content, timestamp)
		 VALUES (?, ?, ?, ?)`,
		id, string(msg.Role), msg.Content, ts.Format(time.DateTime),
	); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	_, _ = s.db.sql.Exec(
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Format(time.DateTime), id,
	)
	return nil
}

// Trim enforces the retention bound. A leading system message is always
// kept, then only the most recent rows up to maxMessages total; older rows
// are deleted permanently.
func (s *SQLiteSessionStore) Trim(key domain.SessionKey, maxMessages int) error {
	if maxMessages < 1 {
		return fmt.Errorf("%w: retention bound must be positive, got %d", session.ErrInvalidState, maxMessages)
	}

	id, n, err := s.lookup(key)
	if err != nil || n <= maxMessages {
		return err
	}

	var firstRole string
	if err := s.db.sql.QueryRow(
		`SELECT role FROM messages WHERE session_id = ? ORDER BY id LIMIT 1`, id,
	).Scan(&firstRole); err != nil {
		return fmt.Errorf("reading first message: %w", err)
	}

	keep := maxMessages
	pinFirst := firstRole == string(domain.RoleSystem)
	if pinFirst {
		keep = maxMessages - 1
	}

	// Delete everything outside the kept window. The pinned system row is
	// excluded from deletion by its position at the head of the history.
	if pinFirst {
		_, err = s.db.sql.Exec(`
			DELETE FROM messages
			WHERE session_id = ?
			  AND id NOT IN (SELECT id FROM messages WHERE session_id = ? ORDER BY id LIMIT 1)
			  AND id NOT IN (SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?)`,
			id, id, id, keep,
		)
	} else {
		_, err = s.db.sql.Exec(`
			DELETE FROM messages
			WHERE session_id = ?
			  AND id NOT IN (SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?)`,
			id, id, keep,
		)
	}
	if err != nil {
		return fmt.Errorf("trimming session: %w", err)
	}
	return nil
}

// History returns the ordered message history, or nil if the session does
// not exist.
func (s *SQLiteSessionStore) History(key domain.SessionKey) []domain.Message {
	var id string
	if err := s.db.sql.QueryRow(
		`SELECT id FROM sessions WHERE key_str = ?`, key.String(),
	).Scan(&id); err != nil {
		return nil
	}
	return s.loadMessages(id)
}

// Len returns the number of messages in the session's history.
func (s *SQLiteSessionStore) Len(key domain.SessionKey) int {
	var n int
	err := s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM messages m
		 JOIN sessions s ON s.id = m.session_id
		 WHERE s.key_str = ?`, key.String(),
	).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// List returns the canonical key strings of all sessions, most recently
// updated first.
func (s *SQLiteSessionStore) List() []string {
	rows, err := s.db.sql.Query(`SELECT key_str FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// lookup resolves a key to its session row id and message count. A missing
// row is an invariant breach (Append before GetOrCreate); any other failure
// is a storage fault and is reported as such.
func (s *SQLiteSessionStore) lookup(key domain.SessionKey) (id string, n int, err error) {
	err = s.db.sql.QueryRow(
		`SELECT id FROM sessions WHERE key_str = ?`, key.String(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("%w: no session for key %q", session.ErrInvalidState, key.String())
	}
	if err != nil {
		return "", 0, fmt.Errorf("looking up session %q: %w", key.String(), err)
	}
	err = s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, id,
	).Scan(&n)
	if err != nil {
		return "", 0, fmt.Errorf("counting messages: %w", err)
	}
	return id, n, nil
}

func (s *SQLiteSessionStore) loadMessages(sessionID string) []domain.Message {
	rows, err := s.db.sql.Query(
		`SELECT role, content, timestamp
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, ts string
		if err := rows.Scan(&role, &msg.Content, &ts); err != nil {
			continue
		}
		msg.Role = domain.Role(role)
		msg.Timestamp, _ = time.Parse(time.DateTime, ts)
		msgs = append(msgs, msg)
	}
	return msgs
}
