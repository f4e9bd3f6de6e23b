package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// sessionsKey is the fixed key the whole session list is stored under.
const sessionsKey = "chat_sessions"

// SessionStore persists chat sessions as a single JSON blob in a
// key-value table. Every write is a whole-collection
// load-mutate-save, so all writes are serialized behind mu to avoid
// lost updates between concurrent writers. Reads are best-effort and
// unsynchronized.
type SessionStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSessionStore(dataSourceName string) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SessionStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS app_state (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SessionStore) loadAll() ([]ChatSession, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM app_state WHERE key = ?", sessionsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil // Nothing persisted yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	var sessions []ChatSession
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions blob: %w", err)
	}
	return sessions, nil
}

func (s *SessionStore) saveAll(sessions []ChatSession) error {
	if sessions == nil {
		sessions = []ChatSession{}
	}
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions blob: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO app_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		sessionsKey, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) ListAll() ([]ChatSession, error) {
	return s.loadAll()
}

func (s *SessionStore) GetByID(id string) (*ChatSession, error) {
	sessions, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			session := sessions[i]
			return &session, nil
		}
	}
	return nil, nil // Not found
}

func (s *SessionStore) GetByThreadID(threadID string) (*ChatSession, error) {
	sessions, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ThreadID == threadID {
			session := sessions[i]
			return &session, nil
		}
	}
	return nil, nil
}

// Upsert replaces the record whose ID matches, or appends a new one.
// The stored ID is rewritten to the session's ThreadID so the same
// thread can never produce two records. CreatedAt survives updates;
// UpdatedAt is stamped here on every call.
func (s *SessionStore) Upsert(session ChatSession) (*ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ThreadID != "" && session.ID != session.ThreadID {
		session.ID = session.ThreadID
	}

	sessions, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	session.UpdatedAt = now

	idx := -1
	for i := range sessions {
		if sessions[i].ID == session.ID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		if sessions[idx].CreatedAt != 0 {
			session.CreatedAt = sessions[idx].CreatedAt
		} else if session.CreatedAt == 0 {
			session.CreatedAt = now
		}
		sessions[idx] = session
	} else {
		if session.CreatedAt == 0 {
			session.CreatedAt = now
		}
		sessions = append(sessions, session)
	}

	if err := s.saveAll(sessions); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadAll()
	if err != nil {
		return err
	}

	kept := sessions[:0]
	for _, session := range sessions {
		if session.ID != id {
			kept = append(kept, session)
		}
	}
	return s.saveAll(kept)
}

func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveAll(nil)
}
