package auth

import (
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/henryperkins/mcprag/internal/errors"
)

// SessionState tracks the session lifecycle:
// NONE -> PENDING_MAGIC_LINK -> AUTHENTICATED -> (MFA_VERIFIED) -> EXPIRED.
// EXPIRED is terminal; stores delete expired sessions on read.
type SessionState string

const (
	StatePendingMagicLink SessionState = "pending_magic_link"
	StateAuthenticated    SessionState = "authenticated"
	StateMFAVerified      SessionState = "mfa_verified"
)

// Session is a stored authentication session.
type Session struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	Tier      string       `json:"tier"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Expired reports whether the session has lapsed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionStore is the minimal KV contract: an in-memory map suffices for a
// single instance, a persistent store for multi-instance deployments.
type SessionStore interface {
	Get(id string) (*Session, error)
	Set(session *Session) error
	Delete(id string) error
	Close() error
}

// MemoryStore is the in-memory session store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns the session, deleting it when expired.
func (m *MemoryStore) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.KindNotFound, "session not found")
	}
	if s.Expired() {
		_ = m.Delete(id)
		return nil, errors.New(errors.KindUnauthorized, "session expired")
	}
	copied := *s
	return &copied, nil
}

// Set stores a session.
func (m *MemoryStore) Set(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// BoltStore persists sessions in a bbolt database so restarts and multiple
// workers sharing a volume keep sessions alive.
type BoltStore struct {
	db *bolt.DB
}

var sessionsBucket = []byte("sessions")

// NewBoltStore opens (or creates) the session database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "open session store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindInternal, "init session store", err)
	}
	return &BoltStore{db: db}, nil
}

// Get returns the session, deleting it when expired.
func (b *BoltStore) Get(id string) (*Session, error) {
	var s Session
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(id))
		if data == nil {
			return errors.New(errors.KindNotFound, "session not found")
		}
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	if s.Expired() {
		_ = b.Delete(id)
		return nil, errors.New(errors.KindUnauthorized, "session expired")
	}
	return &s, nil
}

// Set stores a session.
func (b *BoltStore) Set(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "encode session", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(s.ID), data)
	})
}

// Delete removes a session.
func (b *BoltStore) Delete(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

// Close closes the database.
func (b *BoltStore) Close() error { return b.db.Close() }
