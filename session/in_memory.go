package session

import (
	"sync"
)

// InMemoryStore is a volatile Store implementation storing sessions in a
// process local map. It is safe for concurrent access. Each returned session
// is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

// Get returns an existing session (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess.Clone(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).Clone(), nil
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *InMemoryStore) Create(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := NewSession(sessionID)
	s.sessions[sessionID] = sess
	return sess.Clone(), nil
}

// AppendEvent adds an event to an existing or newly created session.
func (s *InMemoryStore) AppendEvent(sessionID string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(sessionID).AddEvent(ev)
	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(sessionID string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(sessionID).ApplyStateDelta(delta)
	return nil
}

// getOrCreateLocked returns the stored session, allocating it when missing;
// caller must already hold the write lock.
func (s *InMemoryStore) getOrCreateLocked(sessionID string) *Session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = NewSession(sessionID)
		s.sessions[sessionID] = sess
	}
	return sess
}

var _ Store = (*InMemoryStore)(nil)
