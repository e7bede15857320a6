package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session entries in a mutex-guarded map. It is the
// default backend; entries do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func sessionKey(appName, userID, sessionKey string) string {
	return appName + "/" + userID + "/" + sessionKey
}

// Create stores a new entry seeded with state.
func (s *MemoryStore) Create(_ context.Context, appName, userID, key string, state map[string]string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := sessionKey(appName, userID, key)
	if _, ok := s.sessions[k]; ok {
		return nil, ErrSessionExists
	}
	sess := &Session{
		AppName:    appName,
		UserID:     userID,
		SessionKey: key,
		State:      copyState(state),
		CreatedAt:  time.Now(),
	}
	s.sessions[k] = sess
	return snapshot(sess), nil
}

// Get returns a copy of the entry, or (nil, nil) if absent.
func (s *MemoryStore) Get(_ context.Context, appName, userID, key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionKey(appName, userID, key)]
	if !ok {
		return nil, nil
	}
	return snapshot(sess), nil
}

// Delete removes the entry if present.
func (s *MemoryStore) Delete(_ context.Context, appName, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(appName, userID, key))
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func copyState(state map[string]string) map[string]string {
	out := make(map[string]string, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func snapshot(sess *Session) *Session {
	return &Session{
		AppName:    sess.AppName,
		UserID:     sess.UserID,
		SessionKey: sess.SessionKey,
		State:      copyState(sess.State),
		CreatedAt:  sess.CreatedAt,
	}
}
