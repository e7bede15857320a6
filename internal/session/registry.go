package session

import "sync"

// Registry is the in-memory map from user ID to active Conversation.
// It enforces the global admission cap: TryReserve refuses admission once
// the map holds maxConversations entries, so the count never exceeds the
// cap. All methods are safe for concurrent use, but TryReserve and Insert
// are only atomic together when the caller serializes them (the Manager
// holds its init lock across both).
type Registry struct {
	mu               sync.RWMutex
	conversations    map[string]*Conversation
	maxConversations int
}

// NewRegistry creates a registry with the given admission cap.
func NewRegistry(maxConversations int) *Registry {
	return &Registry{
		conversations:    make(map[string]*Conversation),
		maxConversations: maxConversations,
	}
}

// TryReserve reports whether a new conversation may be admitted.
func (r *Registry) TryReserve() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations) < r.maxConversations
}

// Get returns the conversation registered for userID, or nil.
func (r *Registry) Get(userID string) *Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conversations[userID]
}

// Insert registers the conversation. It is a no-op if the user already
// has one, keeping Init idempotent.
func (r *Registry) Insert(userID string, c *Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[userID]; ok {
		return
	}
	r.conversations[userID] = c
}

// Remove unregisters and returns the user's conversation, or nil.
func (r *Registry) Remove(userID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[userID]
	if !ok {
		return nil
	}
	delete(r.conversations, userID)
	return c
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

// StateSnapshot returns a copy of the auxiliary state tracked for the
// user's conversation, or nil if none is registered. The engine uses it
// to fold session context into its prompt.
func (r *Registry) StateSnapshot(userID string) map[string]string {
	r.mu.RLock()
	c := r.conversations[userID]
	r.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.State.Snapshot()
}
