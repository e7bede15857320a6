// Package session implements the conversation session manager: admission,
// per-user routing, turn execution and event translation.
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelikov/convogate/internal/domain"
	"github.com/abelikov/convogate/internal/engine"
	"github.com/abelikov/convogate/internal/store"
	"github.com/abelikov/convogate/internal/telemetry"
)

// fallbackResponse is returned by PushOne when the engine ends its event
// sequence without a final response.
const fallbackResponse = "Agent did not produce a final response."

// KeyMode selects how session keys are derived.
type KeyMode string

const (
	// KeyModeUnified reuses the user ID as the session key, giving each
	// user one stable store entry.
	KeyModeUnified KeyMode = "unified"
	// KeyModeRandom generates a fresh key per conversation.
	KeyModeRandom KeyMode = "random"
)

// Config holds manager configuration.
type Config struct {
	// AppName namespaces store entries.
	AppName string
	// KeyMode selects session key derivation; defaults to unified.
	KeyMode KeyMode
	// InitialState seeds every new conversation's auxiliary state.
	InitialState map[string]string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics defaults to a discard collector.
	Metrics *telemetry.Metrics
}

// Manager composes the registry, session store, engine and translator
// behind four operations: Init, PushOne, StreamMany, Close.
type Manager struct {
	appName  string
	keyMode  KeyMode
	defaults map[string]string
	registry *Registry
	store    store.Store
	engine   engine.Engine
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	// initMu serializes Init and Close so the admission check and the
	// registry insertion are atomic and the cap is never overshot under
	// concurrent creation.
	initMu sync.Mutex
}

// NewManager creates a manager over the given collaborators.
func NewManager(cfg Config, reg *Registry, st store.Store, eng engine.Engine) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.Discard()
	}
	keyMode := cfg.KeyMode
	if keyMode == "" {
		keyMode = KeyModeUnified
	}
	return &Manager{
		appName:  cfg.AppName,
		keyMode:  keyMode,
		defaults: cfg.InitialState,
		registry: reg,
		store:    st,
		engine:   eng,
		logger:   logger,
		metrics:  metrics,
	}
}

// Init creates a conversation for the user: admission check, store entry
// seeded with the initial state, readback verification, registration.
// A user with an active conversation gets it back unchanged.
func (m *Manager) Init(ctx context.Context, userID string) (*Conversation, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if c := m.registry.Get(userID); c != nil {
		return c, nil
	}

	// Admission strictly before any store I/O so a rejected init leaves
	// nothing behind.
	if !m.registry.TryReserve() {
		m.metrics.AdmissionRejections.Inc()
		return nil, ErrCapacityExceeded
	}

	sessionKey := userID
	if m.keyMode == KeyModeRandom {
		sessionKey = uuid.NewString()
	}

	state := domain.NewSessionState(m.defaults)
	if _, err := m.store.Create(ctx, m.appName, userID, sessionKey, state.Snapshot()); err != nil {
		return nil, fmt.Errorf("create session entry: %w", err)
	}

	sess, err := m.store.Get(ctx, m.appName, userID, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreInconsistent, err)
	}
	if sess == nil {
		return nil, ErrStoreInconsistent
	}

	c := &Conversation{
		UserID:     userID,
		SessionKey: sessionKey,
		State:      state,
		CreatedAt:  time.Now(),
	}
	m.registry.Insert(userID, c)
	m.metrics.ActiveConversations.Set(float64(m.registry.Len()))

	m.logger.Info("conversation created", "user_id", userID, "session_key", sessionKey)
	return c, nil
}

// Close deletes the user's store entry and unregisters the conversation.
// The store entry goes first: if deletion fails the conversation stays
// discoverable for a retry instead of orphaning the entry.
func (m *Manager) Close(ctx context.Context, userID string) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	c := m.registry.Get(userID)
	if c == nil {
		return ErrNoConversation
	}

	if err := m.store.Delete(ctx, m.appName, userID, c.SessionKey); err != nil {
		return fmt.Errorf("delete session entry: %w", err)
	}

	m.registry.Remove(userID)
	m.metrics.ActiveConversations.Set(float64(m.registry.Len()))

	m.logger.Info("conversation closed", "user_id", userID, "session_key", c.SessionKey)
	return nil
}

// PushOne runs one turn and collapses the event sequence to a single
// answer: the first final response's first content part. An escalation
// aborts the turn with a diagnostic string; a sequence that ends without
// a final response yields a fixed fallback.
func (m *Manager) PushOne(ctx context.Context, userID, text string) (string, error) {
	c := m.registry.Get(userID)
	if c == nil {
		return "", ErrNoConversation
	}

	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	start := time.Now()
	defer func() { m.metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	for ev, err := range m.engine.Run(ctx, userID, c.SessionKey, text) {
		if err != nil {
			return "", fmt.Errorf("engine run: %w", err)
		}

		if ev.Content != nil && len(ev.Content.Parts) > 0 && !ev.Partial {
			c.State.Apply(ev.StateDelta())
		}

		if ev.FinalResponse {
			if txt := ev.FirstText(); txt != "" {
				return txt, nil
			}
			if ev.Escalated() {
				return escalationMessage(ev), nil
			}
			return fallbackResponse, nil
		}
		if ev.Escalated() {
			return escalationMessage(ev), nil
		}
	}
	return fallbackResponse, nil
}

// StreamMany runs one turn and returns the lazy translated message
// sequence. The engine is not invoked until the sequence is iterated;
// breaking out of the iteration abandons event consumption promptly.
func (m *Manager) StreamMany(ctx context.Context, userID, text string) (iter.Seq2[*domain.ChatMessage, error], error) {
	c := m.registry.Get(userID)
	if c == nil {
		return nil, ErrNoConversation
	}

	seq := func(yield func(*domain.ChatMessage, error) bool) {
		c.turnMu.Lock()
		defer c.turnMu.Unlock()

		start := time.Now()
		defer func() { m.metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

		events := m.engine.Run(ctx, userID, c.SessionKey, text)
		for msg, err := range NewTranslator(c.State).Translate(events) {
			if err != nil {
				yield(nil, err)
				return
			}
			m.metrics.MessagesTranslated.Inc()
			if !yield(msg, nil) {
				return
			}
		}
	}
	return seq, nil
}

// ActiveConversations reports the current registry size.
func (m *Manager) ActiveConversations() int {
	return m.registry.Len()
}
