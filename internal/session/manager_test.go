package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/abelikov/convogate/internal/domain"
	"github.com/abelikov/convogate/internal/engine"
	"github.com/abelikov/convogate/internal/store"
)

// flakyStore wraps a memory store with failure injection for the
// readback and deletion paths.
type flakyStore struct {
	store.Store
	dropReads  bool
	failDelete error
}

func (f *flakyStore) Get(ctx context.Context, appName, userID, sessionKey string) (*store.Session, error) {
	if f.dropReads {
		return nil, nil
	}
	return f.Store.Get(ctx, appName, userID, sessionKey)
}

func (f *flakyStore) Delete(ctx context.Context, appName, userID, sessionKey string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Store.Delete(ctx, appName, userID, sessionKey)
}

func newTestManager(t *testing.T, max int, eng engine.Engine) (*Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })
	mgr := NewManager(Config{
		AppName: "weather_bot",
		InitialState: map[string]string{
			domain.StateKeyMood:            "Neutral",
			domain.StateKeyTemperatureUnit: "Celsius",
		},
	}, NewRegistry(max), st, eng)
	return mgr, st
}

func TestManager_InitIsIdempotent(t *testing.T) {
	mgr, st := newTestManager(t, 4, engine.NewScriptedEngine())

	first, err := mgr.Init(context.Background(), "alice")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	second, err := mgr.Init(context.Background(), "alice")
	if err != nil {
		t.Fatalf("repeat init: %v", err)
	}
	if first != second {
		t.Error("expected repeat init to return the existing conversation")
	}
	if mgr.ActiveConversations() != 1 {
		t.Errorf("expected 1 active conversation, got %d", mgr.ActiveConversations())
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 store entry, got %d", st.Len())
	}
}

func TestManager_InitSeedsState(t *testing.T) {
	mgr, st := newTestManager(t, 4, engine.NewScriptedEngine())

	c, err := mgr.Init(context.Background(), "alice")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if c.SessionKey != "alice" {
		t.Errorf("unified key mode must reuse the user id, got %q", c.SessionKey)
	}
	if got := c.State.Get(domain.StateKeyMood); got != "Neutral" {
		t.Errorf("expected default mood Neutral, got %q", got)
	}
	if got := c.State.Get(domain.StateKeyTemperatureUnit); got != "Celsius" {
		t.Errorf("expected default unit Celsius, got %q", got)
	}

	sess, err := st.Get(context.Background(), "weather_bot", "alice", "alice")
	if err != nil || sess == nil {
		t.Fatalf("expected stored entry, got %v, %v", sess, err)
	}
	if sess.State[domain.StateKeyMood] != "Neutral" {
		t.Errorf("expected seeded stored state, got %v", sess.State)
	}
}

func TestManager_InitRandomKeyMode(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()
	mgr := NewManager(Config{
		AppName: "weather_bot",
		KeyMode: KeyModeRandom,
	}, NewRegistry(4), st, engine.NewScriptedEngine())

	c, err := mgr.Init(context.Background(), "alice")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if c.SessionKey == "alice" || c.SessionKey == "" {
		t.Errorf("expected a generated session key, got %q", c.SessionKey)
	}
}

func TestManager_InitRejectsAtCapacity(t *testing.T) {
	mgr, st := newTestManager(t, 2, engine.NewScriptedEngine())

	for _, user := range []string{"u1", "u2"} {
		if _, err := mgr.Init(context.Background(), user); err != nil {
			t.Fatalf("init %s: %v", user, err)
		}
	}

	_, err := mgr.Init(context.Background(), "u3")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	// Rejection must leave no trace behind.
	if st.Len() != 2 {
		t.Errorf("expected 2 store entries after rejection, got %d", st.Len())
	}

	// Existing users are still served at capacity.
	if _, err := mgr.Init(context.Background(), "u1"); err != nil {
		t.Errorf("expected existing user to pass at capacity, got %v", err)
	}

	// Closing frees a slot.
	if err := mgr.Close(context.Background(), "u1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := mgr.Init(context.Background(), "u3"); err != nil {
		t.Errorf("expected admission after a close, got %v", err)
	}
}

func TestManager_ConcurrentInitHonorsCap(t *testing.T) {
	const max = 8
	mgr, _ := newTestManager(t, max, engine.NewScriptedEngine())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted, rejected int
	for i := 0; i < max+5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := mgr.Init(context.Background(), fmt.Sprintf("user-%d", n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected init error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted != max || rejected != 5 {
		t.Errorf("expected %d admitted / 5 rejected, got %d / %d", max, admitted, rejected)
	}
	if mgr.ActiveConversations() != max {
		t.Errorf("expected %d active conversations, got %d", max, mgr.ActiveConversations())
	}
}

func TestManager_InitReadbackFailure(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory(), dropReads: true}
	mgr := NewManager(Config{AppName: "weather_bot"}, NewRegistry(4), st, engine.NewScriptedEngine())

	_, err := mgr.Init(context.Background(), "alice")
	if !errors.Is(err, ErrStoreInconsistent) {
		t.Fatalf("expected ErrStoreInconsistent, got %v", err)
	}
	if mgr.ActiveConversations() != 0 {
		t.Errorf("failed init must not register a conversation, got %d", mgr.ActiveConversations())
	}
}

func TestManager_CloseUnknownUser(t *testing.T) {
	mgr, _ := newTestManager(t, 4, engine.NewScriptedEngine())
	if err := mgr.Close(context.Background(), "nobody"); !errors.Is(err, ErrNoConversation) {
		t.Errorf("expected ErrNoConversation, got %v", err)
	}
}

func TestManager_CloseDeletesStoreEntry(t *testing.T) {
	mgr, st := newTestManager(t, 4, engine.NewScriptedEngine())
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mgr.Close(context.Background(), "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("expected empty store after close, got %d entries", st.Len())
	}
	// Second close finds nothing.
	if err := mgr.Close(context.Background(), "alice"); !errors.Is(err, ErrNoConversation) {
		t.Errorf("expected ErrNoConversation on repeat close, got %v", err)
	}
}

func TestManager_CloseStoreFailureKeepsConversation(t *testing.T) {
	boom := errors.New("store unavailable")
	st := &flakyStore{Store: store.NewMemory()}
	mgr := NewManager(Config{AppName: "weather_bot"}, NewRegistry(4), st, engine.NewScriptedEngine())

	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	st.failDelete = boom
	if err := mgr.Close(context.Background(), "alice"); !errors.Is(err, boom) {
		t.Fatalf("expected delete failure to surface, got %v", err)
	}
	if mgr.ActiveConversations() != 1 {
		t.Error("expected conversation to stay registered for a retry")
	}

	st.failDelete = nil
	if err := mgr.Close(context.Background(), "alice"); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestManager_PushOneRequiresConversation(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.TextTurn("weather_agent", "hi"))
	mgr, _ := newTestManager(t, 4, eng)

	_, err := mgr.PushOne(context.Background(), "nobody", "hello")
	if !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
	if calls := eng.Calls(); len(calls) != 0 {
		t.Errorf("engine must not run without a conversation, got %d calls", len(calls))
	}
}

func TestManager_PushOneFinalResponse(t *testing.T) {
	eng := engine.NewScriptedEngine([]*engine.Event{
		{Author: "weather_agent", Partial: true},
		{
			Author:        "weather_agent",
			Content:       &engine.Content{Parts: []engine.Part{{Text: "It is sunny and 22 degrees out there."}}},
			FinalResponse: true,
			Actions:       &engine.Actions{StateDelta: map[string]string{domain.StateKeyMood: "Happy"}},
		},
	})
	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := mgr.PushOne(context.Background(), "alice", "weather?")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if got != "It is sunny and 22 degrees out there." {
		t.Errorf("unexpected answer: %q", got)
	}

	calls := eng.Calls()
	if len(calls) != 1 || calls[0].UserID != "alice" || calls[0].Message != "weather?" {
		t.Errorf("unexpected engine calls: %+v", calls)
	}

	// The state delta on the final event lands in the tracked state.
	c, _ := mgr.Init(context.Background(), "alice")
	if got := c.State.Get(domain.StateKeyMood); got != "Happy" {
		t.Errorf("expected applied mood delta, got %q", got)
	}
}

func TestManager_PushOneFallback(t *testing.T) {
	eng := engine.NewScriptedEngine([]*engine.Event{
		{Author: "weather_agent", Partial: true},
	})
	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := mgr.PushOne(context.Background(), "alice", "weather?")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if got != "Agent did not produce a final response." {
		t.Errorf("unexpected fallback: %q", got)
	}
}

func TestManager_PushOneEscalation(t *testing.T) {
	eng := engine.NewScriptedEngine([]*engine.Event{
		{Author: "weather_agent", Actions: &engine.Actions{Escalate: true, ErrorMessage: "out of scope"}},
	})
	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := mgr.PushOne(context.Background(), "alice", "launch the rockets")
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if got != "Agent escalated: out of scope" {
		t.Errorf("unexpected escalation answer: %q", got)
	}
}

func TestManager_PushOneEngineError(t *testing.T) {
	boom := errors.New("engine down")
	eng := engine.NewScriptedEngine(engine.TextTurn("weather_agent", "hi"))
	eng.FailWith(0, boom)
	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := mgr.PushOne(context.Background(), "alice", "weather?"); !errors.Is(err, boom) {
		t.Errorf("expected engine error to surface, got %v", err)
	}
}

func TestManager_StreamManyRequiresConversation(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.TextTurn("weather_agent", "hi"))
	mgr, _ := newTestManager(t, 4, eng)

	if _, err := mgr.StreamMany(context.Background(), "nobody", "hello"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
	if calls := eng.Calls(); len(calls) != 0 {
		t.Errorf("engine must not run without a conversation, got %d calls", len(calls))
	}
}

func TestManager_StreamManyIsLazy(t *testing.T) {
	eng := engine.NewScriptedEngine(engine.TextTurn("weather_agent", "hi"))
	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	seq, err := mgr.StreamMany(context.Background(), "alice", "weather?")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if calls := eng.Calls(); len(calls) != 0 {
		t.Fatalf("engine must not run before iteration, got %d calls", len(calls))
	}

	var texts []string
	for msg, err := range seq {
		if err != nil {
			t.Fatalf("stream iteration: %v", err)
		}
		texts = append(texts, msg.Text())
	}
	if len(texts) != 1 || texts[0] != "hi" {
		t.Errorf("unexpected streamed messages: %v", texts)
	}
	if calls := eng.Calls(); len(calls) != 1 {
		t.Errorf("expected exactly one engine run, got %d", len(calls))
	}
}

func TestManager_StreamManyCarriesMoodAcrossTurns(t *testing.T) {
	delta := []*engine.Event{{
		Author:        "weather_agent",
		Content:       &engine.Content{Parts: []engine.Part{{Text: "Great weather!"}}},
		FinalResponse: true,
		Actions:       &engine.Actions{StateDelta: map[string]string{domain.StateKeyMood: "Happy"}},
	}}
	plain := engine.TextTurn("weather_agent", "Still great.")
	eng := engine.NewScriptedEngine(delta, plain)

	mgr, _ := newTestManager(t, 4, eng)
	if _, err := mgr.Init(context.Background(), "alice"); err != nil {
		t.Fatalf("init: %v", err)
	}

	for i, wantMood := range []string{"Happy", "Happy"} {
		seq, err := mgr.StreamMany(context.Background(), "alice", "weather?")
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
		for msg, err := range seq {
			if err != nil {
				t.Fatalf("turn %d iteration: %v", i, err)
			}
			if msg.Mood != wantMood {
				t.Errorf("turn %d: expected mood %q, got %q", i, wantMood, msg.Mood)
			}
		}
	}
}
