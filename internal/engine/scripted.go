package engine

import (
	"context"
	"iter"
	"sync"
)

// Call records one Run invocation made against a ScriptedEngine.
type Call struct {
	UserID     string
	SessionKey string
	Message    string
}

// ScriptedEngine replays pre-configured event sequences, one per Run call,
// in order. Turns are replayed from the last script once exhausted. It backs
// the "scripted" provider in dev mode and the engine double in tests.
type ScriptedEngine struct {
	mu    sync.Mutex
	turns [][]*Event
	errs  []error
	next  int
	calls []Call
}

// NewScriptedEngine creates an engine that yields the given event sequences.
func NewScriptedEngine(turns ...[]*Event) *ScriptedEngine {
	return &ScriptedEngine{turns: turns}
}

// FailWith configures an error to be yielded instead of events for the
// turn at the given index.
func (s *ScriptedEngine) FailWith(turn int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) <= turn {
		s.errs = append(s.errs, nil)
	}
	s.errs[turn] = err
}

// Run yields the next scripted turn.
func (s *ScriptedEngine) Run(ctx context.Context, userID, sessionKey, message string) iter.Seq2[*Event, error] {
	s.mu.Lock()
	s.calls = append(s.calls, Call{UserID: userID, SessionKey: sessionKey, Message: message})
	idx := s.next
	if idx >= len(s.turns) {
		idx = len(s.turns) - 1
	} else {
		s.next++
	}
	var events []*Event
	if idx >= 0 {
		events = s.turns[idx]
	}
	var err error
	if idx >= 0 && idx < len(s.errs) {
		err = s.errs[idx]
	}
	s.mu.Unlock()

	return func(yield func(*Event, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Calls returns a copy of all recorded Run invocations.
func (s *ScriptedEngine) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// TextTurn builds a minimal scripted turn: one final content event.
func TextTurn(author, text string) []*Event {
	return []*Event{{
		Author:        author,
		Content:       &Content{Parts: []Part{{Text: text}}},
		FinalResponse: true,
	}}
}
