package session

import (
	"iter"

	"github.com/abelikov/convogate/internal/domain"
	"github.com/abelikov/convogate/internal/engine"
)

// Translator converts one engine event sequence into wire-ready chat
// messages, carrying the conversation's auxiliary state across events.
// It is a pass-through transform: messages are yielded at the rate the
// engine produces events.
type Translator struct {
	state *domain.SessionState
}

// NewTranslator creates a translator tracking the given state bag.
func NewTranslator(state *domain.SessionState) *Translator {
	return &Translator{state: state}
}

// Translate folds the event sequence into chat messages:
//
//   - a non-partial event with content parts first applies the event's
//     state delta (the delta wins over the cached value), then yields one
//     message carrying the tracked mood and the event's final flag;
//   - an escalation yields one diagnostic message and ends the sequence;
//   - anything else (partial fragments, content-less events) is skipped.
//
// Engine errors are passed through and end the sequence.
func (t *Translator) Translate(events iter.Seq2[*engine.Event, error]) iter.Seq2[*domain.ChatMessage, error] {
	return func(yield func(*domain.ChatMessage, error) bool) {
		for ev, err := range events {
			if err != nil {
				yield(nil, err)
				return
			}

			switch {
			case ev.Content != nil && len(ev.Content.Parts) > 0 && !ev.Partial:
				t.state.Apply(ev.StateDelta())
				parts := make([]string, len(ev.Content.Parts))
				for i, p := range ev.Content.Parts {
					parts[i] = p.Text
				}
				msg := &domain.ChatMessage{
					Parts:  parts,
					Author: ev.Author,
					Mood:   t.state.Get(domain.StateKeyMood),
					Final:  ev.FinalResponse,
				}
				if !yield(msg, nil) {
					return
				}
			case ev.Escalated():
				msg := &domain.ChatMessage{
					Parts:  []string{escalationMessage(ev)},
					Author: ev.Author,
					Mood:   t.state.Get(domain.StateKeyMood),
					Final:  true,
				}
				yield(msg, nil)
				return
			default:
				// Partial fragment or content-less bookkeeping event.
			}
		}
	}
}

func escalationMessage(ev *engine.Event) string {
	msg := "No specific message."
	if ev.Actions != nil && ev.Actions.ErrorMessage != "" {
		msg = ev.Actions.ErrorMessage
	}
	return "Agent escalated: " + msg
}
