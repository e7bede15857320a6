// Package engine defines the agent-execution boundary: a message in, an
// ordered lazy sequence of events out.
package engine

import (
	"context"
	"iter"
)

// Part is one piece of event content.
type Part struct {
	Text string `json:"text"`
}

// Content is the payload of a content-bearing event.
type Content struct {
	Parts []Part `json:"parts"`
}

// Actions carries the side-effect signals of an event: an engine-level
// abort (escalation) and/or a delta to the session's auxiliary state.
type Actions struct {
	Escalate     bool              `json:"escalate,omitempty"`
	StateDelta   map[string]string `json:"state_delta,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Event is one unit of engine output. An event may be a partial fragment,
// a final response, content-less bookkeeping, or an escalation.
type Event struct {
	Author        string   `json:"author"`
	Content       *Content `json:"content,omitempty"`
	Partial       bool     `json:"partial,omitempty"`
	FinalResponse bool     `json:"is_final_response"`
	Actions       *Actions `json:"actions,omitempty"`
}

// Escalated reports whether the event signals an engine-level abort.
func (e *Event) Escalated() bool {
	return e.Actions != nil && e.Actions.Escalate
}

// StateDelta returns the event's state delta, or nil.
func (e *Event) StateDelta() map[string]string {
	if e.Actions == nil {
		return nil
	}
	return e.Actions.StateDelta
}

// FirstText returns the text of the first content part, or "".
func (e *Event) FirstText() string {
	if e.Content == nil || len(e.Content.Parts) == 0 {
		return ""
	}
	return e.Content.Parts[0].Text
}

// Engine runs one conversation turn against the external agent runtime.
// The returned sequence is lazy: events are produced as the engine emits
// them and consumption stops as soon as the caller breaks out of the
// iteration or ctx is cancelled.
type Engine interface {
	Run(ctx context.Context, userID, sessionKey, message string) iter.Seq2[*Event, error]
}
