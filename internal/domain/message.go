// Package domain holds the core conversation types shared across the service.
package domain

// ChatMessage is one wire-ready record translated from an engine event.
// It is emitted once per non-partial event that carries content.
type ChatMessage struct {
	Parts  []string `json:"parts"`
	Author string   `json:"author"`
	Mood   string   `json:"mood"`
	Final  bool     `json:"is_final"`
}

// Text returns the first content part, or "" for an empty message.
func (m *ChatMessage) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0]
}
