// Package api provides HTTP handlers for the conversation API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abelikov/convogate/internal/session"
)

// maxRequestBodySize caps message bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the conversation endpoints.
type Handler struct {
	mgr     *session.Manager
	limiter *RateLimiter
}

// NewHandler creates a handler over the session manager.
func NewHandler(mgr *session.Manager, limiter *RateLimiter) *Handler {
	return &Handler{mgr: mgr, limiter: limiter}
}

// RegisterRoutes registers the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/conversation", func(r chi.Router) {
		r.Post("/", h.HandleInit)
		r.Delete("/", h.HandleClose)
		r.Post("/message", h.HandleMessage)
		r.Post("/stream", h.HandleStream)
	})
	r.Get("/ws/conversation", h.HandleWS)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusForError maps session manager errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoConversation):
		return http.StatusNotFound
	case errors.Is(err, session.ErrStoreInconsistent):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
