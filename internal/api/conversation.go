package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/abelikov/convogate/internal/identity"
	"github.com/abelikov/convogate/internal/session"
)

// messageRequest is the body of push and stream requests.
type messageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) decodeMessage(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	return req, true
}

// HandleInit handles POST /api/conversation.
func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convo, err := h.mgr.Init(r.Context(), userID)
	if err != nil {
		slog.Warn("conversation init failed", "user_id", userID, "error", err)
		Error(w, statusForError(err), err.Error())
		return
	}

	JSON(w, http.StatusCreated, map[string]string{
		"user_id":     userID,
		"session_key": convo.SessionKey,
	})
}

// HandleClose handles DELETE /api/conversation.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.mgr.Close(r.Context(), userID); err != nil {
		slog.Warn("conversation close failed", "user_id", userID, "error", err)
		Error(w, statusForError(err), err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"closed":  true,
	})
}

// HandleMessage handles POST /api/conversation/message: one blocking turn
// collapsed to a single answer.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	slog.Info("conversation message", "user_id", userID, "message_length", len(req.Text))

	response, err := h.mgr.PushOne(r.Context(), userID, req.Text)
	if err != nil {
		if errors.Is(err, session.ErrNoConversation) {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("conversation turn failed", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, "agent engine failed")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"user_id":  userID,
		"response": response,
	})
}

// HandleStream handles POST /api/conversation/stream: the turn's translated
// messages are sent incrementally as server-sent events, one JSON object
// per chunk.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	seq, err := h.mgr.StreamMany(r.Context(), userID, req.Text)
	if err != nil {
		Error(w, statusForError(err), err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for msg, err := range seq {
		if err != nil {
			slog.Error("conversation stream failed", "user_id", userID, "error", err)
			if writeErr := writeSSE(w, "error", "agent engine failed"); writeErr != nil {
				slog.Warn("failed to write SSE error event", "error", writeErr)
			}
			flusher.Flush()
			return
		}

		data, err := json.Marshal(msg)
		if err != nil {
			// A record that cannot be serialized is dropped; the
			// stream keeps going.
			slog.Warn("failed to marshal chat message, skipping", "user_id", userID, "error", err)
			continue
		}
		if err := writeSSE(w, "message", string(data)); err != nil {
			slog.Warn("failed to write SSE message event", "user_id", userID, "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
