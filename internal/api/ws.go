package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/abelikov/convogate/internal/identity"
)

// HandleWS handles GET /ws/conversation: the websocket variant of the
// streaming endpoint. The first client text frame carries the query JSON;
// each translated message is sent back as one JSON frame and the socket
// closes when the turn ends.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "turn ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_, payload, err := ws.Read(ctx)
	if err != nil {
		slog.Debug("websocket read failed", "error", err, "user_id", userID)
		return
	}

	var req messageRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Text == "" {
		h.writeWSJSON(ctx, ws, map[string]string{"error": "invalid query frame"})
		return
	}

	seq, err := h.mgr.StreamMany(ctx, userID, req.Text)
	if err != nil {
		h.writeWSJSON(ctx, ws, map[string]string{"error": err.Error()})
		return
	}

	for msg, err := range seq {
		if err != nil {
			slog.Error("websocket stream failed", "user_id", userID, "error", err)
			h.writeWSJSON(ctx, ws, map[string]string{"error": "agent engine failed"})
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			slog.Warn("failed to marshal chat message, skipping", "user_id", userID, "error", err)
			continue
		}
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) writeWSJSON(ctx context.Context, ws *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}
