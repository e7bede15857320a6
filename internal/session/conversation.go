package session

import (
	"sync"
	"time"

	"github.com/abelikov/convogate/internal/domain"
)

// Conversation is the live binding between one user and one engine session.
// It is owned exclusively by the registry: created by Init, read by
// PushOne/StreamMany, destroyed by Close.
type Conversation struct {
	UserID     string
	SessionKey string
	State      *domain.SessionState
	CreatedAt  time.Time

	// turnMu serializes turns: at most one in-flight push/stream per
	// conversation.
	turnMu sync.Mutex
}
