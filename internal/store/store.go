// Package store provides the external session-store boundary: keyed
// create/get/delete of per-conversation state bags.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionExists is returned by Create when the key is already taken.
var ErrSessionExists = errors.New("session already exists")

// Session is one stored entry, keyed by (app name, user id, session key).
type Session struct {
	AppName    string
	UserID     string
	SessionKey string
	State      map[string]string
	CreatedAt  time.Time
}

// Store persists session entries. Get returns (nil, nil) for an absent
// entry; Delete of an absent entry is a no-op.
type Store interface {
	Create(ctx context.Context, appName, userID, sessionKey string, state map[string]string) (*Session, error)
	Get(ctx context.Context, appName, userID, sessionKey string) (*Session, error)
	Delete(ctx context.Context, appName, userID, sessionKey string) error
	Close() error
}
