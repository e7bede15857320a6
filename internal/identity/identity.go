// Package identity extracts the trusted caller identity from requests.
// Verification itself happens upstream (auth proxy); this package only
// reads the result and, in development, falls back to an anonymous
// per-device cookie so the service can be exercised without a proxy.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

const (
	// UserHeaderName carries the pre-validated user ID set by the
	// upstream auth layer.
	UserHeaderName = "X-User-ID"

	AnonCookieName   = "convogate_anon_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var (
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the given user ID. Intended for
// tests and internal callers.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Middleware injects the trusted user ID into the request context.
// Without the upstream header, development mode falls back to an
// anonymous cookie identity; production rejects the request.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(UserHeaderName)
			if userID != "" && !userIDPattern.MatchString(userID) {
				http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
				return
			}

			if userID == "" {
				if !isDev {
					http.Error(w, `{"error":"missing identity"}`, http.StatusUnauthorized)
					return
				}
				id, err := getOrCreateAnonID(w, r)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
				userID = id
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
