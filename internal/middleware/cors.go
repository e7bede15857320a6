// Package middleware provides HTTP middleware for the conversation API.
package middleware

import (
	"net/http"
	"regexp"
)

// CORS returns middleware that handles CORS headers. An origin is allowed
// when it matches an entry in allowedOrigins ("*" allows any) or, if
// originPattern is non-nil, the pattern.
func CORS(allowedOrigins []string, originPattern *regexp.Regexp) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			exact := false
			for _, o := range allowedOrigins {
				if o == "*" {
					allowed = true
				}
				if o == origin {
					allowed = true
					exact = true
				}
			}
			if !allowed && originPattern != nil && origin != "" && originPattern.MatchString(origin) {
				allowed = true
				exact = true
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
				// Credentials only for explicit or pattern-matched
				// origins, never for bare wildcard echoes.
				if exact {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
