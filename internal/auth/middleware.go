// Package auth provides bearer-token authentication middleware.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware returns an HTTP middleware that validates bearer-token
// authentication against apiKey. Requests to skipPaths (e.g. "/healthz")
// are allowed without authentication. An empty apiKey rejects all
// non-skipped requests.
func Middleware(apiKey string, skipPaths []string) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey == "" {
				writeAuthError(w, "API key not configured")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeAuthError(w, "invalid Authorization format, expected 'Bearer <key>'")
				return
			}

			key := strings.TrimSpace(strings.TrimPrefix(header, prefix))
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				writeAuthError(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
