package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// APIKeyAuth returns middleware that checks the request's API key against
// cfg.APIKeys. The key is read from X-API-Key, or from an
// "Authorization: Bearer" header for clients that cannot set custom headers.
// If RequireAPIKey is false, all requests pass through; if it is true but no
// keys are configured, every request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := requestKey(r)
			if apiKey == "" {
				logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr).
					Warn("auth: missing API key")
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			if !isValidAPIKey(apiKey, cfg.APIKeys) {
				logging.WithFields(r.Context(), "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr).
					Warn("auth: invalid API key")
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "message": msg, "code": code})
}

// isValidAPIKey checks key against every configured key in constant time,
// so the comparison takes as long whichever key matches.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
