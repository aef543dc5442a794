package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/bulkimport/internal/config"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "no trusted proxies ignores headers",
			remote:  "203.0.113.9:5000",
			headers: map[string]string{"X-Real-IP": "198.51.100.1"},
			want:    "203.0.113.9:5000",
		},
		{
			name:    "trusted proxy uses X-Real-IP",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:5000",
			headers: map[string]string{"X-Real-IP": "198.51.100.1"},
			want:    "198.51.100.1",
		},
		{
			name:    "trusted single address uses first forwarded hop",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:5000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			want:    "198.51.100.7",
		},
		{
			name:    "untrusted proxy is ignored",
			trusted: []string{"10.0.0.0/8"},
			remote:  "192.0.2.1:5000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"},
			want:    "192.0.2.1:5000",
		},
		{
			name:    "invalid header value keeps remote address",
			trusted: []string{"10.0.0.0/8", "not-a-cidr"},
			remote:  "10.0.0.5:5000",
			headers: map[string]string{"X-Real-IP": "spoofed"},
			want:    "10.0.0.5:5000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "[::ffff:192.0.2.1]:80"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.RemoteAddr = "198.51.100.1"
	assert.Equal(t, "198.51.100.1", ClientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("disabled", func(t *testing.T) {
		h := APIKeyAuth(&config.SecurityConfig{})(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("required without keys rejects everything", func(t *testing.T) {
		h := APIKeyAuth(&config.SecurityConfig{RequireAPIKey: true})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "anything")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_INVALID_KEY")
	})

	t.Run("bearer scheme is case insensitive", func(t *testing.T) {
		h := APIKeyAuth(&config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("basic auth is not a key", func(t *testing.T) {
		h := APIKeyAuth(&config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_MISSING_KEY")
	})
}

func TestLoggerCapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
