package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// TokenMiddleware is HTTP middleware that guards the control API with a
// static token, accepted from the same headers as the gateway key.
type TokenMiddleware struct {
	token  string
	logger *slog.Logger
}

// NewTokenMiddleware creates a new token middleware. An empty token lets
// every request through.
func NewTokenMiddleware(token string) *TokenMiddleware {
	return &TokenMiddleware{
		token:  token,
		logger: slog.Default().With("component", "auth"),
	}
}

// Handle wraps an HTTP handler with token authentication.
func (m *TokenMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Check(m.token, r.Header) != Authorized {
			m.logger.Warn("control request rejected",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			WriteUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteUnauthorized writes the 401 {"error":"unauthorized"} response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": ErrUnauthorized.Error()})
}
