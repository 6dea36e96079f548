package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the request context with a deadline. Handlers must
// observe ctx.Done(); blocking lifecycle operations behind the control API
// (start, reload, stop) take the request context and give up when it
// expires.
//
// It is not used on the gateway listener, where streamed responses may
// legitimately run for a long time.
//
// Example usage:
//
//	handler = TimeoutMiddleware(30 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
