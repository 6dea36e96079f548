package middleware

import "net/http"

// Chain applies middleware in the order the gateway and control listeners
// use: Recovery outermost, then RequestID, Logging and the given extras.
func Chain(h http.Handler, extra ...func(http.Handler) http.Handler) http.Handler {
	for i := len(extra) - 1; i >= 0; i-- {
		h = extra[i](h)
	}
	return RecoveryMiddleware(RequestIDMiddleware(LoggingMiddleware(h)))
}
