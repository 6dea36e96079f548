package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/apiflow/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a 500 with the generic
// {"error": "internal server error"} body and logs the stack.
//
// http.ErrAbortHandler is re-raised so net/http drops the connection, which
// is how a broken stream relay gives up.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			ctx := r.Context()
			slog.ErrorContext(ctx, "handler panicked",
				"component", "http",
				"panic", v,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			resp := types.NewServerError(types.MessageInternal)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.HTTPStatusCode())
			_ = json.NewEncoder(w).Encode(resp)
		}()
		next.ServeHTTP(w, r)
	})
}
