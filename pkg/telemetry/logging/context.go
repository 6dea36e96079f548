package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ids.
	RequestIDKey contextKey = "request_id"

	// ListenPortKey is the context key for the gateway port serving the
	// request.
	ListenPortKey contextKey = "listen_port"
)

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithListenPort adds the gateway port to the context.
func WithListenPort(ctx context.Context, port int) context.Context {
	return context.WithValue(ctx, ListenPortKey, port)
}

// GetListenPort retrieves the gateway port, or 0.
func GetListenPort(ctx context.Context) int {
	if port, ok := ctx.Value(ListenPortKey).(int); ok {
		return port
	}
	return 0
}

// extractContextFields returns the log fields carried by ctx as key-value
// pairs: request_id, listen_port and, when a span is active, trace_id.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if port := GetListenPort(ctx); port != 0 {
		fields = append(fields, "listen_port", port)
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields, "trace_id", sc.TraceID().String())
	}
	return fields
}
