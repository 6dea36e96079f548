package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "apiflow.*" namespace. HTTP attributes follow
// the OpenTelemetry semantic conventions.
const (
	AttrRequestID   = "apiflow.request_id"
	AttrListenPort  = "apiflow.listen_port"
	AttrService     = "apiflow.service"
	AttrBasePath    = "apiflow.base_path"
	AttrUpstreamID  = "apiflow.upstream.id"
	AttrUpstreamURL = "apiflow.upstream.url"
	AttrAttempt     = "apiflow.upstream.attempt"
	AttrOutcome     = "apiflow.upstream.outcome"
	AttrRetryAction = "apiflow.retry_action"
	AttrStreaming   = "apiflow.streaming"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPPath   = "url.path"
	AttrHTTPStatus = "http.response.status_code"

	AttrErrorMessage = "error.message"
)

// SetRequestAttributes sets the inbound request attributes on a gateway span.
func SetRequestAttributes(span trace.Span, requestID, method, path string, port int) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, path),
		attribute.Int(AttrListenPort, port),
	)
}

// SetServiceAttributes records the resolved service.
func SetServiceAttributes(span trace.Span, service, basePath string) {
	span.SetAttributes(
		attribute.String(AttrService, service),
		attribute.String(AttrBasePath, basePath),
	)
}

// SetUpstreamAttributes sets the attributes of one upstream attempt span.
func SetUpstreamAttributes(span trace.Span, upstreamID, url string, attempt int) {
	span.SetAttributes(
		attribute.String(AttrUpstreamID, upstreamID),
		attribute.String(AttrUpstreamURL, url),
		attribute.Int(AttrAttempt, attempt),
	)
}

// SetResultAttributes records how a gateway request ended. A status of zero
// is omitted.
func SetResultAttributes(span trace.Span, status int, retryAction string, streaming bool) {
	attrs := []attribute.KeyValue{attribute.Bool(AttrStreaming, streaming)}
	if status != 0 {
		attrs = append(attrs, attribute.Int(AttrHTTPStatus, status))
	}
	if retryAction != "" {
		attrs = append(attrs, attribute.String(AttrRetryAction, retryAction))
	}
	span.SetAttributes(attrs...)
}
