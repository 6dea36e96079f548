// Package tracing provides OpenTelemetry tracing for the gateway.
//
// Each gateway request gets a "gateway.request" span and every upstream
// attempt a child "upstream.attempt" span. When tracing is enabled the W3C
// trace context of the attempt is injected into the upstream request headers;
// when it is disabled nothing is added to forwarded headers.
//
// Spans are exported over OTLP gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sample_ratio: 0.25
//
// Sampling is parent-based, so a sampled caller trace is always continued.
package tracing
