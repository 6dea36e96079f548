// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog setup with key redaction and request context fields
//   - metrics: Prometheus collectors for requests, upstream attempts and
//     reloads
//   - tracing: OpenTelemetry spans for gateway requests and upstream attempts
//   - health: liveness, readiness and version endpoints of the control API
//
// Each package is configured from its section of config.TelemetryConfig and
// is safe to use when disabled.
package telemetry
