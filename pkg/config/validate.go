package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError is a problem with one field, addressed by its dotted path
// ("gateway.bind_host", "services[0].upstreams[1].upstreamBase").
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError carries every FieldError found in one pass.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, fe := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", fe.Error())
	}
	return sb.String()
}

// fieldErrors accumulates problems during a validation pass.
type fieldErrors []FieldError

func (f *fieldErrors) add(field, format string, args ...any) {
	*f = append(*f, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// named pairs a field name with its value, in report order.
type named[T any] struct {
	name  string
	value T
}

// durations reports every negative duration.
func (f *fieldErrors) durations(prefix string, fields ...named[time.Duration]) {
	for _, fd := range fields {
		if fd.value < 0 {
			f.add(prefix+"."+fd.name, "must not be negative, got %s", fd.value)
		}
	}
}

// between reports v outside [lo, hi].
func (f *fieldErrors) between(field string, v, lo, hi int64) {
	if v < lo || v > hi {
		f.add(field, "must be between %d and %d, got %d", lo, hi, v)
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError{Errors: []FieldError(f)}
}

// Limits for the application config.
const (
	maxHeaderBytesLimit = 10 << 20
	maxAttemptsLimit    = 10
	maxLogCapacity      = 100000
	maxRetentionDays    = 3650
)

// Validate checks the application config and returns a ValidationError
// listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs fieldErrors
	errs.control(&cfg.Control)
	errs.gateway(&cfg.Gateway)
	errs.forwarder(&cfg.Forwarder)
	errs.between("logs.capacity", int64(cfg.Logs.Capacity), 1, maxLogCapacity)
	errs.archive(&cfg.Archive)
	errs.telemetry(&cfg.Telemetry)
	return errs.err()
}

func (f *fieldErrors) control(c *ControlConfig) {
	if c.ListenAddress == "" {
		f.add("control.listen_address", "listen address is required")
	} else if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		f.add("control.listen_address", "invalid listen address: %v", err)
	}
	f.durations("control", named[time.Duration]{"shutdown_timeout", c.ShutdownTimeout})
	if c.CORS.MaxAge < 0 {
		f.add("control.cors.max_age", "must not be negative, got %d", c.CORS.MaxAge)
	}
}

func (f *fieldErrors) gateway(g *GatewayConfig) {
	switch {
	case g.BindHost == "":
		f.add("gateway.bind_host", "bind host is required")
	case g.BindHost != "localhost" && net.ParseIP(g.BindHost) == nil:
		f.add("gateway.bind_host", "invalid bind host %q: must be an IP address or 'localhost'", g.BindHost)
	}
	f.durations("gateway",
		named[time.Duration]{"drain_timeout", g.DrainTimeout},
		named[time.Duration]{"read_header_timeout", g.ReadHeaderTimeout},
		named[time.Duration]{"idle_timeout", g.IdleTimeout},
	)
	f.between("gateway.max_header_bytes", int64(g.MaxHeaderBytes), 0, maxHeaderBytesLimit)
	if g.MaxRequestBody < 0 {
		f.add("gateway.max_request_body", "must not be negative, got %d", g.MaxRequestBody)
	}
}

func (f *fieldErrors) forwarder(c *ForwarderConfig) {
	f.between("forwarder.max_attempts", int64(c.MaxAttempts), 1, maxAttemptsLimit)
	f.durations("forwarder",
		named[time.Duration]{"retry_backoff", c.RetryBackoff},
		named[time.Duration]{"request_timeout", c.RequestTimeout},
		named[time.Duration]{"dial_timeout", c.DialTimeout},
	)
	for _, l := range []named[int]{
		{"request_body_bytes", c.Capture.RequestBodyBytes},
		{"response_body_bytes", c.Capture.ResponseBodyBytes},
		{"stream_body_bytes", c.Capture.StreamBodyBytes},
		{"error_snippet_chars", c.Capture.ErrorSnippetChars},
	} {
		if l.value < 0 {
			f.add("forwarder.capture."+l.name, "capture limit must not be negative, got %d", l.value)
		}
	}
}

func (f *fieldErrors) archive(a *ArchiveConfig) {
	if !a.Enabled {
		return
	}
	switch a.Driver {
	case "sqlite", "sqlite3":
		if a.Path == "" {
			f.add("archive.path", "path is required for SQLite drivers")
		}
	case "memory":
	default:
		f.add("archive.driver", "invalid driver %q: must be 'sqlite', 'sqlite3', or 'memory'", a.Driver)
	}
	if a.AsyncBuffer < 1 {
		f.add("archive.async_buffer", "async buffer must be at least 1")
	}
	f.between("archive.retention.days", int64(a.Retention.Days), 0, maxRetentionDays)
	if a.Retention.MaxRecords < 0 {
		f.add("archive.retention.max_records", "must not be negative, got %d", a.Retention.MaxRecords)
	}
	if s := a.Retention.PruneSchedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			f.add("archive.retention.prune_schedule", "invalid cron expression: %v", err)
		}
	}
}

func (f *fieldErrors) telemetry(t *TelemetryConfig) {
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		f.add(field, "invalid value %q: must be one of %s", value, strings.Join(allowed, ", "))
	}
	oneOf("telemetry.logging.level", t.Logging.Level, "debug", "info", "warn", "error")
	oneOf("telemetry.logging.format", t.Logging.Format, "json", "text", "console")

	if t.Metrics.Enabled && !strings.HasPrefix(t.Metrics.Path, "/") {
		f.add("telemetry.metrics.path", "metrics path must start with / when metrics are enabled, got %q", t.Metrics.Path)
	}
	if t.Tracing.Enabled && t.Tracing.Endpoint == "" {
		f.add("telemetry.tracing.endpoint", "tracing endpoint is required when tracing is enabled")
	}
	if r := t.Tracing.SampleRatio; r < 0 || r > 1 {
		f.add("telemetry.tracing.sample_ratio", "sample ratio must be between 0.0 and 1.0, got %g", r)
	}
}
