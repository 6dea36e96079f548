package config

import "time"

// Config is the root configuration structure for the ApiFlow gateway process.
// It configures the local control API, the gateway listener, the forwarder,
// the in-memory log store, settings persistence, the optional log archive and
// telemetry. The routing table itself (services and upstreams) is not part of
// this file; it lives in the user's settings file as a ProxyConfig.
type Config struct {
	// Control contains configuration for the loopback control API used by the
	// desktop shell and the CLI.
	Control ControlConfig `yaml:"control"`

	// Gateway contains listener settings applied every time the gateway starts.
	Gateway GatewayConfig `yaml:"gateway"`

	// Forwarder contains the retry/failover policy and capture limits.
	Forwarder ForwarderConfig `yaml:"forwarder"`

	// Logs contains configuration for the bounded request log.
	Logs LogsConfig `yaml:"logs"`

	// Settings contains configuration for the persisted ProxyConfig file.
	Settings SettingsConfig `yaml:"settings"`

	// Archive contains configuration for the optional durable log archive.
	Archive ArchiveConfig `yaml:"archive"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ControlConfig contains configuration for the control API server.
type ControlConfig struct {
	// ListenAddress is the address the control API listens on.
	// Default: "127.0.0.1:7878"
	ListenAddress string `yaml:"listen_address"`

	// Token is an optional bearer token required on /api routes.
	// Empty disables the check.
	Token string `yaml:"token"`

	// ShutdownTimeout is the maximum duration to wait for the control API to
	// finish in-flight calls on shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration for the
	// desktop webview.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins.
	// Default: ["tauri://localhost", "http://localhost:1420"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers exposed to the client.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls Access-Control-Allow-Credentials.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// GatewayConfig contains configuration for the gateway listener.
type GatewayConfig struct {
	// BindHost is the interface the gateway port binds to. The port itself
	// comes from ProxyConfig.ListenPort.
	// Default: "0.0.0.0" (reachable from the LAN)
	BindHost string `yaml:"bind_host"`

	// DrainTimeout is how long Stop waits for in-flight requests before
	// cancelling them.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// ReadHeaderTimeout bounds reading the request line and headers.
	// Default: 30s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBody limits the buffered request body. Bodies are buffered so
	// they can be replayed on retry and fallback.
	// Default: 33554432 (32MB)
	MaxRequestBody int64 `yaml:"max_request_body"`
}

// ForwarderConfig contains the upstream retry/failover policy.
type ForwarderConfig struct {
	// MaxAttempts is the number of attempts made against one upstream for
	// transient failures before falling back to the next upstream.
	// Default: 2
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the pause between attempts on the same upstream.
	// Default: 200ms
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RequestTimeout bounds one upstream attempt including the body.
	// Default: 600s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// DialTimeout bounds establishing the upstream TCP connection.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// FallbackOn429 makes 429 Too Many Requests a fallback status. When false
	// a 429 is delivered to the client.
	// Default: false
	FallbackOn429 bool `yaml:"fallback_on_429"`

	// Capture contains the body capture limits for the request log.
	Capture CaptureConfig `yaml:"capture"`
}

// CaptureConfig bounds how much of each body is kept in the log.
type CaptureConfig struct {
	// RequestBodyBytes is the captured prefix of the request body.
	// Default: 8000
	RequestBodyBytes int `yaml:"request_body_bytes"`

	// ResponseBodyBytes is the captured prefix of a regular response body.
	// Default: 8000
	ResponseBodyBytes int `yaml:"response_body_bytes"`

	// StreamBodyBytes is the captured prefix of a streaming response body.
	// Default: 64000
	StreamBodyBytes int `yaml:"stream_body_bytes"`

	// ErrorSnippetChars is the number of characters of an error response
	// copied into the entry's error field.
	// Default: 2000
	ErrorSnippetChars int `yaml:"error_snippet_chars"`
}

// LogsConfig contains configuration for the in-memory request log.
type LogsConfig struct {
	// Capacity is the ring buffer size.
	// Default: 200
	Capacity int `yaml:"capacity"`

	// RedactSecrets masks credential header values in captured headers.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// SettingsConfig contains configuration for the persisted ProxyConfig.
type SettingsConfig struct {
	// Path is the settings file. Empty means <UserConfigDir>/apiflow/config.json.
	Path string `yaml:"path"`

	// Watch reloads the gateway when the settings file changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`

	// Autostart starts the gateway from saved settings when the process starts.
	// Default: true
	Autostart bool `yaml:"autostart"`
}

// ArchiveConfig contains configuration for the durable log archive.
type ArchiveConfig struct {
	// Enabled turns on archiving of finalized log entries.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Driver selects the storage backend: "sqlite" (pure Go), "sqlite3"
	// (cgo) or "memory".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path for the SQLite drivers.
	// Default: "data/apiflow-logs.db"
	Path string `yaml:"path"`

	// AsyncBuffer is the size of the recorder queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single archive write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// WALMode enables SQLite write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Retention contains the pruning policy.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains archive pruning settings.
type RetentionConfig struct {
	// Days is the maximum entry age. Zero keeps entries forever.
	// Default: 7
	Days int `yaml:"days"`

	// MaxRecords caps the number of archived entries. Zero means unlimited.
	// Default: 100000
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a standard cron expression. Empty disables pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json", "text", "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPII masks bearer tokens and API keys in log attributes.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes metrics on the control API.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path on the control API.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric namespace.
	// Default: "apiflow"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are the histogram buckets in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName is the resource service name.
	// Default: "apiflow"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the parent-based trace id ratio.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds exporter calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
