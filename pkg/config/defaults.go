package config

import "time"

// Default values for configuration fields.
const (
	// Control API defaults
	DefaultControlListenAddress   = "127.0.0.1:7878"
	DefaultControlShutdownTimeout = 10 * time.Second

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Gateway defaults
	DefaultBindHost          = "0.0.0.0"
	DefaultDrainTimeout      = 10 * time.Second
	DefaultReadHeaderTimeout = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultMaxHeaderBytes    = 1048576  // 1MB
	DefaultMaxRequestBody    = 33554432 // 32MB

	// Forwarder defaults
	DefaultMaxAttempts       = 2
	DefaultRetryBackoff      = 200 * time.Millisecond
	DefaultRequestTimeout    = 600 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultFallbackOn429     = false
	DefaultRequestBodyBytes  = 8000
	DefaultResponseBodyBytes = 8000
	DefaultStreamBodyBytes   = 64000
	DefaultErrorSnippetChars = 2000

	// Log store defaults
	DefaultLogCapacity   = 200
	DefaultRedactSecrets = true

	// Settings defaults
	DefaultSettingsWatch     = false
	DefaultSettingsAutostart = true

	// Archive defaults
	DefaultArchiveEnabled       = false
	DefaultArchiveDriver        = "sqlite"
	DefaultArchivePath          = "data/apiflow-logs.db"
	DefaultArchiveAsyncBuffer   = 1000
	DefaultArchiveWriteTimeout  = 5 * time.Second
	DefaultArchiveWALMode       = true
	DefaultArchiveBusyTimeout   = 5 * time.Second
	DefaultRetentionDays        = 7
	DefaultRetentionMaxRecords  = int64(100000)
	DefaultRetentionSchedule    = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLoggingRedactPII   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "apiflow"
	DefaultMetricsSubsystem   = "gateway"
	DefaultTracingEnabled     = false
	DefaultTracingServiceName = "apiflow"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultRequestDurationBuckets covers local calls through long generations.
var DefaultRequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// DefaultConfig returns a configuration with every default applied, including
// boolean defaults that ApplyDefaults cannot infer from zero values. Files are
// decoded on top of it so absent keys keep their defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Control: ControlConfig{
			CORS: CORSConfig{Enabled: DefaultCORSEnabled},
		},
		Forwarder: ForwarderConfig{FallbackOn429: DefaultFallbackOn429},
		Logs:      LogsConfig{RedactSecrets: DefaultRedactSecrets},
		Settings: SettingsConfig{
			Watch:     DefaultSettingsWatch,
			Autostart: DefaultSettingsAutostart,
		},
		Archive: ArchiveConfig{
			Enabled: DefaultArchiveEnabled,
			WALMode: DefaultArchiveWALMode,
			Retention: RetentionConfig{
				Days:          DefaultRetentionDays,
				MaxRecords:    DefaultRetentionMaxRecords,
				PruneSchedule: DefaultRetentionSchedule,
			},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: DefaultLoggingRedactPII},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{
				Enabled:  DefaultTracingEnabled,
				Insecure: DefaultTracingInsecure,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Control API defaults
	if cfg.Control.ListenAddress == "" {
		cfg.Control.ListenAddress = DefaultControlListenAddress
	}
	if cfg.Control.ShutdownTimeout == 0 {
		cfg.Control.ShutdownTimeout = DefaultControlShutdownTimeout
	}
	applyCORSDefaults(&cfg.Control.CORS)

	// Gateway defaults
	if cfg.Gateway.BindHost == "" {
		cfg.Gateway.BindHost = DefaultBindHost
	}
	if cfg.Gateway.DrainTimeout == 0 {
		cfg.Gateway.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Gateway.ReadHeaderTimeout == 0 {
		cfg.Gateway.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Gateway.IdleTimeout == 0 {
		cfg.Gateway.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Gateway.MaxHeaderBytes == 0 {
		cfg.Gateway.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Gateway.MaxRequestBody == 0 {
		cfg.Gateway.MaxRequestBody = DefaultMaxRequestBody
	}

	// Forwarder defaults
	if cfg.Forwarder.MaxAttempts == 0 {
		cfg.Forwarder.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Forwarder.RetryBackoff == 0 {
		cfg.Forwarder.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Forwarder.RequestTimeout == 0 {
		cfg.Forwarder.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Forwarder.DialTimeout == 0 {
		cfg.Forwarder.DialTimeout = DefaultDialTimeout
	}
	if cfg.Forwarder.Capture.RequestBodyBytes == 0 {
		cfg.Forwarder.Capture.RequestBodyBytes = DefaultRequestBodyBytes
	}
	if cfg.Forwarder.Capture.ResponseBodyBytes == 0 {
		cfg.Forwarder.Capture.ResponseBodyBytes = DefaultResponseBodyBytes
	}
	if cfg.Forwarder.Capture.StreamBodyBytes == 0 {
		cfg.Forwarder.Capture.StreamBodyBytes = DefaultStreamBodyBytes
	}
	if cfg.Forwarder.Capture.ErrorSnippetChars == 0 {
		cfg.Forwarder.Capture.ErrorSnippetChars = DefaultErrorSnippetChars
	}

	// Log store defaults
	if cfg.Logs.Capacity == 0 {
		cfg.Logs.Capacity = DefaultLogCapacity
	}

	// Archive defaults
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = DefaultArchiveDriver
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = DefaultArchivePath
	}
	if cfg.Archive.AsyncBuffer == 0 {
		cfg.Archive.AsyncBuffer = DefaultArchiveAsyncBuffer
	}
	if cfg.Archive.WriteTimeout == 0 {
		cfg.Archive.WriteTimeout = DefaultArchiveWriteTimeout
	}
	if cfg.Archive.BusyTimeout == 0 {
		cfg.Archive.BusyTimeout = DefaultArchiveBusyTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}

// applyCORSDefaults fills CORS lists used by the desktop webview.
func applyCORSDefaults(cfg *CORSConfig) {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"tauri://localhost", "http://localhost:1420"}
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if len(cfg.ExposedHeaders) == 0 {
		cfg.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultCORSMaxAge
	}
}
