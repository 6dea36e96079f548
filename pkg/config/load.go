package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of DefaultConfig, so omitted keys keep their
// defaults, then the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention APIFLOW_SECTION_FIELD (e.g., APIFLOW_CONTROL_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like LoadConfigWithEnvOverrides, except that an empty
// path or a missing file yields the default configuration with environment
// overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format APIFLOW_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Control overrides
	if val := os.Getenv("APIFLOW_CONTROL_LISTEN_ADDRESS"); val != "" {
		cfg.Control.ListenAddress = val
	}
	if val := os.Getenv("APIFLOW_CONTROL_TOKEN"); val != "" {
		cfg.Control.Token = val
	}
	envDuration("APIFLOW_CONTROL_SHUTDOWN_TIMEOUT", &cfg.Control.ShutdownTimeout)

	// Gateway overrides
	if val := os.Getenv("APIFLOW_GATEWAY_BIND_HOST"); val != "" {
		cfg.Gateway.BindHost = val
	}
	envDuration("APIFLOW_GATEWAY_DRAIN_TIMEOUT", &cfg.Gateway.DrainTimeout)
	if val := os.Getenv("APIFLOW_GATEWAY_MAX_REQUEST_BODY"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Gateway.MaxRequestBody = i
		}
	}

	// Forwarder overrides
	envInt("APIFLOW_FORWARDER_MAX_ATTEMPTS", &cfg.Forwarder.MaxAttempts)
	envDuration("APIFLOW_FORWARDER_RETRY_BACKOFF", &cfg.Forwarder.RetryBackoff)
	envDuration("APIFLOW_FORWARDER_REQUEST_TIMEOUT", &cfg.Forwarder.RequestTimeout)
	envBool("APIFLOW_FORWARDER_FALLBACK_ON_429", &cfg.Forwarder.FallbackOn429)

	// Log store overrides
	envInt("APIFLOW_LOGS_CAPACITY", &cfg.Logs.Capacity)
	envBool("APIFLOW_LOGS_REDACT_SECRETS", &cfg.Logs.RedactSecrets)

	// Settings overrides
	if val := os.Getenv("APIFLOW_SETTINGS_PATH"); val != "" {
		cfg.Settings.Path = val
	}
	envBool("APIFLOW_SETTINGS_WATCH", &cfg.Settings.Watch)
	envBool("APIFLOW_SETTINGS_AUTOSTART", &cfg.Settings.Autostart)

	// Archive overrides
	envBool("APIFLOW_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	if val := os.Getenv("APIFLOW_ARCHIVE_DRIVER"); val != "" {
		cfg.Archive.Driver = val
	}
	if val := os.Getenv("APIFLOW_ARCHIVE_PATH"); val != "" {
		cfg.Archive.Path = val
	}
	envInt("APIFLOW_ARCHIVE_RETENTION_DAYS", &cfg.Archive.Retention.Days)

	// Telemetry overrides
	if val := os.Getenv("APIFLOW_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("APIFLOW_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	envBool("APIFLOW_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	if val := os.Getenv("APIFLOW_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	envBool("APIFLOW_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	if val := os.Getenv("APIFLOW_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("APIFLOW_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
