// Package config provides configuration management for the ApiFlow gateway.
//
// Two kinds of configuration live here:
//
//   - Config, the process configuration: control API, gateway listener,
//     forwarder policy, log store, settings persistence, archive and telemetry.
//     It is loaded from YAML with environment variable overrides.
//   - ProxyConfig, the user's routing table: listen port, gateway key, egress
//     proxy, and services with their upstream chains. It is stored as JSON by
//     the settings package and passed to the gateway on start and reload.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("apiflow.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("apiflow.yaml")
//	cfg, err := config.LoadOrDefault(path) // missing file yields defaults
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention APIFLOW_SECTION_FIELD.
// For example:
//
//   - APIFLOW_CONTROL_LISTEN_ADDRESS overrides control.listen_address
//   - APIFLOW_FORWARDER_MAX_ATTEMPTS overrides forwarder.max_attempts
//   - APIFLOW_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Routing Configuration
//
// PrepareProxyConfig normalizes a ProxyConfig (trimming, default ids, base
// path normalization, dropping empty upstreams) and validates it. Errors are
// reported as a ValidationError carrying one FieldError per problem, so the
// caller can show all of them at once.
package config
