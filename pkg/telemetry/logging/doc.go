// Package logging configures structured logging on top of log/slog.
//
// New builds a Logger from the telemetry logging section. Context fields
// (request_id, listen_port, trace_id) are added to every *Context call. Its
// Slog logger is installed as the process default, and components derive
// their own loggers from it:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Slog())
//	log := slog.Default().With("component", "gateway")
//
// # Redaction
//
// With RedactPII enabled every record passes through a redacting handler:
// bearer tokens and provider keys are masked wherever they appear, and
// attributes with sensitive keys (token, api_key, global_key, ...) are
// reduced to a short prefix:
//
//	Bearer sk-abc123456789  ->  Bearer ***
//	"api_key": "sk-abc123456789"  ->  "api_key": "sk-a***"
//
// MaskHeader applies the same policy to captured request and response
// headers before they are stored in the request log.
package logging
