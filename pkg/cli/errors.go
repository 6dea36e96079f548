package cli

import (
	"errors"
	"fmt"

	"mercator-hq/apiflow/pkg/config"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInvalidConfig = 2
	// ExitUnavailable means the control API of a running app could not be
	// reached, so scripts can tell "not running" from "failed".
	ExitUnavailable = 3
)

// ConfigError is a bad flag, file or setting. Field may be empty.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// NewConfigError returns a ConfigError for field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// CommandError wraps the failure of a subcommand.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError wraps err as the failure of command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// UnavailableError marks err as "the app is not running".
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return e.Err.Error() }

func (e *UnavailableError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	var (
		cfgErr  *ConfigError
		verr    config.ValidationError
		unavail *UnavailableError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &unavail):
		return ExitUnavailable
	case errors.As(err, &cfgErr), errors.As(err, &verr):
		return ExitInvalidConfig
	default:
		return ExitFailure
	}
}
