package health

import (
	"context"
	"errors"
)

// StateCheck reports unhealthy with message while ok returns false. The
// control API registers one for the gateway listener.
func StateCheck(ok func() bool, message string) CheckFunc {
	return func(context.Context) error {
		if !ok() {
			return errors.New(message)
		}
		return nil
	}
}

// PingCheck adapts a ping function, such as a storage Ping, to a check.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		return ping(ctx)
	}
}
