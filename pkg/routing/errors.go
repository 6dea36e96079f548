package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoRoute is returned when no enabled service claims the request path.
	ErrNoRoute = errors.New("no route for path")

	// ErrNoUpstream is returned when the matched service has no enabled upstream.
	ErrNoUpstream = errors.New("service has no enabled upstream")
)

// NoRouteError is returned by Snapshot.Resolve when the path matches no
// enabled service.
type NoRouteError struct {
	// Path is the inbound request path.
	Path string
}

// Error implements the error interface.
func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no route for path %q", e.Path)
}

// Is implements error matching for errors.Is().
func (e *NoRouteError) Is(target error) bool {
	return target == ErrNoRoute
}
