package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"mercator-hq/apiflow/pkg/proxy/types"
	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/security/auth"
)

// Common forwarding errors that can be checked with errors.Is().
var (
	// ErrUpstreamExhausted is returned when every upstream of a chain failed.
	ErrUpstreamExhausted = errors.New("all upstreams failed")

	// ErrClientDisconnected is recorded when the client goes away before the
	// response is complete.
	ErrClientDisconnected = errors.New(types.MessageClientDisconnected)

	// ErrUpstreamBodyBroken is recorded when the upstream response body fails
	// after its headers were relayed to the client.
	ErrUpstreamBodyBroken = errors.New("failed to read upstream response")
)

// TransientError wraps a transport failure that happened before response
// headers and may succeed on a second attempt against the same upstream.
type TransientError struct {
	UpstreamID string
	Err        error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.UpstreamID, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when the chain ended without a deliverable
// response. Last is the final attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%v after %d attempts", ErrUpstreamExhausted, e.Attempts)
	}
	return fmt.Sprintf("%v after %d attempts: %v", ErrUpstreamExhausted, e.Attempts, e.Last)
}

// Unwrap returns the last attempt error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is implements error matching for errors.Is().
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrUpstreamExhausted
}

// IsTransient reports whether a pre-header transport error is worth retrying
// on the same upstream: refused or reset connections, dial and TLS failures,
// timeouts before headers and connections closed before a response.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HandleError converts an error to the response written to the client.
//
// Example usage:
//
//	if err != nil {
//	    errResp := HandleError(err)
//	    WriteErrorResponse(w, errResp)
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return types.NewUnauthorizedError()
	case errors.Is(err, routing.ErrNoRoute):
		return types.NewNotFoundError(err.Error())
	case errors.Is(err, routing.ErrNoUpstream):
		return types.NewServiceUnavailableError(types.MessageNoUpstream)
	case errors.Is(err, ErrUpstreamExhausted):
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) && exhausted.Last != nil {
			return types.NewBadGatewayError(exhausted.Last.Error())
		}
		return types.NewBadGatewayError(err.Error())
	}

	return types.NewErrorResponse(http.StatusInternalServerError, types.MessageInternal)
}
