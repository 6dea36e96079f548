package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/proxy/types"
)

// ReadBody buffers the request body so it can be replayed on every attempt.
// Bodies larger than maxBytes fail with a RequestError carrying status 413.
// A non-positive maxBytes means config.DefaultMaxRequestBody.
//
// Example usage:
//
//	body, err := ReadBody(w, r, cfg.Gateway.MaxRequestBody)
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxRequestBody
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{
				Message:    fmt.Sprintf("%s: limit is %d bytes", types.MessageRequestTooLarge, maxBytes),
				StatusCode: http.StatusRequestEntityTooLarge,
			}
		}
		return nil, &RequestError{
			Message:    fmt.Sprintf("failed to read request body: %v", err),
			StatusCode: http.StatusBadRequest,
		}
	}
	return body, nil
}

// ClientIP returns the remote host of the request without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// RequestError represents a request that could not be read.
type RequestError struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an error response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	status := e.StatusCode
	if status == 0 {
		status = http.StatusBadRequest
	}
	return types.NewErrorResponse(status, e.Message)
}
