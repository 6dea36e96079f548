package types

import "net/http"

// ErrorResponse is the body of every error produced by the gateway or the
// control API.
type ErrorResponse struct {
	Error string `json:"error"`

	// status is the HTTP status the response is written with.
	status int
}

// Common messages.
const (
	MessageUnauthorized       = "unauthorized"
	MessageNoUpstream         = "service has no enabled upstream"
	MessageRequestTooLarge    = "request body too large"
	MessageInternal           = "internal server error"
	MessageClientDisconnected = "client disconnected"
)

// NewErrorResponse creates an error response written with the given status.
func NewErrorResponse(status int, message string) *ErrorResponse {
	return &ErrorResponse{Error: message, status: status}
}

// NewUnauthorizedError returns the 401 response of the authorization gate.
func NewUnauthorizedError() *ErrorResponse {
	return NewErrorResponse(http.StatusUnauthorized, MessageUnauthorized)
}

// NewNotFoundError returns a 404 response.
func NewNotFoundError(message string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, message)
}

// NewServerError returns a 500 response.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, message)
}

// NewBadGatewayError returns a 502 response.
func NewBadGatewayError(message string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadGateway, message)
}

// NewServiceUnavailableError returns a 503 response.
func NewServiceUnavailableError(message string) *ErrorResponse {
	return NewErrorResponse(http.StatusServiceUnavailable, message)
}

// HTTPStatusCode returns the status to write, defaulting to 500.
func (e *ErrorResponse) HTTPStatusCode() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}
