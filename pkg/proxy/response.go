package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/apiflow/pkg/proxy/types"
)

// WriteJSONResponse writes a JSON response to the HTTP response writer.
// It sets the appropriate content-type header and handles marshaling errors.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes an error response with its own status code.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.HTTPStatusCode(), errResp)
}

// WriteError writes {"error": message} with the given status.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteErrorResponse(w, types.NewErrorResponse(statusCode, message))
}
