package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/gateway"
)

// ErrNoSettings is returned by start and reload without a body when no
// settings are saved.
var ErrNoSettings = errors.New("no saved settings")

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		verr     config.ValidationError
		bindErr  *gateway.BindError
		queryErr *archive.QueryError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &queryErr), errors.Is(err, archive.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &bindErr),
		errors.Is(err, gateway.ErrAlreadyRunning),
		errors.Is(err, gateway.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, ErrNoSettings):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verr config.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "invalid configuration"
		for _, fe := range verr.Errors {
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field, Message: fe.Message})
		}
	}
	writeJSON(w, statusFor(err), resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
