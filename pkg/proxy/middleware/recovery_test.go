package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name  string
		panic any
	}{
		{"string", "boom"},
		{"error", errors.New("boom")},
		{"value", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.panic)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `"error":"internal server error"`) {
				t.Errorf("body = %q, want generic error JSON", body)
			}
			if strings.Contains(body, "boom") {
				t.Errorf("body leaks the panic value: %q", body)
			}
		})
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fine"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "fine" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecoveryReraisesAbort(t *testing.T) {
	for _, v := range []error{http.ErrAbortHandler, fmt.Errorf("relay: %w", http.ErrAbortHandler)} {
		func() {
			defer func() {
				if got := recover(); got != v {
					t.Errorf("recover() = %v, want %v", got, v)
				}
			}()
			RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(v)
			})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}()
	}
}
