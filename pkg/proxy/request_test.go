package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/apiflow/pkg/config"
)

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestReadBody_Limit(t *testing.T) {
	tests := []struct {
		name       string
		size       int64
		maxBytes   int64
		wantStatus int
	}{
		{"under explicit limit", 4, 8, 0},
		{"over explicit limit", 9, 8, http.StatusRequestEntityTooLarge},
		{"default limit applies", config.DefaultMaxRequestBody, 0, 0},
		{"over default limit", config.DefaultMaxRequestBody + 1, 0, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", io.LimitReader(zeros{}, tt.size))
			body, err := ReadBody(httptest.NewRecorder(), r, tt.maxBytes)

			var reqErr *RequestError
			switch {
			case tt.wantStatus == 0 && err != nil:
				t.Fatalf("ReadBody() error = %v", err)
			case tt.wantStatus == 0 && int64(len(body)) != tt.size:
				t.Errorf("len(body) = %d, want %d", len(body), tt.size)
			case tt.wantStatus != 0 && !errors.As(err, &reqErr):
				t.Fatalf("ReadBody() error = %v, want RequestError", err)
			case tt.wantStatus != 0 && reqErr.StatusCode != tt.wantStatus:
				t.Errorf("status = %d, want %d", reqErr.StatusCode, tt.wantStatus)
			}
		})
	}
}
