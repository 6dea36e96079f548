package logging

import (
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bearer", input: "Authorization: Bearer abc.def-ghi", want: "Authorization: Bearer ***"},
		{name: "openai key", input: "key sk-proj1234567890", want: "key sk-***"},
		{name: "google key", input: "AIzaSyA1234567890abcdefghijk", want: "AIza***"},
		{name: "short sk prefix kept", input: "sk-abc", want: "sk-abc"},
		{name: "plain", input: "upstream returned 502", want: "upstream returned 502"},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := NewRedactor()

	if got := r.RedactAttr(slog.String("api_key", "abcdefghijkl")); got.Value.String() != "abcd***" {
		t.Errorf("api_key = %q, want abcd***", got.Value.String())
	}
	if got := r.RedactAttr(slog.Int("token_count", 12)); got.Value.String() != "***" {
		t.Errorf("sensitive non-string = %q, want ***", got.Value.String())
	}
	if got := r.RedactAttr(slog.Int("status", 200)); got.Value.Int64() != 200 {
		t.Errorf("status = %v, want 200", got.Value)
	}

	group := r.RedactAttr(slog.Group("upstream", slog.String("secret", "abcdefghijkl"), slog.String("id", "a")))
	attrs := group.Value.Group()
	if len(attrs) != 2 || attrs[0].Value.String() != "abcd***" || attrs[1].Value.String() != "a" {
		t.Errorf("group = %v", attrs)
	}
}

func TestMaskHeader(t *testing.T) {
	tests := []struct {
		name, value, want string
	}{
		{name: "Authorization", value: "Bearer sk-abcdefghijkl", want: "Bearer sk-a***"},
		{name: "authorization", value: "Basic dXNlcjpwYXNzd29yZA==", want: "Basic dXNl***"},
		{name: "x-api-key", value: "secret", want: "***"},
		{name: "X-Goog-Api-Key", value: "AIzaSyA1234567890", want: "AIza***"},
		{name: "x-proxy-key", value: "gateway-key-123", want: "gate***"},
		{name: "content-type", value: "application/json", want: "application/json"},
		{name: "x-api-key", value: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskHeader(tt.name, tt.value); got != tt.want {
				t.Errorf("MaskHeader(%q, %q) = %q, want %q", tt.name, tt.value, got, tt.want)
			}
		})
	}

	r := NewRedactor()
	if got := r.MaskHeader("x-api-key", "abcdefghijkl"); got != "abcd***" {
		t.Errorf("Redactor.MaskHeader() = %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"short":        "***",
		"12345678":     "***",
		"123456789":    "1234***",
		"sk-abcdefghi": "sk-a***",
	}
	for in, want := range tests {
		if got := MaskSecret(in); got != want {
			t.Errorf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
