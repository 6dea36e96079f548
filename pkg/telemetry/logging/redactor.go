package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log output and in captured headers.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Built-in patterns, applied in order.
var defaultPatterns = []struct {
	regex       string
	replacement string
}{
	// Authorization: Bearer <token>
	{`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	// OpenAI and Anthropic style keys
	{`sk-[a-zA-Z0-9_\-]{8,}`, "sk-***"},
	// Google API keys
	{`AIza[0-9A-Za-z_\-]{20,}`, "AIza***"},
}

// sensitiveHeaders carry credentials and are masked in captured headers.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"x-goog-api-key":      true,
	"x-proxy-key":         true,
	"api-key":             true,
	"cookie":              true,
	"set-cookie":          true,
}

// sensitiveKeys are substrings of log attribute keys whose values are masked.
var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey",
	"authorization", "global_key", "private_key",
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, redactPattern{
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	return r
}

// RedactString masks every credential pattern found in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks an attribute whose key is sensitive and scrubs string
// values of credential patterns. Groups are redacted recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]any, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, MaskSecret(a.Value.String()))
		}
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	default:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, "***")
		}
		return a
	}
}

// MaskHeader returns value masked when name is a credential header and
// unchanged otherwise. The auth scheme of an Authorization value is kept.
// It has the signature expected by proxy.FormatHeaders.
func (r *Redactor) MaskHeader(name, value string) string {
	return MaskHeader(name, value)
}

// MaskHeader is the package-level form of Redactor.MaskHeader.
func MaskHeader(name, value string) string {
	if !sensitiveHeaders[strings.ToLower(name)] {
		return value
	}
	if scheme, rest, ok := strings.Cut(value, " "); ok && isAuthScheme(scheme) {
		return scheme + " " + MaskSecret(rest)
	}
	return MaskSecret(value)
}

// MaskSecret keeps the first four characters of a long secret and hides the
// rest. Short secrets are hidden entirely.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "***"
	default:
		return secret[:4] + "***"
	}
}

func isAuthScheme(s string) bool {
	switch strings.ToLower(s) {
	case "bearer", "basic", "token":
		return true
	}
	return false
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
