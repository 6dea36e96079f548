package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Check validates the request headers against the gateway key. An empty key
// authorizes every request. Otherwise one of DefaultSources must carry
// exactly the key.
func Check(globalKey string, h http.Header) Result {
	if globalKey == "" {
		return Authorized
	}
	for _, src := range DefaultSources {
		if value, ok := extract(h, src); ok && equal(value, globalKey) {
			return Authorized
		}
	}
	return Unauthorized
}

// IsGatewayCredential reports whether the header named name carries only the
// gateway key, so it must not be forwarded upstream.
func IsGatewayCredential(globalKey, name, value string) bool {
	if globalKey == "" {
		return false
	}
	for _, src := range DefaultSources {
		if !strings.EqualFold(src.Name, name) {
			continue
		}
		if v, ok := strip(value, src.Scheme); ok && equal(v, globalKey) {
			return true
		}
	}
	return false
}

// extract reads a credential from the header described by src.
func extract(h http.Header, src APIKeySource) (string, bool) {
	value := h.Get(src.Name)
	if value == "" {
		return "", false
	}
	return strip(value, src.Scheme)
}

func strip(value, scheme string) (string, bool) {
	value = strings.TrimSpace(value)
	if scheme == "" {
		return value, value != ""
	}
	prefix := scheme + " "
	if !strings.HasPrefix(value, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(value, prefix)
	return rest, rest != ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
