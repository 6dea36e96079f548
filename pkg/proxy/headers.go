package proxy

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"mercator-hq/apiflow/pkg/routing"
	"mercator-hq/apiflow/pkg/security/auth"
)

// Credential header names.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-Api-Key"
	HeaderGoogAPIKey    = "X-Goog-Api-Key"
	HeaderProxyKey      = "X-Proxy-Key"
)

// hopByHop are never forwarded in either direction.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// credentialHeaders are the client headers that may carry a provider key.
var credentialHeaders = []string{HeaderAuthorization, HeaderAPIKey, HeaderGoogAPIKey}

// BuildUpstreamHeaders returns the headers sent to upstream for a client
// request. Hop-by-hop headers, Host, Content-Length and X-Proxy-Key are
// dropped. When the upstream has an API key it replaces the client's
// credentials in the header style the client used. Otherwise the client's
// credentials pass through unless they only carried the gateway key.
func BuildUpstreamHeaders(in http.Header, up routing.Upstream, globalKey string) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	removeHopByHop(out)
	out.Del("Host")
	out.Del("Content-Length")
	out.Del(HeaderProxyKey)

	if up.APIKey != "" {
		style := credentialStyle(in)
		for _, name := range credentialHeaders {
			out.Del(name)
		}
		switch style {
		case HeaderGoogAPIKey:
			out.Set(HeaderGoogAPIKey, up.APIKey)
		case HeaderAPIKey:
			out.Set(HeaderAPIKey, up.APIKey)
		default:
			out.Set(HeaderAuthorization, "Bearer "+up.APIKey)
		}
		return out
	}

	for _, name := range credentialHeaders {
		if auth.IsGatewayCredential(globalKey, name, in.Get(name)) {
			out.Del(name)
		}
	}
	return out
}

// credentialStyle returns the credential header the client used, preferring
// x-goog-api-key, then x-api-key, then Authorization.
func credentialStyle(h http.Header) string {
	switch {
	case h.Get(HeaderGoogAPIKey) != "":
		return HeaderGoogAPIKey
	case h.Get(HeaderAPIKey) != "":
		return HeaderAPIKey
	default:
		return HeaderAuthorization
	}
}

// CopyResponseHeaders copies upstream response headers to the client,
// skipping hop-by-hop headers and Content-Length.
func CopyResponseHeaders(dst, src http.Header) {
	skip := map[string]bool{"Content-Length": true}
	for _, name := range hopByHop {
		skip[name] = true
	}
	for _, name := range connectionTokens(src) {
		skip[name] = true
	}
	for name, values := range src {
		if skip[textproto.CanonicalMIMEHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// FormatHeaders renders headers as sorted "name: value" lines for the log.
// Authorization and X-Proxy-Key are omitted. mask, when non-nil, rewrites
// each remaining value before it is recorded.
func FormatHeaders(h http.Header, mask func(name, value string) string) string {
	names := make([]string, 0, len(h))
	for name := range h {
		switch textproto.CanonicalMIMEHeaderKey(name) {
		case HeaderAuthorization, HeaderProxyKey:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			if mask != nil {
				v = mask(name, v)
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(lower)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}

func removeHopByHop(h http.Header) {
	for _, name := range connectionTokens(h) {
		h.Del(name)
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// connectionTokens returns the header names listed in Connection.
func connectionTokens(h http.Header) []string {
	var out []string
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				out = append(out, textproto.CanonicalMIMEHeaderKey(token))
			}
		}
	}
	return out
}
