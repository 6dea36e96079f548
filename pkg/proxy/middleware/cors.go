package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"mercator-hq/apiflow/pkg/config"
)

// CORSConfig controls which browser origins may call the control API.
type CORSConfig struct {
	Enabled bool

	// AllowedOrigins lists exact origins. "*" matches any origin.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int

	AllowCredentials bool
}

// DefaultCORSConfig returns the CORS configuration of the control API when
// none is loaded: the desktop webview origins only.
func DefaultCORSConfig() *CORSConfig {
	return FromConfig(config.DefaultConfig().Control.CORS)
}

// FromConfig converts the control API CORS section.
func FromConfig(c config.CORSConfig) *CORSConfig {
	return &CORSConfig{
		Enabled:          c.Enabled,
		AllowedOrigins:   slices.Clone(c.AllowedOrigins),
		AllowedMethods:   slices.Clone(c.AllowedMethods),
		AllowedHeaders:   slices.Clone(c.AllowedHeaders),
		ExposedHeaders:   slices.Clone(c.ExposedHeaders),
		MaxAge:           c.MaxAge,
		AllowCredentials: c.AllowCredentials,
	}
}

// corsHeaders holds the header values rendered once per middleware instance.
type corsHeaders struct {
	origins     []string
	anyOrigin   bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
	credentials bool
}

func newCORSHeaders(cfg *CORSConfig) corsHeaders {
	h := corsHeaders{
		origins:     cfg.AllowedOrigins,
		anyOrigin:   contains(cfg.AllowedOrigins, "*"),
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		h.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return h
}

func (h corsHeaders) allows(origin string) bool {
	return origin != "" && (h.anyOrigin || contains(h.origins, origin))
}

// CORSMiddleware answers preflight requests from allowed origins with 204 and
// decorates every other response to an allowed origin. Requests from other
// origins pass through without CORS headers, so the browser blocks them.
//
//	handler = CORSMiddleware(FromConfig(cfg.Control.CORS))(handler)
//
// A preflight asking for private network access is granted, since the
// control API only listens on loopback.
func CORSMiddleware(cfg *CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	h := newCORSHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			hdr := w.Header()
			hdr.Add("Vary", "Origin")
			if !h.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			hdr.Set("Access-Control-Allow-Origin", origin)
			if h.credentials {
				hdr.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions {
				if h.exposed != "" {
					hdr.Set("Access-Control-Expose-Headers", h.exposed)
				}
				next.ServeHTTP(w, r)
				return
			}

			if h.methods != "" {
				hdr.Set("Access-Control-Allow-Methods", h.methods)
			}
			if h.headers != "" {
				hdr.Set("Access-Control-Allow-Headers", h.headers)
			}
			if h.maxAge != "" {
				hdr.Set("Access-Control-Max-Age", h.maxAge)
			}
			if r.Header.Get("Access-Control-Request-Private-Network") == "true" {
				hdr.Set("Access-Control-Allow-Private-Network", "true")
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func contains(list []string, s string) bool {
	return slices.Contains(list, s)
}
