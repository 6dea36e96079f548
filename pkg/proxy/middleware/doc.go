// Package middleware provides HTTP middleware shared by the gateway and
// control listeners.
//
// # Middleware Chain
//
//	handler = Recovery(RequestID(Logging(extra...(handler))))
//
// Chain builds exactly that. The gateway adds nothing else; the control API
// adds CORS, the token check and a request timeout.
//
// # Request ID
//
// RequestIDMiddleware reuses a well-formed client X-Request-ID or generates a
// UUID:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// # Logging
//
// LoggingMiddleware logs one line per request at INFO, WARN for 4xx and
// ERROR for 5xx. Its response writer forwards Flush and supports Unwrap so
// streamed gateway responses are not buffered by the wrapper.
//
// # CORS
//
// CORSMiddleware answers preflight requests and sets CORS headers for the
// desktop webview origins configured under control.cors:
//
//	control:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["tauri://localhost", "http://localhost:1420"]
//
// # Recovery
//
// RecoveryMiddleware converts panics into a 500 response:
//
//	{"error": "internal server error"}
//
// The panic stack trace is logged but not exposed to clients.
//
// # Timeout
//
// TimeoutMiddleware sets a context deadline; it never writes a response
// itself.
package middleware
