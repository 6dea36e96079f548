package auth

import "errors"

// Result is the outcome of a credential check.
type Result int

const (
	// Authorized means the request may proceed.
	Authorized Result = iota

	// Unauthorized means the request must be rejected with 401.
	Unauthorized
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// ErrUnauthorized is reported when a request carries no valid credential.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeySource defines a header a credential can be read from.
type APIKeySource struct {
	Name   string // Header name
	Scheme string // "Bearer", etc. (optional)
}

// DefaultSources are the credential headers accepted by the gateway, in
// lookup order.
var DefaultSources = []APIKeySource{
	{Name: "X-Api-Key"},
	{Name: "Authorization", Scheme: "Bearer"},
	{Name: "X-Proxy-Key"},
}
