// Package types defines the JSON bodies the gateway writes itself.
//
// Upstream responses are relayed byte for byte and never decoded; only
// responses produced by the gateway (authorization failures, unmatched
// routes, exhausted upstream chains) use these types:
//
//	{"error": "unauthorized"}
package types
