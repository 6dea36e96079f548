package routing

import (
	"net/http"
	"time"

	"mercator-hq/apiflow/pkg/config"
)

// Upstream is one enabled entry of a service chain.
type Upstream struct {
	// ID is the stable upstream identifier from the configuration.
	ID string

	// Label is the display name. Empty when not configured.
	Label string

	// Base is the upstream base URL without a trailing slash.
	Base string

	// APIKey is the provider credential injected on forward. Empty means the
	// client's own credentials pass through.
	APIKey string

	// Priority is the configured try-order value; lower goes first.
	Priority int
}

// DisplayName returns the label, or the base URL when no label is set.
func (u Upstream) DisplayName() string {
	if u.Label != "" {
		return u.Label
	}
	return u.Base
}

// Route is an enabled service with its precomputed chain.
type Route struct {
	ServiceID   string
	ServiceName string
	BasePath    string

	// Chain holds the enabled upstreams in priority order.
	Chain []Upstream
}

// Match is the result of resolving an inbound path.
type Match struct {
	ServiceID   string
	ServiceName string
	BasePath    string

	// Suffix is the inbound path with the base path removed, in escaped form.
	// It always starts with "/" unless empty.
	Suffix string

	// Chain is shared with the snapshot and must not be modified.
	Chain []Upstream
}

// Snapshot is an immutable, validated routing table built from one
// ProxyConfig. It is published by atomic pointer swap and never mutated;
// only its request count changes.
type Snapshot struct {
	// Version increases by one on every accepted start or reload.
	Version uint64

	// ListenPort is the gateway port this snapshot was built for.
	ListenPort int

	// GlobalKey is the gateway credential. Empty disables authorization.
	GlobalKey string

	// ProxyURL is the egress proxy, if any.
	ProxyURL string

	// Routes are the enabled services, longest base path first.
	Routes []Route

	// Client sends upstream requests through the configured egress proxy.
	Client *http.Client

	// Config is the normalized configuration the snapshot was built from.
	Config *config.ProxyConfig

	// CreatedAt is when the snapshot was built.
	CreatedAt time.Time

	leases leases
}

// UpstreamStats contains the aggregated outcome counters of one upstream.
type UpstreamStats struct {
	UpstreamID      string `json:"upstreamId"`
	UpstreamLabel   string `json:"upstreamLabel,omitempty"`
	TotalRequests   int64  `json:"totalRequests"`
	SuccessCount    int64  `json:"successCount"`
	ErrorCount      int64  `json:"errorCount"`
	TotalDurationMs int64  `json:"totalDurationMs"`
}
