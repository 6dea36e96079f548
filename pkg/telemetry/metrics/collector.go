package metrics

import (
	"strconv"
	"sync"
	"time"

	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"

	"github.com/prometheus/client_golang/prometheus"
)

// maxUpstreamLabels bounds the distinct upstream label values. Upstream ids
// come from user settings and change with every edited chain.
const maxUpstreamLabels = 500

// otherLabel aggregates label values beyond the cardinality limit.
const otherLabel = "other"

// Collector owns every gateway metric. All methods are no-ops when metrics
// are disabled or the collector is nil, so callers never need to check.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	gatewayMetrics  *GatewayMetrics

	upstreams *CardinalityLimiter
}

// NewCollector creates a collector registering into registry. A nil registry
// gets a fresh one, so collectors never clash on the global registry.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = config.DefaultRequestDurationBuckets
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		requestMetrics:  NewRequestMetrics(cfg, registry),
		upstreamMetrics: NewUpstreamMetrics(cfg, registry),
		gatewayMetrics:  NewGatewayMetrics(cfg, registry),
		upstreams:       NewCardinalityLimiter(maxUpstreamLabels),
	}
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// ObserveEntry records a finalized request log entry. It is registered as a
// log store OnFinish observer.
func (c *Collector) ObserveEntry(e logstore.Entry) {
	if c == nil || !c.config.Enabled {
		return
	}
	service := e.ServiceName
	if service == "" {
		service = "none"
	}
	c.requestMetrics.RecordRequest(service, StatusClass(e.StatusCode()),
		time.Duration(e.DurationMs)*time.Millisecond)
}

// SetActive updates the in-flight request gauge. It is registered as a log
// store OnActiveChange observer.
func (c *Collector) SetActive(n int) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.requestMetrics.SetActive(n)
}

// ObserveAuthFailure counts a request rejected by the gateway key check.
func (c *Collector) ObserveAuthFailure() {
	if c == nil || !c.config.Enabled {
		return
	}
	c.requestMetrics.authFailures.Inc()
}

// ObserveRouteMiss counts a request that matched no service.
func (c *Collector) ObserveRouteMiss() {
	if c == nil || !c.config.Enabled {
		return
	}
	c.requestMetrics.routeMisses.Inc()
}

// ObserveAttempt counts one forwarder decision for an upstream attempt.
func (c *Collector) ObserveAttempt(upstreamID, outcome string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.upstreamMetrics.RecordAttempt(c.upstreamLabel(upstreamID), outcome)
}

// Record counts one upstream attempt as a success or an error. Its signature
// matches the upstream statistics recorder so both can be fed together.
func (c *Collector) Record(upstreamID, _ string, _ int64, success bool) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.upstreamMetrics.RecordResult(c.upstreamLabel(upstreamID), success)
}

// ObserveReload counts a start or reload. result is "success" or "error".
func (c *Collector) ObserveReload(result string) {
	if c == nil || !c.config.Enabled {
		return
	}
	c.gatewayMetrics.reloads.WithLabelValues(result).Inc()
}

// ObserveArchiveDrop counts an entry the archive recorder had to drop.
func (c *Collector) ObserveArchiveDrop() {
	if c == nil || !c.config.Enabled {
		return
	}
	c.gatewayMetrics.archiveDropped.Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) upstreamLabel(id string) string {
	if !c.upstreams.Allow(id) {
		return otherLabel
	}
	return id
}

// StatusClass maps a status code to "2xx" through "5xx", or "none" when no
// status was recorded.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

// CardinalityLimiter bounds the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already known or still fits in the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
