package metrics

import (
	"mercator-hq/apiflow/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks attempts against individual upstreams.
//
// Metrics:
//   - <ns>_<sub>_upstream_attempts_total{upstream,outcome}
//   - <ns>_<sub>_upstream_requests_total{upstream,result}
type UpstreamMetrics struct {
	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_attempts_total",
				Help:      "Upstream attempts by forwarder decision (deliver, retry, fallback, abort, exhausted)",
			},
			[]string{"upstream", "outcome"},
		),

		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_requests_total",
				Help:      "Upstream attempts by result (success, error)",
			},
			[]string{"upstream", "result"},
		),
	}

	registry.MustRegister(um.attempts, um.results)
	return um
}

// RecordAttempt counts one attempt decision.
func (um *UpstreamMetrics) RecordAttempt(upstream, outcome string) {
	um.attempts.WithLabelValues(upstream, outcome).Inc()
}

// RecordResult counts one attempt result.
func (um *UpstreamMetrics) RecordResult(upstream string, success bool) {
	result := "error"
	if success {
		result = "success"
	}
	um.results.WithLabelValues(upstream, result).Inc()
}
