package metrics

import (
	"time"

	"mercator-hq/apiflow/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks gateway requests.
//
// Metrics:
//   - <ns>_<sub>_requests_total{service,status_class}
//   - <ns>_<sub>_request_duration_seconds{service}
//   - <ns>_<sub>_active_requests
//   - <ns>_<sub>_auth_failures_total
//   - <ns>_<sub>_route_misses_total
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	active          prometheus.Gauge
	authFailures    prometheus.Counter
	routeMisses     prometheus.Counter
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of finalized gateway requests",
			},
			[]string{"service", "status_class"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of gateway requests including retries and fallbacks",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"service"},
		),

		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "active_requests",
				Help:      "Number of requests currently being forwarded",
			},
		),

		authFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auth_failures_total",
				Help:      "Requests rejected for a missing or wrong gateway key",
			},
		),

		routeMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "route_misses_total",
				Help:      "Requests whose path matched no enabled service",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.active,
		rm.authFailures,
		rm.routeMisses,
	)

	return rm
}

// RecordRequest records a finalized request.
func (rm *RequestMetrics) RecordRequest(service, statusClass string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(service, statusClass).Inc()
	rm.requestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// SetActive sets the in-flight gauge.
func (rm *RequestMetrics) SetActive(n int) {
	rm.active.Set(float64(n))
}
