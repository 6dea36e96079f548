package metrics

import (
	"mercator-hq/apiflow/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks lifecycle and archive events.
//
// Metrics:
//   - <ns>_<sub>_config_reloads_total{result}
//   - <ns>_<sub>_archive_dropped_total
type GatewayMetrics struct {
	reloads        *prometheus.CounterVec
	archiveDropped prometheus.Counter
}

// NewGatewayMetrics creates and registers lifecycle metrics.
func NewGatewayMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GatewayMetrics {
	gm := &GatewayMetrics{
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "config_reloads_total",
				Help:      "Gateway starts and reloads by result",
			},
			[]string{"result"},
		),

		archiveDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archive_dropped_total",
				Help:      "Log entries dropped because the archive queue was full",
			},
		),
	}

	registry.MustRegister(gm.reloads, gm.archiveDropped)
	return gm
}
