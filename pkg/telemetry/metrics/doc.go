// Package metrics exports gateway metrics in the Prometheus format.
//
// The Collector subscribes to the request log (finalized entries and the
// active count), receives forwarder attempt outcomes and counts lifecycle
// events:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	store.OnFinish(collector.ObserveEntry)
//	store.OnActiveChange(collector.SetActive)
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Metric names are prefixed with the configured namespace and subsystem,
// apiflow_gateway_ by default:
//
//	apiflow_gateway_requests_total{service="openai",status_class="2xx"} 12
//	apiflow_gateway_upstream_attempts_total{upstream="primary",outcome="retry"} 1
//
// Upstream label values are capped; ids beyond the cap are reported as
// "other".
package metrics
