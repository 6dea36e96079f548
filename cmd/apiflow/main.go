// ApiFlow is a local HTTP gateway for API services.
//
// It listens on one port, routes each request by longest base-path prefix to
// a service and forwards it along the service's upstream chain with retry
// and fallback. A loopback control API drives the gateway from the desktop
// shell and from this CLI.
//
// Usage:
//
//	# Start the control API and autostart the gateway from saved settings
//	apiflow run
//
//	# Start with a custom application config
//	apiflow run --config /etc/apiflow/apiflow.yaml
//
//	# Inspect a running instance
//	apiflow status
//	apiflow logs --limit 20
//	apiflow stats
//
//	# Export archived requests
//	apiflow archive export --format csv --since 2025-11-19T00:00:00Z
package main

func main() {
	Execute()
}
