// Package gateway owns the lifecycle of the local gateway.
//
// A Manager binds the gateway port, publishes the routing snapshot built
// from a config.ProxyConfig and swaps it atomically on reload:
//
//	m := gateway.New(cfg, gateway.WithPersister(store))
//	if err := m.Start(ctx, proxyCfg); err != nil {
//	    var bindErr *gateway.BindError
//	    if errors.As(err, &bindErr) { ... }
//	}
//	defer m.Stop(context.Background())
//
// Each request captures the snapshot current at dispatch and keeps it until
// it completes, so a reload never changes routing for work in flight.
//
// The manager also owns the request log and the upstream statistics.
// Statistics survive restarts; the log is reset on every start. Subscribe
// delivers status updates for the tray, which TrayStatus renders.
package gateway
