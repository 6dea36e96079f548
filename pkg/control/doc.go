// Package control serves the loopback HTTP API the CLI and the desktop shell
// use to drive the gateway: lifecycle calls, the request log, upstream
// statistics, saved settings, network info and archive export. Routes under
// /api require the control token when one is configured.
//
//	api := control.New(manager, settingsStore, control.Options{Token: cfg.Control.Token})
//	srv := server.New(api.Handler(), server.Options{Name: "control"})
//	if err := srv.Listen(cfg.Control.ListenAddress); err != nil {
//	    return err
//	}
//
// Client is the typed client for the same API.
package control
