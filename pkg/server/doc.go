// Package server runs the process's HTTP listeners.
//
// The gateway port and the control API each use one Server. Listen binds
// synchronously, so a port already in use is reported to the caller before
// anything is published, and then serves in the background:
//
//	srv := server.New(handler, server.Options{
//	    Name:              "gateway",
//	    ReadHeaderTimeout: cfg.Gateway.ReadHeaderTimeout,
//	    DrainTimeout:      cfg.Gateway.DrainTimeout,
//	})
//	if err := srv.Listen(":8080"); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// Shutdown drains in-flight requests for the drain timeout, then cancels the
// server's base context. Every request context derives from it, so upstream
// calls and streams still running are aborted and their log entries are
// finalized by the gateway handler.
package server
