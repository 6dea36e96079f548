/*
Package security groups the access checks of the gateway and the control API.

# Gateway Key

When a ProxyConfig sets a global key, every gateway request must present it
before it is routed:

	if auth.Check(snap.GlobalKey, r.Header) != auth.Authorized {
		auth.WriteUnauthorized(w)
		return
	}

# Control Token

The control API accepts calls under /api only with the configured token:

	mw := auth.NewTokenMiddleware(cfg.Control.Token)
	r.Use(mw.Handle)
*/
package security
