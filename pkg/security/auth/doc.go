/*
Package auth implements the gateway's authorization gate.

A request is authorized when the configured gateway key is empty, or when one
of the accepted headers carries exactly that key:

	X-Api-Key: <key>
	Authorization: Bearer <key>
	X-Proxy-Key: <key>

Comparison is constant time. The check is stateless:

	if auth.Check(snap.GlobalKey, r.Header) != auth.Authorized {
	    auth.WriteUnauthorized(w)
	    return
	}

IsGatewayCredential lets the forwarder drop headers that only carried the
gateway key so the key never reaches an upstream.

TokenMiddleware applies the same check to the control API using the
control.token setting.
*/
package auth
