// Package proxy forwards gateway requests to upstream providers.
//
// A Forwarder walks the priority-ordered chain of a resolved route. Each
// attempt ends in one Outcome:
//
//   - Deliver: the response is relayed to the client verbatim.
//   - Retry: a transient transport failure before response headers; the same
//     upstream is tried again, up to forwarder.max_attempts times.
//   - Fallback: retries are used up, the error is not transient, or the
//     upstream answered with a fallback status (5xx, and 429 when
//     FallbackPolicy.FallbackOn429 is set); the next upstream is tried.
//   - Abort: the client went away.
//   - Exhausted: the chain ended. A fallback-status response from the last
//     upstream is still relayed; a transport failure becomes 502.
//
// Responses whose content type is text/event-stream, application/x-ndjson or
// text/plain are flushed to the client after every chunk. Only a bounded
// prefix of each body is kept for the request log.
//
// # Basic Usage
//
//	fwd := proxy.NewForwarder(cfg.Forwarder, proxy.WithStats(stats))
//	res := fwd.Forward(r.Context(), w, &proxy.Request{
//	    Method:    r.Method,
//	    Header:    r.Header,
//	    Body:      body,
//	    RawQuery:  r.URL.RawQuery,
//	    Match:     match,
//	    GlobalKey: snap.GlobalKey,
//	    Client:    snap.Client,
//	})
//
// The Result carries the attempt trail, the retry action and the captured
// headers and bodies used to finalize the log entry.
package proxy
