// Package logstore keeps a bounded, most-recent-first record of gateway
// requests.
//
// Requests that are rejected before forwarding are recorded with Append.
// Forwarded requests are recorded with Begin when dispatch starts and Finish
// when the response is complete, which also maintains the active request
// count:
//
//	store.Begin(entry)
//	defer store.Finish(entry.ID, func(e *logstore.Entry) {
//	    e.SetStatus(status)
//	    e.DurationMs = elapsed
//	})
//
// Observers registered with OnFinish see every finalized entry; the archive
// and metrics subscribe this way.
package logstore
