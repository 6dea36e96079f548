// Package recorder archives finalized log entries asynchronously.
//
// Register Record as a log store observer:
//
//	rec := recorder.New(storage, &recorder.Config{AsyncBuffer: 1000})
//	logs.OnFinish(rec.Record)
//	defer rec.Close()
//
// Record never blocks the request path. When the queue is full the entry is
// dropped, a warning is logged and Config.OnDrop is called.
package recorder
