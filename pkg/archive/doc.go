/*
Package archive keeps finalized request log entries beyond the in-memory ring.

The in-memory log holds the most recent requests only. When archiving is
enabled every finalized entry is also handed to an asynchronous recorder that
writes it to durable storage. The parts live in sub-packages:

  - storage: the SQLite backends (driver "sqlite" is pure Go, "sqlite3" uses
    cgo) and an in-memory backend for tests
  - recorder: the buffered writer registered as a log store observer; it
    drops entries with a warning when its queue is full
  - retention: age and count based pruning on a cron schedule
  - export: CSV and JSON writers used by the control API and the CLI

Queries filter by start time, service, listen port, upstream and outcome:

	since := time.Now().Add(-24 * time.Hour)
	entries, err := store.Query(ctx, &archive.Query{
	    Since:  &since,
	    Status: archive.StatusError,
	    Limit:  500,
	})
*/
package archive
