// Package storage provides archive backends.
//
// Two SQLite drivers are supported: "sqlite" uses modernc.org/sqlite and
// needs no cgo, "sqlite3" uses github.com/mattn/go-sqlite3. "memory" keeps
// entries in process and is used by tests.
//
//	store, err := storage.Open(cfg.Archive)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Start times are stored as unix milliseconds. The connection pool holds a
// single connection so pragmas such as busy_timeout apply to every
// statement.
package storage
