package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/config"
)

// DriverMemory selects MemoryStorage.
const DriverMemory = "memory"

// Open returns the backend selected by cfg.Driver. The database directory is
// created when missing.
func Open(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStorage(), nil
	case "", DriverSQLite, DriverSQLite3:
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, archive.NewStorageError(cfg.Driver, "mkdir", err)
			}
		}
		return NewSQLiteStorage(&SQLiteConfig{
			Driver:      cfg.Driver,
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, archive.NewStorageError(cfg.Driver, "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
}
