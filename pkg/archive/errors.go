package archive

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is wrapped by the ExportError of an unknown export
// format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// StorageError is a failed backend operation ("open", "store", "query",
// "delete", ...) on the "sqlite", "sqlite3" or "memory" backend.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// NewStorageError wraps cause.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// QueryError rejects a query before it reaches the backend.
type QueryError struct {
	Query *Query
	Cause error
}

// NewQueryError wraps cause for q.
func NewQueryError(q *Query, cause error) *QueryError {
	return &QueryError{Query: q, Cause: cause}
}

func (e *QueryError) Error() string { return "invalid archive query: " + e.Cause.Error() }

func (e *QueryError) Unwrap() error { return e.Cause }

// RetentionError is a failed prune under the given age policy.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

// NewRetentionError wraps cause.
func NewRetentionError(retentionDays int, cause error) *RetentionError {
	return &RetentionError{RetentionDays: retentionDays, Cause: cause}
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("archive prune (retention %dd): %v", e.RetentionDays, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// ExportError is a failed export of EntryCount entries.
type ExportError struct {
	Format     string
	EntryCount int
	Cause      error
}

// NewExportError wraps cause.
func NewExportError(format string, entryCount int, cause error) *ExportError {
	return &ExportError{Format: format, EntryCount: entryCount, Cause: cause}
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("archive %s export of %d entries: %v", e.Format, e.EntryCount, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }
