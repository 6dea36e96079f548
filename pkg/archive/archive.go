package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"mercator-hq/apiflow/pkg/logstore"
)

const (
	// DefaultLimit is the number of entries returned when a query sets none.
	DefaultLimit = 100

	// MaxLimit is the most entries a single query may return.
	MaxLimit = 10000
)

// Status filters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sort orders by start time.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Query selects archived entries.
type Query struct {
	// Since and Until bound the request start time, both inclusive.
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	ServiceName string `json:"serviceName,omitempty"`
	ListenPort  int    `json:"listenPort,omitempty"`
	UpstreamID  string `json:"upstreamId,omitempty"`

	// Status is "success" (a status below 400) or "error" (no status, or 400
	// and above). Empty matches both.
	Status string `json:"status,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" or "desc" by start time. Default "desc".
	SortOrder string `json:"sortOrder,omitempty"`
}

// Matches reports whether e satisfies every filter of q. Pagination and
// sorting are not considered.
func (q *Query) Matches(e *logstore.Entry) bool {
	if q.Since != nil && e.StartedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && e.StartedAt.After(*q.Until) {
		return false
	}
	if q.ServiceName != "" && e.ServiceName != q.ServiceName {
		return false
	}
	if q.ListenPort != 0 && e.ListenPort != q.ListenPort {
		return false
	}
	if q.UpstreamID != "" && e.UpstreamID != q.UpstreamID {
		return false
	}
	switch q.Status {
	case StatusSuccess:
		return IsSuccess(e)
	case StatusError:
		return !IsSuccess(e)
	}
	return true
}

// IsSuccess reports whether an entry ended with a status below 400.
func IsSuccess(e *logstore.Entry) bool {
	return e.Status != nil && *e.Status < 400
}

// Validate checks query parameters.
func Validate(q *Query) error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.ListenPort < 0 || q.ListenPort > 65535 {
		return NewQueryError(q, fmt.Errorf("invalid listen port: %d", q.ListenPort))
	}
	switch q.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	switch q.Status {
	case "", StatusSuccess, StatusError:
	default:
		return NewQueryError(q, fmt.Errorf("invalid status: %s (must be 'success' or 'error')", q.Status))
	}
	if q.Since != nil && q.Until != nil && q.Since.After(*q.Until) {
		return NewQueryError(q, fmt.Errorf("since must be before until"))
	}
	return nil
}

// ApplyDefaults fills the default limit and sort order.
func ApplyDefaults(q *Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
}

// Storage is an archive backend. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists one finalized entry. Storing an id again replaces it.
	Store(ctx context.Context, e *logstore.Entry) error

	// Query returns the entries matching q.
	Query(ctx context.Context, q *Query) ([]*logstore.Entry, error)

	// Count returns the number of entries matching q's filters.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes the entries matching q's filters and returns how many
	// were removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	Close() error
}

// Exporter writes entries in one file format.
type Exporter interface {
	Export(ctx context.Context, entries []*logstore.Entry, w io.Writer) error
	ContentType() string
}
