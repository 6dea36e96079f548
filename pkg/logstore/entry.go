package logstore

import "time"

// TimestampLayout is the display format of Entry.Timestamp, in local time.
const TimestampLayout = "2006-01-02 15:04:05"

// RetryAction values recorded on an entry.
const (
	RetryActionRetry    = "retry"
	RetryActionFallback = "fallback"
)

// Entry is one request record. Optional text fields are empty (and omitted
// from JSON) when unknown; Status is nil while the request is in flight and
// when no upstream produced a response.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	StartedAt time.Time `json:"startedAt"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`

	ListenPort  int    `json:"listenPort"`
	ServiceName string `json:"serviceName,omitempty"`
	BasePath    string `json:"basePath,omitempty"`

	// RouteKey identifies the upstream for display; it mirrors UpstreamLabel
	// when a label is configured.
	RouteKey      string `json:"routeKey,omitempty"`
	UpstreamID    string `json:"upstreamId,omitempty"`
	UpstreamURL   string `json:"upstreamUrl,omitempty"`
	UpstreamLabel string `json:"upstreamLabel,omitempty"`

	Status      *int   `json:"status"`
	DurationMs  int64  `json:"durationMs"`
	Error       string `json:"error,omitempty"`
	IsStreaming bool   `json:"isStreaming"`
	InFlight    bool   `json:"inFlight"`
	ClientIP    string `json:"clientIp,omitempty"`

	RequestHeaders  string `json:"requestHeaders,omitempty"`
	RequestBody     string `json:"requestBody,omitempty"`
	ResponseHeaders string `json:"responseHeaders,omitempty"`
	ResponseBody    string `json:"responseBody,omitempty"`

	// RetryAction is "retry", "fallback" or empty.
	RetryAction string    `json:"retryAction,omitempty"`
	Attempts    []Attempt `json:"attempts,omitempty"`
}

// Attempt is one element of the retry/fallback trail.
type Attempt struct {
	UpstreamID  string `json:"upstreamId"`
	UpstreamURL string `json:"upstreamUrl"`
	Status      int    `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"durationMs"`
	Outcome     string `json:"outcome"`
}

// NewEntry returns an entry stamped with the given start time.
func NewEntry(id string, started time.Time) Entry {
	return Entry{
		ID:        id,
		StartedAt: started,
		Timestamp: started.Local().Format(TimestampLayout),
	}
}

// SetStatus records the response status.
func (e *Entry) SetStatus(status int) {
	e.Status = &status
}

// StatusCode returns the recorded status, or 0 when none.
func (e *Entry) StatusCode() int {
	if e.Status == nil {
		return 0
	}
	return *e.Status
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	out := e
	if e.Status != nil {
		s := *e.Status
		out.Status = &s
	}
	if e.Attempts != nil {
		out.Attempts = append([]Attempt(nil), e.Attempts...)
	}
	return out
}
