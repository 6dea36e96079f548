package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/logstore"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEntry(id string, offset time.Duration, service string, status int) *logstore.Entry {
	e := logstore.NewEntry(id, base.Add(offset))
	e.Method = "POST"
	e.Path = "/openai/v1/chat"
	e.ListenPort = 8080
	e.ServiceName = service
	e.UpstreamID = service + "-primary"
	e.DurationMs = 42
	if status != 0 {
		e.SetStatus(status)
	}
	return &e
}

// backends returns one instance of every backend that runs in tests.
func backends(t *testing.T) map[string]archive.Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(&SQLiteConfig{
		Driver:      DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}

	stores := map[string]archive.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func seed(t *testing.T, s archive.Storage) {
	t.Helper()
	ctx := context.Background()
	entries := []*logstore.Entry{
		newEntry("a", 0, "openai", 200),
		newEntry("b", time.Minute, "openai", 502),
		newEntry("c", 2*time.Minute, "anthropic", 201),
		newEntry("d", 3*time.Minute, "anthropic", 0),
	}
	for _, e := range entries {
		if err := s.Store(ctx, e); err != nil {
			t.Fatalf("Store(%s) error = %v", e.ID, err)
		}
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newEntry("full", 0, "openai", 200)
			e.BasePath = "/openai"
			e.RouteKey = "primary"
			e.UpstreamURL = "https://api.openai.com/v1/chat"
			e.UpstreamLabel = "primary"
			e.IsStreaming = true
			e.ClientIP = "127.0.0.1"
			e.RequestHeaders = "content-type: application/json"
			e.RequestBody = `{"model":"x"}`
			e.ResponseHeaders = "content-type: text/event-stream"
			e.ResponseBody = "data: hi"
			e.RetryAction = logstore.RetryActionFallback
			e.Attempts = []logstore.Attempt{
				{UpstreamID: "a", UpstreamURL: "http://a", Status: 503, DurationMs: 5, Outcome: "fallback"},
				{UpstreamID: "b", UpstreamURL: "http://b", Status: 200, DurationMs: 7, Outcome: "success"},
			}

			if err := s.Store(ctx, e); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := s.Query(ctx, &archive.Query{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Query() returned %d entries, want 1", len(got))
			}
			r := got[0]
			if !r.StartedAt.Equal(e.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", r.StartedAt, e.StartedAt)
			}
			if r.StatusCode() != 200 || !r.IsStreaming || r.ClientIP != "127.0.0.1" {
				t.Errorf("entry = %+v", r)
			}
			if r.RequestBody != e.RequestBody || r.ResponseBody != e.ResponseBody {
				t.Errorf("bodies = %q / %q", r.RequestBody, r.ResponseBody)
			}
			if r.RetryAction != logstore.RetryActionFallback || len(r.Attempts) != 2 || r.Attempts[0].Status != 503 {
				t.Errorf("retry trail = %q %+v", r.RetryAction, r.Attempts)
			}
		})
	}
}

func TestStorage_NullStatus(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newEntry("x", 0, "openai", 0)
			e.Error = "connection refused"
			if err := s.Store(ctx, e); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := s.Query(ctx, &archive.Query{})
			if err != nil || len(got) != 1 {
				t.Fatalf("Query() = %v, %v", got, err)
			}
			if got[0].Status != nil {
				t.Errorf("Status = %d, want nil", *got[0].Status)
			}
			if got[0].Error != "connection refused" {
				t.Errorf("Error = %q", got[0].Error)
			}
		})
	}
}

func TestStorage_QueryFilters(t *testing.T) {
	since := base.Add(time.Minute)
	until := base.Add(2 * time.Minute)

	tests := []struct {
		name  string
		query archive.Query
		want  []string
	}{
		{name: "all newest first", query: archive.Query{}, want: []string{"d", "c", "b", "a"}},
		{name: "ascending", query: archive.Query{SortOrder: archive.SortAsc}, want: []string{"a", "b", "c", "d"}},
		{name: "service", query: archive.Query{ServiceName: "openai"}, want: []string{"b", "a"}},
		{name: "upstream", query: archive.Query{UpstreamID: "anthropic-primary"}, want: []string{"d", "c"}},
		{name: "success", query: archive.Query{Status: archive.StatusSuccess}, want: []string{"c", "a"}},
		{name: "error includes null status", query: archive.Query{Status: archive.StatusError}, want: []string{"d", "b"}},
		{name: "time range", query: archive.Query{Since: &since, Until: &until}, want: []string{"c", "b"}},
		{name: "port", query: archive.Query{ListenPort: 9090}, want: []string{}},
		{name: "limit", query: archive.Query{Limit: 2}, want: []string{"d", "c"}},
		{name: "offset", query: archive.Query{Limit: 2, Offset: 3}, want: []string{"a"}},
		{name: "offset past end", query: archive.Query{Offset: 10}, want: []string{}},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				q := tt.query
				got, err := s.Query(context.Background(), &q)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
					t.Errorf("Query() = %v, want %v", ids(got), tt.want)
				}
			})
		}
	}
}

func TestStorage_QueryValidation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Query(context.Background(), &archive.Query{SortOrder: "sideways"})
			var qerr *archive.QueryError
			if !errors.As(err, &qerr) {
				t.Errorf("Query() error = %v, want QueryError", err)
			}
		})
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s)

			n, err := s.Count(ctx, &archive.Query{ServiceName: "anthropic"})
			if err != nil || n != 2 {
				t.Fatalf("Count() = %d, %v, want 2", n, err)
			}

			cutoff := base.Add(time.Minute)
			deleted, err := s.Delete(ctx, &archive.Query{Until: &cutoff})
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if deleted != 2 {
				t.Errorf("Delete() = %d, want 2", deleted)
			}

			total, _ := s.Count(ctx, &archive.Query{})
			if total != 2 {
				t.Errorf("Count() after delete = %d, want 2", total)
			}
		})
	}
}

func TestStorage_StoreReplaces(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Store(ctx, newEntry("a", 0, "openai", 500))
			s.Store(ctx, newEntry("a", 0, "openai", 200))

			got, _ := s.Query(ctx, &archive.Query{})
			if len(got) != 1 || got[0].StatusCode() != 200 {
				t.Errorf("Query() = %+v, want single replaced entry", got)
			}
		})
	}
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	e := newEntry("a", 0, "openai", 200)
	s.Store(ctx, e)
	e.ServiceName = "changed"

	got, _ := s.Query(ctx, &archive.Query{})
	got[0].Path = "/mutated"

	again, _ := s.Query(ctx, &archive.Query{})
	if again[0].ServiceName != "openai" || again[0].Path != "/openai/v1/chat" {
		t.Errorf("stored entry mutated: %+v", again[0])
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.ArchiveConfig{Driver: DriverMemory}},
		{name: "sqlite creates directory", cfg: config.ArchiveConfig{
			Driver:      DriverSQLite,
			Path:        filepath.Join(dir, "nested", "logs.db"),
			BusyTimeout: time.Second,
		}},
		{name: "unknown driver", cfg: config.ArchiveConfig{Driver: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				var serr *archive.StorageError
				if !errors.As(err, &serr) {
					t.Errorf("Open() error = %v, want StorageError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			s.Close()
		})
	}
}

func ids(entries []*logstore.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
