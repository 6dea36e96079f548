package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/logstore"
)

// MemoryStorage keeps archived entries in a map. It is meant for tests and
// for running with archiving on but no database.
type MemoryStorage struct {
	entries map[string]*logstore.Entry
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]*logstore.Entry)}
}

// Store saves a copy of e.
func (s *MemoryStorage) Store(_ context.Context, e *logstore.Entry) error {
	c := e.Clone()
	s.mu.Lock()
	s.entries[e.ID] = &c
	s.mu.Unlock()
	return nil
}

// Query returns copies of the matching entries, sorted by start time.
func (s *MemoryStorage) Query(_ context.Context, q *archive.Query) ([]*logstore.Entry, error) {
	if err := archive.Validate(q); err != nil {
		return nil, err
	}
	query := *q
	archive.ApplyDefaults(&query)

	s.mu.RLock()
	results := make([]*logstore.Entry, 0)
	for _, e := range s.entries {
		if query.Matches(e) {
			c := e.Clone()
			results = append(results, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if query.SortOrder == archive.SortAsc {
			return results[i].StartedAt.Before(results[j].StartedAt)
		}
		return results[i].StartedAt.After(results[j].StartedAt)
	})

	if query.Offset >= len(results) {
		return []*logstore.Entry{}, nil
	}
	results = results[query.Offset:]
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of matching entries.
func (s *MemoryStorage) Count(_ context.Context, q *archive.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if q.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Delete removes the matching entries.
func (s *MemoryStorage) Delete(_ context.Context, q *archive.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if q.Matches(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Close drops every entry.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]*logstore.Entry)
	s.mu.Unlock()
	return nil
}
