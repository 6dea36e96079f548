package routing

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// upstreamCounters holds the live counters of one upstream.
type upstreamCounters struct {
	label           atomic.Value // string
	totalRequests   atomic.Int64
	successCount    atomic.Int64
	errorCount      atomic.Int64
	totalDurationMs atomic.Int64
}

// AtomicUpstreamStats implements thread-safe per-upstream statistics using
// atomic operations. Counters survive gateway restarts and are only cleared
// by Reset.
type AtomicUpstreamStats struct {
	// upstreams maps upstream id to its counters
	upstreams sync.Map // map[string]*upstreamCounters

	// lastResetTime is when statistics were last reset
	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewAtomicUpstreamStats creates a new upstream statistics tracker.
func NewAtomicUpstreamStats() *AtomicUpstreamStats {
	return &AtomicUpstreamStats{
		lastResetTime: time.Now(),
	}
}

// Record adds one attempt outcome for an upstream. The label is kept from the
// first attempt that supplied one.
func (s *AtomicUpstreamStats) Record(upstreamID, label string, durationMs int64, success bool) {
	val, _ := s.upstreams.LoadOrStore(upstreamID, &upstreamCounters{})
	c := val.(*upstreamCounters)

	c.totalRequests.Add(1)
	c.totalDurationMs.Add(durationMs)
	if success {
		c.successCount.Add(1)
	} else {
		c.errorCount.Add(1)
	}
	if label != "" {
		c.label.CompareAndSwap(nil, label)
	}
}

// Snapshot returns a point-in-time copy of all counters, ordered by upstream id.
func (s *AtomicUpstreamStats) Snapshot() []UpstreamStats {
	var out []UpstreamStats
	s.upstreams.Range(func(key, value interface{}) bool {
		c := value.(*upstreamCounters)
		label, _ := c.label.Load().(string)
		out = append(out, UpstreamStats{
			UpstreamID:      key.(string),
			UpstreamLabel:   label,
			TotalRequests:   c.totalRequests.Load(),
			SuccessCount:    c.successCount.Load(),
			ErrorCount:      c.errorCount.Load(),
			TotalDurationMs: c.totalDurationMs.Load(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpstreamID < out[j].UpstreamID })
	return out
}

// LastResetTime returns when the statistics were last cleared.
func (s *AtomicUpstreamStats) LastResetTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResetTime
}

// Reset clears all counters.
func (s *AtomicUpstreamStats) Reset() {
	s.upstreams.Range(func(key, value interface{}) bool {
		s.upstreams.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}

// IsSuccess reports whether an upstream status counts as a success. Transport
// failures have no status and count as errors.
func IsSuccess(status int) bool {
	return status > 0 && status < 400
}
