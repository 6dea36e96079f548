package routing

import "sync"

// leases counts the requests dispatched on a snapshot.
type leases struct {
	mu      sync.Mutex
	active  int
	retired bool
	drained func()
}

// Acquire marks a request as running on s. Every Acquire must be paired
// with a Release.
func (s *Snapshot) Acquire() {
	s.leases.mu.Lock()
	s.leases.active++
	s.leases.mu.Unlock()
}

// Release ends a request started with Acquire. Once s is retired, the last
// Release runs the drained callback.
func (s *Snapshot) Release() {
	s.leases.mu.Lock()
	s.leases.active--
	fire := s.leases.retired && s.leases.active == 0
	drained := s.leases.drained
	s.leases.mu.Unlock()
	if fire && drained != nil {
		drained()
	}
}

// Retire marks s as superseded. drained runs now when no request holds s,
// and again each time the count of running requests returns to zero.
func (s *Snapshot) Retire(drained func()) {
	s.leases.mu.Lock()
	s.leases.retired = true
	s.leases.drained = drained
	fire := s.leases.active == 0
	s.leases.mu.Unlock()
	if fire && drained != nil {
		drained()
	}
}

// Active returns the number of requests holding s.
func (s *Snapshot) Active() int {
	s.leases.mu.Lock()
	defer s.leases.mu.Unlock()
	return s.leases.active
}
