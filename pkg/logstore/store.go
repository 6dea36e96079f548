package logstore

import (
	"sync"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 200

// Store is a bounded, thread-safe ring buffer of entries. It also owns the
// active request counter: Begin increments it and Finish decrements it exactly
// once per begun entry, inside the same critical section as the entry write.
type Store struct {
	mu sync.Mutex

	capacity int
	buf      []*Entry // ring, oldest at head
	head     int
	count    int
	index    map[string]*Entry

	// pending holds begun entries until Finish, even after eviction or Clear
	pending map[string]*Entry
	active  int

	onFinish []func(Entry)
	onActive []func(int)
}

// New creates a store holding at most capacity entries.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		buf:      make([]*Entry, capacity),
		index:    make(map[string]*Entry),
		pending:  make(map[string]*Entry),
	}
}

// OnFinish registers an observer that receives a copy of every finalized
// entry. Observers run outside the store lock and must not block.
func (s *Store) OnFinish(fn func(Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = append(s.onFinish, fn)
}

// OnActiveChange registers an observer of the active request count.
func (s *Store) OnActiveChange(fn func(active int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActive = append(s.onActive, fn)
}

// Append stores an entry that is final at creation, such as a 401 or 404.
func (s *Store) Append(e Entry) {
	e.InFlight = false

	s.mu.Lock()
	s.insertLocked(&e)
	final := e.Clone()
	observers := s.onFinish
	s.mu.Unlock()

	for _, fn := range observers {
		fn(final)
	}
}

// Begin stores a pending entry and increments the active counter.
func (s *Store) Begin(e Entry) {
	e.InFlight = true
	e.Status = nil

	s.mu.Lock()
	s.insertLocked(&e)
	if _, dup := s.pending[e.ID]; !dup {
		s.active++
	}
	s.pending[e.ID] = s.index[e.ID]
	active := s.active
	observers := s.onActive
	s.mu.Unlock()

	for _, fn := range observers {
		fn(active)
	}
}

// Update applies fn to the entry with the given id. It reports whether the
// entry was found. fn runs under the store lock and must not block.
func (s *Store) Update(id string, fn func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookupLocked(id)
	if e == nil {
		return false
	}
	fn(e)
	return true
}

// Finish applies fn to a pending entry, marks it final and decrements the
// active counter. Finishing an id that is not pending is a no-op returning
// false, so a second Finish never decrements twice.
func (s *Store) Finish(id string, fn func(*Entry)) bool {
	s.mu.Lock()
	e, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, id)
	if fn != nil {
		fn(e)
	}
	e.InFlight = false
	s.active--
	active := s.active
	final := e.Clone()
	finishObservers := s.onFinish
	activeObservers := s.onActive
	s.mu.Unlock()

	for _, fn := range finishObservers {
		fn(final)
	}
	for _, fn := range activeObservers {
		fn(active)
	}
	return true
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookupLocked(id)
	if e == nil {
		return Entry{}, false
	}
	return e.Clone(), true
}

// Query returns up to limit entries, most recent first. A limit of zero or
// less returns every entry.
func (s *Store) Query(limit int) []Entry {
	return s.query(limit, func(*Entry) bool { return true })
}

// QueryPort is like Query but only returns entries recorded on port.
func (s *Store) QueryPort(port, limit int) []Entry {
	return s.query(limit, func(e *Entry) bool { return e.ListenPort == port })
}

func (s *Store) query(limit int, keep func(*Entry) bool) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]Entry, 0, limit)
	for i := s.count - 1; i >= 0 && len(out) < limit; i-- {
		e := s.buf[(s.head+i)%s.capacity]
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Clear removes every stored entry. Requests still in flight keep counting
// as active until they finish.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Reset clears entries, forgets pending requests and zeroes the counter. It
// is used when a new gateway lifecycle starts.
func (s *Store) Reset() {
	s.mu.Lock()
	s.clearLocked()
	s.pending = make(map[string]*Entry)
	s.active = 0
	observers := s.onActive
	s.mu.Unlock()

	for _, fn := range observers {
		fn(0)
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Cap returns the ring capacity.
func (s *Store) Cap() int {
	return s.capacity
}

// Active returns the number of begun entries not yet finished.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) insertLocked(e *Entry) {
	if old, ok := s.index[e.ID]; ok {
		*old = *e
		return
	}

	if s.count == s.capacity {
		evicted := s.buf[s.head]
		delete(s.index, evicted.ID)
		s.buf[s.head] = e
		s.head = (s.head + 1) % s.capacity
	} else {
		s.buf[(s.head+s.count)%s.capacity] = e
		s.count++
	}
	s.index[e.ID] = e
}

func (s *Store) lookupLocked(id string) *Entry {
	if e, ok := s.index[id]; ok {
		return e
	}
	return s.pending[id]
}

func (s *Store) clearLocked() {
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.head = 0
	s.count = 0
	s.index = make(map[string]*Entry)
}
