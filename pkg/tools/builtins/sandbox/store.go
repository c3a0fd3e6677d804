package sandbox

import (
	"sync"
	"time"
)

// Record represents one provisioned sandbox known to this process.
// Records are immutable after creation and live until process exit.
type Record struct {
	// Name is the caller-chosen registry key.
	Name string

	// Handle is the live remote session, exclusively owned by this record.
	Handle Handle

	// ID is the identifier assigned by the remote provisioning call.
	ID string

	// BaseURL is the public URL derived from ID at provisioning time.
	BaseURL string

	// CreatedAt is when provisioning succeeded.
	CreatedAt time.Time
}

// Store is a thread-safe name→Record registry with insertion-ordered
// listing. Duplicate names are last-write-wins: the new record replaces
// the old one under the original insertion position, and the displaced
// record is returned so its handle can be released.
//
// The Store has no persistence; the handles it owns are live in-process
// sessions that cannot survive a restart anyway.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
	}
}

// Put inserts or replaces the record under rec.Name and returns the
// displaced record, if any.
func (s *Store) Put(rec *Record) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[rec.Name]
	s.records[rec.Name] = rec
	if !existed {
		s.order = append(s.order, rec.Name)
	}
	return prev
}

// Get returns the record for name, if present.
func (s *Store) Get(name string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	return rec, ok
}

// List returns all records in insertion order.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.records[name])
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Drain removes and returns all records in insertion order. Used at
// shutdown to release every owned handle exactly once.
func (s *Store) Drain() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.records[name])
	}
	s.records = make(map[string]*Record)
	s.order = nil
	return out
}
