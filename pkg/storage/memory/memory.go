// Package memory provides a bounded in-memory storage.EventStore.
// When the store is full, the oldest events are evicted. Suitable for
// development and for deployments that do not need durable audit history.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/werkzeug/pkg/storage"
)

// DefaultMaxSize bounds the store when no size is configured.
const DefaultMaxSize = 10000

// Store is a bounded in-memory event store.
type Store struct {
	mu      sync.RWMutex
	events  []*storage.Event
	maxSize int
}

// Ensure Store implements storage.EventStore at compile time.
var _ storage.EventStore = (*Store)(nil)

// New creates a memory store holding at most maxSize events.
func New(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{maxSize: maxSize}
}

// SaveEvent appends the event, evicting the oldest when full.
func (s *Store) SaveEvent(_ context.Context, ev *storage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	if len(s.events) > s.maxSize {
		// Drop the oldest. Copy to release the backing array slot.
		s.events = append([]*storage.Event(nil), s.events[1:]...)
	}
	return nil
}

// ListEvents returns up to limit events, newest first.
func (s *Store) ListEvents(_ context.Context, limit int) ([]*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*storage.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// HealthCheck always succeeds for the memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
