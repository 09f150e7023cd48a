// Package cache provides the engine's optional read-through result cache.
// Entries are immutable once written and keyed by polygon/date-range/source,
// so a duplicate computation can only ever produce the same value: a write
// race resolves as first writer wins and later writers discard their result.
// Singleflight collapses concurrent computations for one key, giving the
// compute-once guarantee independently of retry and backoff logic.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Store is a bounded key→immutable-value cache with a compute-once loader.
type Store[V any] struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]entry[V]
	order   []string // insertion order, oldest first
}

type entry[V any] struct {
	value   V
	written time.Time
}

// New creates a store holding up to maxEntries values for at most ttl each.
// A zero ttl disables expiry.
func New[V any](maxEntries int, ttl time.Duration, clock clockwork.Clock) *Store[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store[V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]entry[V]),
	}
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Concurrent callers for the same key share one computation. Compute
// errors are returned to every waiter and never cached. The second return
// reports whether the value came from the cache.
func (s *Store[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, bool, error) {
	if v, ok := s.get(key); ok {
		return v, true, nil
	}

	result, err, shared := s.group.Do(key, func() (any, error) {
		if v, ok := s.get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		s.put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return result.(V), shared, nil
}

// Len reports the number of live entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.ttl > 0 && s.clock.Now().Sub(e.written) > s.ttl {
		delete(s.entries, key)
		s.dropOrder(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (s *Store[V]) put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First writer wins: an existing entry is never overwritten.
	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = entry[V]{value: value, written: s.clock.Now()}
	s.order = append(s.order, key)

	for s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
}

// dropOrder removes one occurrence of key from the insertion order.
// Caller holds the lock.
func (s *Store[V]) dropOrder(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
