// Package memory provides an in-process storage.Store with TTL support.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/analyticbot/apiclient/storage"
	"github.com/analyticbot/apiclient/storage/internal/tracking"
)

const backendName = "memory"

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is a mutex-guarded map. Expired entries are dropped lazily on read.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  atomic.Bool
	now     func() time.Time
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a copy of the stored value or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	start := time.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if ok && e.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, still := s.entries[key]; still && cur.expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		ok = false
	}

	tracking.RecordOperation(ctx, backendName, tracking.OpGet, time.Since(start), !ok, nil)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. ttl of 0 means no expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if ttl < 0 {
		return storage.ErrInvalidTTL
	}
	start := time.Now()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	tracking.RecordOperation(ctx, backendName, tracking.OpSet, time.Since(start), false, nil)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	start := time.Now()

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	tracking.RecordOperation(ctx, backendName, tracking.OpDelete, time.Since(start), false, nil)
	return nil
}

// Health reports ErrClosed after Close and nil otherwise.
func (s *Store) Health(_ context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close drops all entries. Close is idempotent but reports ErrClosed on repeat calls.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return storage.ErrClosed
	}
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

var _ storage.Store = (*Store)(nil)
