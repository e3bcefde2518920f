package counter

import (
	"context"
	"sync"
	"time"

	"github.com/aigw/backend/internal/domain/quota"
)

// memCounter is one periodic counter plus its period tag
type memCounter struct {
	usage       int64
	periodStart int64 // unix milliseconds
	expiresAt   time.Time
}

// MemoryStore implements quota.Store in process memory. All operations are
// serialized under one mutex, which gives the same linearizable semantics
// the Redis scripts provide across processes. Suitable for tests and
// single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
	windows  map[string][]time.Time
	now      func() time.Time
}

// MemoryStoreOption is a functional option for configuring the store
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the store's time source, mainly for tests
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-process counter store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		counters: make(map[string]*memCounter),
		windows:  make(map[string][]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// IncrementWithCeiling atomically applies period rollover, then increments
// unless the result would exceed ceiling
func (s *MemoryStore) IncrementWithCeiling(ctx context.Context, key string, amount, ceiling int64, periodStart time.Time, ttl time.Duration) (quota.IncrementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counter := s.counterLocked(key, periodStart, now)

	if ceiling >= 0 && counter.usage+amount > ceiling {
		counter.expiresAt = now.Add(ttl)
		return quota.IncrementResult{Allowed: false, Usage: counter.usage}, nil
	}

	counter.usage += amount
	counter.expiresAt = now.Add(ttl)
	return quota.IncrementResult{Allowed: true, Usage: counter.usage}, nil
}

// Peek returns current usage; an elapsed-period counter reads as zero
func (s *MemoryStore) Peek(ctx context.Context, key string, periodStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || counter.periodStart != periodStart.UnixMilli() {
		return 0, nil
	}
	if !counter.expiresAt.IsZero() && s.now().After(counter.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return counter.usage, nil
}

// counterLocked fetches the counter for key, resetting it when its stored
// period differs from the caller's. Caller holds s.mu.
func (s *MemoryStore) counterLocked(key string, periodStart time.Time, now time.Time) *memCounter {
	counter, ok := s.counters[key]
	expired := ok && !counter.expiresAt.IsZero() && now.After(counter.expiresAt)
	if !ok || expired || counter.periodStart != periodStart.UnixMilli() {
		counter = &memCounter{periodStart: periodStart.UnixMilli()}
		s.counters[key] = counter
	}
	return counter
}

// WindowIncrement records an event if the trailing window has room
func (s *MemoryStore) WindowIncrement(ctx context.Context, key string, limit int64, window time.Duration) (quota.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	events := s.pruneWindowLocked(key, now, window)

	if int64(len(events)) < limit {
		events = append(events, now)
		s.windows[key] = events

		result := quota.WindowResult{
			Allowed:   true,
			Remaining: limit - int64(len(events)),
			ResetAt:   events[0].Add(window),
		}
		return result, nil
	}

	// Zero-limit windows have no events to age out; a full retry window is
	// the honest hint
	oldestReset := now.Add(window)
	if len(events) > 0 {
		oldestReset = events[0].Add(window)
	}
	return quota.WindowResult{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: oldestReset.Sub(now),
		ResetAt:    oldestReset,
	}, nil
}

// WindowCount returns the number of events inside the window
func (s *MemoryStore) WindowCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pruneWindowLocked(key, s.now(), window))), nil
}

// pruneWindowLocked drops events older than now-window. Caller holds s.mu.
func (s *MemoryStore) pruneWindowLocked(key string, now time.Time, window time.Duration) []time.Time {
	events := s.windows[key]
	cutoff := now.Add(-window)

	kept := events[:0]
	for _, at := range events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(s.windows, key)
		return nil
	}
	s.windows[key] = kept
	return kept
}

// Close releases nothing; present to satisfy quota.Store
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements quota.Store
var _ quota.Store = (*MemoryStore)(nil)
