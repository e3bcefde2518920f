package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Constants for in-memory tier configuration
const (
	defaultMaxEntries      = 10_000
	defaultMemoryTierTTL   = 5 * time.Minute
	defaultCleanupInterval = 30 * time.Second

	// share of entries the LRU policy drops in one eviction pass
	lruEvictFraction = 0.10
)

// MemoryTierConfig configures the bounded in-process tier
type MemoryTierConfig struct {
	MaxEntries      int
	DefaultTTL      time.Duration
	Policy          EvictionPolicy
	CleanupInterval time.Duration
}

// DefaultMemoryTierConfig returns the default in-memory tier configuration
func DefaultMemoryTierConfig() MemoryTierConfig {
	return MemoryTierConfig{
		MaxEntries:      defaultMaxEntries,
		DefaultTTL:      defaultMemoryTierTTL,
		Policy:          EvictionLRU,
		CleanupInterval: defaultCleanupInterval,
	}
}

// MemoryTier is the bounded in-process tier: TTL per entry, a hard entry
// ceiling, and LRU or FIFO eviction. It never suspends the caller.
type MemoryTier struct {
	mu      sync.Mutex
	entries map[string]*Entry
	config  MemoryTierConfig
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	// Stats for monitoring
	hits      int64
	misses    int64
	evictions int64
}

// MemoryTierOption is a functional option for configuring the tier
type MemoryTierOption func(*MemoryTier)

// WithMemoryTierConfig sets the tier configuration
func WithMemoryTierConfig(config MemoryTierConfig) MemoryTierOption {
	return func(t *MemoryTier) {
		t.config = config
	}
}

// WithMemoryTierLogger sets the logger for the tier
func WithMemoryTierLogger(logger *zap.Logger) MemoryTierOption {
	return func(t *MemoryTier) {
		t.logger = logger
	}
}

// NewMemoryTier creates a new bounded in-memory tier
func NewMemoryTier(opts ...MemoryTierOption) *MemoryTier {
	tier := &MemoryTier{
		entries: make(map[string]*Entry),
		config:  DefaultMemoryTierConfig(),
		logger:  zap.NewNop(),
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(tier)
	}

	if tier.config.MaxEntries <= 0 {
		tier.config.MaxEntries = defaultMaxEntries
	}
	if tier.config.DefaultTTL <= 0 {
		tier.config.DefaultTTL = defaultMemoryTierTTL
	}
	if !tier.config.Policy.IsValid() {
		tier.config.Policy = EvictionLRU
	}
	if tier.config.CleanupInterval <= 0 {
		tier.config.CleanupInterval = defaultCleanupInterval
	}

	// Background sweep for expired entries
	go tier.cleanupExpired()

	return tier
}

// Name identifies the tier in logs and stats
func (t *MemoryTier) Name() string {
	return "memory"
}

// Get retrieves an entry, purging it if expired
func (t *MemoryTier) Get(ctx context.Context, key string) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		atomic.AddInt64(&t.misses, 1)
		return nil, nil
	}

	now := time.Now()
	if entry.IsExpired(now) {
		// Logically absent; purge on touch
		delete(t.entries, key)
		atomic.AddInt64(&t.misses, 1)
		return nil, nil
	}

	entry.LastAccessedAt = now
	entry.AccessCount++
	atomic.AddInt64(&t.hits, 1)

	// Copy so callers never share the tier's entry
	copied := *entry
	copied.Value = append([]byte(nil), entry.Value...)
	return &copied, nil
}

// Set stores a value, evicting per policy when the ceiling is reached
func (t *MemoryTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.config.MaxEntries {
		t.evictLocked()
	}

	now := time.Now()
	t.entries[key] = &Entry{
		Key:            key,
		Value:          append([]byte(nil), value...),
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		SizeBytes:      len(value),
		Compressed:     isCompressed(value),
	}
	return nil
}

// Delete removes an entry
func (t *MemoryTier) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	return nil
}

// ClearByPrefix removes every entry whose key starts with prefix
func (t *MemoryTier) ClearByPrefix(ctx context.Context, prefix string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key := range t.entries {
		if strings.HasPrefix(key, prefix) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries currently held, expired ones included
// until the next sweep or touch
func (t *MemoryTier) Len(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries), nil
}

// Close stops the background sweep
func (t *MemoryTier) Close() error {
	if atomic.CompareAndSwapInt32(&t.stopped, 0, 1) {
		close(t.stopCh)
	}
	return nil
}

// Stats returns hit/miss/eviction counters
func (t *MemoryTier) Stats() (hits, misses, evictions int64) {
	return atomic.LoadInt64(&t.hits), atomic.LoadInt64(&t.misses), atomic.LoadInt64(&t.evictions)
}

// evictLocked frees room per the configured policy. Caller holds t.mu.
func (t *MemoryTier) evictLocked() {
	switch t.config.Policy {
	case EvictionFIFO:
		t.evictOldestLocked()
	default:
		t.evictLeastRecentLocked()
	}
}

// evictOldestLocked removes the single oldest entry by creation time
func (t *MemoryTier) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range t.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(t.entries, oldestKey)
		atomic.AddInt64(&t.evictions, 1)
		t.logger.Debug("Evicted oldest cache entry", zap.String("key", oldestKey))
	}
}

// evictLeastRecentLocked removes the least-recently-touched 10% of entries
func (t *MemoryTier) evictLeastRecentLocked() {
	count := int(float64(len(t.entries)) * lruEvictFraction)
	if count < 1 {
		count = 1
	}

	candidates := make([]*Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessedAt.Before(candidates[j].LastAccessedAt)
	})

	for i := 0; i < count && i < len(candidates); i++ {
		delete(t.entries, candidates[i].Key)
	}
	atomic.AddInt64(&t.evictions, int64(count))
	t.logger.Debug("Evicted least-recently-used cache entries", zap.Int("count", count))
}

// cleanupExpired periodically removes expired entries
func (t *MemoryTier) cleanupExpired() {
	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.doCleanup()
		}
	}
}

// doCleanup removes entries past their expiry
func (t *MemoryTier) doCleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range t.entries {
		if entry.IsExpired(now) {
			delete(t.entries, key)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("Cleaned up expired cache entries", zap.Int("removed", removed))
	}
}

// Ensure MemoryTier implements Tier
var _ Tier = (*MemoryTier)(nil)
