package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aigw/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// default size above which values are gzipped before storage
const defaultCompressionThreshold = 1024

// TieredCache composes cache tiers, fastest first. Reads consult tiers in
// order and back-fill hits into faster tiers; writes go to the first tier
// synchronously and to slower tiers best-effort. A slower tier failing is
// logged and absorbed, so the cache degrades to local-only instead of
// failing requests.
type TieredCache struct {
	tiers                []Tier
	logger               *zap.Logger
	compressionThreshold int
	recordLookup         func(tier string, hit bool)

	// Stats for monitoring; one hit/miss slot per tier
	tierHits   []int64
	tierMisses []int64
}

// TieredCacheOption is a functional option for configuring the cache
type TieredCacheOption func(*TieredCache)

// WithTieredCacheLogger sets the logger for the cache
func WithTieredCacheLogger(logger *zap.Logger) TieredCacheOption {
	return func(c *TieredCache) {
		c.logger = logger
	}
}

// WithCompressionThreshold sets the value size, in bytes, above which values
// are compressed before storage. Zero disables compression.
func WithCompressionThreshold(threshold int) TieredCacheOption {
	return func(c *TieredCache) {
		c.compressionThreshold = threshold
	}
}

// WithLookupRecorder registers a callback invoked once per tier consulted
// on every read, so callers can publish hit/miss metrics without the cache
// depending on a metrics backend.
func WithLookupRecorder(record func(tier string, hit bool)) TieredCacheOption {
	return func(c *TieredCache) {
		c.recordLookup = record
	}
}

// NewTieredCache creates a coordinator over the given tiers, fastest first.
// At least one tier is required.
func NewTieredCache(tiers []Tier, opts ...TieredCacheOption) *TieredCache {
	if len(tiers) == 0 {
		panic("cache: NewTieredCache requires at least one tier")
	}

	cache := &TieredCache{
		tiers:                tiers,
		logger:               zap.NewNop(),
		compressionThreshold: defaultCompressionThreshold,
		tierHits:             make([]int64, len(tiers)),
		tierMisses:           make([]int64, len(tiers)),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Get returns the value for key and whether it was found. A hit in a slower
// tier is back-filled into every faster tier with a TTL capped at the
// value's remaining TTL, so back-fill never extends a stale value's life.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	failures := 0

	for i, tier := range c.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			failures++
			c.logger.Warn("Cache tier read failed",
				zap.String("tier", tier.Name()),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if entry == nil {
			atomic.AddInt64(&c.tierMisses[i], 1)
			if c.recordLookup != nil {
				c.recordLookup(tier.Name(), false)
			}
			continue
		}

		atomic.AddInt64(&c.tierHits[i], 1)
		if c.recordLookup != nil {
			c.recordLookup(tier.Name(), true)
		}
		c.backfill(ctx, key, entry, i)

		value, err := decompress(entry.Value)
		if err != nil {
			c.logger.Error("Failed to decompress cache value",
				zap.String("tier", tier.Name()),
				zap.String("key", key),
				zap.Error(err))
			return nil, false, err
		}
		return value, true, nil
	}

	if failures == len(c.tiers) {
		return nil, false, shared.ErrStorageUnavailable
	}
	return nil, false, nil
}

// backfill writes a hit from tier hitIndex into all faster tiers
func (c *TieredCache) backfill(ctx context.Context, key string, entry *Entry, hitIndex int) {
	if hitIndex == 0 {
		return
	}

	remaining := entry.RemainingTTL(time.Now())
	if remaining <= 0 {
		return
	}

	for i := 0; i < hitIndex; i++ {
		if err := c.tiers[i].Set(ctx, key, entry.Value, remaining); err != nil {
			c.logger.Warn("Cache back-fill failed",
				zap.String("tier", c.tiers[i].Name()),
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

// Set writes the value to every tier: the first (fastest, local) tier
// synchronously, the rest best-effort. Values above the compression
// threshold are compressed transparently.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := value
	if c.compressionThreshold > 0 && len(value) >= c.compressionThreshold {
		compressed, err := compress(value)
		if err != nil {
			return err
		}
		// Compression can inflate small incompressible payloads
		if len(compressed) < len(value) {
			stored = compressed
		}
	}

	if err := c.tiers[0].Set(ctx, key, stored, ttl); err != nil {
		return err
	}

	for _, tier := range c.tiers[1:] {
		if err := tier.Set(ctx, key, stored, ttl); err != nil {
			c.logger.Warn("Cache tier write failed, local tier remains authoritative",
				zap.String("tier", tier.Name()),
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return nil
}

// Delete removes the key from every tier
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			c.logger.Warn("Cache tier delete failed",
				zap.String("tier", tier.Name()),
				zap.String("key", key),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ClearByPrefix removes matching keys from every tier and returns the
// largest per-tier removal count (tiers hold independent copies)
func (c *TieredCache) ClearByPrefix(ctx context.Context, prefix string) (int, error) {
	var firstErr error
	maxRemoved := 0
	for _, tier := range c.tiers {
		removed, err := tier.ClearByPrefix(ctx, prefix)
		if err != nil {
			c.logger.Warn("Cache tier clear failed",
				zap.String("tier", tier.Name()),
				zap.String("prefix", prefix),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if removed > maxRemoved {
			maxRemoved = removed
		}
	}
	return maxRemoved, firstErr
}

// TierStats reports hits and misses for one tier
type TierStats struct {
	Tier   string `json:"tier"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// Stats returns per-tier hit/miss counters, fastest tier first
func (c *TieredCache) Stats() []TierStats {
	stats := make([]TierStats, len(c.tiers))
	for i, tier := range c.tiers {
		stats[i] = TierStats{
			Tier:   tier.Name(),
			Hits:   atomic.LoadInt64(&c.tierHits[i]),
			Misses: atomic.LoadInt64(&c.tierMisses[i]),
		}
	}
	return stats
}

// Close closes every tier
func (c *TieredCache) Close() error {
	var lastErr error
	for _, tier := range c.tiers {
		if err := tier.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
