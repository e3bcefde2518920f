package cache

import (
	"context"
	"fmt"
	"time"
)

// EvictionPolicy selects how a bounded tier frees room at its ceiling
type EvictionPolicy string

const (
	// EvictionLRU removes the least-recently-touched 10% of entries
	EvictionLRU EvictionPolicy = "LRU"

	// EvictionFIFO removes the single oldest entry by creation time
	EvictionFIFO EvictionPolicy = "FIFO"
)

// String returns the string representation of EvictionPolicy
func (p EvictionPolicy) String() string {
	return string(p)
}

// IsValid returns true if the eviction policy is valid
func (p EvictionPolicy) IsValid() bool {
	switch p {
	case EvictionLRU, EvictionFIFO:
		return true
	}
	return false
}

// ParseEvictionPolicy parses a string into an EvictionPolicy
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	p := EvictionPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid eviction policy: %s", s)
	}
	return p, nil
}

// Entry is one cached value plus the metadata a tier tracks for it.
// Each tier owns its entries outright; an entry never crosses tiers by
// reference, so tiers expire independently.
type Entry struct {
	Key            string
	Value          []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	SizeBytes      int
	Compressed     bool
}

// IsExpired reports whether the entry is logically absent at now
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// RemainingTTL returns how long the entry stays valid from now, zero when
// already expired
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	if remaining := e.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Tier is one layer of the tiered cache. Values are opaque bytes; a tier
// never interprets them. A miss is (nil, nil), errors are infrastructure
// failures the coordinator decides how to absorb.
type Tier interface {
	// Name identifies the tier in logs and stats
	Name() string

	// Get returns the entry for key, or nil when absent or expired
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores value under key for ttl, replacing any previous entry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// ClearByPrefix removes every key starting with prefix and returns how
	// many entries were removed
	ClearByPrefix(ctx context.Context, prefix string) (int, error)

	// Len returns the number of live entries in the tier
	Len(ctx context.Context) (int, error)

	// Close releases any resources held by the tier
	Close() error
}
