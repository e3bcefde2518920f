package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Constants for the Redis tier
const (
	defaultRedisReadTimeout  = 200 * time.Millisecond
	defaultRedisWriteTimeout = 1 * time.Second
	redisScanBatch           = 100
)

// RedisTierConfig configures the distributed tier
type RedisTierConfig struct {
	KeyPrefix    string
	DefaultTTL   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisTierConfig returns the default Redis tier configuration
func DefaultRedisTierConfig() RedisTierConfig {
	return RedisTierConfig{
		KeyPrefix:    "gw:cache:",
		DefaultTTL:   5 * time.Minute,
		ReadTimeout:  defaultRedisReadTimeout,
		WriteTimeout: defaultRedisWriteTimeout,
	}
}

// RedisTier is the shared distributed tier. Every call is bounded by a
// configured timeout so a down Redis never blocks a request; connectivity is
// retried lazily by the client on the next access.
type RedisTier struct {
	client *redis.Client
	config RedisTierConfig
	logger *zap.Logger
}

// NewRedisTier creates a Redis-backed tier with an existing client.
// An unreachable Redis at construction is logged, not fatal: the coordinator
// keeps serving from faster tiers and this tier recovers on its own.
func NewRedisTier(client *redis.Client, config RedisTierConfig, logger *zap.Logger) *RedisTier {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "gw:cache:"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaultRedisReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultRedisWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tier := &RedisTier{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis tier unreachable at startup, continuing degraded", zap.Error(err))
	}

	return tier
}

// Name identifies the tier in logs and stats
func (t *RedisTier) Name() string {
	return "redis"
}

func (t *RedisTier) key(key string) string {
	return t.config.KeyPrefix + key
}

// Get retrieves an entry together with its remaining TTL
func (t *RedisTier) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.ReadTimeout)
	defer cancel()

	pipe := t.client.Pipeline()
	getCmd := pipe.Get(ctx, t.key(key))
	ttlCmd := pipe.PTTL(ctx, t.key(key))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis tier get: %w", err)
	}

	value, err := getCmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis tier get: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(t.config.DefaultTTL)
	if ttl := ttlCmd.Val(); ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	return &Entry{
		Key:            key,
		Value:          value,
		ExpiresAt:      expiresAt,
		LastAccessedAt: now,
		SizeBytes:      len(value),
		Compressed:     isCompressed(value),
	}, nil
}

// Set stores a value with TTL
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.WriteTimeout)
	defer cancel()

	if err := t.client.Set(ctx, t.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis tier set: %w", err)
	}
	return nil
}

// Delete removes a key
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.WriteTimeout)
	defer cancel()

	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("redis tier delete: %w", err)
	}
	return nil
}

// ClearByPrefix removes every key starting with prefix using SCAN batches
func (t *RedisTier) ClearByPrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.WriteTimeout)
	defer cancel()

	var cursor uint64
	removed := 0
	pattern := t.key(prefix) + "*"

	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, redisScanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("redis tier scan: %w", err)
		}
		if len(keys) > 0 {
			deleted, err := t.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis tier delete batch: %w", err)
			}
			removed += int(deleted)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Len counts the tier's keys by scanning its prefix
func (t *RedisTier) Len(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.ReadTimeout)
	defer cancel()

	var cursor uint64
	count := 0
	pattern := t.config.KeyPrefix + "*"

	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, redisScanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("redis tier scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Close is a no-op; the Redis client is shared and closed by its owner
func (t *RedisTier) Close() error {
	return nil
}

// Ensure RedisTier implements Tier
var _ Tier = (*RedisTier)(nil)
