package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/aigw/backend/internal/domain/quota"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Constants for the Redis counter store
const (
	defaultCounterTimeout = 1 * time.Second
	counterKeyPrefix      = "gw:counter:"
	windowKeyPrefix       = "gw:window:"
)

// incrWithCeilingScript performs period rollover, ceiling check and
// increment in one server-side step. Two racing callers can never both
// reset the period or jointly oversell the ceiling.
//
// KEYS[1] counter hash; ARGV: amount, ceiling (-1 = none), periodStart ms,
// ttl ms. Returns {allowed, usage}.
var incrWithCeilingScript = redis.NewScript(`
local period = redis.call('HGET', KEYS[1], 'period')
if not period or period ~= ARGV[3] then
	redis.call('HSET', KEYS[1], 'usage', 0, 'period', ARGV[3])
end
local usage = tonumber(redis.call('HGET', KEYS[1], 'usage') or '0')
local amount = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
if ceiling >= 0 and usage + amount > ceiling then
	return {0, usage}
end
usage = usage + amount
redis.call('HSET', KEYS[1], 'usage', usage)
return {1, usage}
`)

// peekScript reads usage; a counter tagged with an elapsed period reads as
// zero without being mutated.
//
// KEYS[1] counter hash; ARGV: periodStart ms. Returns usage.
var peekScript = redis.NewScript(`
local period = redis.call('HGET', KEYS[1], 'period')
if not period or period ~= ARGV[1] then
	return 0
end
return tonumber(redis.call('HGET', KEYS[1], 'usage') or '0')
`)

// windowScript maintains the sliding window in a sorted set: discard
// timestamps outside the trailing window, admit if the remainder is under
// the limit, and keep the key expiring with the window so idle identifiers
// self-clean.
//
// KEYS[1] window zset; ARGV: now ms, window ms, limit, member.
// Returns {allowed, remaining, retry-after ms, reset-at ms}.
var windowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
local reset = now + window
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
if allowed == 1 then
	return {1, limit - count - 1, 0, reset}
end
return {0, 0, reset - now, reset}
`)

// windowCountScript counts in-window events without recording one.
//
// KEYS[1] window zset; ARGV: now ms, window ms. Returns count.
var windowCountScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
return redis.call('ZCARD', KEYS[1])
`)

// RedisStore implements quota.Store on Redis. Every mutation runs as a Lua
// script, so the read-compute-write cycle is a single linearizable round
// trip shared correctly by all gateway instances.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisStoreOption is a functional option for configuring the store
type RedisStoreOption func(*RedisStore)

// WithRedisStoreTimeout bounds each counter operation
func WithRedisStoreTimeout(timeout time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.timeout = timeout
	}
}

// NewRedisStore creates a Redis-backed counter store with an existing client
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	store := &RedisStore{
		client:  client,
		timeout: defaultCounterTimeout,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// opContext detaches the operation from caller cancellation while keeping a
// bound of its own. An in-flight counter mutation either completes or times
// out as a unit; a caller that gave up must not leave the counter
// half-applied relative to the decision it never received.
func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// IncrementWithCeiling atomically increments the counter unless the result
// would exceed ceiling
func (s *RedisStore) IncrementWithCeiling(ctx context.Context, key string, amount, ceiling int64, periodStart time.Time, ttl time.Duration) (quota.IncrementResult, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := incrWithCeilingScript.Run(opCtx, s.client,
		[]string{counterKeyPrefix + key},
		amount, ceiling, periodStart.UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return quota.IncrementResult{}, fmt.Errorf("counter increment: %w", err)
	}
	if len(raw) != 2 {
		return quota.IncrementResult{}, fmt.Errorf("counter increment: unexpected reply %v", raw)
	}

	return quota.IncrementResult{
		Allowed: raw[0] == 1,
		Usage:   raw[1],
	}, nil
}

// Peek returns current usage without mutating the counter
func (s *RedisStore) Peek(ctx context.Context, key string, periodStart time.Time) (int64, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	usage, err := peekScript.Run(opCtx, s.client,
		[]string{counterKeyPrefix + key},
		periodStart.UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter peek: %w", err)
	}
	return usage, nil
}

// WindowIncrement records one event in the sliding window if it has room
func (s *RedisStore) WindowIncrement(ctx context.Context, key string, limit int64, window time.Duration) (quota.WindowResult, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now()
	raw, err := windowScript.Run(opCtx, s.client,
		[]string{windowKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return quota.WindowResult{}, fmt.Errorf("window increment: %w", err)
	}
	if len(raw) != 4 {
		return quota.WindowResult{}, fmt.Errorf("window increment: unexpected reply %v", raw)
	}

	return quota.WindowResult{
		Allowed:    raw[0] == 1,
		Remaining:  raw[1],
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
		ResetAt:    time.UnixMilli(raw[3]),
	}, nil
}

// WindowCount returns the number of events inside the window
func (s *RedisStore) WindowCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	count, err := windowCountScript.Run(opCtx, s.client,
		[]string{windowKeyPrefix + key},
		time.Now().UnixMilli(), window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("window count: %w", err)
	}
	return count, nil
}

// Close is a no-op; the Redis client is shared and closed by its owner
func (s *RedisStore) Close() error {
	return nil
}

// Ensure RedisStore implements quota.Store
var _ quota.Store = (*RedisStore)(nil)
