package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/redis/go-redis/v9"
)

// Constants for the Redis budget store
const (
	budgetKeyPrefix = "gw:budget:"

	// budget hashes outlive their period by a margin, then self-clean
	budgetKeyTTL = 62 * 24 * time.Hour
)

// budgetRolloverLua resets a budget hash whose stored period has elapsed.
// Shared preamble for every budget script: spend and alert tracking go to
// zero, EXCEEDED reverts to ACTIVE, suspension sticks.
const budgetRolloverLua = `
local function rollover(key, period)
	local stored = redis.call('HGET', key, 'period')
	if not stored or stored ~= period then
		local status = redis.call('HGET', key, 'status')
		if status ~= 'SUSPENDED' then
			status = 'ACTIVE'
		end
		redis.call('HSET', key, 'spend', 0, 'period', period, 'status', status, 'alerted', '0')
	end
end
`

// addSpendScript increments spend and flips ACTIVE to EXCEEDED past the
// limit in one step.
//
// KEYS[1] budget hash; ARGV: amount micros, limit micros (-1 = none),
// periodStart ms, ttl ms. Returns {spend, status, alerted}.
var addSpendScript = redis.NewScript(budgetRolloverLua + `
rollover(KEYS[1], ARGV[3])
local spend = redis.call('HINCRBY', KEYS[1], 'spend', ARGV[1])
local status = redis.call('HGET', KEYS[1], 'status')
local limit = tonumber(ARGV[2])
if limit >= 0 and spend > limit and status == 'ACTIVE' then
	status = 'EXCEEDED'
	redis.call('HSET', KEYS[1], 'status', status)
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {spend, status, redis.call('HGET', KEYS[1], 'alerted')}
`)

// budgetSnapshotScript reads the hash with rollover applied.
//
// KEYS[1] budget hash; ARGV: periodStart ms. Returns {spend, status, alerted}.
var budgetSnapshotScript = redis.NewScript(budgetRolloverLua + `
rollover(KEYS[1], ARGV[1])
return {
	tonumber(redis.call('HGET', KEYS[1], 'spend') or '0'),
	redis.call('HGET', KEYS[1], 'status'),
	redis.call('HGET', KEYS[1], 'alerted'),
}
`)

// markAlertedScript advances the alerted high-water mark; returns 1 only
// for the first caller per period per threshold.
//
// KEYS[1] budget hash; ARGV: threshold percent, periodStart ms.
var markAlertedScript = redis.NewScript(budgetRolloverLua + `
rollover(KEYS[1], ARGV[2])
local alerted = tonumber(redis.call('HGET', KEYS[1], 'alerted') or '0')
local threshold = tonumber(ARGV[1])
if threshold > alerted then
	redis.call('HSET', KEYS[1], 'alerted', ARGV[1])
	return 1
end
return 0
`)

// setStatusScript applies an administrative status change.
//
// KEYS[1] budget hash; ARGV: status, periodStart ms.
var setStatusScript = redis.NewScript(budgetRolloverLua + `
rollover(KEYS[1], ARGV[2])
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)

// RedisBudgetStore implements billing.BudgetStore on Redis, one hash per
// organization, every mutation a single Lua round trip
type RedisBudgetStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisBudgetStore creates a Redis-backed budget store with an existing
// client
func NewRedisBudgetStore(client *redis.Client, timeout time.Duration) *RedisBudgetStore {
	if timeout <= 0 {
		timeout = defaultCounterTimeout
	}
	return &RedisBudgetStore{
		client:  client,
		timeout: timeout,
	}
}

// opContext detaches budget mutations from caller cancellation the same way
// the counter store does
func (s *RedisBudgetStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func (s *RedisBudgetStore) key(organizationID string) string {
	return budgetKeyPrefix + organizationID
}

// parseBudgetReply converts the {spend, status, alerted} script reply
func parseBudgetReply(raw []interface{}, periodStart time.Time) (billing.BudgetSnapshot, error) {
	if len(raw) != 3 {
		return billing.BudgetSnapshot{}, fmt.Errorf("unexpected budget reply: %v", raw)
	}

	snapshot := billing.BudgetSnapshot{
		Status:      billing.BudgetStatusActive,
		PeriodStart: periodStart,
	}

	switch spend := raw[0].(type) {
	case int64:
		snapshot.SpendMicros = spend
	default:
		return billing.BudgetSnapshot{}, fmt.Errorf("unexpected budget spend: %v", raw[0])
	}

	if status, ok := raw[1].(string); ok && billing.BudgetStatus(status).IsValid() {
		snapshot.Status = billing.BudgetStatus(status)
	}

	if alerted, ok := raw[2].(string); ok {
		// stored as a string because Redis hashes hold no floats natively
		if _, err := fmt.Sscanf(alerted, "%g", &snapshot.LastAlertedThreshold); err != nil {
			snapshot.LastAlertedThreshold = 0
		}
	}

	return snapshot, nil
}

// AddSpend increments spend and applies the exceeded transition atomically
func (s *RedisBudgetStore) AddSpend(ctx context.Context, organizationID string, amountMicros, limitMicros int64, periodStart time.Time) (billing.BudgetSnapshot, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := addSpendScript.Run(opCtx, s.client,
		[]string{s.key(organizationID)},
		amountMicros, limitMicros, periodStart.UnixMilli(), budgetKeyTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return billing.BudgetSnapshot{}, fmt.Errorf("budget add spend: %w", err)
	}
	return parseBudgetReply(raw, periodStart)
}

// Snapshot returns the current budget state
func (s *RedisBudgetStore) Snapshot(ctx context.Context, organizationID string, periodStart time.Time) (billing.BudgetSnapshot, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := budgetSnapshotScript.Run(opCtx, s.client,
		[]string{s.key(organizationID)},
		periodStart.UnixMilli(),
	).Slice()
	if err != nil {
		return billing.BudgetSnapshot{}, fmt.Errorf("budget snapshot: %w", err)
	}
	return parseBudgetReply(raw, periodStart)
}

// MarkAlerted records a crossed threshold; true only for the first caller
// per period per threshold
func (s *RedisBudgetStore) MarkAlerted(ctx context.Context, organizationID string, thresholdPercent float64, periodStart time.Time) (bool, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	marked, err := markAlertedScript.Run(opCtx, s.client,
		[]string{s.key(organizationID)},
		thresholdPercent, periodStart.UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("budget mark alerted: %w", err)
	}
	return marked == 1, nil
}

// SetStatus applies an administrative status change
func (s *RedisBudgetStore) SetStatus(ctx context.Context, organizationID string, status billing.BudgetStatus, periodStart time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid budget status: %s", status)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := setStatusScript.Run(opCtx, s.client,
		[]string{s.key(organizationID)},
		status.String(), periodStart.UnixMilli(),
	).Err(); err != nil {
		return fmt.Errorf("budget set status: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is shared and closed by its owner
func (s *RedisBudgetStore) Close() error {
	return nil
}

// Ensure RedisBudgetStore implements billing.BudgetStore
var _ billing.BudgetStore = (*RedisBudgetStore)(nil)
