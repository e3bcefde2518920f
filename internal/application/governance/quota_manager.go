package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/domain/shared"
)

// ByteCache is the read-through cache the quota manager uses for resolved
// plan limits. The tiered cache satisfies it; a nil cache disables caching.
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const (
	planCacheKeyPrefix = "plan:"

	defaultPlanCacheTTL = 5 * time.Minute

	// counterTTLMargin keeps an idle counter readable for a while past its
	// period boundary so status queries do not observe a vanished key.
	counterTTLMargin = 24 * time.Hour
)

// QuotaDecision is the outcome of a quota check or consumption. When the
// operation was allowed, CurrentUsage already includes the requested amount.
type QuotaDecision struct {
	Allowed      bool            `json:"allowed"`
	QuotaType    quota.QuotaType `json:"quota_type"`
	CurrentUsage int64           `json:"current_usage"`
	Limit        int64           `json:"limit"`
	Remaining    int64           `json:"remaining"`
	ResetAt      time.Time       `json:"reset_at"`
	// Overage marks a consumption that was admitted past the plan ceiling
	// because the plan allows metered overage.
	Overage bool                `json:"overage,omitempty"`
	Err     *QuotaExceededError `json:"error,omitempty"`
}

// QuotaManagerConfig holds the tunables for QuotaManager
type QuotaManagerConfig struct {
	// Period is the reset period applied to all quota counters
	Period quota.ResetPeriod
	// PlanCacheTTL bounds how stale a cached plan may be
	PlanCacheTTL time.Duration
}

// QuotaManagerOption configures a QuotaManager
type QuotaManagerOption func(*QuotaManager)

// WithQuotaManagerLogger sets the logger
func WithQuotaManagerLogger(logger *zap.Logger) QuotaManagerOption {
	return func(m *QuotaManager) {
		m.logger = logger
	}
}

// WithPlanCache sets the read-through cache for plan lookups
func WithPlanCache(cache ByteCache) QuotaManagerOption {
	return func(m *QuotaManager) {
		m.planCache = cache
	}
}

// QuotaManager enforces per-principal usage ceilings. All consumption goes
// through the store's atomic increment-with-ceiling, so concurrent requests
// can never oversell a quota regardless of how many gateway instances run.
type QuotaManager struct {
	store     quota.Store
	plans     billing.PlanProvider
	planCache ByteCache
	config    QuotaManagerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuotaManager creates a QuotaManager backed by the given store and
// plan provider.
func NewQuotaManager(store quota.Store, plans billing.PlanProvider, config QuotaManagerConfig, opts ...QuotaManagerOption) *QuotaManager {
	if !config.Period.IsValid() {
		config.Period = quota.ResetPeriodMonthly
	}
	if config.PlanCacheTTL <= 0 {
		config.PlanCacheTTL = defaultPlanCacheTTL
	}

	m := &QuotaManager{
		store:  store,
		plans:  plans,
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// CheckQuota reports whether consuming amount would be admitted, without
// recording any usage. It is advisory only: a passing check does not reserve
// capacity, so callers that need enforcement must use ConsumeQuota.
func (m *QuotaManager) CheckQuota(ctx context.Context, principalID string, quotaType quota.QuotaType, amount int64) (*QuotaDecision, error) {
	plan, err := m.validate(ctx, principalID, quotaType, amount)
	if err != nil {
		return nil, err
	}

	counter, err := quota.NewCounter(principalID, quotaType, plan.QuotaLimit(quotaType), m.config.Period, m.now())
	if err != nil {
		return nil, err
	}
	resetAt := counter.ResetAt()

	if counter.IsUnlimited() {
		return &QuotaDecision{Allowed: true, QuotaType: quotaType, Limit: -1, Remaining: -1, ResetAt: resetAt}, nil
	}

	counter.Usage, err = m.store.Peek(ctx, m.counterKey(principalID, quotaType), counter.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("peek quota counter: %w", err)
	}

	decision := &QuotaDecision{
		QuotaType:    quotaType,
		CurrentUsage: counter.Usage,
		Limit:        counter.Limit,
		Remaining:    counter.Remaining(),
		ResetAt:      resetAt,
	}
	if counter.CanConsume(amount) || plan.OverageAllowed {
		decision.Allowed = true
		decision.Overage = !counter.CanConsume(amount)
		return decision, nil
	}

	decision.Err = &QuotaExceededError{
		PrincipalID:  principalID,
		QuotaType:    quotaType,
		CurrentUsage: counter.Usage,
		Limit:        counter.Limit,
		ResetAt:      resetAt,
	}
	return decision, nil
}

// ConsumeQuota atomically consumes amount units of the given quota type.
// When the plan ceiling would be exceeded and the plan allows overage, the
// consumption is admitted anyway and flagged so billing can meter it.
func (m *QuotaManager) ConsumeQuota(ctx context.Context, principalID string, quotaType quota.QuotaType, amount int64) (*QuotaDecision, error) {
	plan, err := m.validate(ctx, principalID, quotaType, amount)
	if err != nil {
		return nil, err
	}

	limit := plan.QuotaLimit(quotaType)
	now := m.now()
	periodStart := quota.PeriodStart(m.config.Period, now)
	resetAt := quota.PeriodEnd(m.config.Period, periodStart)
	ttl := resetAt.Sub(now) + counterTTLMargin
	key := m.counterKey(principalID, quotaType)

	result, err := m.store.IncrementWithCeiling(ctx, key, amount, limit, periodStart, ttl)
	if err != nil {
		return nil, fmt.Errorf("increment quota counter: %w", err)
	}

	if !result.Allowed && plan.OverageAllowed {
		// The plan meters usage past the ceiling instead of rejecting it.
		// The unconditional increment is still atomic, so the recorded
		// overage is exact.
		result, err = m.store.IncrementWithCeiling(ctx, key, amount, -1, periodStart, ttl)
		if err != nil {
			return nil, fmt.Errorf("increment quota counter: %w", err)
		}
		decision := m.decisionFor(result, quotaType, limit, resetAt)
		decision.Overage = true
		return decision, nil
	}

	decision := m.decisionFor(result, quotaType, limit, resetAt)
	if !result.Allowed {
		decision.Err = &QuotaExceededError{
			PrincipalID:  principalID,
			QuotaType:    quotaType,
			CurrentUsage: result.Usage,
			Limit:        limit,
			ResetAt:      resetAt,
		}
		m.logger.Debug("quota consumption denied",
			zap.String("principal_id", principalID),
			zap.String("quota_type", quotaType.String()),
			zap.Int64("usage", result.Usage),
			zap.Int64("limit", limit))
	}
	return decision, nil
}

// AdjustUsage unconditionally adds delta to the counter, bypassing the plan
// ceiling. Settlement uses it to reconcile an estimate-based reservation with
// measured usage; delta may be negative.
func (m *QuotaManager) AdjustUsage(ctx context.Context, principalID string, quotaType quota.QuotaType, delta int64) (int64, error) {
	if principalID == "" {
		return 0, shared.ErrInvalidPrincipal
	}
	if !quotaType.IsValid() {
		return 0, shared.NewDomainError("INVALID_QUOTA_TYPE", fmt.Sprintf("unknown quota type: %s", quotaType))
	}
	if delta == 0 {
		return m.Usage(ctx, principalID, quotaType)
	}

	now := m.now()
	periodStart := quota.PeriodStart(m.config.Period, now)
	ttl := quota.PeriodEnd(m.config.Period, periodStart).Sub(now) + counterTTLMargin

	result, err := m.store.IncrementWithCeiling(ctx, m.counterKey(principalID, quotaType), delta, -1, periodStart, ttl)
	if err != nil {
		return 0, fmt.Errorf("adjust quota counter: %w", err)
	}
	return result.Usage, nil
}

// Usage returns the current period's recorded usage for one quota type
func (m *QuotaManager) Usage(ctx context.Context, principalID string, quotaType quota.QuotaType) (int64, error) {
	if principalID == "" {
		return 0, shared.ErrInvalidPrincipal
	}
	periodStart := quota.PeriodStart(m.config.Period, m.now())
	return m.store.Peek(ctx, m.counterKey(principalID, quotaType), periodStart)
}

// PlanLimits resolves the plan for a principal through the read-through
// cache. Provider failures fall back to the cache only when a cached copy
// exists; otherwise the error propagates.
func (m *QuotaManager) PlanLimits(ctx context.Context, principalID string) (*billing.PlanLimits, error) {
	if principalID == "" {
		return nil, shared.ErrInvalidPrincipal
	}

	cacheKey := planCacheKeyPrefix + principalID
	if m.planCache != nil {
		if raw, found, err := m.planCache.Get(ctx, cacheKey); err == nil && found {
			var plan billing.PlanLimits
			if err := json.Unmarshal(raw, &plan); err == nil {
				return &plan, nil
			}
			// A corrupt cached plan is dropped and re-fetched.
			_ = m.planCache.Delete(ctx, cacheKey)
		}
	}

	plan, err := m.plans.GetLimits(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan for %s: %w", principalID, err)
	}

	if m.planCache != nil {
		if raw, err := json.Marshal(plan); err == nil {
			if err := m.planCache.Set(ctx, cacheKey, raw, m.config.PlanCacheTTL); err != nil {
				m.logger.Warn("failed to cache plan limits",
					zap.String("principal_id", principalID), zap.Error(err))
			}
		}
	}

	return plan, nil
}

// InvalidatePlan evicts a principal's cached plan so the next lookup hits
// the provider.
func (m *QuotaManager) InvalidatePlan(ctx context.Context, principalID string) error {
	if m.planCache == nil {
		return nil
	}
	return m.planCache.Delete(ctx, planCacheKeyPrefix+principalID)
}

// Period returns the reset period quota counters are held to
func (m *QuotaManager) Period() quota.ResetPeriod {
	return m.config.Period
}

func (m *QuotaManager) validate(ctx context.Context, principalID string, quotaType quota.QuotaType, amount int64) (*billing.PlanLimits, error) {
	if principalID == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if !quotaType.IsValid() {
		return nil, shared.NewDomainError("INVALID_QUOTA_TYPE", fmt.Sprintf("unknown quota type: %s", quotaType))
	}
	if amount < 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "amount must not be negative")
	}
	return m.PlanLimits(ctx, principalID)
}

func (m *QuotaManager) decisionFor(result quota.IncrementResult, quotaType quota.QuotaType, limit int64, resetAt time.Time) *QuotaDecision {
	remaining := int64(-1)
	if limit >= 0 {
		remaining = maxInt64(limit-result.Usage, 0)
	}
	return &QuotaDecision{
		Allowed:      result.Allowed,
		QuotaType:    quotaType,
		CurrentUsage: result.Usage,
		Limit:        limit,
		Remaining:    remaining,
		ResetAt:      resetAt,
	}
}

func (m *QuotaManager) counterKey(principalID string, quotaType quota.QuotaType) string {
	return "quota:" + principalID + ":" + string(quotaType)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
