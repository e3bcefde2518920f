package billing

import (
	"context"

	"github.com/aigw/backend/internal/domain/quota"
	"github.com/shopspring/decimal"
)

// PlanLimits is the plan-derived configuration for one principal, resolved
// by the external plan provider. A missing quota type means unlimited.
// Budget configuration is deliberately absent: budgets attach to
// organizations, not principals, and flow through BudgetConfigProvider.
type PlanLimits struct {
	PlanID         string                    `json:"plan_id"`
	QuotaLimits    map[quota.QuotaType]int64 `json:"quota_limits"`
	RateLimit      int64                     `json:"rate_limit"`
	OverageAllowed bool                      `json:"overage_allowed"`
}

// QuotaLimit returns the limit for a quota type, -1 when none is configured
func (p *PlanLimits) QuotaLimit(quotaType quota.QuotaType) int64 {
	if p.QuotaLimits == nil {
		return -1
	}
	limit, ok := p.QuotaLimits[quotaType]
	if !ok {
		return -1
	}
	return limit
}

// PlanProvider resolves plan limits for a principal. Lookups are read-only
// and safe to cache with a short TTL.
type PlanProvider interface {
	GetLimits(ctx context.Context, principalID string) (*PlanLimits, error)
}

// BudgetConfig is the configured budget for one organization. A negative
// monthly limit means the organization is not budget-capped.
type BudgetConfig struct {
	MonthlyLimit          decimal.Decimal `json:"monthly_limit"`
	AlertThresholdPercent float64         `json:"alert_threshold_percent"`
}

// BudgetConfigProvider resolves the budget configuration for an
// organization; like plan lookups it is read-only and cacheable
type BudgetConfigProvider interface {
	GetBudgetConfig(ctx context.Context, organizationID string) (*BudgetConfig, error)
}
