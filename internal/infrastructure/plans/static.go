// Package plans provides an in-process plan and budget configuration
// provider. Production deployments replace it with a client for the plan
// service; the interface is the contract, not this implementation.
package plans

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/quota"
)

// StaticProvider serves plan limits and budget configurations from memory.
// Unknown principals get the default plan, unknown organizations the
// default budget.
type StaticProvider struct {
	mu            sync.RWMutex
	plans         map[string]*billing.PlanLimits
	budgets       map[string]*billing.BudgetConfig
	defaultPlan   *billing.PlanLimits
	defaultBudget *billing.BudgetConfig
}

// NewStaticProvider creates a provider with the given defaults. Nil
// defaults fall back to a permissive plan and an uncapped budget.
func NewStaticProvider(defaultPlan *billing.PlanLimits, defaultBudget *billing.BudgetConfig) *StaticProvider {
	if defaultPlan == nil {
		defaultPlan = &billing.PlanLimits{
			PlanID:      "default",
			QuotaLimits: map[quota.QuotaType]int64{},
			RateLimit:   -1,
		}
	}
	if defaultBudget == nil {
		defaultBudget = &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(-1)}
	}

	return &StaticProvider{
		plans:         make(map[string]*billing.PlanLimits),
		budgets:       make(map[string]*billing.BudgetConfig),
		defaultPlan:   defaultPlan,
		defaultBudget: defaultBudget,
	}
}

// SetPlan registers plan limits for one principal
func (p *StaticProvider) SetPlan(principalID string, plan *billing.PlanLimits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[principalID] = plan
}

// SetBudget registers a budget configuration for one organization
func (p *StaticProvider) SetBudget(organizationID string, cfg *billing.BudgetConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.budgets[organizationID] = cfg
}

// GetLimits implements billing.PlanProvider
func (p *StaticProvider) GetLimits(ctx context.Context, principalID string) (*billing.PlanLimits, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if plan, ok := p.plans[principalID]; ok {
		return plan, nil
	}
	return p.defaultPlan, nil
}

// GetBudgetConfig implements billing.BudgetConfigProvider
func (p *StaticProvider) GetBudgetConfig(ctx context.Context, organizationID string) (*billing.BudgetConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cfg, ok := p.budgets[organizationID]; ok {
		return cfg, nil
	}
	return p.defaultBudget, nil
}

var (
	_ billing.PlanProvider         = (*StaticProvider)(nil)
	_ billing.BudgetConfigProvider = (*StaticProvider)(nil)
)
