package governance

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aigw/backend/internal/domain/billing"
)

// stubPlanProvider serves fixed plan limits and counts lookups
type stubPlanProvider struct {
	mu    sync.Mutex
	plans map[string]*billing.PlanLimits
	calls int
	err   error
}

func newStubPlanProvider() *stubPlanProvider {
	return &stubPlanProvider{plans: make(map[string]*billing.PlanLimits)}
}

func (p *stubPlanProvider) set(principalID string, plan *billing.PlanLimits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[principalID] = plan
}

func (p *stubPlanProvider) lookups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubPlanProvider) GetLimits(ctx context.Context, principalID string) (*billing.PlanLimits, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if plan, ok := p.plans[principalID]; ok {
		return plan, nil
	}
	return &billing.PlanLimits{PlanID: "default", RateLimit: -1}, nil
}

// stubBudgetProvider serves fixed budget configurations
type stubBudgetProvider struct {
	mu      sync.Mutex
	budgets map[string]*billing.BudgetConfig
}

func newStubBudgetProvider() *stubBudgetProvider {
	return &stubBudgetProvider{budgets: make(map[string]*billing.BudgetConfig)}
}

func (p *stubBudgetProvider) set(organizationID string, cfg *billing.BudgetConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.budgets[organizationID] = cfg
}

func (p *stubBudgetProvider) GetBudgetConfig(ctx context.Context, organizationID string) (*billing.BudgetConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg, ok := p.budgets[organizationID]; ok {
		return cfg, nil
	}
	return &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(-1)}, nil
}

// capturingDispatcher records every alert it receives
type capturingDispatcher struct {
	mu     sync.Mutex
	alerts []billing.BudgetAlert
}

func (d *capturingDispatcher) Dispatch(ctx context.Context, alert billing.BudgetAlert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return nil
}

func (d *capturingDispatcher) captured() []billing.BudgetAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]billing.BudgetAlert, len(d.alerts))
	copy(out, d.alerts)
	return out
}

// capturingSink records forwarded usage events and signals each arrival
type capturingSink struct {
	mu     sync.Mutex
	events []billing.UsageEvent
	done   chan struct{}
}

func newCapturingSink() *capturingSink {
	return &capturingSink{done: make(chan struct{}, 16)}
}

func (s *capturingSink) Record(ctx context.Context, event billing.UsageEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *capturingSink) recorded() []billing.UsageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.UsageEvent, len(s.events))
	copy(out, s.events)
	return out
}

// memByteCache is a minimal in-process ByteCache for plan caching tests
type memByteCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemByteCache() *memByteCache {
	return &memByteCache{entries: make(map[string][]byte)}
}

func (c *memByteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *memByteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = stored
	return nil
}

func (c *memByteCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
