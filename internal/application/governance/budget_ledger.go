package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/shared"
)

// projectedAlertKeySuffix namespaces the idempotence record for projected
// overrun alerts away from the spend record, so the threshold high-water
// marks of the two alert families never interfere.
const projectedAlertKeySuffix = "#projected"

const alertHistoryLimit = 64

// BudgetDecision is the outcome of a budget check
type BudgetDecision struct {
	Allowed        bool                 `json:"allowed"`
	Status         billing.BudgetStatus `json:"status"`
	CurrentSpend   decimal.Decimal      `json:"current_spend"`
	MonthlyLimit   decimal.Decimal      `json:"monthly_limit"`
	UsagePercent   float64              `json:"usage_percent"`
	ProjectedSpend decimal.Decimal      `json:"projected_spend"`
	Err            *BudgetExceededError `json:"error,omitempty"`
}

// BudgetLedgerOption configures a BudgetLedger
type BudgetLedgerOption func(*BudgetLedger)

// WithBudgetLedgerLogger sets the logger
func WithBudgetLedgerLogger(logger *zap.Logger) BudgetLedgerOption {
	return func(l *BudgetLedger) {
		l.logger = logger
	}
}

// WithAlertDispatcher sets the dispatcher that receives budget alerts
func WithAlertDispatcher(dispatcher billing.AlertDispatcher) BudgetLedgerOption {
	return func(l *BudgetLedger) {
		l.dispatcher = dispatcher
	}
}

// WithBudgetClock overrides the ledger's time source
func WithBudgetClock(now func() time.Time) BudgetLedgerOption {
	return func(l *BudgetLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// BudgetLedger tracks monetary spend per organization against monthly
// limits, raises alerts when thresholds are crossed, and projects
// end-of-month spend from the current run rate. Spend state lives in the
// shared BudgetStore; only the alert history is process-local.
type BudgetLedger struct {
	store      billing.BudgetStore
	budgets    billing.BudgetConfigProvider
	dispatcher billing.AlertDispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	history map[string][]billing.BudgetAlert
}

// NewBudgetLedger creates a BudgetLedger backed by the given store and
// budget configuration provider.
func NewBudgetLedger(store billing.BudgetStore, budgets billing.BudgetConfigProvider, opts ...BudgetLedgerOption) *BudgetLedger {
	l := &BudgetLedger{
		store:   store,
		budgets: budgets,
		logger:  zap.NewNop(),
		now:     time.Now,
		history: make(map[string][]billing.BudgetAlert),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// CheckBudget reports whether an active budget can absorb estimatedCost.
// Budgets not in the active status always allow: exceeded and suspended are
// administrative states whose enforcement is decided upstream.
func (l *BudgetLedger) CheckBudget(ctx context.Context, organizationID string, estimatedCost decimal.Decimal) (*BudgetDecision, error) {
	if organizationID == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if estimatedCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "estimated cost must not be negative")
	}

	cfg, err := l.budgets.GetBudgetConfig(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve budget config for %s: %w", organizationID, err)
	}
	if cfg.MonthlyLimit.IsNegative() {
		return &BudgetDecision{Allowed: true, Status: billing.BudgetStatusActive, MonthlyLimit: cfg.MonthlyLimit}, nil
	}

	now := l.now()
	snap, err := l.store.Snapshot(ctx, organizationID, billing.MonthStart(now))
	if err != nil {
		return nil, fmt.Errorf("budget snapshot: %w", err)
	}

	budget := l.budgetFrom(organizationID, cfg, snap)
	decision := &BudgetDecision{
		Status:         budget.Status,
		CurrentSpend:   budget.CurrentSpend,
		MonthlyLimit:   budget.MonthlyLimit,
		UsagePercent:   budget.UsagePercent(),
		ProjectedSpend: budget.ProjectedMonthlySpend(now),
	}

	if budget.IsActive() && budget.WouldExceed(estimatedCost) {
		decision.Err = &BudgetExceededError{
			OrganizationID: organizationID,
			CurrentSpend:   budget.CurrentSpend,
			MonthlyLimit:   budget.MonthlyLimit,
		}
		return decision, nil
	}

	decision.Allowed = true
	l.raiseAlerts(ctx, budget, now)
	return decision, nil
}

// RecordSpend adds actualCost to the organization's spend. The increment
// and the active-to-exceeded transition happen in one atomic store
// operation, then any newly crossed alert thresholds are raised.
func (l *BudgetLedger) RecordSpend(ctx context.Context, organizationID string, actualCost decimal.Decimal) (*BudgetDecision, error) {
	if organizationID == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if actualCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "actual cost must not be negative")
	}

	cfg, err := l.budgets.GetBudgetConfig(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve budget config for %s: %w", organizationID, err)
	}

	now := l.now()
	periodStart := billing.MonthStart(now)
	limitMicros := int64(-1)
	if !cfg.MonthlyLimit.IsNegative() {
		limitMicros = billing.MoneyToMicros(cfg.MonthlyLimit)
	}

	snap, err := l.store.AddSpend(ctx, organizationID, billing.MoneyToMicros(actualCost), limitMicros, periodStart)
	if err != nil {
		return nil, fmt.Errorf("add spend: %w", err)
	}

	budget := l.budgetFrom(organizationID, cfg, snap)
	l.raiseAlerts(ctx, budget, now)

	return &BudgetDecision{
		Allowed:        true,
		Status:         budget.Status,
		CurrentSpend:   budget.CurrentSpend,
		MonthlyLimit:   budget.MonthlyLimit,
		UsagePercent:   budget.UsagePercent(),
		ProjectedSpend: budget.ProjectedMonthlySpend(now),
	}, nil
}

// GetAlerts returns the alerts raised by this process instance, newest
// last. An empty organizationID returns alerts for all organizations.
func (l *BudgetLedger) GetAlerts(organizationID string) []billing.BudgetAlert {
	l.mu.Lock()
	defer l.mu.Unlock()

	if organizationID != "" {
		alerts := l.history[organizationID]
		out := make([]billing.BudgetAlert, len(alerts))
		copy(out, alerts)
		return out
	}

	var out []billing.BudgetAlert
	for _, alerts := range l.history {
		out = append(out, alerts...)
	}
	return out
}

// Status returns the organization's current budget state without mutating it
func (l *BudgetLedger) Status(ctx context.Context, organizationID string) (*BudgetDecision, error) {
	if organizationID == "" {
		return nil, shared.ErrInvalidPrincipal
	}

	cfg, err := l.budgets.GetBudgetConfig(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve budget config for %s: %w", organizationID, err)
	}

	now := l.now()
	snap, err := l.store.Snapshot(ctx, organizationID, billing.MonthStart(now))
	if err != nil {
		return nil, fmt.Errorf("budget snapshot: %w", err)
	}

	budget := l.budgetFrom(organizationID, cfg, snap)
	return &BudgetDecision{
		Allowed:        budget.Status != billing.BudgetStatusActive || !budget.WouldExceed(decimal.Zero),
		Status:         budget.Status,
		CurrentSpend:   budget.CurrentSpend,
		MonthlyLimit:   budget.MonthlyLimit,
		UsagePercent:   budget.UsagePercent(),
		ProjectedSpend: budget.ProjectedMonthlySpend(now),
	}, nil
}

// SetStatus applies an administrative status change such as suspension or
// reinstatement.
func (l *BudgetLedger) SetStatus(ctx context.Context, organizationID string, status billing.BudgetStatus) error {
	if organizationID == "" {
		return shared.ErrInvalidPrincipal
	}
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("unknown budget status: %s", status))
	}
	return l.store.SetStatus(ctx, organizationID, status, billing.MonthStart(l.now()))
}

// raiseAlerts emits every alert the budget's current state warrants that
// has not already been emitted this period. The store's MarkAlerted is the
// cross-process idempotence gate; losing the race simply means another
// instance already alerted.
func (l *BudgetLedger) raiseAlerts(ctx context.Context, budget *billing.Budget, now time.Time) {
	if budget.MonthlyLimit.IsNegative() || budget.MonthlyLimit.IsZero() {
		return
	}

	periodStart := billing.MonthStart(now)
	usagePct := budget.UsagePercent()
	projected := budget.ProjectedMonthlySpend(now)

	if budget.Status == billing.BudgetStatusExceeded || usagePct > 100 {
		l.raiseOnce(ctx, budget, billing.AlertKindExceeded, 100, projected, periodStart, now)
	} else if budget.AlertThresholdPercent > 0 && usagePct >= budget.AlertThresholdPercent {
		l.raiseOnce(ctx, budget, billing.AlertKindThreshold, budget.AlertThresholdPercent, projected, periodStart, now)
	}

	if projected.GreaterThan(budget.MonthlyLimit) && budget.Status == billing.BudgetStatusActive {
		l.raiseProjected(ctx, budget, projected, periodStart, now)
	}
}

func (l *BudgetLedger) raiseOnce(ctx context.Context, budget *billing.Budget, kind billing.AlertKind, threshold float64, projected decimal.Decimal, periodStart, now time.Time) {
	first, err := l.store.MarkAlerted(ctx, budget.OrganizationID, threshold, periodStart)
	if err != nil {
		l.logger.Warn("failed to record alert threshold",
			zap.String("organization_id", budget.OrganizationID),
			zap.Float64("threshold", threshold),
			zap.Error(err))
		return
	}
	if !first {
		return
	}

	l.emit(ctx, billing.BudgetAlert{
		EventMeta:        shared.NewEventMeta(now),
		OrganizationID:   budget.OrganizationID,
		Kind:             kind,
		ThresholdPercent: threshold,
		CurrentSpend:     budget.CurrentSpend,
		MonthlyLimit:     budget.MonthlyLimit,
		ProjectedSpend:   projected,
	})
}

func (l *BudgetLedger) raiseProjected(ctx context.Context, budget *billing.Budget, projected decimal.Decimal, periodStart, now time.Time) {
	first, err := l.store.MarkAlerted(ctx, budget.OrganizationID+projectedAlertKeySuffix, 100, periodStart)
	if err != nil {
		l.logger.Warn("failed to record projected alert",
			zap.String("organization_id", budget.OrganizationID), zap.Error(err))
		return
	}
	if !first {
		return
	}

	l.emit(ctx, billing.BudgetAlert{
		EventMeta:        shared.NewEventMeta(now),
		OrganizationID:   budget.OrganizationID,
		Kind:             billing.AlertKindProjected,
		ThresholdPercent: 100,
		CurrentSpend:     budget.CurrentSpend,
		MonthlyLimit:     budget.MonthlyLimit,
		ProjectedSpend:   projected,
	})
}

func (l *BudgetLedger) emit(ctx context.Context, alert billing.BudgetAlert) {
	l.mu.Lock()
	alerts := append(l.history[alert.OrganizationID], alert)
	if len(alerts) > alertHistoryLimit {
		alerts = alerts[len(alerts)-alertHistoryLimit:]
	}
	l.history[alert.OrganizationID] = alerts
	l.mu.Unlock()

	l.logger.Info("budget alert raised",
		zap.String("organization_id", alert.OrganizationID),
		zap.String("kind", alert.Kind.String()),
		zap.Float64("threshold_percent", alert.ThresholdPercent),
		zap.String("current_spend", alert.CurrentSpend.StringFixed(2)),
		zap.String("monthly_limit", alert.MonthlyLimit.StringFixed(2)))

	if l.dispatcher == nil {
		return
	}
	if err := l.dispatcher.Dispatch(ctx, alert); err != nil {
		l.logger.Warn("alert dispatch failed",
			zap.String("organization_id", alert.OrganizationID),
			zap.String("kind", alert.Kind.String()),
			zap.Error(err))
	}
}

func (l *BudgetLedger) budgetFrom(organizationID string, cfg *billing.BudgetConfig, snap billing.BudgetSnapshot) *billing.Budget {
	return &billing.Budget{
		OrganizationID:        organizationID,
		MonthlyLimit:          cfg.MonthlyLimit,
		CurrentSpend:          snap.Spend(),
		AlertThresholdPercent: cfg.AlertThresholdPercent,
		Status:                snap.Status,
		PeriodStart:           snap.PeriodStart,
		LastAlertedThreshold:  snap.LastAlertedThreshold,
	}
}
