package counter

import (
	"context"
	"sync"
	"time"

	"github.com/aigw/backend/internal/domain/billing"
)

// memBudget is one organization's shared budget state
type memBudget struct {
	spendMicros int64
	periodStart int64 // unix milliseconds
	status      billing.BudgetStatus
	alertedPct  float64
}

// MemoryBudgetStore implements billing.BudgetStore in process memory with
// the same rollover and transition semantics as the Redis scripts
type MemoryBudgetStore struct {
	mu      sync.Mutex
	budgets map[string]*memBudget
}

// NewMemoryBudgetStore creates an in-process budget store
func NewMemoryBudgetStore() *MemoryBudgetStore {
	return &MemoryBudgetStore{
		budgets: make(map[string]*memBudget),
	}
}

// budgetLocked fetches the budget for org, applying period rollover: spend
// and alert tracking reset, EXCEEDED reverts to ACTIVE, suspension sticks.
// Caller holds s.mu.
func (s *MemoryBudgetStore) budgetLocked(organizationID string, periodStart time.Time) *memBudget {
	budget, ok := s.budgets[organizationID]
	if !ok {
		budget = &memBudget{
			periodStart: periodStart.UnixMilli(),
			status:      billing.BudgetStatusActive,
		}
		s.budgets[organizationID] = budget
		return budget
	}

	if budget.periodStart != periodStart.UnixMilli() {
		budget.spendMicros = 0
		budget.alertedPct = 0
		budget.periodStart = periodStart.UnixMilli()
		if budget.status == billing.BudgetStatusExceeded {
			budget.status = billing.BudgetStatusActive
		}
	}
	return budget
}

func (s *MemoryBudgetStore) snapshotOf(budget *memBudget) billing.BudgetSnapshot {
	return billing.BudgetSnapshot{
		SpendMicros:          budget.spendMicros,
		Status:               budget.status,
		PeriodStart:          time.UnixMilli(budget.periodStart),
		LastAlertedThreshold: budget.alertedPct,
	}
}

// AddSpend increments spend and applies the exceeded transition atomically
func (s *MemoryBudgetStore) AddSpend(ctx context.Context, organizationID string, amountMicros, limitMicros int64, periodStart time.Time) (billing.BudgetSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget := s.budgetLocked(organizationID, periodStart)
	budget.spendMicros += amountMicros
	if limitMicros >= 0 && budget.spendMicros > limitMicros && budget.status == billing.BudgetStatusActive {
		budget.status = billing.BudgetStatusExceeded
	}
	return s.snapshotOf(budget), nil
}

// Snapshot returns the current budget state
func (s *MemoryBudgetStore) Snapshot(ctx context.Context, organizationID string, periodStart time.Time) (billing.BudgetSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOf(s.budgetLocked(organizationID, periodStart)), nil
}

// MarkAlerted records a crossed threshold; true only for the first caller
// per period per threshold
func (s *MemoryBudgetStore) MarkAlerted(ctx context.Context, organizationID string, thresholdPercent float64, periodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget := s.budgetLocked(organizationID, periodStart)
	if thresholdPercent > budget.alertedPct {
		budget.alertedPct = thresholdPercent
		return true, nil
	}
	return false, nil
}

// SetStatus applies an administrative status change
func (s *MemoryBudgetStore) SetStatus(ctx context.Context, organizationID string, status billing.BudgetStatus, periodStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetLocked(organizationID, periodStart).status = status
	return nil
}

// Close releases nothing; present to satisfy billing.BudgetStore
func (s *MemoryBudgetStore) Close() error {
	return nil
}

// Ensure MemoryBudgetStore implements billing.BudgetStore
var _ billing.BudgetStore = (*MemoryBudgetStore)(nil)
