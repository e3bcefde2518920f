package billing

import (
	"time"

	"github.com/aigw/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BudgetStatus represents the lifecycle state of an organization budget
type BudgetStatus string

const (
	// BudgetStatusActive means spend is enforced against the monthly limit
	BudgetStatusActive BudgetStatus = "ACTIVE"

	// BudgetStatusExceeded means the monthly limit has been overspent.
	// Only a period reset or an explicit administrative reset clears it.
	BudgetStatusExceeded BudgetStatus = "EXCEEDED"

	// BudgetStatusSuspended is set by external administrative action only;
	// this core never transitions a budget into it.
	BudgetStatusSuspended BudgetStatus = "SUSPENDED"
)

// String returns the string representation of BudgetStatus
func (s BudgetStatus) String() string {
	return string(s)
}

// IsValid returns true if the budget status is valid
func (s BudgetStatus) IsValid() bool {
	switch s {
	case BudgetStatusActive, BudgetStatusExceeded, BudgetStatusSuspended:
		return true
	}
	return false
}

// Budget tracks monetary spend for one organization against its monthly
// limit. The authoritative spend value lives in the BudgetStore; Budget
// carries the limit, threshold and projection semantics.
type Budget struct {
	OrganizationID        string
	MonthlyLimit          decimal.Decimal
	CurrentSpend          decimal.Decimal
	AlertThresholdPercent float64
	Status                BudgetStatus
	PeriodStart           time.Time
	LastAlertedThreshold  float64
}

// NewBudget creates an active budget for the month containing now
func NewBudget(organizationID string, monthlyLimit decimal.Decimal, alertThresholdPercent float64, now time.Time) (*Budget, error) {
	if organizationID == "" {
		return nil, shared.NewDomainError("INVALID_ORGANIZATION", "Organization ID cannot be empty")
	}
	if monthlyLimit.IsNegative() {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Monthly limit cannot be negative")
	}
	if alertThresholdPercent < 0 || alertThresholdPercent > 100 {
		return nil, shared.NewDomainError("INVALID_THRESHOLD", "Alert threshold must be between 0 and 100")
	}

	return &Budget{
		OrganizationID:        organizationID,
		MonthlyLimit:          monthlyLimit,
		CurrentSpend:          decimal.Zero,
		AlertThresholdPercent: alertThresholdPercent,
		Status:                BudgetStatusActive,
		PeriodStart:           MonthStart(now),
	}, nil
}

// IsActive returns true when spend is enforced against the limit
func (b *Budget) IsActive() bool {
	return b.Status == BudgetStatusActive
}

// WouldExceed returns true if spending estimatedCost would overrun the limit
func (b *Budget) WouldExceed(estimatedCost decimal.Decimal) bool {
	return b.CurrentSpend.Add(estimatedCost).GreaterThan(b.MonthlyLimit)
}

// UsagePercent returns spend as a percentage of the monthly limit
func (b *Budget) UsagePercent() float64 {
	if b.MonthlyLimit.IsZero() {
		return 0
	}
	pct, _ := b.CurrentSpend.Div(b.MonthlyLimit).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// ProjectedMonthlySpend extrapolates current spend to the end of the month:
// currentSpend * (daysInMonth / daysElapsed), daysElapsed floored at 1.
// The factor is always >= 1, so the projection never undercuts actual spend.
func (b *Budget) ProjectedMonthlySpend(now time.Time) decimal.Decimal {
	daysInMonth := DaysInMonth(b.PeriodStart)
	daysElapsed := now.Day()
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	if daysElapsed > daysInMonth {
		daysElapsed = daysInMonth
	}
	factor := decimal.NewFromInt(int64(daysInMonth)).Div(decimal.NewFromInt(int64(daysElapsed)))
	return b.CurrentSpend.Mul(factor)
}

// NeedsReset returns true once the budget's month has elapsed
func (b *Budget) NeedsReset(now time.Time) bool {
	return !MonthStart(now).Equal(b.PeriodStart)
}

// MarkExceeded transitions the budget to EXCEEDED on overspend.
// Suspended budgets stay suspended.
func (b *Budget) MarkExceeded() error {
	if b.Status == BudgetStatusSuspended {
		return shared.ErrInvalidState
	}
	b.Status = BudgetStatusExceeded
	return nil
}

// ResetForPeriod starts a fresh period: spend and alert tracking go to zero
// and an exceeded budget becomes active again. Suspension survives resets,
// since only administrative action lifts it.
func (b *Budget) ResetForPeriod(now time.Time) {
	b.CurrentSpend = decimal.Zero
	b.PeriodStart = MonthStart(now)
	b.LastAlertedThreshold = 0
	if b.Status == BudgetStatusExceeded {
		b.Status = BudgetStatusActive
	}
}

// MonthStart returns midnight on the first day of now's month
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// MonthEnd returns the first instant of the following month
func MonthEnd(periodStart time.Time) time.Time {
	return MonthStart(periodStart).AddDate(0, 1, 0)
}

// DaysInMonth returns the number of days in the month containing t
func DaysInMonth(t time.Time) int {
	start := MonthStart(t)
	return int(start.AddDate(0, 1, 0).Sub(start).Hours() / 24)
}
