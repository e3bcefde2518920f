package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestNewBudget(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, now)
	require.NoError(t, err)
	assert.Equal(t, BudgetStatusActive, budget.Status)
	assert.True(t, budget.CurrentSpend.IsZero())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), budget.PeriodStart)
}

func TestNewBudget_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewBudget("", mustDecimal(t, "100"), 80, now)
	assert.Error(t, err)

	_, err = NewBudget("org-1", mustDecimal(t, "-1"), 80, now)
	assert.Error(t, err)

	_, err = NewBudget("org-1", mustDecimal(t, "100"), 120, now)
	assert.Error(t, err)
}

func TestBudget_WouldExceed(t *testing.T) {
	now := time.Now()
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, now)
	require.NoError(t, err)

	budget.CurrentSpend = mustDecimal(t, "95.00")
	assert.False(t, budget.WouldExceed(mustDecimal(t, "5.00")))
	assert.True(t, budget.WouldExceed(mustDecimal(t, "5.01")))
}

func TestBudget_ProjectedMonthlySpend(t *testing.T) {
	// Day 10 of a 30-day month, 40.00 spent: projection is 40 * 30/10 = 120
	now := time.Date(2026, 6, 10, 18, 0, 0, 0, time.UTC)
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, now)
	require.NoError(t, err)
	budget.CurrentSpend = mustDecimal(t, "40.00")

	projected := budget.ProjectedMonthlySpend(now)
	assert.True(t, projected.Equal(mustDecimal(t, "120.00")), projected.String())
}

func TestBudget_ProjectedMonthlySpend_FirstDay(t *testing.T) {
	// Day one must not divide by zero; projection equals spend * daysInMonth
	now := time.Date(2026, 6, 1, 0, 30, 0, 0, time.UTC)
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, now)
	require.NoError(t, err)
	budget.CurrentSpend = mustDecimal(t, "2.00")

	projected := budget.ProjectedMonthlySpend(now)
	assert.True(t, projected.Equal(mustDecimal(t, "60.00")), projected.String())
}

func TestBudget_ProjectionMonotonic(t *testing.T) {
	// projected >= currentSpend on every day of the month
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	budget.CurrentSpend = mustDecimal(t, "37.50")

	for day := 1; day <= 30; day++ {
		now := time.Date(2026, 6, day, 12, 0, 0, 0, time.UTC)
		projected := budget.ProjectedMonthlySpend(now)
		assert.True(t, projected.GreaterThanOrEqual(budget.CurrentSpend),
			"day %d: projected %s < spend %s", day, projected, budget.CurrentSpend)
	}
}

func TestBudget_StatusTransitions(t *testing.T) {
	now := time.Now()
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, now)
	require.NoError(t, err)

	require.NoError(t, budget.MarkExceeded())
	assert.Equal(t, BudgetStatusExceeded, budget.Status)

	// Period reset clears EXCEEDED
	budget.CurrentSpend = mustDecimal(t, "150.00")
	budget.ResetForPeriod(now.AddDate(0, 1, 0))
	assert.Equal(t, BudgetStatusActive, budget.Status)
	assert.True(t, budget.CurrentSpend.IsZero())
	assert.Equal(t, 0.0, budget.LastAlertedThreshold)

	// Suspension survives resets and blocks MarkExceeded
	budget.Status = BudgetStatusSuspended
	assert.Error(t, budget.MarkExceeded())
	budget.ResetForPeriod(now.AddDate(0, 2, 0))
	assert.Equal(t, BudgetStatusSuspended, budget.Status)
}

func TestBudget_UsagePercent(t *testing.T) {
	now := time.Now()
	budget, err := NewBudget("org-1", mustDecimal(t, "200.00"), 80, now)
	require.NoError(t, err)

	budget.CurrentSpend = mustDecimal(t, "50.00")
	assert.InDelta(t, 25.0, budget.UsagePercent(), 0.001)

	budget.MonthlyLimit = decimal.Zero
	assert.Equal(t, 0.0, budget.UsagePercent())
}

func TestBudget_NeedsReset(t *testing.T) {
	created := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	budget, err := NewBudget("org-1", mustDecimal(t, "100.00"), 80, created)
	require.NoError(t, err)

	assert.False(t, budget.NeedsReset(time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)))
	assert.True(t, budget.NeedsReset(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 30, DaysInMonth(time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 31, DaysInMonth(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 28, DaysInMonth(time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 29, DaysInMonth(time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMoneyMicrosRoundTrip(t *testing.T) {
	amounts := []string{"0", "0.01", "12.345678", "99999.99"}
	for _, s := range amounts {
		d := mustDecimal(t, s)
		assert.True(t, MicrosToMoney(MoneyToMicros(d)).Equal(d), s)
	}
}
