package governance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/infrastructure/counter"
)

func newTestLedger(t *testing.T, budgets *stubBudgetProvider, now time.Time, opts ...BudgetLedgerOption) *BudgetLedger {
	t.Helper()
	store := counter.NewMemoryBudgetStore()
	t.Cleanup(func() { _ = store.Close() })
	opts = append(opts, WithBudgetClock(func() time.Time { return now }))
	return NewBudgetLedger(store, budgets, opts...)
}

func TestBudgetLedger_CheckAllowsWithinLimit(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(1000), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	ledger := newTestLedger(t, budgets, now)

	decision, err := ledger.CheckBudget(context.Background(), "org-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, billing.BudgetStatusActive, decision.Status)
}

func TestBudgetLedger_CheckRejectsWhenEstimateOverruns(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(1000), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	ledger := newTestLedger(t, budgets, now)

	ctx := context.Background()
	_, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(950))
	require.NoError(t, err)

	decision, err := ledger.CheckBudget(ctx, "org-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	require.NotNil(t, decision.Err)
	assert.Equal(t, "org-1", decision.Err.OrganizationID)
	assert.True(t, decision.Err.CurrentSpend.Equal(decimal.NewFromInt(950)))

	// an estimate that still fits is fine
	decision, err = ledger.CheckBudget(ctx, "org-1", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestBudgetLedger_NonActiveBudgetsAlwaysAllow(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(100), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	ledger := newTestLedger(t, budgets, now)

	ctx := context.Background()
	_, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(150))
	require.NoError(t, err)

	status, err := ledger.Status(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, billing.BudgetStatusExceeded, status.Status)

	// enforcement for non-active budgets was already decided upstream
	decision, err := ledger.CheckBudget(ctx, "org-1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	require.NoError(t, ledger.SetStatus(ctx, "org-1", billing.BudgetStatusSuspended))
	decision, err = ledger.CheckBudget(ctx, "org-1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, billing.BudgetStatusSuspended, decision.Status)
}

func TestBudgetLedger_RecordSpendTransitionsToExceeded(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(500), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	dispatcher := &capturingDispatcher{}
	ledger := newTestLedger(t, budgets, now, WithAlertDispatcher(dispatcher))

	ctx := context.Background()
	decision, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(501))
	require.NoError(t, err)
	assert.Equal(t, billing.BudgetStatusExceeded, decision.Status)

	alerts := dispatcher.captured()
	require.NotEmpty(t, alerts)
	assert.Equal(t, billing.AlertKindExceeded, alerts[0].Kind)
}

func TestBudgetLedger_ThresholdAlertIdempotentPerPeriod(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(1000), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 28, 10, 0, 0, 0, time.UTC)
	dispatcher := &capturingDispatcher{}
	ledger := newTestLedger(t, budgets, now, WithAlertDispatcher(dispatcher))

	ctx := context.Background()
	_, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(810))
	require.NoError(t, err)
	_, err = ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	var thresholdAlerts int
	for _, alert := range dispatcher.captured() {
		if alert.Kind == billing.AlertKindThreshold {
			thresholdAlerts++
		}
	}
	assert.Equal(t, 1, thresholdAlerts)
}

func TestBudgetLedger_ProjectedOverrunAlert(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(1000), AlertThresholdPercent: 90})
	// day 10 of a 30-day month: 600 spent projects to 1800
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	dispatcher := &capturingDispatcher{}
	ledger := newTestLedger(t, budgets, now, WithAlertDispatcher(dispatcher))

	decision, err := ledger.RecordSpend(context.Background(), "org-1", decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.True(t, decision.ProjectedSpend.Equal(decimal.NewFromInt(1800)))

	alerts := dispatcher.captured()
	require.Len(t, alerts, 1)
	assert.Equal(t, billing.AlertKindProjected, alerts[0].Kind)
	assert.True(t, alerts[0].ProjectedSpend.Equal(decimal.NewFromInt(1800)))
}

func TestBudgetLedger_GetAlertsFiltersByOrganization(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(100), AlertThresholdPercent: 80})
	budgets.set("org-2", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(100), AlertThresholdPercent: 80})
	now := time.Date(2026, 4, 28, 10, 0, 0, 0, time.UTC)
	ledger := newTestLedger(t, budgets, now)

	ctx := context.Background()
	_, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(150))
	require.NoError(t, err)
	_, err = ledger.RecordSpend(ctx, "org-2", decimal.NewFromInt(150))
	require.NoError(t, err)

	org1 := ledger.GetAlerts("org-1")
	require.NotEmpty(t, org1)
	for _, alert := range org1 {
		assert.Equal(t, "org-1", alert.OrganizationID)
	}

	all := ledger.GetAlerts("")
	assert.Greater(t, len(all), len(org1))
}

func TestBudgetLedger_UnlimitedBudgetNeverRejects(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(-1)})
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	dispatcher := &capturingDispatcher{}
	ledger := newTestLedger(t, budgets, now, WithAlertDispatcher(dispatcher))

	ctx := context.Background()
	_, err := ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(1_000_000))
	require.NoError(t, err)

	decision, err := ledger.CheckBudget(ctx, "org-1", decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, dispatcher.captured())
}

func TestBudgetLedger_AlertsCarryEventIdentity(t *testing.T) {
	budgets := newStubBudgetProvider()
	budgets.set("org-1", &billing.BudgetConfig{MonthlyLimit: decimal.NewFromInt(1000), AlertThresholdPercent: 50})
	// day 10 of a 30-day month: 600 spent crosses the threshold and also
	// projects to 1800, so one settlement raises two distinct alerts
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	dispatcher := &capturingDispatcher{}
	ledger := newTestLedger(t, budgets, now, WithAlertDispatcher(dispatcher))

	_, err := ledger.RecordSpend(context.Background(), "org-1", decimal.NewFromInt(600))
	require.NoError(t, err)

	alerts := dispatcher.captured()
	require.Len(t, alerts, 2)
	assert.NotEqual(t, uuid.Nil, alerts[0].EventID)
	assert.NotEqual(t, uuid.Nil, alerts[1].EventID)
	assert.NotEqual(t, alerts[0].EventID, alerts[1].EventID, "each alert gets its own event ID")
	for _, alert := range alerts {
		assert.True(t, alert.OccurredAt.Equal(now))
	}
}

func TestBudgetLedger_RejectsInvalidInput(t *testing.T) {
	ledger := newTestLedger(t, newStubBudgetProvider(), time.Now())
	ctx := context.Background()

	_, err := ledger.CheckBudget(ctx, "", decimal.NewFromInt(1))
	assert.Error(t, err)

	_, err = ledger.RecordSpend(ctx, "org-1", decimal.NewFromInt(-5))
	assert.Error(t, err)
}
