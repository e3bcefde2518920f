package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// spend is carried in the store as integer micro-units of the account
// currency so that increments stay atomic on every backend
const microsPerUnit = 1_000_000

// MoneyToMicros converts a decimal amount to integer micro-units
func MoneyToMicros(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(microsPerUnit)).Round(0).IntPart()
}

// MicrosToMoney converts integer micro-units back to a decimal amount
func MicrosToMoney(micros int64) decimal.Decimal {
	return decimal.NewFromInt(micros).Div(decimal.NewFromInt(microsPerUnit))
}

// BudgetSnapshot is the shared, authoritative state of one organization's
// budget for the current period
type BudgetSnapshot struct {
	SpendMicros          int64
	Status               BudgetStatus
	PeriodStart          time.Time
	LastAlertedThreshold float64
}

// Spend returns the snapshot's spend as a decimal amount
func (s BudgetSnapshot) Spend() decimal.Decimal {
	return MicrosToMoney(s.SpendMicros)
}

// BudgetStore holds budget counters in shared storage. Like quota.Store,
// every mutation is a single server-side atomic operation keyed by the
// caller-computed periodStart: a snapshot stored under an elapsed period is
// reset (spend to zero, EXCEEDED back to ACTIVE, alert tracking cleared)
// before the operation applies. Suspension survives resets.
type BudgetStore interface {
	// AddSpend atomically increments spend and, when the new total exceeds
	// limitMicros, transitions an active budget to EXCEEDED in the same
	// operation. A negative limit disables the transition.
	AddSpend(ctx context.Context, organizationID string, amountMicros, limitMicros int64, periodStart time.Time) (BudgetSnapshot, error)

	// Snapshot returns the current budget state without mutating spend
	Snapshot(ctx context.Context, organizationID string, periodStart time.Time) (BudgetSnapshot, error)

	// MarkAlerted records that thresholdPercent has been alerted for this
	// period. Returns true only for the first caller per period per
	// threshold, which is what makes alert emission idempotent.
	MarkAlerted(ctx context.Context, organizationID string, thresholdPercent float64, periodStart time.Time) (bool, error)

	// SetStatus applies an administrative status change (suspend, reinstate)
	SetStatus(ctx context.Context, organizationID string, status BudgetStatus, periodStart time.Time) error

	// Close releases the store's resources
	Close() error
}
