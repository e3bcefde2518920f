package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/aigw/backend/internal/domain/shared"
)

// AlertKind distinguishes why a budget alert was raised
type AlertKind string

const (
	// AlertKindThreshold fires when usage crosses the configured threshold
	AlertKindThreshold AlertKind = "THRESHOLD"

	// AlertKindExceeded fires when spend overruns the monthly limit
	AlertKindExceeded AlertKind = "EXCEEDED"

	// AlertKindProjected fires when the end-of-month projection overruns the
	// limit even though actual spend is still under it
	AlertKindProjected AlertKind = "PROJECTED_OVERRUN"
)

// String returns the string representation of AlertKind
func (k AlertKind) String() string {
	return string(k)
}

// BudgetAlert is the event handed to the alert dispatcher when a budget
// crosses a threshold. Emission is idempotent per threshold per period.
type BudgetAlert struct {
	shared.EventMeta

	OrganizationID   string          `json:"organization_id"`
	Kind             AlertKind       `json:"kind"`
	ThresholdPercent float64         `json:"threshold_percent"`
	CurrentSpend     decimal.Decimal `json:"current_spend"`
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	ProjectedSpend   decimal.Decimal `json:"projected_spend"`
}

var _ shared.Event = BudgetAlert{}

// AlertDispatcher receives budget alert events. Delivery semantics (retry,
// dedup across restarts, transport) are the dispatcher's responsibility.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert BudgetAlert) error
}
