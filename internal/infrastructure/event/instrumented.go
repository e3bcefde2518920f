package event

import (
	"context"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/infrastructure/metrics"
)

// InstrumentedDispatcher counts every alert by kind before handing it to
// the wrapped dispatcher.
type InstrumentedDispatcher struct {
	next    billing.AlertDispatcher
	metrics *metrics.Metrics
}

// NewInstrumentedDispatcher wraps a dispatcher with alert metrics
func NewInstrumentedDispatcher(next billing.AlertDispatcher, m *metrics.Metrics) *InstrumentedDispatcher {
	return &InstrumentedDispatcher{next: next, metrics: m}
}

// Dispatch implements billing.AlertDispatcher
func (d *InstrumentedDispatcher) Dispatch(ctx context.Context, alert billing.BudgetAlert) error {
	if d.metrics != nil {
		d.metrics.RecordAlert(alert.Kind.String())
	}
	return d.next.Dispatch(ctx, alert)
}

var _ billing.AlertDispatcher = (*InstrumentedDispatcher)(nil)
