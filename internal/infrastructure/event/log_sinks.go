// Package event provides default collaborators for the outward-facing
// edges of the governance core: alert delivery and usage event forwarding.
// Both log what they receive; deployments swap in real transports.
package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/aigw/backend/internal/domain/billing"
)

// LogAlertDispatcher delivers budget alerts to the log
type LogAlertDispatcher struct {
	logger *zap.Logger
}

// NewLogAlertDispatcher creates a dispatcher that logs alerts
func NewLogAlertDispatcher(logger *zap.Logger) *LogAlertDispatcher {
	return &LogAlertDispatcher{logger: logger}
}

// Dispatch implements billing.AlertDispatcher
func (d *LogAlertDispatcher) Dispatch(ctx context.Context, alert billing.BudgetAlert) error {
	d.logger.Warn("budget alert",
		zap.String("event_id", alert.EventID.String()),
		zap.String("organization_id", alert.OrganizationID),
		zap.String("kind", alert.Kind.String()),
		zap.Float64("threshold_percent", alert.ThresholdPercent),
		zap.String("current_spend", alert.CurrentSpend.StringFixed(4)),
		zap.String("monthly_limit", alert.MonthlyLimit.StringFixed(4)),
		zap.String("projected_spend", alert.ProjectedSpend.StringFixed(4)),
		zap.Time("raised_at", alert.OccurredAt))
	return nil
}

// LogUsageSink records settled usage events to the log
type LogUsageSink struct {
	logger *zap.Logger
}

// NewLogUsageSink creates a sink that logs usage events
func NewLogUsageSink(logger *zap.Logger) *LogUsageSink {
	return &LogUsageSink{logger: logger}
}

// Record implements billing.UsageEventSink
func (s *LogUsageSink) Record(ctx context.Context, event billing.UsageEvent) error {
	s.logger.Info("usage event",
		zap.String("event_id", event.EventID.String()),
		zap.String("principal_id", event.PrincipalID),
		zap.String("organization_id", event.OrganizationID),
		zap.String("quota_type", event.QuotaType.String()),
		zap.Int64("amount", event.Amount),
		zap.String("cost", event.Cost.StringFixed(6)),
		zap.Time("timestamp", event.OccurredAt))
	return nil
}

var (
	_ billing.AlertDispatcher = (*LogAlertDispatcher)(nil)
	_ billing.UsageEventSink  = (*LogUsageSink)(nil)
)
