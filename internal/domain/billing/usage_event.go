package billing

import (
	"context"

	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UsageEvent is the immutable fact produced once per billable operation.
// The core consumes it transiently to update quota and budget counters and
// forwards it to the persistent ledger; it is never stored here.
type UsageEvent struct {
	shared.EventMeta

	PrincipalID    string          `json:"principal_id"`
	OrganizationID string          `json:"organization_id"`
	QuotaType      quota.QuotaType `json:"quota_type"`
	Amount         int64           `json:"amount"`
	Cost           decimal.Decimal `json:"cost"`
}

var _ shared.Event = UsageEvent{}

// UsageEventSink receives usage events for durable historical storage.
// Forwarding is fire-and-forget: a sink failure must never block or fail an
// admission decision.
type UsageEventSink interface {
	Record(ctx context.Context, event UsageEvent) error
}
