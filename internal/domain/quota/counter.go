package quota

import (
	"time"

	"github.com/aigw/backend/internal/domain/shared"
)

// Counter tracks periodic usage for one (principal, quota type) pair.
// The authoritative usage value lives in the Store; Counter carries the
// period math and limit semantics that every caller needs to agree on.
type Counter struct {
	PrincipalID string
	Type        QuotaType
	Limit       int64 // -1 = unlimited
	ResetPeriod ResetPeriod
	PeriodStart time.Time
	Usage       int64
}

// NewCounter creates a counter for the period containing now
func NewCounter(principalID string, quotaType QuotaType, limit int64, period ResetPeriod, now time.Time) (*Counter, error) {
	if principalID == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if !quotaType.IsValid() {
		return nil, shared.NewDomainError("INVALID_QUOTA_TYPE", "Invalid quota type")
	}
	if limit < -1 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Limit must be -1 (unlimited) or non-negative")
	}
	if !period.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESET_PERIOD", "Invalid reset period")
	}

	return &Counter{
		PrincipalID: principalID,
		Type:        quotaType,
		Limit:       limit,
		ResetPeriod: period,
		PeriodStart: PeriodStart(period, now),
	}, nil
}

// IsUnlimited returns true if the counter has no limit
func (c *Counter) IsUnlimited() bool {
	return c.Limit == -1
}

// NeedsReset returns true once the counter's period has elapsed.
// The reset itself is applied lazily and atomically by the Store.
func (c *Counter) NeedsReset(now time.Time) bool {
	return !PeriodStart(c.ResetPeriod, now).Equal(c.PeriodStart)
}

// ResetAt returns the instant the current period rolls over
func (c *Counter) ResetAt() time.Time {
	return PeriodEnd(c.ResetPeriod, c.PeriodStart)
}

// CanConsume checks if the given amount fits under the limit
func (c *Counter) CanConsume(amount int64) bool {
	if c.IsUnlimited() {
		return true
	}
	return c.Usage+amount <= c.Limit
}

// Remaining returns the unconsumed portion of the limit (-1 when unlimited)
func (c *Counter) Remaining() int64 {
	if c.IsUnlimited() {
		return -1
	}
	if remaining := c.Limit - c.Usage; remaining > 0 {
		return remaining
	}
	return 0
}

// UsagePercent returns usage as a percentage of the limit (0 when unlimited)
func (c *Counter) UsagePercent() float64 {
	if c.IsUnlimited() || c.Limit == 0 {
		return 0
	}
	return float64(c.Usage) / float64(c.Limit) * 100
}

// PeriodStart returns the start of the period containing now.
// Every process computes the same boundary for the same instant, which is
// what lets the Store apply period rollover as a compare-and-reset.
func PeriodStart(period ResetPeriod, now time.Time) time.Time {
	switch period {
	case ResetPeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	case ResetPeriodWeekly:
		// Start from Monday
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		daysFromMonday := weekday - 1
		return time.Date(now.Year(), now.Month(), now.Day()-daysFromMonday, 0, 0, 0, 0, now.Location())

	case ResetPeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
}

// PeriodEnd returns the first instant of the period after periodStart
func PeriodEnd(period ResetPeriod, periodStart time.Time) time.Time {
	switch period {
	case ResetPeriodDaily:
		return periodStart.AddDate(0, 0, 1)
	case ResetPeriodWeekly:
		return periodStart.AddDate(0, 0, 7)
	case ResetPeriodMonthly:
		return periodStart.AddDate(0, 1, 0)
	default:
		return periodStart.AddDate(0, 1, 0)
	}
}
