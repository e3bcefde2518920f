package governance

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aigw/backend/internal/domain/quota"
)

// RateLimitedError is returned when a request exceeds the sliding-window
// rate limit for its key. RetryAfter is the minimum wait until the oldest
// event falls out of the window.
type RateLimitedError struct {
	Key        string        `json:"key"`
	Limit      int64         `json:"limit"`
	Window     time.Duration `json:"window"`
	RetryAfter time.Duration `json:"retry_after"`
	Message    string        `json:"message"`
}

func (e *RateLimitedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per %s, retry after %s",
		e.Key, e.Limit, e.Window, e.RetryAfter.Round(time.Millisecond))
}

// HTTPStatusCode returns the HTTP status code this error maps to.
func (e *RateLimitedError) HTTPStatusCode() int {
	return http.StatusTooManyRequests
}

// QuotaExceededError is returned when consuming a quota would push usage
// past the plan ceiling and the plan does not allow overage.
type QuotaExceededError struct {
	PrincipalID  string          `json:"principal_id"`
	QuotaType    quota.QuotaType `json:"quota_type"`
	CurrentUsage int64           `json:"current_usage"`
	Limit        int64           `json:"limit"`
	ResetAt      time.Time       `json:"reset_at"`
	Message      string          `json:"message"`
}

func (e *QuotaExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("quota exceeded for %s: %s usage %d of %d, resets at %s",
		e.PrincipalID, e.QuotaType, e.CurrentUsage, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// HTTPStatusCode returns the HTTP status code this error maps to.
func (e *QuotaExceededError) HTTPStatusCode() int {
	return http.StatusTooManyRequests
}

// BudgetExceededError is returned when an organization's budget is in the
// exceeded state, or when an estimated cost would push spend past the
// monthly limit.
type BudgetExceededError struct {
	OrganizationID string          `json:"organization_id"`
	CurrentSpend   decimal.Decimal `json:"current_spend"`
	MonthlyLimit   decimal.Decimal `json:"monthly_limit"`
	Message        string          `json:"message"`
}

func (e *BudgetExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("budget exceeded for organization %s: spend %s of %s",
		e.OrganizationID, e.CurrentSpend.StringFixed(2), e.MonthlyLimit.StringFixed(2))
}

// HTTPStatusCode returns the HTTP status code this error maps to.
func (e *BudgetExceededError) HTTPStatusCode() int {
	return http.StatusPaymentRequired
}
