package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigw/backend/internal/application/governance"
	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/infrastructure/metrics"
	"github.com/aigw/backend/internal/interfaces/http/dto"
)

const (
	// PrincipalHeader identifies the API key or principal making the request
	PrincipalHeader = "X-Principal-ID"

	// OrganizationHeader identifies the billing organization
	OrganizationHeader = "X-Organization-ID"

	// EstimatedAmountHeader optionally overrides the per-request usage estimate
	EstimatedAmountHeader = "X-Estimated-Amount"

	// EstimatedCostHeader optionally carries the request's estimated cost
	EstimatedCostHeader = "X-Estimated-Cost"

	actualAmountKey = "governance_actual_amount"
	actualCostKey   = "governance_actual_cost"
	decisionKey     = "governance_decision"
	admitInputKey   = "governance_admit_input"
)

// AdmissionConfig tunes the admission middleware
type AdmissionConfig struct {
	// QuotaType is the usage dimension metered per request
	QuotaType quota.QuotaType
	// DefaultEstimatedAmount applies when the request carries no estimate
	DefaultEstimatedAmount int64
}

// Admission returns a gin middleware that gates every request through the
// admission service and settles actual usage after the handler runs.
// Denials map to 429 (rate/quota) or 402 (budget) with retry hints in the
// response headers.
func Admission(service *governance.AdmissionService, cfg AdmissionConfig, m *metrics.Metrics, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.QuotaType.IsValid() {
		cfg.QuotaType = quota.QuotaTypeRequests
	}
	if cfg.DefaultEstimatedAmount <= 0 {
		cfg.DefaultEstimatedAmount = 1
	}

	return func(c *gin.Context) {
		principalID := c.GetHeader(PrincipalHeader)
		organizationID := c.GetHeader(OrganizationHeader)
		if principalID == "" || organizationID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, deniedBody("INVALID_PRINCIPAL",
				"principal and organization headers are required", nil))
			return
		}

		input := governance.AdmitInput{
			PrincipalID:     principalID,
			OrganizationID:  organizationID,
			Route:           c.FullPath(),
			QuotaType:       cfg.QuotaType,
			EstimatedAmount: estimatedAmount(c, cfg.DefaultEstimatedAmount),
			EstimatedCost:   estimatedCost(c),
		}

		start := time.Now()
		decision, err := service.Admit(c.Request.Context(), input)
		if m != nil {
			m.ObserveAdmitDuration(time.Since(start).Seconds())
		}
		if err != nil {
			logger.Error("admission check failed",
				zap.String("principal_id", principalID),
				zap.String("organization_id", organizationID),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, deniedBody("STORAGE_UNAVAILABLE",
				"admission check could not be completed", nil))
			return
		}

		writeRateHeaders(c, decision)
		if m != nil {
			m.RecordDecision(decision.Allowed, string(decision.Reason))
		}

		if !decision.Allowed {
			abortDenied(c, decision, m)
			return
		}

		c.Set(decisionKey, decision)
		c.Set(admitInputKey, input)

		c.Next()

		settle(c, service, input, decision, m, logger)
	}
}

// SetActualUsage lets a handler report what the request actually consumed,
// so settlement reconciles the reservation against real usage.
func SetActualUsage(c *gin.Context, amount int64, cost decimal.Decimal) {
	c.Set(actualAmountKey, amount)
	c.Set(actualCostKey, cost)
}

// GetDecision returns the admission decision for the current request
func GetDecision(c *gin.Context) (*governance.Decision, bool) {
	value, exists := c.Get(decisionKey)
	if !exists {
		return nil, false
	}
	decision, ok := value.(*governance.Decision)
	return decision, ok
}

func settle(c *gin.Context, service *governance.AdmissionService, input governance.AdmitInput, decision *governance.Decision, m *metrics.Metrics, logger *zap.Logger) {
	actualAmount := input.EstimatedAmount
	if value, exists := c.Get(actualAmountKey); exists {
		if amount, ok := value.(int64); ok {
			actualAmount = amount
		}
	}
	actualCost := input.EstimatedCost
	if value, exists := c.Get(actualCostKey); exists {
		if cost, ok := value.(decimal.Decimal); ok {
			actualCost = cost
		}
	}

	err := service.Settle(c.Request.Context(), governance.SettleInput{
		PrincipalID:    input.PrincipalID,
		OrganizationID: input.OrganizationID,
		QuotaType:      input.QuotaType,
		ReservedAmount: decision.ReservedAmount,
		ActualAmount:   actualAmount,
		ActualCost:     actualCost,
	})
	if err != nil {
		logger.Error("settlement failed",
			zap.String("principal_id", input.PrincipalID),
			zap.String("organization_id", input.OrganizationID),
			zap.Error(err))
		return
	}
	if m != nil {
		m.RecordSettlement()
	}
}

func abortDenied(c *gin.Context, decision *governance.Decision, m *metrics.Metrics) {
	switch decision.Reason {
	case governance.ReasonRateLimited:
		if m != nil {
			m.RecordRateDenial()
		}
		c.Header("Retry-After", retryAfterSeconds(decision.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, deniedBody(
			string(decision.Reason), decision.Rate.Err.Error(), decision.Rate))

	case governance.ReasonQuotaExceeded:
		if m != nil {
			m.RecordQuotaDenial(decision.Quota.QuotaType.String())
		}
		writeQuotaHeaders(c, decision.Quota)
		c.Header("Retry-After", retryAfterSeconds(time.Until(decision.Quota.ResetAt)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, deniedBody(
			string(decision.Reason), decision.Quota.Err.Error(), decision.Quota))

	case governance.ReasonBudgetExceeded:
		if m != nil {
			m.RecordBudgetDenial()
			m.UpdateBudgetUsage(c.GetHeader(OrganizationHeader), decision.Budget.UsagePercent)
		}
		c.AbortWithStatusJSON(http.StatusPaymentRequired, deniedBody(
			string(decision.Reason), decision.Budget.Err.Error(), decision.Budget))

	default:
		c.AbortWithStatusJSON(http.StatusForbidden, deniedBody(string(decision.Reason), "request denied", nil))
	}
}

func writeRateHeaders(c *gin.Context, decision *governance.Decision) {
	if decision.Rate == nil || decision.Rate.Limit < 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Rate.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Rate.Remaining, 10))
	if !decision.Rate.ResetAt.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.Rate.ResetAt.Unix(), 10))
	}
}

func writeQuotaHeaders(c *gin.Context, q *governance.QuotaDecision) {
	c.Header("X-Quota-Limit", strconv.FormatInt(q.Limit, 10))
	c.Header("X-Quota-Remaining", strconv.FormatInt(q.Remaining, 10))
	c.Header("X-Quota-Reset", strconv.FormatInt(q.ResetAt.Unix(), 10))
}

func estimatedAmount(c *gin.Context, fallback int64) int64 {
	raw := c.GetHeader(EstimatedAmountHeader)
	if raw == "" {
		return fallback
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount < 0 {
		return fallback
	}
	return amount
}

func estimatedCost(c *gin.Context) decimal.Decimal {
	raw := c.GetHeader(EstimatedCostHeader)
	if raw == "" {
		return decimal.Zero
	}
	cost, err := decimal.NewFromString(raw)
	if err != nil || cost.IsNegative() {
		return decimal.Zero
	}
	return cost
}

func deniedBody(code, message string, details interface{}) dto.Response {
	if details == nil {
		return dto.NewErrorResponse(code, message)
	}
	return dto.NewErrorResponseWithDetails(code, message, details)
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int64(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
