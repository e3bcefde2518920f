package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/domain/shared"
)

// DecisionReason says which check denied an admission
type DecisionReason string

const (
	// ReasonRateLimited means the sliding-window rate limit rejected the request
	ReasonRateLimited DecisionReason = "RATE_LIMITED"

	// ReasonQuotaExceeded means the period quota ceiling rejected the request
	ReasonQuotaExceeded DecisionReason = "QUOTA_EXCEEDED"

	// ReasonBudgetExceeded means the organization budget rejected the request
	ReasonBudgetExceeded DecisionReason = "BUDGET_EXCEEDED"
)

// AdmitInput identifies one inbound request and its estimated footprint
type AdmitInput struct {
	PrincipalID    string
	OrganizationID string
	// Route optionally scopes the rate-limit key; requests with the same
	// principal and route share a window.
	Route           string
	QuotaType       quota.QuotaType
	EstimatedAmount int64
	EstimatedCost   decimal.Decimal
}

// SettleInput reconciles a previously admitted request with what it
// actually consumed. ReservedAmount is the estimate Admit consumed; the
// settlement adjusts the counter by the difference.
type SettleInput struct {
	PrincipalID    string
	OrganizationID string
	QuotaType      quota.QuotaType
	ReservedAmount int64
	ActualAmount   int64
	ActualCost     decimal.Decimal
}

// Decision is the structured outcome of an admission check. Denials carry
// the full state of the check that failed so the transport layer can build
// an informative response without reaching back into the core.
type Decision struct {
	Allowed    bool            `json:"allowed"`
	Reason     DecisionReason  `json:"reason,omitempty"`
	RetryAfter time.Duration   `json:"retry_after,omitempty"`
	Rate       *RateDecision   `json:"rate,omitempty"`
	Quota      *QuotaDecision  `json:"quota,omitempty"`
	Budget     *BudgetDecision `json:"budget,omitempty"`
	// ReservedAmount is the quota already consumed on behalf of this
	// request; Settle needs it back to reconcile against actual usage.
	ReservedAmount int64 `json:"reserved_amount,omitempty"`
}

// QuotaStatus is one quota type's usage in a status report
type QuotaStatus struct {
	QuotaType    quota.QuotaType `json:"quota_type"`
	CurrentUsage int64           `json:"current_usage"`
	Limit        int64           `json:"limit"`
	Remaining    int64           `json:"remaining"`
	UsagePercent float64         `json:"usage_percent"`
	ResetAt      time.Time       `json:"reset_at"`
}

// StatusReport is a read-only view of a principal's standing across all
// three governance dimensions.
type StatusReport struct {
	PrincipalID    string          `json:"principal_id"`
	OrganizationID string          `json:"organization_id"`
	PlanID         string          `json:"plan_id"`
	Quotas         []QuotaStatus   `json:"quotas"`
	RateLimit      int64           `json:"rate_limit"`
	RateRemaining  int64           `json:"rate_remaining"`
	RateWindow     time.Duration   `json:"rate_window"`
	Budget         *BudgetDecision `json:"budget"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// AdmissionServiceOption configures an AdmissionService
type AdmissionServiceOption func(*AdmissionService)

// WithAdmissionLogger sets the logger
func WithAdmissionLogger(logger *zap.Logger) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.logger = logger
	}
}

// WithUsageEventSink sets the sink that receives settled usage events
func WithUsageEventSink(sink billing.UsageEventSink) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.events = sink
	}
}

// AdmissionService is the single entry point request handlers call. Admit
// runs the rate, quota and budget checks in order with short-circuit on the
// first denial; Settle reconciles estimates with measured usage once the
// request completes.
type AdmissionService struct {
	rates   *RateLimiter
	quotas  *QuotaManager
	budgets *BudgetLedger
	events  billing.UsageEventSink
	logger  *zap.Logger
	now     func() time.Time
}

// NewAdmissionService wires the three governance services together
func NewAdmissionService(rates *RateLimiter, quotas *QuotaManager, budgets *BudgetLedger, opts ...AdmissionServiceOption) *AdmissionService {
	s := &AdmissionService{
		rates:   rates,
		quotas:  quotas,
		budgets: budgets,
		logger:  zap.NewNop(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Admit decides whether one request may proceed. Checks run cheapest first:
// rate limit, then quota, then budget. The quota check consumes the
// estimated amount atomically; a later budget denial rolls that
// reservation back so a rejected request wastes no quota.
func (s *AdmissionService) Admit(ctx context.Context, input AdmitInput) (*Decision, error) {
	if input.PrincipalID == "" || input.OrganizationID == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if !input.QuotaType.IsValid() {
		return nil, shared.NewDomainError("INVALID_QUOTA_TYPE", fmt.Sprintf("unknown quota type: %s", input.QuotaType))
	}

	plan, err := s.quotas.PlanLimits(ctx, input.PrincipalID)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.Allow(ctx, s.rateKey(input), plan.RateLimit, 0)
	if err != nil {
		return nil, err
	}
	if !rate.Allowed {
		return &Decision{
			Reason:     ReasonRateLimited,
			RetryAfter: rate.RetryAfter,
			Rate:       rate,
		}, nil
	}

	quotaDecision, err := s.quotas.ConsumeQuota(ctx, input.PrincipalID, input.QuotaType, input.EstimatedAmount)
	if err != nil {
		return nil, err
	}
	if !quotaDecision.Allowed {
		return &Decision{
			Reason: ReasonQuotaExceeded,
			Rate:   rate,
			Quota:  quotaDecision,
		}, nil
	}

	budgetDecision, err := s.budgets.CheckBudget(ctx, input.OrganizationID, input.EstimatedCost)
	if err != nil {
		s.releaseReservation(ctx, input)
		return nil, err
	}
	if !budgetDecision.Allowed {
		s.releaseReservation(ctx, input)
		return &Decision{
			Reason: ReasonBudgetExceeded,
			Rate:   rate,
			Quota:  quotaDecision,
			Budget: budgetDecision,
		}, nil
	}

	return &Decision{
		Allowed:        true,
		Rate:           rate,
		Quota:          quotaDecision,
		Budget:         budgetDecision,
		ReservedAmount: input.EstimatedAmount,
	}, nil
}

// Settle records what an admitted request actually consumed: the quota
// counter is adjusted by the difference from the reservation, the actual
// cost lands in the budget ledger, and the usage event is forwarded to the
// durable sink without blocking the caller.
func (s *AdmissionService) Settle(ctx context.Context, input SettleInput) error {
	if input.PrincipalID == "" || input.OrganizationID == "" {
		return shared.ErrInvalidPrincipal
	}
	if !input.QuotaType.IsValid() {
		return shared.NewDomainError("INVALID_QUOTA_TYPE", fmt.Sprintf("unknown quota type: %s", input.QuotaType))
	}
	if input.ActualAmount < 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "actual amount must not be negative")
	}

	if delta := input.ActualAmount - input.ReservedAmount; delta != 0 {
		if _, err := s.quotas.AdjustUsage(ctx, input.PrincipalID, input.QuotaType, delta); err != nil {
			return fmt.Errorf("reconcile quota usage: %w", err)
		}
	}

	if _, err := s.budgets.RecordSpend(ctx, input.OrganizationID, input.ActualCost); err != nil {
		return fmt.Errorf("record spend: %w", err)
	}

	s.forwardUsage(ctx, billing.UsageEvent{
		EventMeta:      shared.NewEventMeta(s.now()),
		PrincipalID:    input.PrincipalID,
		OrganizationID: input.OrganizationID,
		QuotaType:      input.QuotaType,
		Amount:         input.ActualAmount,
		Cost:           input.ActualCost,
	})

	return nil
}

// GetStatus assembles a read-only report of the principal's usage, rate
// standing and the organization's budget.
func (s *AdmissionService) GetStatus(ctx context.Context, principalID, organizationID string) (*StatusReport, error) {
	if principalID == "" || organizationID == "" {
		return nil, shared.ErrInvalidPrincipal
	}

	plan, err := s.quotas.PlanLimits(ctx, principalID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	quotas := make([]QuotaStatus, 0, len(plan.QuotaLimits))
	for _, quotaType := range quota.AllQuotaTypes() {
		counter, err := quota.NewCounter(principalID, quotaType, plan.QuotaLimit(quotaType), s.quotas.Period(), now)
		if err != nil {
			return nil, err
		}
		if counter.IsUnlimited() {
			continue
		}
		counter.Usage, err = s.quotas.Usage(ctx, principalID, quotaType)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, QuotaStatus{
			QuotaType:    quotaType,
			CurrentUsage: counter.Usage,
			Limit:        counter.Limit,
			Remaining:    counter.Remaining(),
			UsagePercent: counter.UsagePercent(),
			ResetAt:      counter.ResetAt(),
		})
	}

	rateRemaining, err := s.rates.Remaining(ctx, principalID, plan.RateLimit, 0)
	if err != nil {
		return nil, err
	}

	budget, err := s.budgets.Status(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	return &StatusReport{
		PrincipalID:    principalID,
		OrganizationID: organizationID,
		PlanID:         plan.PlanID,
		Quotas:         quotas,
		RateLimit:      plan.RateLimit,
		RateRemaining:  rateRemaining,
		RateWindow:     s.rates.Window(),
		Budget:         budget,
		GeneratedAt:    now,
	}, nil
}

// releaseReservation undoes the quota consumed for a request that a later
// check rejected.
func (s *AdmissionService) releaseReservation(ctx context.Context, input AdmitInput) {
	if input.EstimatedAmount == 0 {
		return
	}
	if _, err := s.quotas.AdjustUsage(ctx, input.PrincipalID, input.QuotaType, -input.EstimatedAmount); err != nil {
		s.logger.Warn("failed to release quota reservation",
			zap.String("principal_id", input.PrincipalID),
			zap.String("quota_type", input.QuotaType.String()),
			zap.Int64("amount", input.EstimatedAmount),
			zap.Error(err))
	}
}

// forwardUsage hands the event to the sink on a detached context so a slow
// or failing sink never delays settlement.
func (s *AdmissionService) forwardUsage(ctx context.Context, event billing.UsageEvent) {
	if s.events == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := s.events.Record(detached, event); err != nil {
			s.logger.Warn("failed to forward usage event",
				zap.String("principal_id", event.PrincipalID),
				zap.String("organization_id", event.OrganizationID),
				zap.Error(err))
		}
	}()
}

func (s *AdmissionService) rateKey(input AdmitInput) string {
	if input.Route == "" {
		return input.PrincipalID
	}
	return input.PrincipalID + ":" + input.Route
}
