package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aigw/backend/internal/application/governance"
	"github.com/aigw/backend/internal/domain/billing"
	"github.com/aigw/backend/internal/domain/shared"
	"github.com/aigw/backend/internal/interfaces/http/dto"
)

// GovernanceHandler exposes the read-only governance surface
type GovernanceHandler struct {
	service *governance.AdmissionService
	ledger  *governance.BudgetLedger
}

// NewGovernanceHandler creates a new governance handler
func NewGovernanceHandler(service *governance.AdmissionService, ledger *governance.BudgetLedger) *GovernanceHandler {
	return &GovernanceHandler{
		service: service,
		ledger:  ledger,
	}
}

// GetStatus returns the caller's usage across quotas, rate limits and budget
func (h *GovernanceHandler) GetStatus(c *gin.Context) {
	principalID := c.GetHeader("X-Principal-ID")
	organizationID := c.GetHeader("X-Organization-ID")

	report, err := h.service.GetStatus(c.Request.Context(), principalID, organizationID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(report))
}

// GetAlerts returns the budget alerts raised for one organization, or for
// all organizations when none is given.
func (h *GovernanceHandler) GetAlerts(c *gin.Context) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		organizationID = c.GetHeader("X-Organization-ID")
	}

	alerts := h.ledger.GetAlerts(organizationID)
	if alerts == nil {
		alerts = []billing.BudgetAlert{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(alerts))
}

// Health reports liveness
func (h *GovernanceHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NoUpstream responds for gated routes when no upstream proxy handler has
// been mounted.
func NoUpstream(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, dto.NewErrorResponse("NO_UPSTREAM", "no upstream handler is configured"))
}

func (h *GovernanceHandler) handleError(c *gin.Context, err error) {
	if errors.Is(err, shared.ErrInvalidPrincipal) {
		c.JSON(http.StatusUnauthorized, dto.NewErrorResponse("INVALID_PRINCIPAL", err.Error()))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(domainErr.Code, domainErr.Message))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", "an unexpected error occurred"))
}
