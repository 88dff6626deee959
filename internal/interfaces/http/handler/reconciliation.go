package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
)

// ReconciliationHandler handles reconciliation API endpoints. Reconciliation
// only reads and reports; repairs stay a human decision.
type ReconciliationHandler struct {
	BaseHandler
	reconciliationService *appsettlement.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *appsettlement.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

// ReconcileBalance re-derives one balance from its ledger and reports drift
func (h *ReconciliationHandler) ReconcileBalance(c *gin.Context) {
	balanceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid balance ID format")
		return
	}

	report, err := h.reconciliationService.ReconcileBalance(c.Request.Context(), balanceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}

// RunSystemWide sweeps every balance and aggregates the findings
func (h *ReconciliationHandler) RunSystemWide(c *gin.Context) {
	report, err := h.reconciliationService.RunSystemWideReconciliation(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
