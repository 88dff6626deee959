package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// LedgerHandler handles ledger inspection endpoints. Everything here is
// read-only; entries are only ever written through the balance protocol.
type LedgerHandler struct {
	BaseHandler
	ledgerService *appsettlement.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService *appsettlement.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// ListEntries returns a page of ledger entries for one balance, newest first
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	balanceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid balance ID format")
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), balanceID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, entries, total, req.Page, req.PageSize)
}

// VerifyChain walks the full hash chain of one balance and reports the
// first break, if any
func (h *LedgerHandler) VerifyChain(c *gin.Context) {
	balanceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid balance ID format")
		return
	}

	verification, err := h.ledgerService.VerifyChainIntegrity(c.Request.Context(), balanceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, verification)
}

// Summary recomputes the balance totals from ledger history alone
func (h *LedgerHandler) Summary(c *gin.Context) {
	balanceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid balance ID format")
		return
	}

	summary, err := h.ledgerService.CalculateBalanceFromLedger(c.Request.Context(), balanceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, summary)
}
