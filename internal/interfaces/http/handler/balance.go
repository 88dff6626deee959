package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// BalanceHandler handles seller balance API endpoints
type BalanceHandler struct {
	BaseHandler
	balanceService *appsettlement.BalanceService
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(balanceService *appsettlement.BalanceService) *BalanceHandler {
	return &BalanceHandler{
		balanceService: balanceService,
	}
}

// AdjustmentRequest represents a manual balance correction
type AdjustmentRequest struct {
	SellerID       string `json:"seller_id" binding:"required,uuid"`
	Amount         string `json:"amount" binding:"required"`
	Direction      string `json:"direction" binding:"required,oneof=credit debit"`
	Description    string `json:"description" binding:"required,max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=255"`
}

// List returns a page of seller balances
func (h *BalanceHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	}

	balances, total, err := h.balanceService.ListBalances(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, balances, total, req.Page, req.PageSize)
}

// GetBySeller returns one seller's balance
func (h *BalanceHandler) GetBySeller(c *gin.Context) {
	sellerID, err := uuid.Parse(c.Param("sellerId"))
	if err != nil {
		h.BadRequest(c, "Invalid seller ID format")
		return
	}

	balance, err := h.balanceService.GetBalance(c.Request.Context(), sellerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, balance)
}

// VerifyBySeller re-derives the seller's balance from its ledger and
// reports whether the snapshot matches
func (h *BalanceHandler) VerifyBySeller(c *gin.Context) {
	sellerID, err := uuid.Parse(c.Param("sellerId"))
	if err != nil {
		h.BadRequest(c, "Invalid seller ID format")
		return
	}

	verification, err := h.balanceService.VerifyBalance(c.Request.Context(), sellerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, verification)
}

// Adjust applies an operator-initiated correction to a seller's balance
func (h *BalanceHandler) Adjust(c *gin.Context) {
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		h.BadRequest(c, "Invalid seller ID format")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.BadRequest(c, "Invalid amount format")
		return
	}
	if !amount.IsPositive() {
		h.BadRequest(c, "Amount must be positive")
		return
	}

	actor := "operator"
	if adminID, err := getUserID(c); err == nil {
		actor = adminID.String()
	}

	opReq := appsettlement.BalanceOperationRequest{
		SellerID:       sellerID,
		Amount:         amount,
		Source:         settlement.LedgerSourceManualAdjustment,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	}

	var result *appsettlement.BalanceOperationResult
	if req.Direction == "credit" {
		result, err = h.balanceService.Credit(c.Request.Context(), opReq)
	} else {
		result, err = h.balanceService.Debit(c.Request.Context(), opReq)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
