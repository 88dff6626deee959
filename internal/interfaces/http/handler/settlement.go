package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/shopspring/decimal"
)

// SettlementHandler handles escrow transaction API endpoints
type SettlementHandler struct {
	BaseHandler
	settlementService *appsettlement.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlementService *appsettlement.SettlementService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
	}
}

// RecordEscrowRequest registers a transaction whose buyer funds are held
type RecordEscrowRequest struct {
	SellerID    string `json:"seller_id" binding:"required,uuid"`
	GrossAmount string `json:"gross_amount" binding:"required"`
	Currency    string `json:"currency" binding:"required,len=3"`
}

// ReleaseEscrowRequest carries the idempotency key for a release
type ReleaseEscrowRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=255"`
}

// RefundRequest carries a full or partial refund against a transaction
type RefundRequest struct {
	Amount             string `json:"amount" binding:"required"`
	Reason             string `json:"reason" binding:"required,max=500"`
	ReversePlatformFee bool   `json:"reverse_platform_fee"`
	IdempotencyKey     string `json:"idempotency_key" binding:"required,max=255"`
}

// RecordEscrow registers a new escrowed transaction
func (h *SettlementHandler) RecordEscrow(c *gin.Context) {
	var req RecordEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		h.BadRequest(c, "Invalid seller ID format")
		return
	}

	grossAmount, err := decimal.NewFromString(req.GrossAmount)
	if err != nil {
		h.BadRequest(c, "Invalid gross amount format")
		return
	}

	tx, err := h.settlementService.RecordEscrow(c.Request.Context(), sellerID, grossAmount, req.Currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, tx)
}

// GetTransaction returns one escrow transaction
func (h *SettlementHandler) GetTransaction(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	tx, err := h.settlementService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, tx)
}

// Release settles an escrowed transaction to the seller
func (h *SettlementHandler) Release(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	var req ReleaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.settlementService.ReleaseEscrowToSeller(c.Request.Context(), transactionID, req.IdempotencyKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Refund records a refund against a transaction, debiting the seller when
// the transaction had already been settled
func (h *SettlementHandler) Refund(c *gin.Context) {
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
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

	result, err := h.settlementService.ProcessRefund(c.Request.Context(), transactionID,
		amount, req.Reason, req.ReversePlatformFee, req.IdempotencyKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
