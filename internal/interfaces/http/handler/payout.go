package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// PayoutHandler handles payout request API endpoints
type PayoutHandler struct {
	BaseHandler
	payoutService     *appsettlement.PayoutService
	settlementService *appsettlement.SettlementService
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(
	payoutService *appsettlement.PayoutService,
	settlementService *appsettlement.SettlementService,
) *PayoutHandler {
	return &PayoutHandler{
		payoutService:     payoutService,
		settlementService: settlementService,
	}
}

// RejectPayoutRequest carries the operator's rejection reason
type RejectPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// CompletePayoutRequest carries the provider's settlement confirmation
type CompletePayoutRequest struct {
	ProviderPayoutID string `json:"provider_payout_id" binding:"required,max=255"`
	ProviderResponse string `json:"provider_response" binding:"max=4000"`
	IdempotencyKey   string `json:"idempotency_key" binding:"required,max=255"`
}

// ListPayoutsRequest represents payout list query parameters
type ListPayoutsRequest struct {
	dto.ListRequest
	Status   string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED PROCESSING COMPLETED FAILED"`
	SellerID string `form:"seller_id" binding:"omitempty,uuid"`
}

// Request creates a new payout request, holding the amount in the same
// transaction
func (h *PayoutHandler) Request(c *gin.Context) {
	var input appsettlement.PayoutRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.payoutService.RequestPayout(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// List returns a page of payout requests
func (h *PayoutHandler) List(c *gin.Context) {
	req := ListPayoutsRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Filters:  map[string]interface{}{},
	}
	if req.Status != "" {
		filter.Filters["status"] = req.Status
	}
	if req.SellerID != "" {
		filter.Filters["seller_id"] = req.SellerID
	}

	payouts, total, err := h.payoutService.ListPayouts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, payouts, total, req.Page, req.PageSize)
}

// GetByID returns one payout request
func (h *PayoutHandler) GetByID(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payout ID format")
		return
	}

	payout, err := h.payoutService.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// Approve transitions a PENDING payout to APPROVED
func (h *PayoutHandler) Approve(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payout ID format")
		return
	}

	adminID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Admin identity required")
		return
	}

	payout, err := h.payoutService.ApprovePayout(c.Request.Context(), payoutID, adminID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// Reject transitions a PENDING payout to REJECTED and releases the held funds
func (h *PayoutHandler) Reject(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payout ID format")
		return
	}

	adminID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Admin identity required")
		return
	}

	var req RejectPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	payout, err := h.payoutService.RejectPayout(c.Request.Context(), payoutID, adminID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// Process submits an APPROVED payout to the payment provider
func (h *PayoutHandler) Process(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payout ID format")
		return
	}

	payout, err := h.payoutService.ProcessPayout(c.Request.Context(), payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// Complete records the provider's confirmation and debits the held funds
func (h *PayoutHandler) Complete(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payout ID format")
		return
	}

	var req CompletePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.settlementService.CompletePayout(c.Request.Context(), payoutID,
		req.ProviderPayoutID, req.ProviderResponse, req.IdempotencyKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
