package handler

import (
	"github.com/gin-gonic/gin"
	appsettlement "github.com/marketplace/backend/internal/application/settlement"
)

// AutomationHandler handles auto-approval engine API endpoints
type AutomationHandler struct {
	BaseHandler
	automationService *appsettlement.AutomationService
}

// NewAutomationHandler creates a new AutomationHandler
func NewAutomationHandler(automationService *appsettlement.AutomationService) *AutomationHandler {
	return &AutomationHandler{
		automationService: automationService,
	}
}

// SetEnabledRequest toggles the automation kill switch
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetDryRunRequest toggles dry-run evaluation
type SetDryRunRequest struct {
	DryRun *bool `json:"dry_run" binding:"required"`
}

// GetConfig returns the current automation configuration
func (h *AutomationHandler) GetConfig(c *gin.Context) {
	h.Success(c, h.automationService.Config())
}

// SetEnabled flips the automation kill switch
func (h *AutomationHandler) SetEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	adminID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Admin identity required")
		return
	}

	h.automationService.SetEnabled(c.Request.Context(), *req.Enabled, adminID.String())
	h.Success(c, h.automationService.Config())
}

// SetDryRun flips dry-run evaluation
func (h *AutomationHandler) SetDryRun(c *gin.Context) {
	var req SetDryRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	adminID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Admin identity required")
		return
	}

	h.automationService.SetDryRun(c.Request.Context(), *req.DryRun, adminID.String())
	h.Success(c, h.automationService.Config())
}

// Run triggers one auto-approval sweep and returns its report
func (h *AutomationHandler) Run(c *gin.Context) {
	report, err := h.automationService.RunAutoApproval(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
