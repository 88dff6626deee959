package settlement

import (
	"context"
	"fmt"

	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReconciliationAlertHandler escalates reconciliation mismatches. A mismatch
// means the cached balance and the ledger disagree about money, so it is
// logged at error level and written to the audit trail for the on-call
// operator. The handler never mutates anything; repairs stay manual.
type ReconciliationAlertHandler struct {
	logger *zap.Logger
	audit  AuditRecorder
}

// NewReconciliationAlertHandler creates a new ReconciliationAlertHandler
func NewReconciliationAlertHandler(audit AuditRecorder, logger *zap.Logger) *ReconciliationAlertHandler {
	return &ReconciliationAlertHandler{logger: logger, audit: audit}
}

// EventTypes returns the event types this handler is interested in
func (h *ReconciliationAlertHandler) EventTypes() []string {
	return []string{settlement.EventTypeReconciliationMismatch}
}

// Handle escalates one mismatch event
func (h *ReconciliationAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	mismatch, ok := event.(*settlement.ReconciliationMismatchEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			settlement.EventTypeReconciliationMismatch, event.EventType())
	}

	h.logger.Error("balance drift detected",
		zap.String("balance_id", mismatch.BalanceID.String()),
		zap.String("expected", mismatch.Expected.String()),
		zap.String("actual", mismatch.Actual.String()),
		zap.String("discrepancy", mismatch.Discrepancy.String()),
	)

	h.audit.Record(ctx, AuditEntry{
		Actor:        "reconciliation",
		Action:       "reconciliation.mismatch_detected",
		ResourceType: "SellerBalance",
		ResourceID:   mismatch.BalanceID.String(),
		Before:       mismatch.Expected,
		After:        mismatch.Actual,
		Risk:         RiskLevelHigh,
		Success:      true,
	})
	return nil
}

// Ensure ReconciliationAlertHandler implements shared.EventHandler
var _ shared.EventHandler = (*ReconciliationAlertHandler)(nil)
