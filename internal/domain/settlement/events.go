package settlement

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event types for notification dispatch. Consumers are external; delivery is
// fire-and-forget and never rolls back the financial transaction.
const (
	EventTypeEscrowReleased         = "settlement.escrow_released"
	EventTypeRefundProcessed        = "settlement.refund_processed"
	EventTypePayoutRequested        = "settlement.payout_requested"
	EventTypePayoutApproved         = "settlement.payout_approved"
	EventTypePayoutRejected         = "settlement.payout_rejected"
	EventTypePayoutCompleted        = "settlement.payout_completed"
	EventTypePayoutFailed           = "settlement.payout_failed"
	EventTypeReconciliationMismatch = "settlement.reconciliation_mismatch"
)

// EscrowReleasedEvent is emitted when an escrowed transaction settles
type EscrowReleasedEvent struct {
	shared.BaseDomainEvent
	TransactionID uuid.UUID       `json:"transaction_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// NewEscrowReleasedEvent creates a new EscrowReleasedEvent
func NewEscrowReleasedEvent(tx *EscrowTransaction, net decimal.Decimal) *EscrowReleasedEvent {
	return &EscrowReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEscrowReleased, "EscrowTransaction", tx.ID),
		TransactionID:   tx.ID,
		SellerID:        tx.SellerID,
		GrossAmount:     tx.GrossAmount,
		NetAmount:       net,
	}
}

// RefundProcessedEvent is emitted when a refund's accounting is applied
type RefundProcessedEvent struct {
	shared.BaseDomainEvent
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReversedFee   decimal.Decimal `json:"reversed_fee"`
}

// NewRefundProcessedEvent creates a new RefundProcessedEvent
func NewRefundProcessedEvent(refund *RefundRecord) *RefundProcessedEvent {
	return &RefundProcessedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefundProcessed, "RefundRecord", refund.ID),
		TransactionID:   refund.TransactionID,
		Amount:          refund.Amount,
		ReversedFee:     refund.ReversedFee,
	}
}

// PayoutRequestedEvent is emitted when a seller requests a payout
type PayoutRequestedEvent struct {
	shared.BaseDomainEvent
	SellerID uuid.UUID       `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewPayoutRequestedEvent creates a new PayoutRequestedEvent
func NewPayoutRequestedEvent(p *PayoutRequest) *PayoutRequestedEvent {
	return &PayoutRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutRequested, "PayoutRequest", p.ID),
		SellerID:        p.SellerID,
		Amount:          p.Amount,
	}
}

// PayoutApprovedEvent is emitted when an admin approves a payout
type PayoutApprovedEvent struct {
	shared.BaseDomainEvent
	SellerID   uuid.UUID       `json:"seller_id"`
	Amount     decimal.Decimal `json:"amount"`
	ApprovedBy *uuid.UUID      `json:"approved_by,omitempty"`
}

// NewPayoutApprovedEvent creates a new PayoutApprovedEvent
func NewPayoutApprovedEvent(p *PayoutRequest) *PayoutApprovedEvent {
	return &PayoutApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutApproved, "PayoutRequest", p.ID),
		SellerID:        p.SellerID,
		Amount:          p.Amount,
		ApprovedBy:      p.ApprovedBy,
	}
}

// PayoutRejectedEvent is emitted when an admin rejects a payout
type PayoutRejectedEvent struct {
	shared.BaseDomainEvent
	SellerID uuid.UUID       `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
}

// NewPayoutRejectedEvent creates a new PayoutRejectedEvent
func NewPayoutRejectedEvent(p *PayoutRequest) *PayoutRejectedEvent {
	return &PayoutRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutRejected, "PayoutRequest", p.ID),
		SellerID:        p.SellerID,
		Amount:          p.Amount,
		Reason:          p.RejectionReason,
	}
}

// PayoutCompletedEvent is emitted when the provider confirms a payout
type PayoutCompletedEvent struct {
	shared.BaseDomainEvent
	SellerID         uuid.UUID       `json:"seller_id"`
	Amount           decimal.Decimal `json:"amount"`
	ProviderPayoutID string          `json:"provider_payout_id"`
}

// NewPayoutCompletedEvent creates a new PayoutCompletedEvent
func NewPayoutCompletedEvent(p *PayoutRequest) *PayoutCompletedEvent {
	return &PayoutCompletedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypePayoutCompleted, "PayoutRequest", p.ID),
		SellerID:         p.SellerID,
		Amount:           p.Amount,
		ProviderPayoutID: p.ProviderPayoutID,
	}
}

// PayoutFailedEvent is emitted when a payout fails at the provider
type PayoutFailedEvent struct {
	shared.BaseDomainEvent
	SellerID uuid.UUID       `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
}

// NewPayoutFailedEvent creates a new PayoutFailedEvent
func NewPayoutFailedEvent(p *PayoutRequest) *PayoutFailedEvent {
	return &PayoutFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutFailed, "PayoutRequest", p.ID),
		SellerID:        p.SellerID,
		Amount:          p.Amount,
		Reason:          p.FailureReason,
	}
}

// ReconciliationMismatchEvent is emitted when drift between snapshot and
// ledger truth is detected
type ReconciliationMismatchEvent struct {
	shared.BaseDomainEvent
	BalanceID   uuid.UUID       `json:"balance_id"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// NewReconciliationMismatchEvent creates a new ReconciliationMismatchEvent
func NewReconciliationMismatchEvent(balanceID uuid.UUID, v BalanceVerification) *ReconciliationMismatchEvent {
	return &ReconciliationMismatchEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReconciliationMismatch, "SellerBalance", balanceID),
		BalanceID:       balanceID,
		Expected:        v.Expected,
		Actual:          v.Actual,
		Discrepancy:     v.Discrepancy,
	}
}
