package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PayoutStatus represents the lifecycle state of a payout request
type PayoutStatus string

const (
	// PayoutStatusPending indicates the payout awaits review
	PayoutStatusPending PayoutStatus = "PENDING"
	// PayoutStatusApproved indicates an admin approved the payout
	PayoutStatusApproved PayoutStatus = "APPROVED"
	// PayoutStatusRejected indicates an admin rejected the payout
	PayoutStatusRejected PayoutStatus = "REJECTED"
	// PayoutStatusProcessing indicates the payout was handed to the provider
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	// PayoutStatusCompleted indicates the provider confirmed the payout
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
	// PayoutStatusFailed indicates the provider failed or responded ambiguously
	PayoutStatusFailed PayoutStatus = "FAILED"
)

// IsValid checks if the status is a valid PayoutStatus
func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusApproved, PayoutStatusRejected,
		PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PayoutStatus
func (s PayoutStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are possible
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusRejected || s == PayoutStatusCompleted || s == PayoutStatusFailed
}

// HoldsFunds returns true while the payout keeps seller funds in the pending
// bucket. Failed payouts keep funds held on purpose: an ambiguous provider
// failure needs human review before money moves again.
func (s PayoutStatus) HoldsFunds() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusApproved, PayoutStatusProcessing, PayoutStatusFailed:
		return true
	}
	return false
}

// PayoutRequest is the aggregate root for a seller withdrawal. Its lifecycle
// is a strict state machine:
//
//	PENDING -> APPROVED | REJECTED
//	APPROVED -> PROCESSING
//	PROCESSING -> COMPLETED | FAILED
//
// Any other transition raises a PayoutStateError, except that repeating the
// action that produced the current state is an idempotent no-op.
type PayoutRequest struct {
	shared.BaseAggregateRoot

	SellerID  uuid.UUID       `json:"seller_id"`
	BalanceID uuid.UUID       `json:"balance_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    PayoutStatus    `json:"status"`

	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"` // Provider-specific recipient details (JSON)

	ApprovedBy      *uuid.UUID `json:"approved_by,omitempty"`
	RejectedBy      *uuid.UUID `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`

	ProviderPayoutID string `json:"provider_payout_id,omitempty"`
	ProviderResponse string `json:"provider_response,omitempty"` // Raw provider response (JSON)

	RequestedAt  time.Time  `json:"requested_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// NewPayoutRequest creates a PENDING payout request. The corresponding funds
// hold is the caller's responsibility and must happen in the same transaction
// as the creation.
func NewPayoutRequest(
	sellerID uuid.UUID,
	balanceID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	paymentMethod string,
	paymentDetails string,
) (*PayoutRequest, error) {
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID cannot be empty")
	}
	if balanceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BALANCE", "Balance ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payout amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if paymentMethod == "" {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", "Payment method cannot be empty")
	}

	p := &PayoutRequest{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SellerID:          sellerID,
		BalanceID:         balanceID,
		Amount:            amount,
		Currency:          currency,
		Status:            PayoutStatusPending,
		PaymentMethod:     paymentMethod,
		PaymentDetails:    paymentDetails,
		RequestedAt:       time.Now(),
	}

	p.AddDomainEvent(NewPayoutRequestedEvent(p))

	return p, nil
}

// Approve transitions PENDING -> APPROVED. Re-approval by the same admin of an
// already approved request is a no-op.
func (p *PayoutRequest) Approve(adminID uuid.UUID) error {
	if p.Status == PayoutStatusApproved && p.ApprovedBy != nil && *p.ApprovedBy == adminID {
		return nil
	}
	if p.Status != PayoutStatusPending {
		return NewPayoutStateError(p.ID, p.Status, "approve")
	}

	now := time.Now()
	p.Status = PayoutStatusApproved
	p.ApprovedBy = &adminID
	p.ApprovedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(NewPayoutApprovedEvent(p))

	return nil
}

// Reject transitions PENDING -> REJECTED. The held funds release must happen
// in the same transaction. Re-rejection by the same admin is a no-op.
func (p *PayoutRequest) Reject(adminID uuid.UUID, reason string) error {
	if p.Status == PayoutStatusRejected && p.RejectedBy != nil && *p.RejectedBy == adminID {
		return nil
	}
	if p.Status != PayoutStatusPending {
		return NewPayoutStateError(p.ID, p.Status, "reject")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason cannot be empty")
	}

	now := time.Now()
	p.Status = PayoutStatusRejected
	p.RejectedBy = &adminID
	p.RejectionReason = reason
	p.RejectedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(NewPayoutRejectedEvent(p))

	return nil
}

// MarkProcessing transitions APPROVED -> PROCESSING before the provider call
func (p *PayoutRequest) MarkProcessing() error {
	if p.Status == PayoutStatusProcessing {
		return nil
	}
	if p.Status != PayoutStatusApproved {
		return NewPayoutStateError(p.ID, p.Status, "process")
	}

	now := time.Now()
	p.Status = PayoutStatusProcessing
	p.ProcessingAt = &now
	p.UpdatedAt = now

	return nil
}

// SetProviderReference records the provider's payout reference while the
// request stays PROCESSING, e.g. when the provider answers asynchronously.
func (p *PayoutRequest) SetProviderReference(providerPayoutID, rawResponse string) {
	p.ProviderPayoutID = providerPayoutID
	p.ProviderResponse = rawResponse
	p.UpdatedAt = time.Now()
}

// Complete transitions PROCESSING -> COMPLETED with the provider's reference.
// Completing an already completed payout is a no-op.
func (p *PayoutRequest) Complete(providerPayoutID, rawResponse string) error {
	if p.Status == PayoutStatusCompleted {
		return nil
	}
	if p.Status != PayoutStatusProcessing {
		return NewPayoutStateError(p.ID, p.Status, "complete")
	}

	now := time.Now()
	p.Status = PayoutStatusCompleted
	p.ProviderPayoutID = providerPayoutID
	p.ProviderResponse = rawResponse
	p.CompletedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(NewPayoutCompletedEvent(p))

	return nil
}

// Fail transitions PROCESSING -> FAILED. Held funds are NOT released: if the
// provider actually succeeded asynchronously, releasing would allow double
// payment, so the funds wait for human review.
func (p *PayoutRequest) Fail(reason, rawResponse string) error {
	if p.Status == PayoutStatusFailed {
		return nil
	}
	if p.Status != PayoutStatusProcessing {
		return NewPayoutStateError(p.ID, p.Status, "fail")
	}

	now := time.Now()
	p.Status = PayoutStatusFailed
	p.FailureReason = reason
	if rawResponse != "" {
		p.ProviderResponse = rawResponse
	}
	p.FailedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(NewPayoutFailedEvent(p))

	return nil
}
