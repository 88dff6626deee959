package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the status of a refund record
type RefundStatus string

const (
	// RefundStatusProcessed indicates the refund accounting was applied
	RefundStatusProcessed RefundStatus = "PROCESSED"
	// RefundStatusFailed indicates the refund could not be applied
	RefundStatusFailed RefundStatus = "FAILED"
)

// RefundRecord is the write-once accounting record of one refund event
// against a marketplace transaction.
type RefundRecord struct {
	shared.BaseEntity

	TransactionID      uuid.UUID       `json:"transaction_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Reason             string          `json:"reason"`
	Status             RefundStatus    `json:"status"`
	ReversePlatformFee bool            `json:"reverse_platform_fee"`
	ReversedFee        decimal.Decimal `json:"reversed_fee"`
	IdempotencyKey     string          `json:"idempotency_key"`
	ProcessedAt        time.Time       `json:"processed_at"`
}

// NewRefundRecord creates a refund record. reversedFee is the platform fee
// added back into the refund accounting; zero when no reversal applies. The
// idempotency key keeps a retried refund from producing a second record.
func NewRefundRecord(
	transactionID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	reason string,
	reversePlatformFee bool,
	reversedFee decimal.Decimal,
	idempotencyKey string,
) (*RefundRecord, error) {
	if transactionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TRANSACTION", "Transaction ID cannot be empty")
	}
	if idempotencyKey == "" {
		return nil, shared.NewDomainError("INVALID_IDEMPOTENCY_KEY", "Idempotency key cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if reversedFee.IsNegative() {
		return nil, shared.NewDomainError("INVALID_FEE", "Reversed fee cannot be negative")
	}
	if reversedFee.GreaterThan(amount) {
		return nil, shared.NewDomainError("INVALID_FEE", "Reversed fee cannot exceed refund amount")
	}

	return &RefundRecord{
		BaseEntity:         shared.NewBaseEntity(),
		TransactionID:      transactionID,
		Amount:             amount,
		Currency:           currency,
		Reason:             reason,
		Status:             RefundStatusProcessed,
		ReversePlatformFee: reversePlatformFee,
		ReversedFee:        reversedFee,
		IdempotencyKey:     idempotencyKey,
		ProcessedAt:        time.Now(),
	}, nil
}

// SellerDebit returns the amount to debit from the seller's available
// balance: the refunded amount minus whatever platform fee was given back.
func (r *RefundRecord) SellerDebit() decimal.Decimal {
	return r.Amount.Sub(r.ReversedFee)
}
