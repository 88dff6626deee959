package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionStatus tracks where a marketplace transaction sits in the
// settlement flow. Listing, checkout and fulfillment live in other services;
// the settlement engine only cares about the escrow lifecycle.
type TransactionStatus string

const (
	// TransactionStatusEscrowed means buyer funds are held centrally
	TransactionStatusEscrowed TransactionStatus = "ESCROWED"
	// TransactionStatusSettled means the net amount was credited to the seller
	TransactionStatusSettled TransactionStatus = "SETTLED"
	// TransactionStatusRefunded means the full gross amount was refunded
	TransactionStatusRefunded TransactionStatus = "REFUNDED"
)

// IsValid checks if the status is valid
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusEscrowed, TransactionStatusSettled, TransactionStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// EscrowTransaction is the settlement engine's view of a marketplace
// transaction: who sold, for how much, and whether the escrowed funds were
// settled or refunded.
type EscrowTransaction struct {
	shared.BaseAggregateRoot

	SellerID    uuid.UUID         `json:"seller_id"`
	GrossAmount decimal.Decimal   `json:"gross_amount"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	SettledAt   *time.Time        `json:"settled_at,omitempty"`
	RefundedAt  *time.Time        `json:"refunded_at,omitempty"`
}

// NewEscrowTransaction creates an escrowed transaction awaiting settlement
func NewEscrowTransaction(sellerID uuid.UUID, grossAmount decimal.Decimal, currency string) (*EscrowTransaction, error) {
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID cannot be empty")
	}
	if grossAmount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Gross amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}

	return &EscrowTransaction{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SellerID:          sellerID,
		GrossAmount:       grossAmount,
		Currency:          currency,
		Status:            TransactionStatusEscrowed,
	}, nil
}

// IsEscrowed returns true while funds are still held
func (t *EscrowTransaction) IsEscrowed() bool {
	return t.Status == TransactionStatusEscrowed
}

// IsSettled returns true once the seller was credited
func (t *EscrowTransaction) IsSettled() bool {
	return t.Status == TransactionStatusSettled
}

// MarkSettled records the escrow release to the seller
func (t *EscrowTransaction) MarkSettled() error {
	if t.Status == TransactionStatusSettled {
		return nil
	}
	if t.Status != TransactionStatusEscrowed {
		return shared.NewDomainError("INVALID_STATE",
			"Cannot settle a transaction in "+t.Status.String()+" status")
	}

	now := time.Now()
	t.Status = TransactionStatusSettled
	t.SettledAt = &now
	t.UpdatedAt = now

	return nil
}

// MarkRefunded records a full refund of the transaction
func (t *EscrowTransaction) MarkRefunded() error {
	if t.Status == TransactionStatusRefunded {
		return nil
	}

	now := time.Now()
	t.Status = TransactionStatusRefunded
	t.RefundedAt = &now
	t.UpdatedAt = now

	return nil
}
