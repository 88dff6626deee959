package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SellerBalance is the per-seller balance aggregate root. It is a denormalized
// cache of the seller's ledger: available+pending must always equal the sum of
// credits minus debits in the chain. Mutations happen only under an exclusive
// row lock, in the same transaction as the ledger append that justifies them.
type SellerBalance struct {
	shared.BaseAggregateRoot

	SellerID       uuid.UUID       `json:"seller_id"`
	Available      decimal.Decimal `json:"available_balance"`
	Pending        decimal.Decimal `json:"pending_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	Currency       string          `json:"currency"`
}

// NewSellerBalance creates an empty balance for a seller. Balances are created
// lazily on first credit.
func NewSellerBalance(sellerID uuid.UUID, currency string) (*SellerBalance, error) {
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SELLER", "Seller ID cannot be empty")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}

	return &SellerBalance{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SellerID:          sellerID,
		Available:         decimal.Zero,
		Pending:           decimal.Zero,
		TotalEarned:       decimal.Zero,
		TotalWithdrawn:    decimal.Zero,
		Currency:          currency,
	}, nil
}

// Total returns available+pending, the figure the ledger chain tracks
func (b *SellerBalance) Total() decimal.Decimal {
	return b.Available.Add(b.Pending)
}

// Credit adds settled funds to the available balance and to lifetime earnings
func (b *SellerBalance) Credit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}

	b.Available = b.Available.Add(amount)
	b.TotalEarned = b.TotalEarned.Add(amount)
	b.UpdatedAt = time.Now()

	return nil
}

// Debit removes funds. The source decides which bucket pays: payout
// completions consume the pending (held) bucket and count toward lifetime
// withdrawals, everything else consumes the available bucket.
func (b *SellerBalance) Debit(amount decimal.Decimal, source LedgerSource) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Debit amount must be positive")
	}

	if source == LedgerSourcePayoutCompleted {
		if b.Pending.LessThan(amount) {
			return NewInsufficientFundsError(b.ID, b.Pending, amount)
		}
		b.Pending = b.Pending.Sub(amount)
		b.TotalWithdrawn = b.TotalWithdrawn.Add(amount)
	} else {
		if b.Available.LessThan(amount) {
			return NewInsufficientFundsError(b.ID, b.Available, amount)
		}
		b.Available = b.Available.Sub(amount)
	}
	b.UpdatedAt = time.Now()

	return nil
}

// HoldFunds moves funds from available to pending without changing total equity
func (b *SellerBalance) HoldFunds(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Hold amount must be positive")
	}
	if b.Available.LessThan(amount) {
		return NewInsufficientFundsError(b.ID, b.Available, amount)
	}

	b.Available = b.Available.Sub(amount)
	b.Pending = b.Pending.Add(amount)
	b.UpdatedAt = time.Now()

	return nil
}

// ReleaseHeldFunds moves funds from pending back to available. A pending
// balance smaller than the release amount means some upstream state is
// corrupted, not that the caller made a routine mistake, so it is reported as
// a ledger integrity failure.
func (b *SellerBalance) ReleaseHeldFunds(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Release amount must be positive")
	}
	if b.Pending.LessThan(amount) {
		return NewLedgerIntegrityError(b.ID, 0,
			"pending balance "+b.Pending.StringFixed(2)+
				" is smaller than hold release of "+amount.StringFixed(2))
	}

	b.Pending = b.Pending.Sub(amount)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()

	return nil
}

// BalanceVerification compares the cached snapshot against ledger truth
type BalanceVerification struct {
	Valid       bool            `json:"valid"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// VerifyAgainstLedger checks that available+pending equals the balance derived
// from the chain. A non-zero discrepancy signals drift requiring operator
// attention; it is reported, never silently corrected.
func (b *SellerBalance) VerifyAgainstLedger(summary LedgerSummary) BalanceVerification {
	actual := b.Total()
	discrepancy := actual.Sub(summary.Balance)
	return BalanceVerification{
		Valid:       discrepancy.IsZero(),
		Expected:    summary.Balance,
		Actual:      actual,
		Discrepancy: discrepancy,
	}
}
