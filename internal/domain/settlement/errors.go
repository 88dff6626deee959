package settlement

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsufficientFundsError is returned when a debit or hold would overdraw the
// seller's balance. It is an expected business error and safe to show callers.
type InsufficientFundsError struct {
	BalanceID uuid.UUID
	Available decimal.Decimal
	Required  decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, required %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// NewInsufficientFundsError creates a new InsufficientFundsError
func NewInsufficientFundsError(balanceID uuid.UUID, available, required decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{BalanceID: balanceID, Available: available, Required: required}
}

// LedgerIntegrityError signals that the ledger chain or the cached balance
// snapshot is corrupted. It is fatal for the current transaction: the operation
// must abort without writing and operators must be alerted. It is never
// auto-repaired.
type LedgerIntegrityError struct {
	BalanceID uuid.UUID
	Sequence  int64
	Reason    string
}

// Error implements the error interface
func (e *LedgerIntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation on balance %s at sequence %d: %s",
		e.BalanceID, e.Sequence, e.Reason)
}

// NewLedgerIntegrityError creates a new LedgerIntegrityError
func NewLedgerIntegrityError(balanceID uuid.UUID, sequence int64, reason string) *LedgerIntegrityError {
	return &LedgerIntegrityError{BalanceID: balanceID, Sequence: sequence, Reason: reason}
}

// PayoutStateError is returned when a payout transition outside the defined
// state graph is requested. It indicates a caller or programming error.
type PayoutStateError struct {
	PayoutID  uuid.UUID
	From      PayoutStatus
	Attempted string
}

// Error implements the error interface
func (e *PayoutStateError) Error() string {
	return fmt.Sprintf("invalid payout transition: cannot %s payout %s in %s status",
		e.Attempted, e.PayoutID, e.From)
}

// NewPayoutStateError creates a new PayoutStateError
func NewPayoutStateError(payoutID uuid.UUID, from PayoutStatus, attempted string) *PayoutStateError {
	return &PayoutStateError{PayoutID: payoutID, From: from, Attempted: attempted}
}

// IdempotencyConflictError is returned when an operation with the same
// idempotency key has already been applied. Callers should treat it as
// "already done" and use the prior result it carries.
type IdempotencyConflictError struct {
	IdempotencyKey string
	ExistingEntry  *LedgerEntry
}

// Error implements the error interface
func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("operation with idempotency key %q was already applied", e.IdempotencyKey)
}

// NewIdempotencyConflictError creates a new IdempotencyConflictError
func NewIdempotencyConflictError(key string, existing *LedgerEntry) *IdempotencyConflictError {
	return &IdempotencyConflictError{IdempotencyKey: key, ExistingEntry: existing}
}

// Commission calculation errors
var (
	ErrInvalidAmount       = fmt.Errorf("commission: gross amount must be positive")
	ErrUnsupportedCurrency = fmt.Errorf("commission: unsupported currency")
)
