package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LedgerEntryRepository persists the append-only ledger. Entries are never
// updated or deleted; the storage layer enforces a unique index on
// (balance_id, sequence) and on (balance_id, idempotency_key) so both the
// chain ordering and idempotent replay are structural guarantees.
type LedgerEntryRepository interface {
	// Append persists a new entry
	Append(ctx context.Context, entry *LedgerEntry) error

	// FindLastByBalance returns the highest-sequence entry, nil for an empty chain
	FindLastByBalance(ctx context.Context, balanceID uuid.UUID) (*LedgerEntry, error)

	// FindAllByBalance returns all entries in ascending sequence order
	FindAllByBalance(ctx context.Context, balanceID uuid.UUID) ([]*LedgerEntry, error)

	// FindByIdempotencyKey returns the entry recorded for a key, nil if none
	FindByIdempotencyKey(ctx context.Context, balanceID uuid.UUID, key string) (*LedgerEntry, error)

	// FindByTransaction returns entries linked to an escrow transaction with the given source
	FindByTransaction(ctx context.Context, transactionID uuid.UUID, source LedgerSource) ([]*LedgerEntry, error)

	// ListByBalance returns a page of entries in descending sequence order
	ListByBalance(ctx context.Context, balanceID uuid.UUID, filter shared.Filter) ([]*LedgerEntry, int64, error)
}

// SellerBalanceRepository persists seller balance aggregates
type SellerBalanceRepository interface {
	// FindByID finds a balance by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SellerBalance, error)

	// FindBySellerID finds a seller's balance, nil if not yet created
	FindBySellerID(ctx context.Context, sellerID uuid.UUID) (*SellerBalance, error)

	// FindBySellerIDForUpdate finds a seller's balance under an exclusive row
	// lock. Must be called inside a transaction; the lock serializes all
	// concurrent mutations against the same seller.
	FindBySellerIDForUpdate(ctx context.Context, sellerID uuid.UUID) (*SellerBalance, error)

	// FindByIDForUpdate locks a balance by its ID
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*SellerBalance, error)

	// Save creates or updates a balance
	Save(ctx context.Context, balance *SellerBalance) error

	// List returns a page of balances
	List(ctx context.Context, filter shared.Filter) ([]*SellerBalance, int64, error)

	// ListIDs returns the IDs of all balances, for reconciliation scans
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CommissionRecordRepository persists write-once commission records
type CommissionRecordRepository interface {
	// Create persists a new record; the transaction ID is unique
	Create(ctx context.Context, record *CommissionRecord) error

	// FindByTransactionID returns the record for a transaction, nil if none
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*CommissionRecord, error)
}

// PayoutRequestRepository persists payout requests
type PayoutRequestRepository interface {
	// FindByID finds a payout request by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)

	// FindByIDForUpdate locks a payout request for a state transition
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*PayoutRequest, error)

	// Save creates or updates a payout request
	Save(ctx context.Context, payout *PayoutRequest) error

	// FindByStatus returns payouts in the given statuses, oldest first
	FindByStatus(ctx context.Context, statuses []PayoutStatus, limit int) ([]*PayoutRequest, error)

	// SumHeldByBalance sums the amounts of payouts that currently hold funds
	// (PENDING, APPROVED, PROCESSING) for a balance
	SumHeldByBalance(ctx context.Context, balanceID uuid.UUID, statuses []PayoutStatus) (decimal.Decimal, error)

	// List returns a page of payout requests
	List(ctx context.Context, filter shared.Filter) ([]*PayoutRequest, int64, error)
}

// RefundRecordRepository persists write-once refund records
type RefundRecordRepository interface {
	// Create persists a new refund record
	Create(ctx context.Context, record *RefundRecord) error

	// FindByTransactionID returns all refunds recorded against a transaction
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*RefundRecord, error)

	// FindByIdempotencyKey returns the refund recorded under the key, or nil
	FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*RefundRecord, error)
}

// EscrowTransactionRepository persists the settlement view of transactions
type EscrowTransactionRepository interface {
	// FindByID finds a transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*EscrowTransaction, error)

	// FindByIDForUpdate locks a transaction for settlement or refund
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*EscrowTransaction, error)

	// Save creates or updates a transaction
	Save(ctx context.Context, tx *EscrowTransaction) error
}
