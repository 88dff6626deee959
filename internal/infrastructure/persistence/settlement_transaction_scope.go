package persistence

import (
	"context"

	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appsettlement.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Balances returns the seller balance repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Balances() settlement.SellerBalanceRepository {
	return NewGormSellerBalanceRepository(r.tx)
}

// Ledger returns the ledger entry repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Ledger() settlement.LedgerEntryRepository {
	return NewGormLedgerEntryRepository(r.tx)
}

// Payouts returns the payout request repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Payouts() settlement.PayoutRequestRepository {
	return NewGormPayoutRequestRepository(r.tx)
}

// Commissions returns the commission record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Commissions() settlement.CommissionRecordRepository {
	return NewGormCommissionRecordRepository(r.tx)
}

// Refunds returns the refund record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Refunds() settlement.RefundRecordRepository {
	return NewGormRefundRecordRepository(r.tx)
}

// Transactions returns the escrow transaction repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Transactions() settlement.EscrowTransactionRepository {
	return NewGormEscrowTransactionRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appsettlement.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appsettlement.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
