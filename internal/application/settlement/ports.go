package settlement

import (
	"context"
	"time"

	"github.com/marketplace/backend/internal/domain/settlement"
)

// TransactionalRepositories provides access to all settlement repositories
// scoped to one database transaction. Every balance mutation and the ledger
// append that justifies it go through the same instance, so they commit or
// roll back as a unit.
type TransactionalRepositories interface {
	Balances() settlement.SellerBalanceRepository
	Ledger() settlement.LedgerEntryRepository
	Payouts() settlement.PayoutRequestRepository
	Commissions() settlement.CommissionRecordRepository
	Refunds() settlement.RefundRecordRepository
	Transactions() settlement.EscrowTransactionRepository
}

// TransactionScope executes a function within a database transaction.
// If the function returns an error the transaction rolls back; partial
// application of a multi-step settlement workflow must be impossible.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// RiskLevel classifies the sensitivity of an audited action
type RiskLevel string

const (
	// RiskLevelLow marks routine reads and reversible actions
	RiskLevelLow RiskLevel = "LOW"
	// RiskLevelMedium marks balance mutations inside normal flows
	RiskLevelMedium RiskLevel = "MEDIUM"
	// RiskLevelHigh marks money leaving the platform or integrity findings
	RiskLevelHigh RiskLevel = "HIGH"
)

// AuditEntry is one record produced for every mutating operation
type AuditEntry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Before       any
	After        any
	Risk         RiskLevel
	Success      bool
	Error        string
}

// AuditRecorder is the sink for audit records. Recording is best-effort:
// a failing recorder never rolls back the financial transaction it describes.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// RateCounter is a shared counter with TTL-based reset, used by the
// automation engine's rolling-hour caps. Backed by an atomic increment with
// expiry so multiple instances see the same window.
type RateCounter interface {
	// Increment adds delta to the counter for key, creating it with the given
	// window on first use, and returns the new value.
	Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, error)

	// Current returns the counter's current value, zero if expired or unset.
	Current(ctx context.Context, key string) (int64, error)
}
