package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Test environment
// =============================================================================

type testEnv struct {
	state      *memState
	scope      *memScope
	publisher  *capturingPublisher
	audit      *capturingAudit
	counter    *memCounter
	provider   *stubProvider
	balances   *BalanceService
	settlement *SettlementService
	payouts    *PayoutService
	recon      *ReconciliationService
}

func newTestEnv() *testEnv {
	state := newMemState()
	scope := &memScope{state: state}
	publisher := &capturingPublisher{}
	audit := &capturingAudit{}
	counter := newMemCounter()
	provider := &stubProvider{}
	logger := zap.NewNop()

	calculator := settlement.NewCommissionCalculator(settlement.DefaultCommissionSchedule())
	settlementSvc := NewSettlementService(scope, calculator, publisher, audit, logger)

	return &testEnv{
		state:      state,
		scope:      scope,
		publisher:  publisher,
		audit:      audit,
		counter:    counter,
		provider:   provider,
		balances:   NewBalanceService(scope, &memBalanceRepo{state}, &memLedgerRepo{state}, audit, logger),
		settlement: settlementSvc,
		payouts:    NewPayoutService(scope, settlementSvc, provider, publisher, audit, logger),
		recon:      NewReconciliationService(scope, publisher, audit, logger),
	}
}

func (e *testEnv) escrowTransaction(t *testing.T, sellerID uuid.UUID, gross string) *settlement.EscrowTransaction {
	t.Helper()
	tx, err := settlement.NewEscrowTransaction(sellerID, decimal.RequireFromString(gross), settlement.SupportedCurrency)
	require.NoError(t, err)
	e.state.transactions[tx.ID] = tx
	return tx
}

func (e *testEnv) sellerBalance(sellerID uuid.UUID) *settlement.SellerBalance {
	for _, b := range e.state.balances {
		if b.SellerID == sellerID {
			return b
		}
	}
	return nil
}

// =============================================================================
// ReleaseEscrowToSeller
// =============================================================================

func TestSettlementService_ReleaseEscrowToSeller_Success(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "20000")

	result, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Replayed)

	// 20000 falls in the 3% tier; processor fee is 2.5% + 5.00 flat
	assert.Equal(t, "600.00", result.Commission.PlatformFee.StringFixed(2))
	assert.Equal(t, "505.00", result.Commission.ProcessorFee.StringFixed(2))
	assert.Equal(t, "18895.00", result.Commission.NetAmount.StringFixed(2))

	assert.Equal(t, settlement.TransactionStatusSettled, result.Transaction.Status)
	assert.NotNil(t, result.Transaction.SettledAt)

	balance := env.sellerBalance(sellerID)
	require.NotNil(t, balance)
	assert.Equal(t, "18895.00", balance.Available.StringFixed(2))
	assert.Equal(t, "18895.00", balance.TotalEarned.StringFixed(2))
	assert.True(t, balance.Pending.IsZero())

	// First chain entry starts at sequence 1 from the genesis marker
	entry := result.Credit.Entry
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Equal(t, settlement.GenesisHash, entry.PreviousHash)
	assert.Equal(t, settlement.LedgerSourceEscrowRelease, entry.Source)

	assert.Contains(t, env.publisher.eventTypes(), settlement.EventTypeEscrowReleased)
}

func TestSettlementService_ReleaseEscrowToSeller_Replay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "1000")

	first, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)

	second, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Commission.ID, second.Commission.ID)

	// The seller was credited exactly once
	balance := env.sellerBalance(sellerID)
	assert.Equal(t, "920.00", balance.Available.StringFixed(2))
	entries := env.state.ledger[balance.ID]
	assert.Len(t, entries, 1)
}

func TestSettlementService_ReleaseEscrowToSeller_NotEscrowed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "500")
	require.NoError(t, tx.MarkRefunded())

	result, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "REFUNDED")
	assert.Nil(t, env.sellerBalance(sellerID))
}

func TestSettlementService_ReleaseEscrowToSeller_TransactionNotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	result, err := env.settlement.ReleaseEscrowToSeller(ctx, uuid.New(), "release-1")

	assert.Error(t, err)
	assert.Nil(t, result)
}

// =============================================================================
// ProcessRefund
// =============================================================================

func TestSettlementService_ProcessRefund_SettledWithFeeReversal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "20000")
	other := env.escrowTransaction(t, sellerID, "20000")

	_, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)
	_, err = env.settlement.ReleaseEscrowToSeller(ctx, other.ID, "release-2")
	require.NoError(t, err)

	result, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("20000"), "buyer returned item", true, "refund-1")

	require.NoError(t, err)
	require.NotNil(t, result.Debit)

	// Full refund with fee reversal debits amount minus the reversed
	// platform fee: 20000 - 600 = 19400
	assert.Equal(t, "600.00", result.Refund.ReversedFee.StringFixed(2))
	assert.Equal(t, "19400.00", result.Refund.SellerDebit().StringFixed(2))
	assert.Equal(t, "19400.00", result.Debit.Entry.Amount.StringFixed(2))

	// 2 x 18895 credited, 19400 debited
	balance := env.sellerBalance(sellerID)
	assert.Equal(t, "18390.00", balance.Available.StringFixed(2))

	assert.Equal(t, settlement.TransactionStatusRefunded, env.state.transactions[tx.ID].Status)
	assert.Contains(t, env.publisher.eventTypes(), settlement.EventTypeRefundProcessed)
}

func TestSettlementService_ProcessRefund_Replay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "20000")
	other := env.escrowTransaction(t, sellerID, "20000")

	_, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)
	_, err = env.settlement.ReleaseEscrowToSeller(ctx, other.ID, "release-2")
	require.NoError(t, err)

	first, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("20000"), "buyer returned item", true, "refund-1")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	again, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("20000"), "buyer returned item", true, "refund-1")

	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Refund.ID, again.Refund.ID)

	// Exactly one record, and the seller was debited exactly once
	assert.Len(t, env.state.refunds[tx.ID], 1)
	balance := env.sellerBalance(sellerID)
	assert.Equal(t, "18390.00", balance.Available.StringFixed(2))
}

func TestSettlementService_ProcessRefund_KeyReuseAcrossTransactions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "1000")
	other := env.escrowTransaction(t, sellerID, "1000")

	_, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("200"), "partial return", false, "refund-1")
	require.NoError(t, err)

	result, err := env.settlement.ProcessRefund(ctx, other.ID,
		decimal.RequireFromString("200"), "partial return", false, "refund-1")

	assert.Nil(t, result)
	var conflictErr *settlement.IdempotencyConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Empty(t, env.state.refunds[other.ID])
}

func TestSettlementService_ProcessRefund_InsufficientFundsAborts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "20000")

	_, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)

	// The seller only received 18895 net; a full refund with fee reversal
	// needs 19400 and must fail rather than overdraw the balance
	result, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("20000"), "buyer returned item", true, "refund-1")

	assert.Error(t, err)
	assert.Nil(t, result)
	var insufficientErr *settlement.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficientErr)
}

func TestSettlementService_ProcessRefund_PartialNoSellerDebitBeforeSettlement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "1000")

	result, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("400"), "partial return", false, "refund-1")

	require.NoError(t, err)
	assert.Nil(t, result.Debit, "escrowed funds were never credited, nothing to debit")
	assert.Equal(t, "400.00", result.Refund.Amount.StringFixed(2))
	assert.True(t, result.Refund.ReversedFee.IsZero())

	// Partial refund leaves the transaction escrowed
	assert.Equal(t, settlement.TransactionStatusEscrowed, env.state.transactions[tx.ID].Status)
}

func TestSettlementService_ProcessRefund_PartialNoFeeReversal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	sellerID := uuid.New()
	tx := env.escrowTransaction(t, sellerID, "1000")

	_, err := env.settlement.ReleaseEscrowToSeller(ctx, tx.ID, "release-1")
	require.NoError(t, err)

	// Fee reversal is requested but the refund is partial, so no fee reverses
	result, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("300"), "partial return", true, "refund-1")

	require.NoError(t, err)
	require.NotNil(t, result.Debit)
	assert.True(t, result.Refund.ReversedFee.IsZero())
	assert.Equal(t, "300.00", result.Debit.Entry.Amount.StringFixed(2))

	balance := env.sellerBalance(sellerID)
	assert.Equal(t, "620.00", balance.Available.StringFixed(2)) // 920 - 300
}

func TestSettlementService_ProcessRefund_AmountExceedsGross(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	tx := env.escrowTransaction(t, uuid.New(), "100")

	result, err := env.settlement.ProcessRefund(ctx, tx.ID,
		decimal.RequireFromString("150"), "too much", false, "refund-1")

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "exceeds")
}
