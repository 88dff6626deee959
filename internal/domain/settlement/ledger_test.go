package settlement_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEntry(t *testing.T, balanceID uuid.UUID, entryType settlement.LedgerEntryType,
	source settlement.LedgerSource, amount int64, total decimal.Decimal,
	previous *settlement.LedgerEntry) *settlement.LedgerEntry {
	t.Helper()
	entry, err := settlement.NewLedgerEntry(
		balanceID, entryType, source,
		decimal.NewFromInt(amount), settlement.SupportedCurrency,
		total, previous, "test entry", uuid.NewString(),
	)
	require.NoError(t, err)
	return entry
}

func TestNewLedgerEntry_FirstEntry(t *testing.T) {
	balanceID := uuid.New()

	entry, err := settlement.NewLedgerEntry(
		balanceID,
		settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease,
		decimal.NewFromInt(1000),
		settlement.SupportedCurrency,
		decimal.Zero,
		nil,
		"escrow release",
		"key-1",
	)

	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Equal(t, settlement.GenesisHash, entry.PreviousHash)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, entry.ComputeHash(), entry.Hash)
	assert.Equal(t, "key-1", entry.IdempotencyKey())
}

func TestNewLedgerEntry_Validation(t *testing.T) {
	balanceID := uuid.New()

	tests := []struct {
		name      string
		balanceID uuid.UUID
		entryType settlement.LedgerEntryType
		source    settlement.LedgerSource
		amount    decimal.Decimal
		currency  string
	}{
		{
			name:      "nil balance id",
			balanceID: uuid.Nil,
			entryType: settlement.LedgerEntryTypeCredit,
			source:    settlement.LedgerSourceEscrowRelease,
			amount:    decimal.NewFromInt(10),
			currency:  settlement.SupportedCurrency,
		},
		{
			name:      "invalid entry type",
			balanceID: balanceID,
			entryType: settlement.LedgerEntryType("TRANSFER"),
			source:    settlement.LedgerSourceEscrowRelease,
			amount:    decimal.NewFromInt(10),
			currency:  settlement.SupportedCurrency,
		},
		{
			name:      "invalid source",
			balanceID: balanceID,
			entryType: settlement.LedgerEntryTypeCredit,
			source:    settlement.LedgerSource("UNKNOWN"),
			amount:    decimal.NewFromInt(10),
			currency:  settlement.SupportedCurrency,
		},
		{
			name:      "zero amount",
			balanceID: balanceID,
			entryType: settlement.LedgerEntryTypeCredit,
			source:    settlement.LedgerSourceEscrowRelease,
			amount:    decimal.Zero,
			currency:  settlement.SupportedCurrency,
		},
		{
			name:      "negative amount",
			balanceID: balanceID,
			entryType: settlement.LedgerEntryTypeDebit,
			source:    settlement.LedgerSourceRefundIssued,
			amount:    decimal.NewFromInt(-5),
			currency:  settlement.SupportedCurrency,
		},
		{
			name:      "empty currency",
			balanceID: balanceID,
			entryType: settlement.LedgerEntryTypeCredit,
			source:    settlement.LedgerSourceEscrowRelease,
			amount:    decimal.NewFromInt(10),
			currency:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := settlement.NewLedgerEntry(
				tt.balanceID, tt.entryType, tt.source, tt.amount, tt.currency,
				decimal.Zero, nil, "", "",
			)
			assert.Error(t, err)
		})
	}
}

func TestNewLedgerEntry_SnapshotMismatchIsFatal(t *testing.T) {
	balanceID := uuid.New()
	first := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease, 1000, decimal.Zero, nil)

	// Snapshot says 900 but the chain tail says 1000.
	_, err := settlement.NewLedgerEntry(
		balanceID,
		settlement.LedgerEntryTypeDebit,
		settlement.LedgerSourceRefundIssued,
		decimal.NewFromInt(100),
		settlement.SupportedCurrency,
		decimal.NewFromInt(900),
		first,
		"",
		"",
	)

	require.Error(t, err)
	var integrityErr *settlement.LedgerIntegrityError
	assert.ErrorAs(t, err, &integrityErr)
}

func TestNewLedgerEntry_HoldKeepsTotal(t *testing.T) {
	balanceID := uuid.New()
	first := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease, 1000, decimal.Zero, nil)

	hold := mustEntry(t, balanceID, settlement.LedgerEntryTypeHold,
		settlement.LedgerSourcePayoutHold, 500, first.BalanceAfter, first)

	assert.Equal(t, int64(2), hold.Sequence)
	assert.Equal(t, first.Hash, hold.PreviousHash)
	assert.True(t, hold.BalanceAfter.Equal(first.BalanceAfter), "hold must not change total equity")
}

func TestVerifyChain_ValidChain(t *testing.T) {
	balanceID := uuid.New()
	e1 := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease, 1000, decimal.Zero, nil)
	e2 := mustEntry(t, balanceID, settlement.LedgerEntryTypeHold,
		settlement.LedgerSourcePayoutHold, 400, e1.BalanceAfter, e1)
	e3 := mustEntry(t, balanceID, settlement.LedgerEntryTypeDebit,
		settlement.LedgerSourcePayoutCompleted, 400, e2.BalanceAfter, e2)

	result := settlement.VerifyChain(balanceID, []*settlement.LedgerEntry{e1, e2, e3})

	assert.True(t, result.Valid)
	assert.Equal(t, int64(3), result.LastSequence)
	assert.Nil(t, result.BrokenIndex)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(600)))
}

func TestVerifyChain_EmptyChain(t *testing.T) {
	result := settlement.VerifyChain(uuid.New(), nil)

	assert.True(t, result.Valid)
	assert.Equal(t, int64(0), result.LastSequence)
	assert.True(t, result.Balance.IsZero())
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	balanceID := uuid.New()

	build := func() []*settlement.LedgerEntry {
		e1 := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
			settlement.LedgerSourceEscrowRelease, 1000, decimal.Zero, nil)
		e2 := mustEntry(t, balanceID, settlement.LedgerEntryTypeDebit,
			settlement.LedgerSourceRefundIssued, 200, e1.BalanceAfter, e1)
		return []*settlement.LedgerEntry{e1, e2}
	}

	t.Run("amount mutated", func(t *testing.T) {
		entries := build()
		entries[0].Amount = entries[0].Amount.Add(decimal.New(1, -2))

		result := settlement.VerifyChain(balanceID, entries)

		require.False(t, result.Valid)
		require.NotNil(t, result.BrokenIndex)
		assert.Equal(t, int64(1), *result.BrokenIndex)
	})

	t.Run("balance after mutated", func(t *testing.T) {
		entries := build()
		entries[1].BalanceAfter = entries[1].BalanceAfter.Add(decimal.NewFromInt(100))

		result := settlement.VerifyChain(balanceID, entries)

		require.False(t, result.Valid)
		require.NotNil(t, result.BrokenIndex)
		assert.Equal(t, int64(2), *result.BrokenIndex)
	})

	t.Run("hash mutated", func(t *testing.T) {
		entries := build()
		entries[1].Hash = "deadbeef" + entries[1].Hash[8:]

		result := settlement.VerifyChain(balanceID, entries)

		require.False(t, result.Valid)
		require.NotNil(t, result.BrokenIndex)
		assert.Equal(t, int64(2), *result.BrokenIndex)
	})

	t.Run("linkage broken", func(t *testing.T) {
		entries := build()
		entries[1].PreviousHash = entries[1].Hash

		result := settlement.VerifyChain(balanceID, entries)

		require.False(t, result.Valid)
		require.NotNil(t, result.BrokenIndex)
		assert.Equal(t, int64(2), *result.BrokenIndex)
	})

	t.Run("sequence gap", func(t *testing.T) {
		entries := build()
		entries[1].Sequence = 5

		result := settlement.VerifyChain(balanceID, entries)

		require.False(t, result.Valid)
	})
}

func TestSummarizeLedger(t *testing.T) {
	balanceID := uuid.New()
	e1 := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease, 1500, decimal.Zero, nil)
	e2 := mustEntry(t, balanceID, settlement.LedgerEntryTypeHold,
		settlement.LedgerSourcePayoutHold, 500, e1.BalanceAfter, e1)
	e3 := mustEntry(t, balanceID, settlement.LedgerEntryTypeDebit,
		settlement.LedgerSourcePayoutCompleted, 500, e2.BalanceAfter, e2)
	e4 := mustEntry(t, balanceID, settlement.LedgerEntryTypeCredit,
		settlement.LedgerSourceEscrowRelease, 250, e3.BalanceAfter, e3)

	summary := settlement.SummarizeLedger([]*settlement.LedgerEntry{e1, e2, e3, e4})

	assert.True(t, summary.Credits.Equal(decimal.NewFromInt(1750)))
	assert.True(t, summary.Debits.Equal(decimal.NewFromInt(500)))
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(1250)))
}
