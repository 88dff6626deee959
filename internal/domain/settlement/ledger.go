package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// GenesisHash is the previous-hash marker for the first entry of a chain
const GenesisHash = "GENESIS"

// LedgerEntryType classifies how an entry affects the balance
type LedgerEntryType string

const (
	// LedgerEntryTypeCredit increases the total balance
	LedgerEntryTypeCredit LedgerEntryType = "CREDIT"
	// LedgerEntryTypeDebit decreases the total balance
	LedgerEntryTypeDebit LedgerEntryType = "DEBIT"
	// LedgerEntryTypeHold moves funds from available to pending, total unchanged
	LedgerEntryTypeHold LedgerEntryType = "HOLD"
	// LedgerEntryTypeReleaseHold moves funds from pending back to available, total unchanged
	LedgerEntryTypeReleaseHold LedgerEntryType = "RELEASE_HOLD"
)

// IsValid checks if the entry type is valid
func (t LedgerEntryType) IsValid() bool {
	switch t {
	case LedgerEntryTypeCredit, LedgerEntryTypeDebit, LedgerEntryTypeHold, LedgerEntryTypeReleaseHold:
		return true
	}
	return false
}

// String returns the string representation of LedgerEntryType
func (t LedgerEntryType) String() string {
	return string(t)
}

// MovesTotal returns true if the entry changes total equity (available+pending)
func (t LedgerEntryType) MovesTotal() bool {
	return t == LedgerEntryTypeCredit || t == LedgerEntryTypeDebit
}

// LedgerSource describes the business cause of a ledger entry
type LedgerSource string

const (
	// LedgerSourceEscrowRelease credits the seller when an escrowed transaction settles
	LedgerSourceEscrowRelease LedgerSource = "ESCROW_RELEASE"
	// LedgerSourceRefundIssued debits the seller when a settled transaction is refunded
	LedgerSourceRefundIssued LedgerSource = "REFUND_ISSUED"
	// LedgerSourcePayoutHold holds funds when a payout is requested
	LedgerSourcePayoutHold LedgerSource = "PAYOUT_HOLD"
	// LedgerSourcePayoutReleased releases held funds when a payout is rejected
	LedgerSourcePayoutReleased LedgerSource = "PAYOUT_RELEASED"
	// LedgerSourcePayoutCompleted debits pending funds when a payout completes
	LedgerSourcePayoutCompleted LedgerSource = "PAYOUT_COMPLETED"
	// LedgerSourceManualAdjustment marks operator-initiated corrections
	LedgerSourceManualAdjustment LedgerSource = "MANUAL_ADJUSTMENT"
)

// IsValid checks if the source is valid
func (s LedgerSource) IsValid() bool {
	switch s {
	case LedgerSourceEscrowRelease, LedgerSourceRefundIssued, LedgerSourcePayoutHold,
		LedgerSourcePayoutReleased, LedgerSourcePayoutCompleted, LedgerSourceManualAdjustment:
		return true
	}
	return false
}

// String returns the string representation of LedgerSource
func (s LedgerSource) String() string {
	return string(s)
}

// MetadataKeyIdempotency is the metadata key under which the caller-supplied
// idempotency key is recorded on every entry.
const MetadataKeyIdempotency = "idempotency_key"

// LedgerEntry is one immutable, hash-chained record of a balance-affecting
// event. Entries are created once and never mutated or deleted; each entry's
// hash covers the previous entry's hash, making any tampering with stored
// history detectable by replay.
type LedgerEntry struct {
	shared.BaseEntity

	BalanceID uuid.UUID       `json:"balance_id"`
	Sequence  int64           `json:"sequence"` // Monotonic per balance, starts at 1
	Type      LedgerEntryType `json:"type"`
	Source    LedgerSource    `json:"source"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`

	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`

	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`

	Description   string            `json:"description"`
	TransactionID *uuid.UUID        `json:"transaction_id,omitempty"`
	PayoutID      *uuid.UUID        `json:"payout_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewLedgerEntry builds the next entry of a balance's chain. The previous
// entry is nil for an empty chain. balanceTotal is the current cached
// available+pending total; it must equal the previous entry's balanceAfter or
// the chain is considered corrupted and a LedgerIntegrityError is returned.
func NewLedgerEntry(
	balanceID uuid.UUID,
	entryType LedgerEntryType,
	source LedgerSource,
	amount decimal.Decimal,
	currency string,
	balanceTotal decimal.Decimal,
	previous *LedgerEntry,
	description string,
	idempotencyKey string,
) (*LedgerEntry, error) {
	if balanceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BALANCE", "Balance ID cannot be empty")
	}
	if !entryType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ENTRY_TYPE", "Invalid ledger entry type")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Invalid ledger source")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Ledger amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}

	var (
		sequence     int64 = 1
		previousHash       = GenesisHash
		before             = decimal.Zero
	)
	if previous != nil {
		if previous.BalanceID != balanceID {
			return nil, NewLedgerIntegrityError(balanceID, previous.Sequence,
				"previous entry belongs to a different balance")
		}
		sequence = previous.Sequence + 1
		previousHash = previous.Hash
		before = previous.BalanceAfter
	}

	// The cached snapshot must agree with the chain tail before any write.
	if !balanceTotal.Equal(before) {
		return nil, NewLedgerIntegrityError(balanceID, sequence,
			"balance snapshot "+balanceTotal.StringFixed(2)+
				" does not match last entry balance "+before.StringFixed(2))
	}

	after := before
	switch entryType {
	case LedgerEntryTypeCredit:
		after = before.Add(amount)
	case LedgerEntryTypeDebit:
		after = before.Sub(amount)
	}

	entry := &LedgerEntry{
		BaseEntity:    shared.NewBaseEntity(),
		BalanceID:     balanceID,
		Sequence:      sequence,
		Type:          entryType,
		Source:        source,
		Amount:        amount,
		Currency:      currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		PreviousHash:  previousHash,
		Description:   description,
		Metadata:      map[string]string{},
	}
	if idempotencyKey != "" {
		entry.Metadata[MetadataKeyIdempotency] = idempotencyKey
	}
	entry.Hash = entry.ComputeHash()

	return entry, nil
}

// WithTransactionID links the entry to an escrow transaction
func (e *LedgerEntry) WithTransactionID(id uuid.UUID) *LedgerEntry {
	e.TransactionID = &id
	return e
}

// WithPayoutID links the entry to a payout request
func (e *LedgerEntry) WithPayoutID(id uuid.UUID) *LedgerEntry {
	e.PayoutID = &id
	return e
}

// WithMetadata attaches an additional metadata value
func (e *LedgerEntry) WithMetadata(key, value string) *LedgerEntry {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
	return e
}

// IdempotencyKey returns the idempotency key recorded on the entry, if any
func (e *LedgerEntry) IdempotencyKey() string {
	return e.Metadata[MetadataKeyIdempotency]
}

// ComputeHash recomputes the chain hash from the entry's own fields:
// SHA-256 over previousHash, type, source, amount, balanceAfter, sequence and
// balance ID. Amounts are rendered with fixed two-digit precision so the
// digest is stable across decimal representations.
func (e *LedgerEntry) ComputeHash() string {
	payload := strings.Join([]string{
		e.PreviousHash,
		string(e.Type),
		string(e.Source),
		e.Amount.StringFixed(2),
		e.BalanceAfter.StringFixed(2),
		decimal.NewFromInt(e.Sequence).String(),
		e.BalanceID.String(),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ChainVerification reports the outcome of replaying a balance's chain
type ChainVerification struct {
	Valid        bool            `json:"valid"`
	LastSequence int64           `json:"last_sequence"`
	BrokenIndex  *int64          `json:"broken_index,omitempty"`
	Discrepancy  string          `json:"discrepancy,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	VerifiedAt   time.Time       `json:"verified_at"`
}

// VerifyChain replays entries in sequence order, independently recomputing
// every hash, linkage and running balance, and reports the first position
// where the stored chain diverges. It never mutates anything.
func VerifyChain(balanceID uuid.UUID, entries []*LedgerEntry) ChainVerification {
	result := ChainVerification{Valid: true, Balance: decimal.Zero, VerifiedAt: time.Now()}

	expectedPrev := GenesisHash
	running := decimal.Zero
	var expectedSeq int64 = 1

	for _, entry := range entries {
		result.LastSequence = entry.Sequence

		fail := func(reason string) ChainVerification {
			seq := entry.Sequence
			result.Valid = false
			result.BrokenIndex = &seq
			result.Discrepancy = reason
			return result
		}

		if entry.BalanceID != balanceID {
			return fail("entry belongs to a different balance")
		}
		if entry.Sequence != expectedSeq {
			return fail("sequence gap: expected " + decimal.NewFromInt(expectedSeq).String())
		}
		if entry.PreviousHash != expectedPrev {
			return fail("previous hash mismatch")
		}
		if !entry.BalanceBefore.Equal(running) {
			return fail("balance before " + entry.BalanceBefore.StringFixed(2) +
				" does not continue from " + running.StringFixed(2))
		}

		expected := running
		switch entry.Type {
		case LedgerEntryTypeCredit:
			expected = running.Add(entry.Amount)
		case LedgerEntryTypeDebit:
			expected = running.Sub(entry.Amount)
		}
		if !entry.BalanceAfter.Equal(expected) {
			return fail("balance after " + entry.BalanceAfter.StringFixed(2) +
				" does not match computed " + expected.StringFixed(2))
		}
		if entry.ComputeHash() != entry.Hash {
			return fail("stored hash does not match recomputed hash")
		}

		running = entry.BalanceAfter
		expectedPrev = entry.Hash
		expectedSeq++
	}

	result.Balance = running
	return result
}

// LedgerSummary is the ground-truth aggregation of a balance's chain
type LedgerSummary struct {
	Credits decimal.Decimal `json:"credits"`
	Debits  decimal.Decimal `json:"debits"`
	Balance decimal.Decimal `json:"balance"`
}

// SummarizeLedger sums CREDIT and DEBIT entries independently; holds and
// releases do not change total equity and are excluded.
func SummarizeLedger(entries []*LedgerEntry) LedgerSummary {
	credits := decimal.Zero
	debits := decimal.Zero
	for _, entry := range entries {
		switch entry.Type {
		case LedgerEntryTypeCredit:
			credits = credits.Add(entry.Amount)
		case LedgerEntryTypeDebit:
			debits = debits.Add(entry.Amount)
		}
	}
	return LedgerSummary{
		Credits: credits,
		Debits:  debits,
		Balance: credits.Sub(debits),
	}
}
