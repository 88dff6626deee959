package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// JSONStringMap stores a map[string]string column as JSONB.
type JSONStringMap map[string]string

// Value implements driver.Valuer interface for GORM to store as JSONB
func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (m *JSONStringMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONStringMap{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSONStringMap: unsupported type")
	}

	if len(bytes) == 0 {
		*m = JSONStringMap{}
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// LedgerEntryModel is the persistence model for the append-only ledger.
// The unique index on (balance_id, sequence) makes the chain ordering a
// storage guarantee, and the one on (balance_id, idempotency_key) makes
// replayed writes fail instead of duplicating entries.
type LedgerEntryModel struct {
	BaseModel
	BalanceID      uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_balance_sequence,priority:1;uniqueIndex:idx_ledger_balance_idem,priority:1"`
	Sequence       int64                      `gorm:"not null;uniqueIndex:idx_ledger_balance_sequence,priority:2"`
	EntryType      settlement.LedgerEntryType `gorm:"type:varchar(20);not null;index"`
	Source         settlement.LedgerSource    `gorm:"type:varchar(30);not null;index"`
	Amount         decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	Currency       string                     `gorm:"type:varchar(3);not null"`
	BalanceBefore  decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	BalanceAfter   decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	PreviousHash   string                     `gorm:"type:varchar(64);not null"`
	Hash           string                     `gorm:"type:varchar(64);not null"`
	Description    string                     `gorm:"type:varchar(500)"`
	TransactionID  *uuid.UUID                 `gorm:"type:uuid;index"`
	PayoutID       *uuid.UUID                 `gorm:"type:uuid;index"`
	IdempotencyKey string                     `gorm:"type:varchar(255);not null;uniqueIndex:idx_ledger_balance_idem,priority:2"`
	Metadata       JSONStringMap              `gorm:"type:jsonb;default:'{}'"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry.
func (m *LedgerEntryModel) ToDomain() *settlement.LedgerEntry {
	return &settlement.LedgerEntry{
		BaseEntity:    m.BaseModel.ToDomain(),
		BalanceID:     m.BalanceID,
		Sequence:      m.Sequence,
		Type:          m.EntryType,
		Source:        m.Source,
		Amount:        m.Amount,
		Currency:      m.Currency,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		PreviousHash:  m.PreviousHash,
		Hash:          m.Hash,
		Description:   m.Description,
		TransactionID: m.TransactionID,
		PayoutID:      m.PayoutID,
		Metadata:      map[string]string(m.Metadata),
	}
}

// FromDomain populates the persistence model from a domain LedgerEntry.
func (m *LedgerEntryModel) FromDomain(e *settlement.LedgerEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.BalanceID = e.BalanceID
	m.Sequence = e.Sequence
	m.EntryType = e.Type
	m.Source = e.Source
	m.Amount = e.Amount
	m.Currency = e.Currency
	m.BalanceBefore = e.BalanceBefore
	m.BalanceAfter = e.BalanceAfter
	m.PreviousHash = e.PreviousHash
	m.Hash = e.Hash
	m.Description = e.Description
	m.TransactionID = e.TransactionID
	m.PayoutID = e.PayoutID
	m.IdempotencyKey = e.Metadata[settlement.MetadataKeyIdempotency]
	m.Metadata = JSONStringMap(e.Metadata)
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry.
func LedgerEntryModelFromDomain(e *settlement.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomain(e)
	return m
}

// SellerBalanceModel is the persistence model for the SellerBalance aggregate root.
type SellerBalanceModel struct {
	AggregateModel
	SellerID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Available      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Pending        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalEarned    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalWithdrawn decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
}

// TableName returns the table name for GORM
func (SellerBalanceModel) TableName() string {
	return "seller_balances"
}

// ToDomain converts the persistence model to a domain SellerBalance.
func (m *SellerBalanceModel) ToDomain() *settlement.SellerBalance {
	return &settlement.SellerBalance{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SellerID:          m.SellerID,
		Available:         m.Available,
		Pending:           m.Pending,
		TotalEarned:       m.TotalEarned,
		TotalWithdrawn:    m.TotalWithdrawn,
		Currency:          m.Currency,
	}
}

// FromDomain populates the persistence model from a domain SellerBalance.
func (m *SellerBalanceModel) FromDomain(b *settlement.SellerBalance) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.SellerID = b.SellerID
	m.Available = b.Available
	m.Pending = b.Pending
	m.TotalEarned = b.TotalEarned
	m.TotalWithdrawn = b.TotalWithdrawn
	m.Currency = b.Currency
}

// SellerBalanceModelFromDomain creates a new persistence model from a domain SellerBalance.
func SellerBalanceModelFromDomain(b *settlement.SellerBalance) *SellerBalanceModel {
	m := &SellerBalanceModel{}
	m.FromDomain(b)
	return m
}

// PayoutRequestModel is the persistence model for the PayoutRequest aggregate root.
type PayoutRequestModel struct {
	AggregateModel
	SellerID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	BalanceID        uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Currency         string                  `gorm:"type:varchar(3);not null"`
	Status           settlement.PayoutStatus `gorm:"type:varchar(20);not null;index"`
	PaymentMethod    string                  `gorm:"type:varchar(50);not null"`
	PaymentDetails   string                  `gorm:"type:jsonb;default:'{}'"`
	ApprovedBy       *uuid.UUID              `gorm:"type:uuid"`
	RejectedBy       *uuid.UUID              `gorm:"type:uuid"`
	RejectionReason  string                  `gorm:"type:varchar(500)"`
	FailureReason    string                  `gorm:"type:varchar(500)"`
	ProviderPayoutID string                  `gorm:"type:varchar(100);index"`
	ProviderResponse string                  `gorm:"type:jsonb"`
	RequestedAt      time.Time               `gorm:"not null;index"`
	ApprovedAt       *time.Time
	RejectedAt       *time.Time
	ProcessingAt     *time.Time
	CompletedAt      *time.Time
	FailedAt         *time.Time
}

// TableName returns the table name for GORM
func (PayoutRequestModel) TableName() string {
	return "payout_requests"
}

// ToDomain converts the persistence model to a domain PayoutRequest.
func (m *PayoutRequestModel) ToDomain() *settlement.PayoutRequest {
	return &settlement.PayoutRequest{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SellerID:          m.SellerID,
		BalanceID:         m.BalanceID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            m.Status,
		PaymentMethod:     m.PaymentMethod,
		PaymentDetails:    m.PaymentDetails,
		ApprovedBy:        m.ApprovedBy,
		RejectedBy:        m.RejectedBy,
		RejectionReason:   m.RejectionReason,
		FailureReason:     m.FailureReason,
		ProviderPayoutID:  m.ProviderPayoutID,
		ProviderResponse:  m.ProviderResponse,
		RequestedAt:       m.RequestedAt,
		ApprovedAt:        m.ApprovedAt,
		RejectedAt:        m.RejectedAt,
		ProcessingAt:      m.ProcessingAt,
		CompletedAt:       m.CompletedAt,
		FailedAt:          m.FailedAt,
	}
}

// FromDomain populates the persistence model from a domain PayoutRequest.
func (m *PayoutRequestModel) FromDomain(p *settlement.PayoutRequest) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.SellerID = p.SellerID
	m.BalanceID = p.BalanceID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.Status = p.Status
	m.PaymentMethod = p.PaymentMethod
	m.PaymentDetails = p.PaymentDetails
	m.ApprovedBy = p.ApprovedBy
	m.RejectedBy = p.RejectedBy
	m.RejectionReason = p.RejectionReason
	m.FailureReason = p.FailureReason
	m.ProviderPayoutID = p.ProviderPayoutID
	m.ProviderResponse = p.ProviderResponse
	m.RequestedAt = p.RequestedAt
	m.ApprovedAt = p.ApprovedAt
	m.RejectedAt = p.RejectedAt
	m.ProcessingAt = p.ProcessingAt
	m.CompletedAt = p.CompletedAt
	m.FailedAt = p.FailedAt
}

// PayoutRequestModelFromDomain creates a new persistence model from a domain PayoutRequest.
func PayoutRequestModelFromDomain(p *settlement.PayoutRequest) *PayoutRequestModel {
	m := &PayoutRequestModel{}
	m.FromDomain(p)
	return m
}

// CommissionRecordModel is the persistence model for write-once commission records.
type CommissionRecordModel struct {
	BaseModel
	TransactionID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PlatformFee       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PlatformFeePct    decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	ProcessorFee      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	CalculationMethod string          `gorm:"type:varchar(30);not null"`
	Metadata          JSONStringMap   `gorm:"type:jsonb;default:'{}'"`
}

// TableName returns the table name for GORM
func (CommissionRecordModel) TableName() string {
	return "commission_records"
}

// ToDomain converts the persistence model to a domain CommissionRecord.
func (m *CommissionRecordModel) ToDomain() *settlement.CommissionRecord {
	return &settlement.CommissionRecord{
		BaseEntity:        m.BaseModel.ToDomain(),
		TransactionID:     m.TransactionID,
		GrossAmount:       m.GrossAmount,
		PlatformFee:       m.PlatformFee,
		PlatformFeePct:    m.PlatformFeePct,
		ProcessorFee:      m.ProcessorFee,
		NetAmount:         m.NetAmount,
		Currency:          m.Currency,
		CalculationMethod: m.CalculationMethod,
		Metadata:          map[string]string(m.Metadata),
	}
}

// FromDomain populates the persistence model from a domain CommissionRecord.
func (m *CommissionRecordModel) FromDomain(r *settlement.CommissionRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TransactionID = r.TransactionID
	m.GrossAmount = r.GrossAmount
	m.PlatformFee = r.PlatformFee
	m.PlatformFeePct = r.PlatformFeePct
	m.ProcessorFee = r.ProcessorFee
	m.NetAmount = r.NetAmount
	m.Currency = r.Currency
	m.CalculationMethod = r.CalculationMethod
	m.Metadata = JSONStringMap(r.Metadata)
}

// CommissionRecordModelFromDomain creates a new persistence model from a domain CommissionRecord.
func CommissionRecordModelFromDomain(r *settlement.CommissionRecord) *CommissionRecordModel {
	m := &CommissionRecordModel{}
	m.FromDomain(r)
	return m
}

// RefundRecordModel is the persistence model for write-once refund records.
type RefundRecordModel struct {
	BaseModel
	TransactionID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount             decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Currency           string                  `gorm:"type:varchar(3);not null"`
	Reason             string                  `gorm:"type:varchar(500)"`
	Status             settlement.RefundStatus `gorm:"type:varchar(20);not null"`
	ReversePlatformFee bool                    `gorm:"not null;default:false"`
	ReversedFee        decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	IdempotencyKey     string                  `gorm:"type:varchar(255);not null;uniqueIndex:uniq_refund_records_idempotency_key"`
	ProcessedAt        time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefundRecordModel) TableName() string {
	return "refund_records"
}

// ToDomain converts the persistence model to a domain RefundRecord.
func (m *RefundRecordModel) ToDomain() *settlement.RefundRecord {
	return &settlement.RefundRecord{
		BaseEntity:         m.BaseModel.ToDomain(),
		TransactionID:      m.TransactionID,
		Amount:             m.Amount,
		Currency:           m.Currency,
		Reason:             m.Reason,
		Status:             m.Status,
		ReversePlatformFee: m.ReversePlatformFee,
		ReversedFee:        m.ReversedFee,
		IdempotencyKey:     m.IdempotencyKey,
		ProcessedAt:        m.ProcessedAt,
	}
}

// FromDomain populates the persistence model from a domain RefundRecord.
func (m *RefundRecordModel) FromDomain(r *settlement.RefundRecord) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.TransactionID = r.TransactionID
	m.Amount = r.Amount
	m.Currency = r.Currency
	m.Reason = r.Reason
	m.Status = r.Status
	m.ReversePlatformFee = r.ReversePlatformFee
	m.ReversedFee = r.ReversedFee
	m.IdempotencyKey = r.IdempotencyKey
	m.ProcessedAt = r.ProcessedAt
}

// RefundRecordModelFromDomain creates a new persistence model from a domain RefundRecord.
func RefundRecordModelFromDomain(r *settlement.RefundRecord) *RefundRecordModel {
	m := &RefundRecordModel{}
	m.FromDomain(r)
	return m
}

// EscrowTransactionModel is the persistence model for the settlement view of
// marketplace transactions.
type EscrowTransactionModel struct {
	AggregateModel
	SellerID    uuid.UUID                    `gorm:"type:uuid;not null;index"`
	GrossAmount decimal.Decimal              `gorm:"type:decimal(18,4);not null"`
	Currency    string                       `gorm:"type:varchar(3);not null"`
	Status      settlement.TransactionStatus `gorm:"type:varchar(20);not null;index"`
	SettledAt   *time.Time
	RefundedAt  *time.Time
}

// TableName returns the table name for GORM
func (EscrowTransactionModel) TableName() string {
	return "escrow_transactions"
}

// ToDomain converts the persistence model to a domain EscrowTransaction.
func (m *EscrowTransactionModel) ToDomain() *settlement.EscrowTransaction {
	return &settlement.EscrowTransaction{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SellerID:          m.SellerID,
		GrossAmount:       m.GrossAmount,
		Currency:          m.Currency,
		Status:            m.Status,
		SettledAt:         m.SettledAt,
		RefundedAt:        m.RefundedAt,
	}
}

// FromDomain populates the persistence model from a domain EscrowTransaction.
func (m *EscrowTransactionModel) FromDomain(t *settlement.EscrowTransaction) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.SellerID = t.SellerID
	m.GrossAmount = t.GrossAmount
	m.Currency = t.Currency
	m.Status = t.Status
	m.SettledAt = t.SettledAt
	m.RefundedAt = t.RefundedAt
}

// EscrowTransactionModelFromDomain creates a new persistence model from a domain EscrowTransaction.
func EscrowTransactionModelFromDomain(t *settlement.EscrowTransaction) *EscrowTransactionModel {
	m := &EscrowTransactionModel{}
	m.FromDomain(t)
	return m
}
