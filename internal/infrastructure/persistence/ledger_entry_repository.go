package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLedgerEntryRepository implements LedgerEntryRepository using GORM.
// The repository only ever inserts; updates and deletes are not part of the
// interface, so the append-only property holds as long as all writes go
// through it. The unique indexes on (balance_id, sequence) and
// (balance_id, idempotency_key) back the chain ordering and replay detection.
type GormLedgerEntryRepository struct {
	db *gorm.DB
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db}
}

// Append persists a new entry
func (r *GormLedgerEntryRepository) Append(ctx context.Context, entry *settlement.LedgerEntry) error {
	model := models.LedgerEntryModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindLastByBalance returns the highest-sequence entry, nil for an empty chain
func (r *GormLedgerEntryRepository) FindLastByBalance(ctx context.Context, balanceID uuid.UUID) (*settlement.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("balance_id = ?", balanceID).
		Order("sequence DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllByBalance returns all entries in ascending sequence order
func (r *GormLedgerEntryRepository) FindAllByBalance(ctx context.Context, balanceID uuid.UUID) ([]*settlement.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("balance_id = ?", balanceID).
		Order("sequence ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// FindByIdempotencyKey returns the entry recorded for a key, nil if none
func (r *GormLedgerEntryRepository) FindByIdempotencyKey(ctx context.Context, balanceID uuid.UUID, key string) (*settlement.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		First(&model, "balance_id = ? AND idempotency_key = ?", balanceID, key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTransaction returns entries linked to an escrow transaction with the given source
func (r *GormLedgerEntryRepository) FindByTransaction(ctx context.Context, transactionID uuid.UUID, source settlement.LedgerSource) ([]*settlement.LedgerEntry, error) {
	var entryModels []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("(transaction_id = ? OR payout_id = ?) AND source = ?", transactionID, transactionID, source).
		Order("sequence ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(entryModels), nil
}

// ListByBalance returns a page of entries in descending sequence order
func (r *GormLedgerEntryRepository) ListByBalance(ctx context.Context, balanceID uuid.UUID, filter shared.Filter) ([]*settlement.LedgerEntry, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Where("balance_id = ?", balanceID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var entryModels []models.LedgerEntryModel
	if err := query.Order("sequence DESC").Find(&entryModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainEntries(entryModels), total, nil
}

func toDomainEntries(entryModels []models.LedgerEntryModel) []*settlement.LedgerEntry {
	entries := make([]*settlement.LedgerEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries
}

// Ensure GormLedgerEntryRepository implements LedgerEntryRepository
var _ settlement.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)
