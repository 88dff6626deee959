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

// GormCommissionRecordRepository implements CommissionRecordRepository using GORM
type GormCommissionRecordRepository struct {
	db *gorm.DB
}

// NewGormCommissionRecordRepository creates a new GormCommissionRecordRepository
func NewGormCommissionRecordRepository(db *gorm.DB) *GormCommissionRecordRepository {
	return &GormCommissionRecordRepository{db: db}
}

// Create persists a new record; the transaction ID is unique
func (r *GormCommissionRecordRepository) Create(ctx context.Context, record *settlement.CommissionRecord) error {
	model := models.CommissionRecordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByTransactionID returns the record for a transaction, nil if none
func (r *GormCommissionRecordRepository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*settlement.CommissionRecord, error) {
	var model models.CommissionRecordModel
	if err := r.db.WithContext(ctx).
		First(&model, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormCommissionRecordRepository implements CommissionRecordRepository
var _ settlement.CommissionRecordRepository = (*GormCommissionRecordRepository)(nil)
