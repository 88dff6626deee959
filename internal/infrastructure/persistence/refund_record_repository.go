package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRefundRecordRepository implements RefundRecordRepository using GORM
type GormRefundRecordRepository struct {
	db *gorm.DB
}

// NewGormRefundRecordRepository creates a new GormRefundRecordRepository
func NewGormRefundRecordRepository(db *gorm.DB) *GormRefundRecordRepository {
	return &GormRefundRecordRepository{db: db}
}

// Create persists a new refund record
func (r *GormRefundRecordRepository) Create(ctx context.Context, record *settlement.RefundRecord) error {
	model := models.RefundRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByTransactionID returns all refunds recorded against a transaction
func (r *GormRefundRecordRepository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*settlement.RefundRecord, error) {
	var recordModels []models.RefundRecordModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("processed_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*settlement.RefundRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// FindByIdempotencyKey returns the refund recorded under the key, or nil
func (r *GormRefundRecordRepository) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*settlement.RefundRecord, error) {
	var model models.RefundRecordModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormRefundRecordRepository implements RefundRecordRepository
var _ settlement.RefundRecordRepository = (*GormRefundRecordRepository)(nil)
