package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEscrowTransactionRepository implements EscrowTransactionRepository using GORM
type GormEscrowTransactionRepository struct {
	db *gorm.DB
}

// NewGormEscrowTransactionRepository creates a new GormEscrowTransactionRepository
func NewGormEscrowTransactionRepository(db *gorm.DB) *GormEscrowTransactionRepository {
	return &GormEscrowTransactionRepository{db: db}
}

// FindByID finds a transaction by ID
func (r *GormEscrowTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.EscrowTransaction, error) {
	var model models.EscrowTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate locks a transaction for settlement or refund
func (r *GormEscrowTransactionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.EscrowTransaction, error) {
	var model models.EscrowTransactionModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a transaction
func (r *GormEscrowTransactionRepository) Save(ctx context.Context, tx *settlement.EscrowTransaction) error {
	model := models.EscrowTransactionModelFromDomain(tx)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormEscrowTransactionRepository implements EscrowTransactionRepository
var _ settlement.EscrowTransactionRepository = (*GormEscrowTransactionRepository)(nil)
