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

// GormSellerBalanceRepository implements SellerBalanceRepository using GORM
type GormSellerBalanceRepository struct {
	db *gorm.DB
}

// NewGormSellerBalanceRepository creates a new GormSellerBalanceRepository
func NewGormSellerBalanceRepository(db *gorm.DB) *GormSellerBalanceRepository {
	return &GormSellerBalanceRepository{db: db}
}

// FindByID finds a balance by its ID
func (r *GormSellerBalanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.SellerBalance, error) {
	var model models.SellerBalanceModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySellerID finds a seller's balance, nil if not yet created
func (r *GormSellerBalanceRepository) FindBySellerID(ctx context.Context, sellerID uuid.UUID) (*settlement.SellerBalance, error) {
	var model models.SellerBalanceModel
	if err := r.db.WithContext(ctx).
		First(&model, "seller_id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySellerIDForUpdate finds a seller's balance under an exclusive row lock.
// Must be called inside a transaction; the lock serializes concurrent
// mutations against the same seller.
func (r *GormSellerBalanceRepository) FindBySellerIDForUpdate(ctx context.Context, sellerID uuid.UUID) (*settlement.SellerBalance, error) {
	var model models.SellerBalanceModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "seller_id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate locks a balance by its ID
func (r *GormSellerBalanceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.SellerBalance, error) {
	var model models.SellerBalanceModel
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

// Save creates or updates a balance
func (r *GormSellerBalanceRepository) Save(ctx context.Context, balance *settlement.SellerBalance) error {
	model := models.SellerBalanceModelFromDomain(balance)
	return r.db.WithContext(ctx).Save(model).Error
}

// List returns a page of balances
func (r *GormSellerBalanceRepository) List(ctx context.Context, filter shared.Filter) ([]*settlement.SellerBalance, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SellerBalanceModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applySettlementFilter(query, filter, balanceSortFields, "created_at")

	var balanceModels []models.SellerBalanceModel
	if err := query.Find(&balanceModels).Error; err != nil {
		return nil, 0, err
	}

	balances := make([]*settlement.SellerBalance, len(balanceModels))
	for i := range balanceModels {
		balances[i] = balanceModels[i].ToDomain()
	}
	return balances, total, nil
}

// ListIDs returns the IDs of all balances, for reconciliation scans
func (r *GormSellerBalanceRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// balanceSortFields contains allowed sort fields for seller balances
var balanceSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"seller_id":       true,
	"available":       true,
	"pending":         true,
	"total_earned":    true,
	"total_withdrawn": true,
}

// applySettlementFilter applies pagination and whitelisted ordering to a query.
func applySettlementFilter(query *gorm.DB, filter shared.Filter, allowed map[string]bool, defaultField string) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	return query.Order(field + " " + ValidateSortOrder(filter.OrderDir))
}

// Ensure GormSellerBalanceRepository implements SellerBalanceRepository
var _ settlement.SellerBalanceRepository = (*GormSellerBalanceRepository)(nil)
