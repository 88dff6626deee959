package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPayoutRequestRepository implements PayoutRequestRepository using GORM
type GormPayoutRequestRepository struct {
	db *gorm.DB
}

// NewGormPayoutRequestRepository creates a new GormPayoutRequestRepository
func NewGormPayoutRequestRepository(db *gorm.DB) *GormPayoutRequestRepository {
	return &GormPayoutRequestRepository{db: db}
}

// FindByID finds a payout request by ID
func (r *GormPayoutRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.PayoutRequest, error) {
	var model models.PayoutRequestModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate locks a payout request for a state transition
func (r *GormPayoutRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.PayoutRequest, error) {
	var model models.PayoutRequestModel
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

// Save creates or updates a payout request
func (r *GormPayoutRequestRepository) Save(ctx context.Context, payout *settlement.PayoutRequest) error {
	model := models.PayoutRequestModelFromDomain(payout)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByStatus returns payouts in the given statuses, oldest first
func (r *GormPayoutRequestRepository) FindByStatus(ctx context.Context, statuses []settlement.PayoutStatus, limit int) ([]*settlement.PayoutRequest, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("requested_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var payoutModels []models.PayoutRequestModel
	if err := query.Find(&payoutModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayouts(payoutModels), nil
}

// SumHeldByBalance sums the amounts of payouts that currently hold funds for a balance
func (r *GormPayoutRequestRepository) SumHeldByBalance(ctx context.Context, balanceID uuid.UUID, statuses []settlement.PayoutStatus) (decimal.Decimal, error) {
	var result decimal.NullDecimal
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutRequestModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("balance_id = ? AND status IN ?", balanceID, statuses).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	if !result.Valid {
		return decimal.Zero, nil
	}
	return result.Decimal, nil
}

// List returns a page of payout requests
func (r *GormPayoutRequestRepository) List(ctx context.Context, filter shared.Filter) ([]*settlement.PayoutRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PayoutRequestModel{})
	query = applyPayoutFilters(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applySettlementFilter(query, filter, payoutSortFields, "requested_at")

	var payoutModels []models.PayoutRequestModel
	if err := query.Find(&payoutModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainPayouts(payoutModels), total, nil
}

// applyPayoutFilters applies the supported field filters to a payout query.
func applyPayoutFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Filters == nil {
		return query
	}
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if sellerID, ok := filter.Filters["seller_id"]; ok {
		query = query.Where("seller_id = ?", sellerID)
	}
	return query
}

func toDomainPayouts(payoutModels []models.PayoutRequestModel) []*settlement.PayoutRequest {
	payouts := make([]*settlement.PayoutRequest, len(payoutModels))
	for i := range payoutModels {
		payouts[i] = payoutModels[i].ToDomain()
	}
	return payouts
}

// payoutSortFields contains allowed sort fields for payout requests
var payoutSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"requested_at": true,
	"amount":       true,
	"status":       true,
}

// Ensure GormPayoutRequestRepository implements PayoutRequestRepository
var _ settlement.PayoutRequestRepository = (*GormPayoutRequestRepository)(nil)
