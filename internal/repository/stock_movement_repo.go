package repository

import (
	"context"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockMovementRepository interface {
	Create(ctx context.Context, m *model.StockMovement) error
	// ListByReference returns the movements written for one sale or
	// prescription, optionally narrowed to a medicine, in insertion order.
	ListByReference(ctx context.Context, referenceID uuid.UUID, medicineID *uuid.UUID) ([]model.StockMovement, error)
	List(ctx context.Context, filter dto.MovementFilter) ([]model.StockMovement, int64, error)
}

type stockMovementRepo struct{ db *gorm.DB }

func NewStockMovementRepository(db *gorm.DB) StockMovementRepository {
	return &stockMovementRepo{db: db}
}

func (r *stockMovementRepo) Create(ctx context.Context, m *model.StockMovement) error {
	return translate(GetDB(ctx, r.db).Create(m).Error)
}

func (r *stockMovementRepo) ListByReference(ctx context.Context, referenceID uuid.UUID, medicineID *uuid.UUID) ([]model.StockMovement, error) {
	q := GetDB(ctx, r.db).Preload("Batch").Where("reference_id = ?", referenceID)
	if medicineID != nil {
		q = q.Where("medicine_id = ?", *medicineID)
	}
	var out []model.StockMovement
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, translate(err)
}

func (r *stockMovementRepo) List(ctx context.Context, filter dto.MovementFilter) ([]model.StockMovement, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.StockMovement{})
	if filter.MedicineID != "" {
		q = q.Where("medicine_id = ?", filter.MedicineID)
	}
	if filter.ReferenceID != "" {
		q = q.Where("reference_id = ?", filter.ReferenceID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit, 100, 500)
	var out []model.StockMovement
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	return out, total, translate(err)
}
