package repository

import (
	"context"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SaleRepository interface {
	// Create inserts the sale together with its lines.
	Create(ctx context.Context, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindByClientRef(ctx context.Context, ref string) (*model.Sale, error)
	FindByPrescriptionID(ctx context.Context, prescriptionID uuid.UUID) (*model.Sale, error)
	List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error)
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) Create(ctx context.Context, s *model.Sale) error {
	return translate(GetDB(ctx, r.db).Create(s).Error)
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	return r.findOne(GetDB(ctx, r.db).Where("id = ?", id))
}

func (r *saleRepo) FindByClientRef(ctx context.Context, ref string) (*model.Sale, error) {
	return r.findOne(GetDB(ctx, r.db).Where("client_ref = ?", ref))
}

func (r *saleRepo) FindByPrescriptionID(ctx context.Context, prescriptionID uuid.UUID) (*model.Sale, error) {
	return r.findOne(GetDB(ctx, r.db).Where("prescription_id = ?", prescriptionID))
}

func (r *saleRepo) findOne(q *gorm.DB) (*model.Sale, error) {
	var s model.Sale
	err := q.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Lines.Medicine").Preload("Lines.Batch").
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *saleRepo) List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	q := GetDB(ctx, r.db).Model(&model.Sale{})
	if filter.Date != "" {
		q = q.Where("DATE(created_at) = ?", filter.Date)
	}
	if filter.ProcessedBy != "" {
		q = q.Where("processed_by = ?", filter.ProcessedBy)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit, 50, 200)
	err := q.Preload("Lines.Medicine").Preload("Lines.Batch").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sales).Error
	return sales, total, translate(err)
}

func normalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > max {
		limit = def
	}
	return page, limit
}
