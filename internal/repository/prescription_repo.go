package repository

import (
	"context"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PrescriptionRepository interface {
	// Create inserts the prescription together with its lines. A visit id that
	// does not reference an existing visit surfaces as ErrForeignKey.
	Create(ctx context.Context, p *model.Prescription) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
	// FindByIDForUpdate locks the prescription row; lines are loaded unlocked.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
	// Save persists the header columns only; lines are immutable.
	Save(ctx context.Context, p *model.Prescription) error
	List(ctx context.Context, filter dto.PrescriptionFilter) ([]model.Prescription, int64, error)
}

type prescriptionRepo struct{ db *gorm.DB }

func NewPrescriptionRepository(db *gorm.DB) PrescriptionRepository {
	return &prescriptionRepo{db: db}
}

func (r *prescriptionRepo) Create(ctx context.Context, p *model.Prescription) error {
	return translate(GetDB(ctx, r.db).Create(p).Error)
}

func (r *prescriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	return r.find(GetDB(ctx, r.db), id)
}

func (r *prescriptionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var locked struct{ ID uuid.UUID }
	err := GetDB(ctx, r.db).Model(&model.Prescription{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Where("id = ?", id).Take(&locked).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.find(GetDB(ctx, r.db), id)
}

func (r *prescriptionRepo) find(q *gorm.DB, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	err := q.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Lines.Medicine").
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *prescriptionRepo) Save(ctx context.Context, p *model.Prescription) error {
	return translate(GetDB(ctx, r.db).Omit(clause.Associations).Save(p).Error)
}

func (r *prescriptionRepo) List(ctx context.Context, filter dto.PrescriptionFilter) ([]model.Prescription, int64, error) {
	var out []model.Prescription
	var total int64

	q := GetDB(ctx, r.db).Model(&model.Prescription{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.VisitID != "" {
		q = q.Where("visit_id = ?", filter.VisitID)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit, 50, 200)
	err := q.Preload("Lines.Medicine").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&out).Error
	return out, total, translate(err)
}
