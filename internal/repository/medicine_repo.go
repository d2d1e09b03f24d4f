package repository

import (
	"context"
	"time"

	"clinicrx/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MedicineRepository is the inventory store: medicines and their batches.
// Methods ending in ForUpdate take row locks and must run inside RunInTx.
type MedicineRepository interface {
	Create(ctx context.Context, m *model.Medicine) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Medicine, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Medicine, error)
	// FindByName matches case-insensitively.
	FindByName(ctx context.Context, name string) (*model.Medicine, error)
	ListLowStock(ctx context.Context) ([]model.Medicine, error)

	CreateBatch(ctx context.Context, b *model.MedicineBatch) error
	ListBatches(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error)
	// ListActiveBatches returns drawable batches, oldest stock-in first.
	ListActiveBatches(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error)
	ListActiveBatchesForUpdate(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error)
	// ListExpired returns active batches whose expiry date is before asOf.
	ListExpired(ctx context.Context, asOf time.Time) ([]model.MedicineBatch, error)
	ListExpiredForUpdate(ctx context.Context, asOf time.Time) ([]model.MedicineBatch, error)
	// AdjustBatchQuantity applies delta atomically. It returns
	// ErrInsufficientQuantity instead of letting the quantity go negative and
	// flips the batch to "depleted" when it reaches zero.
	AdjustBatchQuantity(ctx context.Context, batchID uuid.UUID, delta int) (*model.MedicineBatch, error)
	MarkBatchExpired(ctx context.Context, batchID uuid.UUID) error

	// SyncStock re-derives medicines.stock from the active batches and returns it.
	SyncStock(ctx context.Context, medicineID uuid.UUID) (int, error)
}

type medicineRepo struct{ db *gorm.DB }

func NewMedicineRepository(db *gorm.DB) MedicineRepository { return &medicineRepo{db: db} }

const fifoOrder = "stocked_at ASC, created_at ASC, id ASC"

func (r *medicineRepo) Create(ctx context.Context, m *model.Medicine) error {
	return translate(GetDB(ctx, r.db).Create(m).Error)
}

func (r *medicineRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Medicine, error) {
	var m model.Medicine
	if err := GetDB(ctx, r.db).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *medicineRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Medicine, error) {
	var m model.Medicine
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *medicineRepo) FindByName(ctx context.Context, name string) (*model.Medicine, error) {
	var m model.Medicine
	if err := GetDB(ctx, r.db).Where("lower(name) = lower(?)", name).Order("created_at ASC").First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *medicineRepo) ListLowStock(ctx context.Context) ([]model.Medicine, error) {
	var meds []model.Medicine
	err := GetDB(ctx, r.db).
		Where("active = true AND stock <= min_stock").
		Order("stock - min_stock ASC, name ASC").
		Find(&meds).Error
	return meds, translate(err)
}

func (r *medicineRepo) CreateBatch(ctx context.Context, b *model.MedicineBatch) error {
	return translate(GetDB(ctx, r.db).Create(b).Error)
}

func (r *medicineRepo) ListBatches(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	var batches []model.MedicineBatch
	err := GetDB(ctx, r.db).Where("medicine_id = ?", medicineID).Order(fifoOrder).Find(&batches).Error
	return batches, translate(err)
}

func (r *medicineRepo) ListActiveBatches(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	return r.activeBatches(GetDB(ctx, r.db), medicineID)
}

func (r *medicineRepo) ListActiveBatchesForUpdate(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	return r.activeBatches(GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), medicineID)
}

func (r *medicineRepo) activeBatches(db *gorm.DB, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	var batches []model.MedicineBatch
	err := db.Where("medicine_id = ? AND status = ? AND quantity > 0", medicineID, model.BatchStatusActive).
		Order(fifoOrder).
		Find(&batches).Error
	return batches, translate(err)
}

func (r *medicineRepo) ListExpired(ctx context.Context, asOf time.Time) ([]model.MedicineBatch, error) {
	return r.expiredBatches(GetDB(ctx, r.db), asOf)
}

func (r *medicineRepo) ListExpiredForUpdate(ctx context.Context, asOf time.Time) ([]model.MedicineBatch, error) {
	return r.expiredBatches(GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), asOf)
}

func (r *medicineRepo) expiredBatches(db *gorm.DB, asOf time.Time) ([]model.MedicineBatch, error) {
	var batches []model.MedicineBatch
	err := db.Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", model.BatchStatusActive, asOf).
		Order("medicine_id ASC, " + fifoOrder).
		Find(&batches).Error
	return batches, translate(err)
}

func (r *medicineRepo) AdjustBatchQuantity(ctx context.Context, batchID uuid.UUID, delta int) (*model.MedicineBatch, error) {
	db := GetDB(ctx, r.db)
	q := db.Model(&model.MedicineBatch{}).Where("id = ? AND quantity + ? >= 0", batchID, delta)
	if delta < 0 {
		q = q.Where("status = ?", model.BatchStatusActive)
	}
	res := q.Updates(map[string]interface{}{
		"quantity":   gorm.Expr("quantity + ?", delta),
		"status":     gorm.Expr("CASE WHEN quantity + ? = 0 THEN ? ELSE status END", delta, model.BatchStatusDepleted),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&model.MedicineBatch{}).Where("id = ?", batchID).Count(&count).Error; err != nil {
			return nil, translate(err)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrInsufficientQuantity
	}
	var b model.MedicineBatch
	if err := db.First(&b, "id = ?", batchID).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r *medicineRepo) MarkBatchExpired(ctx context.Context, batchID uuid.UUID) error {
	res := GetDB(ctx, r.db).Model(&model.MedicineBatch{}).
		Where("id = ? AND status = ?", batchID, model.BatchStatusActive).
		Updates(map[string]interface{}{"status": model.BatchStatusExpired, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepo) SyncStock(ctx context.Context, medicineID uuid.UUID) (int, error) {
	var stock int
	err := GetDB(ctx, r.db).Raw(`
		UPDATE medicines
		SET stock = (
			SELECT COALESCE(SUM(quantity), 0) FROM medicine_batches
			WHERE medicine_id = ? AND status = ?
		), updated_at = NOW()
		WHERE id = ?
		RETURNING stock`, medicineID, model.BatchStatusActive, medicineID).
		Scan(&stock).Error
	return stock, translate(err)
}
