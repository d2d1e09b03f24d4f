package repository

import (
	"context"

	"clinicrx/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	Create(ctx context.Context, rc *model.Receipt) error
	FindBySaleID(ctx context.Context, saleID uuid.UUID) (*model.Receipt, error)
	Update(ctx context.Context, rc *model.Receipt) error
}

type receiptRepo struct{ db *gorm.DB }

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepo{db: db}
}

func (r *receiptRepo) Create(ctx context.Context, rc *model.Receipt) error {
	return translate(GetDB(ctx, r.db).Create(rc).Error)
}

func (r *receiptRepo) FindBySaleID(ctx context.Context, saleID uuid.UUID) (*model.Receipt, error) {
	var rc model.Receipt
	if err := GetDB(ctx, r.db).Where("sale_id = ?", saleID).First(&rc).Error; err != nil {
		return nil, translate(err)
	}
	return &rc, nil
}

func (r *receiptRepo) Update(ctx context.Context, rc *model.Receipt) error {
	return translate(GetDB(ctx, r.db).Save(rc).Error)
}
