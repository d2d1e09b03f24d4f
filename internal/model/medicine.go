package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Medicine is a catalog entry. Stock is a materialized value: it always equals
// the sum of the quantities of the medicine's active batches and is only ever
// written by SyncStock inside the same transaction as the batch mutation.
type Medicine struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        string    `gorm:"index;not null"`
	BrandName   *string
	GenericName *string
	// Price is VAT-inclusive
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	MinStock  int             `gorm:"not null;default:10"`
	Unit      string          `gorm:"not null;default:'piece'"`
	Stock     int             `gorm:"not null;default:0"`
	Active    bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Batches []MedicineBatch `gorm:"foreignKey:MedicineID"`
}

// IsLowStock reports whether stock has fallen to the reorder threshold.
func (m *Medicine) IsLowStock() bool { return m.Stock <= m.MinStock }
