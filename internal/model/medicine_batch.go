package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	BatchStatusActive   = "active"
	BatchStatusDepleted = "depleted"
	BatchStatusExpired  = "expired"
)

// MedicineBatch is a dated lot of a medicine received at one time.
// Batches are never deleted: an exhausted batch stays as "depleted" for audit.
type MedicineBatch struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MedicineID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchNumber string          `gorm:"not null"`
	Quantity    int             `gorm:"not null;default:0"`
	ExpiryDate  *time.Time      `gorm:"type:date"`
	StockedAt   time.Time       `gorm:"not null"` // stock-in date, drives FIFO order
	Supplier    *string
	CostPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status      string          `gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Medicine *Medicine `gorm:"foreignKey:MedicineID"`
}

// Available reports whether the batch can still be drawn from.
func (b *MedicineBatch) Available() bool {
	return b.Status == BatchStatusActive && b.Quantity > 0
}
