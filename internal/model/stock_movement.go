package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	MovementStockIn      = "stock_in"
	MovementSale         = "sale"
	MovementPrescription = "prescription"
	MovementExpiry       = "expiry"
)

// StockMovement records every change to a batch's available quantity.
// Quantity is signed (positive = in, negative = out); StockBefore/StockAfter
// are the medicine's available stock around the change.
type StockMovement struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MedicineID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	BatchID     *uuid.UUID `gorm:"type:uuid;index"`
	Kind        string     `gorm:"type:varchar(20);not null"`
	Quantity    int        `gorm:"not null"`
	StockBefore int        `gorm:"not null"`
	StockAfter  int        `gorm:"not null"`
	ReferenceID *uuid.UUID `gorm:"type:uuid;index"` // sale or prescription id
	Note        string
	ActorID     *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time

	Medicine *Medicine      `gorm:"foreignKey:MedicineID"`
	Batch    *MedicineBatch `gorm:"foreignKey:BatchID"`
}
