package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is a completed point-of-sale checkout. It is written once together with
// its lines and never updated afterwards.
type Sale struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Subtotal             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	VATExclusiveSubtotal decimal.Decimal `gorm:"type:decimal(12,2);not null;column:vat_exclusive_subtotal"`
	VATAmount            decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;column:vat_amount"`
	DiscountType         string          `gorm:"type:varchar(10);not null;default:'none'"`
	DiscountAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	DiscountIDNumber     *string         `gorm:"column:discount_id_number"`
	DiscountName         *string
	Tax                  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total                decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Cash                 decimal.Decimal `gorm:"type:decimal(12,2);not null;column:cash_tendered"`
	Change               decimal.Decimal `gorm:"type:decimal(12,2);not null;column:change_due"`
	ProcessedBy          uuid.UUID       `gorm:"type:uuid;not null;index"`
	// PrescriptionID is set when the sale bills an already fulfilled prescription.
	PrescriptionID *uuid.UUID `gorm:"type:uuid"`
	// ClientRef deduplicates retried checkouts.
	ClientRef *string
	CreatedAt time.Time

	Lines []SaleLine `gorm:"foreignKey:SaleID"`
}

// SaleLine records how many units of a medicine were drawn from one batch.
// A single cart line expands into one SaleLine per batch it touched.
type SaleLine struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	// Position orders lines by cart line, then by FIFO draw within it.
	Position   int             `gorm:"not null;default:0"`
	MedicineID uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID    *uuid.UUID      `gorm:"type:uuid;index"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Medicine *Medicine      `gorm:"foreignKey:MedicineID"`
	Batch    *MedicineBatch `gorm:"foreignKey:BatchID"`
}
