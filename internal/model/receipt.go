package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReceiptPending   = "pending"
	ReceiptGenerated = "generated"
	ReceiptFailed    = "failed"
)

// Receipt tracks the printable document produced for a sale by the receipt worker.
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'pending'"`
	PDFPath   *string   `gorm:"column:pdf_path"`
	EmailedTo *string
	Attempts  int `gorm:"not null;default:0"`
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
