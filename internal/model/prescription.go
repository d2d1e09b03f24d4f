package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	PrescriptionPending   = "pending"
	PrescriptionFulfilled = "fulfilled"
	PrescriptionCancelled = "cancelled"
)

// ExternalUnavailableNote is recorded on lines the clinic does not stock.
const ExternalUnavailableNote = "external — purchase elsewhere"

// Prescription is a clinician's order for a visit. It leaves "pending" exactly
// once, either to "fulfilled" (stock is depleted) or to "cancelled".
type Prescription struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	VisitID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	PatientID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	DoctorID     *uuid.UUID `gorm:"type:uuid"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	Notes        *string
	CreatedBy    uuid.UUID  `gorm:"type:uuid;not null"`
	FulfilledBy  *uuid.UUID `gorm:"type:uuid"`
	FulfilledAt  *time.Time
	CancelledBy  *uuid.UUID `gorm:"type:uuid"`
	CancelledAt  *time.Time
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Lines []PrescriptionLine `gorm:"foreignKey:PrescriptionID"`
}

// PrescriptionLine either references a catalog medicine or carries the free-text
// name of an external one. External lines never touch clinic stock.
type PrescriptionLine struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PrescriptionID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	// Position is the zero-based index of the line in the request.
	Position         int        `gorm:"not null;default:0"`
	MedicineID       *uuid.UUID `gorm:"type:uuid;index"`
	ExternalName     *string
	Quantity         int `gorm:"not null"`
	Dosage           string
	Frequency        string
	Duration         string
	Instructions     string
	IsAvailable      bool `gorm:"not null;default:false"`
	AvailabilityNote *string

	Medicine *Medicine `gorm:"foreignKey:MedicineID"`
}

// IsExternal reports whether the line names a medicine outside the catalog.
func (l *PrescriptionLine) IsExternal() bool { return l.MedicineID == nil }
