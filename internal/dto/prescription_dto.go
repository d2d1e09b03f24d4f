package dto

// PrescriptionFilter is bound from query string of GET /v1/prescriptions.
type PrescriptionFilter struct {
	Status    string `form:"status"     validate:"omitempty,oneof=pending fulfilled cancelled"`
	PatientID string `form:"patient_id" validate:"omitempty,uuid"`
	VisitID   string `form:"visit_id"   validate:"omitempty,uuid"`
	Page      int    `form:"page,default=1"   validate:"min=1"`
	Limit     int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type PrescriptionListResponse struct {
	Data  []PrescriptionResponse `json:"data"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// PrescriptionLineRequest names either a catalog medicine (MedicineID) or an
// external one (ExternalName).
type PrescriptionLineRequest struct {
	MedicineID   *string `json:"medicine_id"   validate:"omitempty,uuid"`
	ExternalName *string `json:"external_name" validate:"omitempty,max=200"`
	Quantity     int     `json:"quantity"      validate:"required,min=1"`
	Dosage       string  `json:"dosage"`
	Frequency    string  `json:"frequency"`
	Duration     string  `json:"duration"`
	Instructions string  `json:"instructions"`
}

type CreatePrescriptionRequest struct {
	VisitID   string                    `json:"visit_id"   validate:"required,uuid"`
	PatientID string                    `json:"patient_id" validate:"required,uuid"`
	DoctorID  *string                   `json:"doctor_id"  validate:"omitempty,uuid"`
	Notes     *string                   `json:"notes"`
	Lines     []PrescriptionLineRequest `json:"lines"      validate:"required,min=1,dive"`
}

type CancelPrescriptionRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type PrescriptionLineResponse struct {
	ID               string  `json:"id"`
	MedicineID       *string `json:"medicine_id"`
	MedicineName     string  `json:"medicine_name"`
	External         bool    `json:"external"`
	Quantity         int     `json:"quantity"`
	Dosage           string  `json:"dosage"`
	Frequency        string  `json:"frequency"`
	Duration         string  `json:"duration"`
	Instructions     string  `json:"instructions"`
	IsAvailable      bool    `json:"is_available"`
	AvailabilityNote *string `json:"availability_note"`
}

type PrescriptionResponse struct {
	ID           string                     `json:"id"`
	VisitID      string                     `json:"visit_id"`
	PatientID    string                     `json:"patient_id"`
	DoctorID     *string                    `json:"doctor_id"`
	Status       string                     `json:"status"`
	Notes        *string                    `json:"notes"`
	CreatedBy    string                     `json:"created_by"`
	FulfilledBy  *string                    `json:"fulfilled_by"`
	FulfilledAt  *string                    `json:"fulfilled_at"`
	CancelledBy  *string                    `json:"cancelled_by"`
	CancelledAt  *string                    `json:"cancelled_at"`
	CancelReason *string                    `json:"cancel_reason"`
	Lines        []PrescriptionLineResponse `json:"lines"`
	CreatedAt    string                     `json:"created_at"`
}
