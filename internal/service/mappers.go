package service

import (
	"errors"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"

	"github.com/google/uuid"
)

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return string(domainErr.Code)
	}
	return "error"
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func medicineToResponse(m *model.Medicine) *dto.MedicineResponse {
	return &dto.MedicineResponse{
		ID:          m.ID.String(),
		Name:        m.Name,
		BrandName:   m.BrandName,
		GenericName: m.GenericName,
		Price:       m.Price,
		MinStock:    m.MinStock,
		Unit:        m.Unit,
		Stock:       m.Stock,
		Active:      m.Active,
		LowStock:    m.IsLowStock(),
	}
}

func batchToResponse(b *model.MedicineBatch) dto.BatchResponse {
	resp := dto.BatchResponse{
		ID:          b.ID.String(),
		MedicineID:  b.MedicineID.String(),
		BatchNumber: b.BatchNumber,
		Quantity:    b.Quantity,
		StockedAt:   b.StockedAt.Format("2006-01-02"),
		Supplier:    b.Supplier,
		CostPrice:   b.CostPrice,
		Status:      b.Status,
	}
	if b.ExpiryDate != nil {
		d := b.ExpiryDate.Format("2006-01-02")
		resp.ExpiryDate = &d
	}
	return resp
}

func movementToResponse(m *model.StockMovement) dto.MovementResponse {
	return dto.MovementResponse{
		ID:          m.ID.String(),
		MedicineID:  m.MedicineID.String(),
		BatchID:     uuidPtrString(m.BatchID),
		Kind:        m.Kind,
		Quantity:    m.Quantity,
		StockBefore: m.StockBefore,
		StockAfter:  m.StockAfter,
		ReferenceID: uuidPtrString(m.ReferenceID),
		Note:        m.Note,
		ActorID:     uuidPtrString(m.ActorID),
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:                   s.ID.String(),
		Subtotal:             s.Subtotal,
		VATExclusiveSubtotal: s.VATExclusiveSubtotal,
		VATAmount:            s.VATAmount,
		DiscountType:         s.DiscountType,
		DiscountAmount:       s.DiscountAmount,
		Tax:                  s.Tax,
		Total:                s.Total,
		Cash:                 s.Cash,
		Change:               s.Change,
		ProcessedBy:          s.ProcessedBy.String(),
		PrescriptionID:       uuidPtrString(s.PrescriptionID),
		CreatedAt:            s.CreatedAt.Format(time.RFC3339),
		Lines:                make([]dto.SaleLineResponse, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		line := dto.SaleLineResponse{
			MedicineID: l.MedicineID.String(),
			BatchID:    uuidPtrString(l.BatchID),
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			Subtotal:   l.Subtotal,
		}
		if l.Medicine != nil {
			line.MedicineName = l.Medicine.Name
		}
		if l.Batch != nil {
			line.BatchNumber = l.Batch.BatchNumber
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}

func prescriptionToResponse(p *model.Prescription) *dto.PrescriptionResponse {
	resp := &dto.PrescriptionResponse{
		ID:           p.ID.String(),
		VisitID:      p.VisitID.String(),
		PatientID:    p.PatientID.String(),
		DoctorID:     uuidPtrString(p.DoctorID),
		Status:       p.Status,
		Notes:        p.Notes,
		CreatedBy:    p.CreatedBy.String(),
		FulfilledBy:  uuidPtrString(p.FulfilledBy),
		FulfilledAt:  timePtrString(p.FulfilledAt),
		CancelledBy:  uuidPtrString(p.CancelledBy),
		CancelledAt:  timePtrString(p.CancelledAt),
		CancelReason: p.CancelReason,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		Lines:        make([]dto.PrescriptionLineResponse, 0, len(p.Lines)),
	}
	for _, l := range p.Lines {
		line := dto.PrescriptionLineResponse{
			ID:               l.ID.String(),
			MedicineID:       uuidPtrString(l.MedicineID),
			External:         l.IsExternal(),
			Quantity:         l.Quantity,
			Dosage:           l.Dosage,
			Frequency:        l.Frequency,
			Duration:         l.Duration,
			Instructions:     l.Instructions,
			IsAvailable:      l.IsAvailable,
			AvailabilityNote: l.AvailabilityNote,
		}
		switch {
		case l.ExternalName != nil:
			line.MedicineName = *l.ExternalName
		case l.Medicine != nil:
			line.MedicineName = l.Medicine.Name
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}
