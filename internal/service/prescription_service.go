package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/metrics"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PrescriptionService drives the pending -> fulfilled | cancelled workflow.
type PrescriptionService interface {
	Create(ctx context.Context, actor Actor, req dto.CreatePrescriptionRequest) (*dto.PrescriptionResponse, error)
	Fulfill(ctx context.Context, actor Actor, id uuid.UUID) (*dto.PrescriptionResponse, error)
	Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*dto.PrescriptionResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.PrescriptionResponse, error)
	List(ctx context.Context, filter dto.PrescriptionFilter) (*dto.PrescriptionListResponse, error)
}

type prescriptionService struct {
	tx            repository.TransactionManager
	prescriptions repository.PrescriptionRepository
	ledger        stockLedger
	metrics       *metrics.Metrics
}

func NewPrescriptionService(
	tx repository.TransactionManager,
	prescriptions repository.PrescriptionRepository,
	medicines repository.MedicineRepository,
	movements repository.StockMovementRepository,
	m *metrics.Metrics,
) PrescriptionService {
	return &prescriptionService{
		tx:            tx,
		prescriptions: prescriptions,
		ledger:        stockLedger{medicines: medicines, movements: movements},
		metrics:       m,
	}
}

func (s *prescriptionService) Create(ctx context.Context, actor Actor, req dto.CreatePrescriptionRequest) (*dto.PrescriptionResponse, error) {
	visitID, err := uuid.Parse(req.VisitID)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "invalid visit_id")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "invalid patient_id")
	}
	if len(req.Lines) == 0 {
		return nil, newError(CodeInvalidArgument, "prescription has no lines")
	}

	rx := &model.Prescription{
		ID:        uuid.New(),
		VisitID:   visitID,
		PatientID: patientID,
		Status:    model.PrescriptionPending,
		Notes:     req.Notes,
		CreatedBy: actor.ID,
	}
	if req.DoctorID != nil && *req.DoctorID != "" {
		doctorID, err := uuid.Parse(*req.DoctorID)
		if err != nil {
			return nil, newError(CodeInvalidArgument, "invalid doctor_id")
		}
		rx.DoctorID = &doctorID
	}

	// Availability is an advisory snapshot; Fulfill re-checks under lock.
	names := map[uuid.UUID]*model.Medicine{}
	for i, rl := range req.Lines {
		if rl.Quantity <= 0 {
			e := newError(CodeInvalidArgument, "line %d: quantity must be positive", i)
			e.Line = intPtr(i)
			return nil, e
		}
		line := model.PrescriptionLine{
			ID:             uuid.New(),
			PrescriptionID: rx.ID,
			Position:       i,
			Quantity:       rl.Quantity,
			Dosage:         rl.Dosage,
			Frequency:      rl.Frequency,
			Duration:       rl.Duration,
			Instructions:   rl.Instructions,
		}
		switch {
		case rl.MedicineID != nil && *rl.MedicineID != "":
			medID, err := uuid.Parse(*rl.MedicineID)
			if err != nil {
				e := newError(CodeInvalidArgument, "line %d: invalid medicine_id", i)
				e.Line = intPtr(i)
				return nil, e
			}
			m, err := s.ledger.medicines.FindByID(ctx, medID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, medicineNotFound(medID, intPtr(i))
				}
				return nil, classify("create prescription", err)
			}
			names[medID] = m
			line.MedicineID = &medID
			line.IsAvailable = m.Active && m.Stock >= rl.Quantity
			if !line.IsAvailable {
				note := "insufficient stock at prescription time"
				if !m.Active {
					note = "medicine is deactivated"
				}
				line.AvailabilityNote = &note
			}
		case rl.ExternalName != nil && strings.TrimSpace(*rl.ExternalName) != "":
			name := strings.TrimSpace(*rl.ExternalName)
			note := model.ExternalUnavailableNote
			line.ExternalName = &name
			line.IsAvailable = false
			line.AvailabilityNote = &note
		default:
			e := newError(CodeInvalidArgument, "line %d: either medicine_id or external_name is required", i)
			e.Line = intPtr(i)
			return nil, e
		}
		rx.Lines = append(rx.Lines, line)
	}

	rx.CreatedAt = time.Now()
	rx.UpdatedAt = rx.CreatedAt
	if err := s.prescriptions.Create(ctx, rx); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, &Error{Code: CodeVisitNotFound, Message: "visit " + visitID.String() + " not found", cause: err}
		}
		return nil, classify("create prescription", err)
	}

	for i := range rx.Lines {
		if id := rx.Lines[i].MedicineID; id != nil {
			rx.Lines[i].Medicine = names[*id]
		}
	}
	log.Info().Str("prescription_id", rx.ID.String()).Int("lines", len(rx.Lines)).Msg("prescription created")
	return prescriptionToResponse(rx), nil
}

// ── Fulfill ──────────────────────────────────────────────────────────────────
// Locks the prescription, re-checks every catalog line against current stock
// and depletes FIFO. External lines are never touched.

func (s *prescriptionService) Fulfill(ctx context.Context, actor Actor, id uuid.UUID) (*dto.PrescriptionResponse, error) {
	started := time.Now()
	resp, units, err := s.fulfill(ctx, actor, id)
	s.metrics.ObserveOperation(metrics.OpFulfill, outcome(err), started)
	if err != nil {
		log.Warn().Err(err).Str("prescription_id", id.String()).Str("code", outcome(err)).Msg("fulfillment rejected")
		return nil, err
	}
	s.metrics.AddUnitsDepleted(model.MovementPrescription, units)
	log.Info().Str("prescription_id", id.String()).Int("units", units).Msg("prescription fulfilled")
	return resp, nil
}

func (s *prescriptionService) fulfill(ctx context.Context, actor Actor, id uuid.UUID) (*dto.PrescriptionResponse, int, error) {
	var rx *model.Prescription
	units := 0
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rx, err = s.lockPending(txCtx, id)
		if err != nil {
			return err
		}

		var lines []cartLine
		lineIndex := []int{}
		for _, l := range rx.Lines {
			if l.IsExternal() {
				continue
			}
			lines = append(lines, cartLine{medicineID: *l.MedicineID, quantity: l.Quantity})
			lineIndex = append(lineIndex, l.Position)
		}

		if len(lines) > 0 {
			ids, first, needed := groupByMedicine(lines)
			firstLine := make(map[uuid.UUID]int, len(first))
			for medID, idx := range first {
				firstLine[medID] = lineIndex[idx]
			}
			meds, err := s.ledger.lockMedicines(txCtx, ids, firstLine)
			if err != nil {
				return err
			}
			for _, medID := range ids {
				m := meds[medID]
				if needed[medID] > m.Stock {
					return insufficientStock(medID, m.Name, intPtr(firstLine[medID]), needed[medID], m.Stock)
				}
			}
			for j, l := range lines {
				if _, err := s.ledger.deplete(txCtx, depletion{
					medicine:    meds[l.medicineID],
					quantity:    l.quantity,
					kind:        model.MovementPrescription,
					referenceID: rx.ID,
					actorID:     actor.ID,
					line:        lineIndex[j],
					note:        "prescription " + rx.ID.String(),
				}); err != nil {
					return err
				}
				units += l.quantity
			}
			for i := range rx.Lines {
				if mid := rx.Lines[i].MedicineID; mid != nil {
					rx.Lines[i].Medicine = meds[*mid]
				}
			}
		}

		now := time.Now()
		actorID := actor.ID
		rx.Status = model.PrescriptionFulfilled
		rx.FulfilledBy = &actorID
		rx.FulfilledAt = &now
		rx.UpdatedAt = now
		return s.prescriptions.Save(txCtx, rx)
	})
	if err != nil {
		return nil, 0, classify("fulfill prescription", err)
	}
	return prescriptionToResponse(rx), units, nil
}

func (s *prescriptionService) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*dto.PrescriptionResponse, error) {
	started := time.Now()
	var rx *model.Prescription
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rx, err = s.lockPending(txCtx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		actorID := actor.ID
		r := strings.TrimSpace(reason)
		rx.Status = model.PrescriptionCancelled
		rx.CancelledBy = &actorID
		rx.CancelledAt = &now
		if r != "" {
			rx.CancelReason = &r
		}
		rx.UpdatedAt = now
		return s.prescriptions.Save(txCtx, rx)
	})
	err = classify("cancel prescription", err)
	s.metrics.ObserveOperation(metrics.OpCancel, outcome(err), started)
	if err != nil {
		log.Warn().Err(err).Str("prescription_id", id.String()).Str("code", outcome(err)).Msg("cancellation rejected")
		return nil, err
	}
	log.Info().Str("prescription_id", id.String()).Msg("prescription cancelled")
	return prescriptionToResponse(rx), nil
}

// lockPending locks the prescription row and rejects terminal states.
func (s *prescriptionService) lockPending(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	rx, err := s.prescriptions.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodePrescriptionNotFound, "prescription %s not found", id)
		}
		return nil, err
	}
	if rx.Status != model.PrescriptionPending {
		return nil, newError(CodeInvalidState, "prescription is already %s", rx.Status)
	}
	return rx, nil
}

func (s *prescriptionService) Get(ctx context.Context, id uuid.UUID) (*dto.PrescriptionResponse, error) {
	rx, err := s.prescriptions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodePrescriptionNotFound, "prescription %s not found", id)
		}
		return nil, classify("get prescription", err)
	}
	return prescriptionToResponse(rx), nil
}

func (s *prescriptionService) List(ctx context.Context, filter dto.PrescriptionFilter) (*dto.PrescriptionListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	rows, total, err := s.prescriptions.List(ctx, filter)
	if err != nil {
		return nil, classify("list prescriptions", err)
	}
	resp := &dto.PrescriptionListResponse{
		Data:  make([]dto.PrescriptionResponse, 0, len(rows)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range rows {
		resp.Data = append(resp.Data, *prescriptionToResponse(&rows[i]))
	}
	return resp, nil
}
