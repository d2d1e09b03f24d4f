package service

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"clinicrx/internal/model"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
)

// Actor is the already-authenticated caller. Role checks happen before the
// engine is reached; the engine only records who acted.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// depletion describes units leaving stock for one cart or prescription line.
type depletion struct {
	medicine    *model.Medicine
	quantity    int
	kind        string // model.Movement*
	referenceID uuid.UUID
	actorID     uuid.UUID
	line        int
	note        string
}

// stockLedger is the single write path for batch quantities. Every method
// must run inside TransactionManager.RunInTx with the medicine row already
// locked by the caller.
type stockLedger struct {
	medicines repository.MedicineRepository
	movements repository.StockMovementRepository
}

// deplete locks the medicine's active batches, allocates FIFO, applies every
// allocation and re-derives the medicine's stock.
func (l stockLedger) deplete(ctx context.Context, d depletion) ([]Allocation, error) {
	batches, err := l.medicines.ListActiveBatchesForUpdate(ctx, d.medicine.ID)
	if err != nil {
		return nil, err
	}
	allocs, err := AllocateFIFO(batches, d.quantity)
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) && domainErr.Code == CodeInsufficientStock {
			return nil, insufficientStock(d.medicine.ID, d.medicine.Name, intPtr(d.line), d.quantity, domainErr.Available)
		}
		return nil, err
	}

	before := 0
	for _, b := range batches {
		if b.Available() {
			before += b.Quantity
		}
	}

	refID, actorID := d.referenceID, d.actorID
	for _, a := range allocs {
		if _, err := l.medicines.AdjustBatchQuantity(ctx, a.BatchID, -a.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientQuantity) {
				return nil, insufficientStock(d.medicine.ID, d.medicine.Name, intPtr(d.line), d.quantity, before)
			}
			return nil, err
		}
		batchID := a.BatchID
		mv := &model.StockMovement{
			MedicineID:  d.medicine.ID,
			BatchID:     &batchID,
			Kind:        d.kind,
			Quantity:    -a.Quantity,
			StockBefore: before,
			StockAfter:  before - a.Quantity,
			ReferenceID: &refID,
			Note:        d.note,
			ActorID:     &actorID,
		}
		if err := l.movements.Create(ctx, mv); err != nil {
			return nil, err
		}
		before -= a.Quantity
	}

	stock, err := l.medicines.SyncStock(ctx, d.medicine.ID)
	if err != nil {
		return nil, err
	}
	d.medicine.Stock = stock
	return allocs, nil
}

// lockMedicines locks the given medicines in ascending id order so concurrent
// operations over overlapping carts cannot deadlock. firstLine maps a medicine
// to the first line that referenced it, for error reporting.
func (l stockLedger) lockMedicines(ctx context.Context, ids []uuid.UUID, firstLine map[uuid.UUID]int) (map[uuid.UUID]*model.Medicine, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sortUUIDs(sorted)

	out := make(map[uuid.UUID]*model.Medicine, len(sorted))
	for _, id := range sorted {
		m, err := l.medicines.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, medicineNotFound(id, intPtr(firstLine[id]))
			}
			return nil, err
		}
		if !m.Active {
			e := newError(CodeInvalidState, "medicine %s is deactivated", m.Name)
			mid := m.ID
			e.MedicineID = &mid
			e.Line = intPtr(firstLine[id])
			return nil, e
		}
		out[id] = m
	}
	return out, nil
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}
