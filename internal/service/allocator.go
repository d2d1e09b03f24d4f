package service

import (
	"sort"

	"clinicrx/internal/model"

	"github.com/google/uuid"
)

// Allocation is the number of units taken from one batch.
type Allocation struct {
	BatchID     uuid.UUID
	BatchNumber string
	Quantity    int
}

// AllocateFIFO covers qty from batches, oldest stock-in first. Batches that are
// not active or are empty are skipped. The result sums exactly to qty; when the
// batches cannot cover it nothing is allocated and an INSUFFICIENT_STOCK error
// is returned. The input slice is not modified.
func AllocateFIFO(batches []model.MedicineBatch, qty int) ([]Allocation, error) {
	if qty <= 0 {
		return nil, newError(CodeInvalidArgument, "quantity must be positive, got %d", qty)
	}

	ordered := make([]model.MedicineBatch, 0, len(batches))
	available := 0
	for _, b := range batches {
		if !b.Available() {
			continue
		}
		ordered = append(ordered, b)
		available += b.Quantity
	}
	if available < qty {
		return nil, &Error{
			Code:      CodeInsufficientStock,
			Message:   "not enough stock in active batches",
			Requested: qty,
			Available: available,
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].StockedAt.Equal(ordered[j].StockedAt) {
			return ordered[i].StockedAt.Before(ordered[j].StockedAt)
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	out := make([]Allocation, 0, len(ordered))
	need := qty
	for _, b := range ordered {
		if need == 0 {
			break
		}
		take := b.Quantity
		if take > need {
			take = need
		}
		out = append(out, Allocation{BatchID: b.ID, BatchNumber: b.BatchNumber, Quantity: take})
		need -= take
	}
	return out, nil
}
