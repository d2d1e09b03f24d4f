package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/metrics"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InventoryService is the read side of the inventory store plus the stock-in
// and expiry flows. Sales and fulfillments deplete stock through stockLedger.
type InventoryService interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*dto.MedicineResponse, error)
	ListBatches(ctx context.Context, medicineID uuid.UUID, activeOnly bool) ([]dto.BatchResponse, error)
	ReceiveBatch(ctx context.Context, actor Actor, medicineID uuid.UUID, req dto.ReceiveBatchRequest) (*dto.BatchResponse, error)
	// ExpireBatches marks every active batch whose expiry date is before asOf
	// as expired and removes its units from available stock.
	ExpireBatches(ctx context.Context, asOf time.Time) (*dto.ExpirySweepResponse, error)
	LowStockAlerts(ctx context.Context) ([]dto.LowStockAlert, error)
	ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.MovementListResponse, error)
}

type inventoryService struct {
	tx      repository.TransactionManager
	ledger  stockLedger
	metrics *metrics.Metrics
}

func NewInventoryService(
	tx repository.TransactionManager,
	medicines repository.MedicineRepository,
	movements repository.StockMovementRepository,
	m *metrics.Metrics,
) InventoryService {
	return &inventoryService{
		tx:      tx,
		ledger:  stockLedger{medicines: medicines, movements: movements},
		metrics: m,
	}
}

func (s *inventoryService) GetMedicine(ctx context.Context, id uuid.UUID) (*dto.MedicineResponse, error) {
	m, err := s.ledger.medicines.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, medicineNotFound(id, nil)
		}
		return nil, classify("get medicine", err)
	}
	return medicineToResponse(m), nil
}

func (s *inventoryService) ListBatches(ctx context.Context, medicineID uuid.UUID, activeOnly bool) ([]dto.BatchResponse, error) {
	if _, err := s.ledger.medicines.FindByID(ctx, medicineID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, medicineNotFound(medicineID, nil)
		}
		return nil, classify("list batches", err)
	}
	var (
		batches []model.MedicineBatch
		err     error
	)
	if activeOnly {
		batches, err = s.ledger.medicines.ListActiveBatches(ctx, medicineID)
	} else {
		batches, err = s.ledger.medicines.ListBatches(ctx, medicineID)
	}
	if err != nil {
		return nil, classify("list batches", err)
	}
	out := make([]dto.BatchResponse, 0, len(batches))
	for i := range batches {
		out = append(out, batchToResponse(&batches[i]))
	}
	return out, nil
}

func (s *inventoryService) ReceiveBatch(ctx context.Context, actor Actor, medicineID uuid.UUID, req dto.ReceiveBatchRequest) (*dto.BatchResponse, error) {
	started := time.Now()
	resp, err := s.receiveBatch(ctx, actor, medicineID, req)
	s.metrics.ObserveOperation(metrics.OpStockIn, outcome(err), started)
	return resp, err
}

func (s *inventoryService) receiveBatch(ctx context.Context, actor Actor, medicineID uuid.UUID, req dto.ReceiveBatchRequest) (*dto.BatchResponse, error) {
	if req.Quantity <= 0 {
		return nil, newError(CodeInvalidArgument, "quantity must be positive, got %d", req.Quantity)
	}
	if req.CostPrice.IsNegative() {
		return nil, newError(CodeInvalidArgument, "cost price cannot be negative")
	}
	stockedAt := time.Now().UTC().Truncate(24 * time.Hour)
	if req.StockedAt != nil && *req.StockedAt != "" {
		t, err := time.Parse("2006-01-02", *req.StockedAt)
		if err != nil {
			return nil, newError(CodeInvalidArgument, "stocked_at must be YYYY-MM-DD")
		}
		stockedAt = t
	}
	var expiry *time.Time
	if req.ExpiryDate != nil && *req.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", *req.ExpiryDate)
		if err != nil {
			return nil, newError(CodeInvalidArgument, "expiry_date must be YYYY-MM-DD")
		}
		if t.Before(stockedAt) {
			return nil, newError(CodeInvalidArgument, "expiry_date is before stocked_at")
		}
		expiry = &t
	}

	batch := &model.MedicineBatch{
		ID:          uuid.New(),
		MedicineID:  medicineID,
		BatchNumber: req.BatchNumber,
		Quantity:    req.Quantity,
		ExpiryDate:  expiry,
		StockedAt:   stockedAt,
		Supplier:    req.Supplier,
		CostPrice:   req.CostPrice.Round(2),
		Status:      model.BatchStatusActive,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		meds, err := s.ledger.lockMedicines(txCtx, []uuid.UUID{medicineID}, nil)
		if err != nil {
			return err
		}
		m := meds[medicineID]
		before := m.Stock
		if err := s.ledger.medicines.CreateBatch(txCtx, batch); err != nil {
			return err
		}
		after, err := s.ledger.medicines.SyncStock(txCtx, medicineID)
		if err != nil {
			return err
		}
		batchID, actorID := batch.ID, actor.ID
		return s.ledger.movements.Create(txCtx, &model.StockMovement{
			MedicineID:  medicineID,
			BatchID:     &batchID,
			Kind:        model.MovementStockIn,
			Quantity:    batch.Quantity,
			StockBefore: before,
			StockAfter:  after,
			Note:        fmt.Sprintf("stock-in batch %s", batch.BatchNumber),
			ActorID:     &actorID,
		})
	})
	if err != nil {
		return nil, classify("receive batch", err)
	}

	log.Info().
		Str("medicine_id", medicineID.String()).
		Str("batch", batch.BatchNumber).
		Int("quantity", batch.Quantity).
		Msg("inventory: batch received")
	resp := batchToResponse(batch)
	return &resp, nil
}

func (s *inventoryService) ExpireBatches(ctx context.Context, asOf time.Time) (*dto.ExpirySweepResponse, error) {
	started := time.Now()
	resp, err := s.expireBatches(ctx, asOf)
	s.metrics.ObserveOperation(metrics.OpExpire, outcome(err), started)
	return resp, err
}

func (s *inventoryService) expireBatches(ctx context.Context, asOf time.Time) (*dto.ExpirySweepResponse, error) {
	asOf = asOf.UTC().Truncate(24 * time.Hour)
	var expired []model.MedicineBatch

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Medicines are locked before their batches, the same order checkout uses.
		candidates, err := s.ledger.medicines.ListExpired(txCtx, asOf)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		seen := map[uuid.UUID]bool{}
		var ids []uuid.UUID
		for _, b := range candidates {
			if !seen[b.MedicineID] {
				seen[b.MedicineID] = true
				ids = append(ids, b.MedicineID)
			}
		}
		sortUUIDs(ids)
		running := make(map[uuid.UUID]int, len(ids))
		for _, id := range ids {
			m, err := s.ledger.medicines.FindByIDForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			running[id] = m.Stock
		}

		locked, err := s.ledger.medicines.ListExpiredForUpdate(txCtx, asOf)
		if err != nil {
			return err
		}
		candidates = candidates[:0]
		for _, b := range locked {
			// batches of medicines that appeared after the first read wait for the next sweep
			if _, ok := running[b.MedicineID]; ok {
				candidates = append(candidates, b)
			}
		}
		for i := range candidates {
			b := candidates[i]
			if err := s.ledger.medicines.MarkBatchExpired(txCtx, b.ID); err != nil {
				return err
			}
			before := running[b.MedicineID]
			batchID := b.ID
			if err := s.ledger.movements.Create(txCtx, &model.StockMovement{
				MedicineID:  b.MedicineID,
				BatchID:     &batchID,
				Kind:        model.MovementExpiry,
				Quantity:    -b.Quantity,
				StockBefore: before,
				StockAfter:  before - b.Quantity,
				Note:        fmt.Sprintf("batch %s expired", b.BatchNumber),
			}); err != nil {
				return err
			}
			running[b.MedicineID] = before - b.Quantity
			b.Status = model.BatchStatusExpired
			expired = append(expired, b)
		}
		for _, id := range ids {
			if _, err := s.ledger.medicines.SyncStock(txCtx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("expire batches", err)
	}

	resp := &dto.ExpirySweepResponse{
		AsOf:    asOf.Format("2006-01-02"),
		Expired: len(expired),
		Batches: make([]dto.BatchResponse, 0, len(expired)),
	}
	for i := range expired {
		resp.Batches = append(resp.Batches, batchToResponse(&expired[i]))
	}
	if len(expired) > 0 {
		log.Info().Int("batches", len(expired)).Str("as_of", resp.AsOf).Msg("inventory: batches expired")
	}
	return resp, nil
}

func (s *inventoryService) LowStockAlerts(ctx context.Context) ([]dto.LowStockAlert, error) {
	meds, err := s.ledger.medicines.ListLowStock(ctx)
	if err != nil {
		return nil, classify("low stock alerts", err)
	}
	out := make([]dto.LowStockAlert, 0, len(meds))
	for _, m := range meds {
		out = append(out, dto.LowStockAlert{
			MedicineID: m.ID.String(),
			Name:       m.Name,
			Unit:       m.Unit,
			Stock:      m.Stock,
			MinStock:   m.MinStock,
			Deficit:    m.MinStock - m.Stock,
		})
	}
	return out, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.MovementListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	rows, total, err := s.ledger.movements.List(ctx, filter)
	if err != nil {
		return nil, classify("list movements", err)
	}
	resp := &dto.MovementListResponse{
		Data:  make([]dto.MovementResponse, 0, len(rows)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range rows {
		resp.Data = append(resp.Data, movementToResponse(&rows[i]))
	}
	return resp, nil
}
