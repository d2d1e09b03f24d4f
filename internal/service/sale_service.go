package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/metrics"
	"clinicrx/internal/model"
	"clinicrx/internal/pricing"
	"clinicrx/internal/repository"
	"clinicrx/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ReceiptQueue schedules receipt rendering once a sale has committed.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, job worker.ReceiptJobPayload) error
}

type SaleService interface {
	// Checkout validates the cart, depletes stock FIFO, prices the sale and
	// persists it with its lines, all in one transaction.
	Checkout(ctx context.Context, actor Actor, req dto.CheckoutRequest) (*dto.SaleResponse, error)
	GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	tx            repository.TransactionManager
	sales         repository.SaleRepository
	prescriptions repository.PrescriptionRepository
	ledger        stockLedger
	queue         ReceiptQueue
	metrics       *metrics.Metrics
}

func NewSaleService(
	tx repository.TransactionManager,
	sales repository.SaleRepository,
	medicines repository.MedicineRepository,
	movements repository.StockMovementRepository,
	prescriptions repository.PrescriptionRepository,
	queue ReceiptQueue,
	m *metrics.Metrics,
) SaleService {
	return &saleService{
		tx:            tx,
		sales:         sales,
		prescriptions: prescriptions,
		ledger:        stockLedger{medicines: medicines, movements: movements},
		queue:         queue,
		metrics:       m,
	}
}

// cartLine is a validated request line.
type cartLine struct {
	medicineID uuid.UUID
	quantity   int
	unitPrice  *decimal.Decimal
}

// ── Checkout ─────────────────────────────────────────────────────────────────
//   0. validate the request, replay client_ref
//   1. lock medicines, check stock (skipped for prescription-backed sales)
//   2. subtotal
//   3. pricing
//   4. cash >= total
//   5. FIFO depletion (or provenance from the fulfilled prescription)
//   6. persist sale + one line per batch allocation
// Steps 1-6 share one transaction.

func (s *saleService) Checkout(ctx context.Context, actor Actor, req dto.CheckoutRequest) (*dto.SaleResponse, error) {
	started := time.Now()
	resp, err := s.checkout(ctx, actor, req)
	s.metrics.ObserveOperation(metrics.OpCheckout, outcome(err), started)
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) {
			log.Warn().Str("code", string(domainErr.Code)).Str("actor", actor.ID.String()).Msg("checkout rejected")
		} else {
			log.Error().Err(err).Str("actor", actor.ID.String()).Msg("checkout failed")
		}
	}
	return resp, err
}

func (s *saleService) checkout(ctx context.Context, actor Actor, req dto.CheckoutRequest) (*dto.SaleResponse, error) {
	lines, err := parseCart(req.Lines)
	if err != nil {
		return nil, err
	}

	discount, err := pricing.ParseDiscountType(req.Discount.Type)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "%v", err)
	}
	idNumber := strings.TrimSpace(req.Discount.IDNumber)
	beneficiary := strings.TrimSpace(req.Discount.Name)
	if discount.RequiresBeneficiary() && (idNumber == "" || beneficiary == "") {
		return nil, newError(CodeDiscountFieldsMissing, "%s discount requires id_number and name", discount)
	}
	if req.Cash.IsNegative() {
		return nil, newError(CodeInvalidArgument, "cash cannot be negative")
	}

	var prescriptionID *uuid.UUID
	if req.PrescriptionID != nil && *req.PrescriptionID != "" {
		id, err := uuid.Parse(*req.PrescriptionID)
		if err != nil {
			return nil, newError(CodeInvalidArgument, "invalid prescription_id")
		}
		prescriptionID = &id
	}

	var clientRef *string
	if req.ClientRef != nil && strings.TrimSpace(*req.ClientRef) != "" {
		ref := strings.TrimSpace(*req.ClientRef)
		clientRef = &ref
		if existing, err := s.sales.FindByClientRef(ctx, ref); err == nil {
			return saleToResponse(existing), nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, classify("checkout", err)
		}
	}

	sale := &model.Sale{
		ID:             uuid.New(),
		DiscountType:   string(discount),
		Cash:           req.Cash.Round(2),
		ProcessedBy:    actor.ID,
		PrescriptionID: prescriptionID,
		ClientRef:      clientRef,
	}
	if discount.RequiresBeneficiary() {
		sale.DiscountIDNumber = &idNumber
		sale.DiscountName = &beneficiary
	}

	var units int
	txErr := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if prescriptionID != nil {
			if err := s.checkBillable(txCtx, *prescriptionID); err != nil {
				return err
			}
		}

		// 1. lock medicines and check aggregate stock per medicine
		ids, firstLine, needed := groupByMedicine(lines)
		meds, err := s.ledger.lockMedicines(txCtx, ids, firstLine)
		if err != nil {
			return err
		}
		if prescriptionID == nil {
			for _, id := range ids {
				m := meds[id]
				if needed[id] > m.Stock {
					return insufficientStock(id, m.Name, intPtr(firstLine[id]), needed[id], m.Stock)
				}
			}
		}

		// 2. subtotal
		prices := make([]decimal.Decimal, len(lines))
		subtotal := decimal.Zero
		for i, l := range lines {
			price := meds[l.medicineID].Price
			if l.unitPrice != nil {
				price = l.unitPrice.Round(2)
			}
			prices[i] = price
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(l.quantity))))
		}

		// 3. pricing
		bd, err := pricing.Calculate(subtotal, discount)
		if err != nil {
			return newError(CodeInvalidArgument, "%v", err)
		}

		// 4. payment
		change, err := pricing.Change(bd.Total, sale.Cash)
		if err != nil {
			e := newError(CodeInsufficientPayment, "cash %s is less than total %s", sale.Cash.StringFixed(2), bd.Total.StringFixed(2))
			e.cause = err
			return e
		}

		// 5. depletion
		var provenance map[uuid.UUID][]model.MedicineBatch
		batchNumbers := map[uuid.UUID]string{}
		if prescriptionID != nil {
			provenance, err = s.dispensedBatches(txCtx, *prescriptionID, ids)
			if err != nil {
				return err
			}
		}
		for i, l := range lines {
			m := meds[l.medicineID]
			var allocs []Allocation
			if prescriptionID == nil {
				allocs, err = s.ledger.deplete(txCtx, depletion{
					medicine:    m,
					quantity:    l.quantity,
					kind:        model.MovementSale,
					referenceID: sale.ID,
					actorID:     actor.ID,
					line:        i,
					note:        "sale " + sale.ID.String(),
				})
				if err != nil {
					return err
				}
				units += l.quantity
			} else {
				allocs, err = consumeDispensed(provenance, m, l.quantity, i)
				if err != nil {
					return err
				}
			}

			// 6. one sale line per batch allocation
			for _, a := range allocs {
				batchID := a.BatchID
				batchNumbers[batchID] = a.BatchNumber
				sale.Lines = append(sale.Lines, model.SaleLine{
					ID:         uuid.New(),
					SaleID:     sale.ID,
					Position:   len(sale.Lines),
					MedicineID: m.ID,
					BatchID:    &batchID,
					Quantity:   a.Quantity,
					UnitPrice:  prices[i],
					Subtotal:   prices[i].Mul(decimal.NewFromInt(int64(a.Quantity))),
				})
			}
		}

		sale.Subtotal = bd.Subtotal
		sale.VATExclusiveSubtotal = bd.VATExclusiveSubtotal
		sale.VATAmount = bd.VATAmount
		sale.DiscountAmount = bd.DiscountAmount
		sale.Tax = bd.Tax
		sale.Total = bd.Total
		sale.Change = change
		sale.CreatedAt = time.Now()

		if err := s.sales.Create(txCtx, sale); err != nil {
			return err
		}

		for i := range sale.Lines {
			l := &sale.Lines[i]
			l.Medicine = meds[l.MedicineID]
			l.Batch = &model.MedicineBatch{ID: *l.BatchID, BatchNumber: batchNumbers[*l.BatchID]}
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, repository.ErrDuplicate) {
			return s.resolveDuplicate(ctx, clientRef, prescriptionID, txErr)
		}
		return nil, classify("checkout", txErr)
	}

	s.metrics.AddUnitsDepleted(model.MovementSale, units)
	log.Info().
		Str("sale_id", sale.ID.String()).
		Str("total", sale.Total.StringFixed(2)).
		Str("discount", sale.DiscountType).
		Int("lines", len(sale.Lines)).
		Msg("checkout committed")

	if s.queue != nil {
		job := worker.ReceiptJobPayload{SaleID: sale.ID.String(), CustomerEmail: req.CustomerEmail}
		if err := s.queue.EnqueueReceipt(ctx, job); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID.String()).Msg("checkout: failed to enqueue receipt job")
		}
	}

	return saleToResponse(sale), nil
}

func parseCart(reqLines []dto.SaleLineRequest) ([]cartLine, error) {
	if len(reqLines) == 0 {
		return nil, newError(CodeInvalidArgument, "cart is empty")
	}
	lines := make([]cartLine, 0, len(reqLines))
	for i, rl := range reqLines {
		id, err := uuid.Parse(rl.MedicineID)
		if err != nil {
			e := newError(CodeInvalidArgument, "line %d: invalid medicine_id", i)
			e.Line = intPtr(i)
			return nil, e
		}
		if rl.Quantity <= 0 {
			e := newError(CodeInvalidArgument, "line %d: quantity must be positive", i)
			e.Line = intPtr(i)
			e.MedicineID = &id
			return nil, e
		}
		if rl.UnitPrice != nil && rl.UnitPrice.IsNegative() {
			e := newError(CodeInvalidArgument, "line %d: unit_price cannot be negative", i)
			e.Line = intPtr(i)
			e.MedicineID = &id
			return nil, e
		}
		lines = append(lines, cartLine{medicineID: id, quantity: rl.Quantity, unitPrice: rl.UnitPrice})
	}
	return lines, nil
}

// groupByMedicine returns the distinct medicine ids, the first line index of
// each and the total quantity requested per medicine.
func groupByMedicine(lines []cartLine) ([]uuid.UUID, map[uuid.UUID]int, map[uuid.UUID]int) {
	var ids []uuid.UUID
	firstLine := map[uuid.UUID]int{}
	needed := map[uuid.UUID]int{}
	for i, l := range lines {
		if _, ok := firstLine[l.medicineID]; !ok {
			firstLine[l.medicineID] = i
			ids = append(ids, l.medicineID)
		}
		needed[l.medicineID] += l.quantity
	}
	return ids, firstLine, needed
}

// checkBillable locks the prescription and verifies it was fulfilled and has
// not been billed yet.
func (s *saleService) checkBillable(ctx context.Context, prescriptionID uuid.UUID) error {
	rx, err := s.prescriptions.FindByIDForUpdate(ctx, prescriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(CodePrescriptionNotFound, "prescription %s not found", prescriptionID)
		}
		return err
	}
	if rx.Status != model.PrescriptionFulfilled {
		return newError(CodeInvalidState, "prescription is %s, only fulfilled prescriptions can be billed", rx.Status)
	}
	if _, err := s.sales.FindByPrescriptionID(ctx, prescriptionID); err == nil {
		return newError(CodeInvalidState, "prescription %s was already billed", prescriptionID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// dispensedBatches rebuilds, per medicine, the batches the fulfillment drew
// from, in the order they were drawn.
func (s *saleService) dispensedBatches(ctx context.Context, prescriptionID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID][]model.MedicineBatch, error) {
	out := make(map[uuid.UUID][]model.MedicineBatch, len(ids))
	for _, id := range ids {
		medID := id
		moves, err := s.ledger.movements.ListByReference(ctx, prescriptionID, &medID)
		if err != nil {
			return nil, err
		}
		for i, mv := range moves {
			if mv.BatchID == nil || mv.Quantity >= 0 {
				continue
			}
			b := model.MedicineBatch{
				ID:         *mv.BatchID,
				MedicineID: id,
				Quantity:   -mv.Quantity,
				StockedAt:  mv.CreatedAt.Add(time.Duration(i)),
				Status:     model.BatchStatusActive,
			}
			if mv.Batch != nil {
				b.BatchNumber = mv.Batch.BatchNumber
			}
			out[id] = append(out[id], b)
		}
	}
	return out, nil
}

// consumeDispensed allocates a billed line against what the prescription
// dispensed and removes the allocated units from the pool.
func consumeDispensed(pool map[uuid.UUID][]model.MedicineBatch, m *model.Medicine, qty, line int) ([]Allocation, error) {
	allocs, err := AllocateFIFO(pool[m.ID], qty)
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) && domainErr.Code == CodeInsufficientStock {
			mid := m.ID
			return nil, &Error{
				Code:       CodeInvalidState,
				Message:    fmt.Sprintf("line %d bills %d of %s but the prescription dispensed %d", line, qty, m.Name, domainErr.Available),
				MedicineID: &mid,
				Line:       intPtr(line),
				Requested:  qty,
				Available:  domainErr.Available,
			}
		}
		return nil, err
	}
	taken := map[uuid.UUID]int{}
	for _, a := range allocs {
		taken[a.BatchID] += a.Quantity
	}
	batches := pool[m.ID]
	for i := range batches {
		if n, ok := taken[batches[i].ID]; ok {
			batches[i].Quantity -= n
			delete(taken, batches[i].ID)
		}
	}
	return allocs, nil
}

// resolveDuplicate handles a unique violation raised by a concurrent checkout
// carrying the same client_ref or prescription.
func (s *saleService) resolveDuplicate(ctx context.Context, clientRef *string, prescriptionID *uuid.UUID, cause error) (*dto.SaleResponse, error) {
	if clientRef != nil {
		if existing, err := s.sales.FindByClientRef(ctx, *clientRef); err == nil {
			return saleToResponse(existing), nil
		}
	}
	if prescriptionID != nil {
		return nil, &Error{Code: CodeInvalidState, Message: "prescription was already billed", cause: cause}
	}
	return nil, classify("checkout", cause)
}

func (s *saleService) GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.sales.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeSaleNotFound, "sale %s not found", id)
		}
		return nil, classify("get sale", err)
	}
	return saleToResponse(sale), nil
}

// ListSales returns a paginated list of sales, newest first.
func (s *saleService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	sales, total, err := s.sales.List(ctx, filter)
	if err != nil {
		return nil, classify("list sales", err)
	}
	resp := &dto.SaleListResponse{
		Data:  make([]dto.SaleResponse, 0, len(sales)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range sales {
		resp.Data = append(resp.Data, *saleToResponse(&sales[i]))
	}
	return resp, nil
}
