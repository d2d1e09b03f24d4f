package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"
	"clinicrx/internal/service"
	"clinicrx/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory implementation of every repository the engine
// uses. RunInTx serializes transactions and restores a snapshot when fn
// fails, which is the isolation the row locks give us in Postgres.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	medicines     map[uuid.UUID]model.Medicine
	batches       map[uuid.UUID]model.MedicineBatch
	sales         map[uuid.UUID]model.Sale
	prescriptions map[uuid.UUID]model.Prescription
	movements     []model.StockMovement

	// knownVisits, when non-nil, makes Prescription.Create fail with
	// ErrForeignKey for any other visit id.
	knownVisits map[uuid.UUID]bool
	// failOn injects an error into the named repository operation.
	failOn map[string]error
	// txErr is returned by RunInTx without running fn.
	txErr error

	clock time.Time
}

type txMarker struct{}

func newMemStore() *memStore {
	return &memStore{
		medicines:     map[uuid.UUID]model.Medicine{},
		batches:       map[uuid.UUID]model.MedicineBatch{},
		sales:         map[uuid.UUID]model.Sale{},
		prescriptions: map[uuid.UUID]model.Prescription{},
		failOn:        map[string]error{},
		clock:         time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp. Callers hold s.mu.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failOn[op]
}

// ── TransactionManager ───────────────────────────────────────────────────────

type snapshot struct {
	medicines     map[uuid.UUID]model.Medicine
	batches       map[uuid.UUID]model.MedicineBatch
	sales         map[uuid.UUID]model.Sale
	prescriptions map[uuid.UUID]model.Prescription
	movements     []model.StockMovement
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		medicines:     make(map[uuid.UUID]model.Medicine, len(s.medicines)),
		batches:       make(map[uuid.UUID]model.MedicineBatch, len(s.batches)),
		sales:         make(map[uuid.UUID]model.Sale, len(s.sales)),
		prescriptions: make(map[uuid.UUID]model.Prescription, len(s.prescriptions)),
		movements:     append([]model.StockMovement(nil), s.movements...),
	}
	for k, v := range s.medicines {
		snap.medicines[k] = v
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.sales {
		v.Lines = append([]model.SaleLine(nil), v.Lines...)
		snap.sales[k] = v
	}
	for k, v := range s.prescriptions {
		v.Lines = append([]model.PrescriptionLine(nil), v.Lines...)
		snap.prescriptions[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines = snap.medicines
	s.batches = snap.batches
	s.sales = snap.sales
	s.prescriptions = snap.prescriptions
	s.movements = snap.movements
}

func (s *memStore) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.txErr != nil {
		return s.txErr
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ── MedicineRepository ───────────────────────────────────────────────────────

type medicineRepo struct{ s *memStore }

func (r medicineRepo) Create(_ context.Context, m *model.Medicine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = r.s.tick()
	r.s.medicines[m.ID] = *m
	return nil
}

func (r medicineRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.medicines[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r medicineRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Medicine, error) {
	if err := r.s.fail("medicines.FindByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r medicineRepo) FindByName(_ context.Context, name string) (*model.Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.medicines {
		if strings.EqualFold(m.Name, name) {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r medicineRepo) ListLowStock(context.Context) ([]model.Medicine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Medicine
	for _, m := range r.s.medicines {
		if m.Active && m.Stock <= m.MinStock {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock-out[i].MinStock < out[j].Stock-out[j].MinStock })
	return out, nil
}

func (r medicineRepo) CreateBatch(_ context.Context, b *model.MedicineBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = r.s.tick()
	r.s.batches[b.ID] = *b
	return nil
}

func (r medicineRepo) listBatches(filter func(model.MedicineBatch) bool) []model.MedicineBatch {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.MedicineBatch
	for _, b := range r.s.batches {
		if filter(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StockedAt.Equal(out[j].StockedAt) {
			return out[i].StockedAt.Before(out[j].StockedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r medicineRepo) ListBatches(_ context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	return r.listBatches(func(b model.MedicineBatch) bool { return b.MedicineID == medicineID }), nil
}

func (r medicineRepo) ListActiveBatches(_ context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	return r.listBatches(func(b model.MedicineBatch) bool {
		return b.MedicineID == medicineID && b.Status == model.BatchStatusActive && b.Quantity > 0
	}), nil
}

func (r medicineRepo) ListActiveBatchesForUpdate(ctx context.Context, medicineID uuid.UUID) ([]model.MedicineBatch, error) {
	return r.ListActiveBatches(ctx, medicineID)
}

func (r medicineRepo) ListExpired(_ context.Context, asOf time.Time) ([]model.MedicineBatch, error) {
	return r.listBatches(func(b model.MedicineBatch) bool {
		return b.Status == model.BatchStatusActive && b.ExpiryDate != nil && b.ExpiryDate.Before(asOf)
	}), nil
}

func (r medicineRepo) ListExpiredForUpdate(ctx context.Context, asOf time.Time) ([]model.MedicineBatch, error) {
	return r.ListExpired(ctx, asOf)
}

func (r medicineRepo) AdjustBatchQuantity(_ context.Context, batchID uuid.UUID, delta int) (*model.MedicineBatch, error) {
	if err := r.s.fail("medicines.AdjustBatchQuantity"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.Quantity+delta < 0 || (delta < 0 && b.Status != model.BatchStatusActive) {
		return nil, repository.ErrInsufficientQuantity
	}
	b.Quantity += delta
	if b.Quantity == 0 {
		b.Status = model.BatchStatusDepleted
	}
	r.s.batches[batchID] = b
	return &b, nil
}

func (r medicineRepo) MarkBatchExpired(_ context.Context, batchID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok || b.Status != model.BatchStatusActive {
		return repository.ErrNotFound
	}
	b.Status = model.BatchStatusExpired
	r.s.batches[batchID] = b
	return nil
}

func (r medicineRepo) SyncStock(_ context.Context, medicineID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := 0
	for _, b := range r.s.batches {
		if b.MedicineID == medicineID && b.Status == model.BatchStatusActive {
			sum += b.Quantity
		}
	}
	m := r.s.medicines[medicineID]
	m.Stock = sum
	r.s.medicines[medicineID] = m
	return sum, nil
}

// ── SaleRepository ───────────────────────────────────────────────────────────

type saleRepo struct{ s *memStore }

func (r saleRepo) Create(_ context.Context, sale *model.Sale) error {
	if err := r.s.fail("sales.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sales {
		if sale.ClientRef != nil && existing.ClientRef != nil && *sale.ClientRef == *existing.ClientRef {
			return repository.ErrDuplicate
		}
		if sale.PrescriptionID != nil && existing.PrescriptionID != nil && *sale.PrescriptionID == *existing.PrescriptionID {
			return repository.ErrDuplicate
		}
	}
	stored := *sale
	stored.Lines = make([]model.SaleLine, len(sale.Lines))
	for i, l := range sale.Lines {
		l.Medicine, l.Batch = nil, nil
		stored.Lines[i] = l
	}
	r.s.sales[sale.ID] = stored
	return nil
}

func (r saleRepo) hydrate(sale model.Sale) *model.Sale {
	lines := make([]model.SaleLine, len(sale.Lines))
	for i, l := range sale.Lines {
		if m, ok := r.s.medicines[l.MedicineID]; ok {
			l.Medicine = &m
		}
		if l.BatchID != nil {
			if b, ok := r.s.batches[*l.BatchID]; ok {
				l.Batch = &b
			}
		}
		lines[i] = l
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Position != lines[j].Position {
			return lines[i].Position < lines[j].Position
		}
		return bytes.Compare(lines[i].ID[:], lines[j].ID[:]) < 0
	})
	sale.Lines = lines
	return &sale
}

func (r saleRepo) find(match func(model.Sale) bool) (*model.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sale := range r.s.sales {
		if match(sale) {
			return r.hydrate(sale), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r saleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	return r.find(func(s model.Sale) bool { return s.ID == id })
}

func (r saleRepo) FindByClientRef(_ context.Context, ref string) (*model.Sale, error) {
	return r.find(func(s model.Sale) bool { return s.ClientRef != nil && *s.ClientRef == ref })
}

func (r saleRepo) FindByPrescriptionID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	return r.find(func(s model.Sale) bool { return s.PrescriptionID != nil && *s.PrescriptionID == id })
}

func (r saleRepo) List(_ context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Sale
	for _, sale := range r.s.sales {
		if filter.ProcessedBy != "" && sale.ProcessedBy.String() != filter.ProcessedBy {
			continue
		}
		out = append(out, *r.hydrate(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

// ── PrescriptionRepository ───────────────────────────────────────────────────

type prescriptionRepo struct{ s *memStore }

func (r prescriptionRepo) Create(_ context.Context, p *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.knownVisits != nil && !r.s.knownVisits[p.VisitID] {
		return repository.ErrForeignKey
	}
	stored := *p
	stored.Lines = make([]model.PrescriptionLine, len(p.Lines))
	for i, l := range p.Lines {
		l.Medicine = nil
		stored.Lines[i] = l
	}
	r.s.prescriptions[p.ID] = stored
	return nil
}

func (r prescriptionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	lines := make([]model.PrescriptionLine, len(p.Lines))
	for i, l := range p.Lines {
		if l.MedicineID != nil {
			if m, ok := r.s.medicines[*l.MedicineID]; ok {
				l.Medicine = &m
			}
		}
		lines[i] = l
	}
	// Same order as the Lines preload: position, then id.
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Position != lines[j].Position {
			return lines[i].Position < lines[j].Position
		}
		return bytes.Compare(lines[i].ID[:], lines[j].ID[:]) < 0
	})
	p.Lines = lines
	return &p, nil
}

func (r prescriptionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	return r.FindByID(ctx, id)
}

func (r prescriptionRepo) Save(_ context.Context, p *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.prescriptions[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	header := *p
	header.Lines = existing.Lines
	r.s.prescriptions[p.ID] = header
	return nil
}

func (r prescriptionRepo) List(_ context.Context, filter dto.PrescriptionFilter) ([]model.Prescription, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Prescription
	for _, p := range r.s.prescriptions {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.PatientID != "" && p.PatientID.String() != filter.PatientID {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

// ── StockMovementRepository ──────────────────────────────────────────────────

type movementRepo struct{ s *memStore }

func (r movementRepo) Create(_ context.Context, m *model.StockMovement) error {
	if err := r.s.fail("movements.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = r.s.tick()
	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r movementRepo) ListByReference(_ context.Context, ref uuid.UUID, medicineID *uuid.UUID) ([]model.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.StockMovement
	for _, m := range r.s.movements {
		if m.ReferenceID == nil || *m.ReferenceID != ref {
			continue
		}
		if medicineID != nil && m.MedicineID != *medicineID {
			continue
		}
		if m.BatchID != nil {
			if b, ok := r.s.batches[*m.BatchID]; ok {
				m.Batch = &b
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (r movementRepo) List(_ context.Context, filter dto.MovementFilter) ([]model.StockMovement, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.StockMovement
	for _, m := range r.s.movements {
		if filter.MedicineID != "" && m.MedicineID.String() != filter.MedicineID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

var (
	_ repository.TransactionManager      = (*memStore)(nil)
	_ repository.MedicineRepository      = medicineRepo{}
	_ repository.SaleRepository          = saleRepo{}
	_ repository.PrescriptionRepository  = prescriptionRepo{}
	_ repository.StockMovementRepository = movementRepo{}
	_ repository.ReceiptRepository       = (*receiptRepo)(nil)
)

// ── fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	t             *testing.T
	store         *memStore
	sales         service.SaleService
	prescriptions service.PrescriptionService
	inventory     service.InventoryService
	queue         *recordingQueue
	actor         service.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newMemStore()
	q := &recordingQueue{}
	return &fixture{
		t:             t,
		store:         s,
		sales:         service.NewSaleService(s, saleRepo{s}, medicineRepo{s}, movementRepo{s}, prescriptionRepo{s}, q, nil),
		prescriptions: service.NewPrescriptionService(s, prescriptionRepo{s}, medicineRepo{s}, movementRepo{s}, nil),
		inventory:     service.NewInventoryService(s, medicineRepo{s}, movementRepo{s}, nil),
		queue:         q,
		actor:         service.Actor{ID: uuid.New(), Role: "staff"},
	}
}

var day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// addMedicine creates an active medicine priced at price with one batch per
// quantity; batch i is stocked on day0+i.
func (f *fixture) addMedicine(name, price string, quantities ...int) uuid.UUID {
	f.t.Helper()
	m := &model.Medicine{
		ID:       uuid.New(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		MinStock: 2,
		Unit:     "tablet",
		Active:   true,
	}
	require.NoError(f.t, medicineRepo{f.store}.Create(context.Background(), m))
	for i, q := range quantities {
		f.addBatch(m.ID, name+"-B"+string(rune('1'+i)), q, day0.AddDate(0, 0, i), nil)
	}
	return m.ID
}

func (f *fixture) addBatch(medicineID uuid.UUID, number string, qty int, stockedAt time.Time, expiry *time.Time) uuid.UUID {
	f.t.Helper()
	b := &model.MedicineBatch{
		ID:          uuid.New(),
		MedicineID:  medicineID,
		BatchNumber: number,
		Quantity:    qty,
		StockedAt:   stockedAt,
		ExpiryDate:  expiry,
		CostPrice:   decimal.RequireFromString("1.00"),
		Status:      model.BatchStatusActive,
	}
	repo := medicineRepo{f.store}
	require.NoError(f.t, repo.CreateBatch(context.Background(), b))
	_, err := repo.SyncStock(context.Background(), medicineID)
	require.NoError(f.t, err)
	return b.ID
}

func (f *fixture) stock(id uuid.UUID) int {
	f.t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.medicines[id].Stock
}

func (f *fixture) batchesOf(id uuid.UUID) []model.MedicineBatch {
	f.t.Helper()
	bs, err := medicineRepo{f.store}.ListBatches(context.Background(), id)
	require.NoError(f.t, err)
	return bs
}

// assertStockInvariant checks stock == sum(active batch quantities) and that
// nothing went negative.
func (f *fixture) assertStockInvariant() {
	f.t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	sums := map[uuid.UUID]int{}
	for _, b := range f.store.batches {
		require.GreaterOrEqual(f.t, b.Quantity, 0, "batch %s negative", b.BatchNumber)
		if b.Status == model.BatchStatusActive {
			sums[b.MedicineID] += b.Quantity
		}
	}
	for id, m := range f.store.medicines {
		require.GreaterOrEqual(f.t, m.Stock, 0)
		require.Equal(f.t, sums[id], m.Stock, "stock drift on %s", m.Name)
	}
}

// inventoryBytes serializes medicines and batches deterministically.
func (f *fixture) inventoryBytes() []byte {
	f.t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	meds := make([]model.Medicine, 0, len(f.store.medicines))
	for _, m := range f.store.medicines {
		meds = append(meds, m)
	}
	sort.Slice(meds, func(i, j int) bool { return meds[i].ID.String() < meds[j].ID.String() })
	batches := make([]model.MedicineBatch, 0, len(f.store.batches))
	for _, b := range f.store.batches {
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID.String() < batches[j].ID.String() })
	raw, err := json.Marshal(struct {
		Medicines []model.Medicine
		Batches   []model.MedicineBatch
		Movements int
		Sales     int
	}{meds, batches, len(f.store.movements), len(f.store.sales)})
	require.NoError(f.t, err)
	return raw
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []string
}

func (q *recordingQueue) EnqueueReceipt(_ context.Context, job worker.ReceiptJobPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job.SaleID)
	return nil
}

// ── ReceiptRepository ────────────────────────────────────────────────────────

type receiptRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Receipt
}

func newReceiptRepo() *receiptRepo { return &receiptRepo{rows: map[uuid.UUID]model.Receipt{}} }

func (r *receiptRepo) Create(_ context.Context, rc *model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[rc.SaleID]; ok {
		return repository.ErrDuplicate
	}
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	r.rows[rc.SaleID] = *rc
	return nil
}

func (r *receiptRepo) FindBySaleID(_ context.Context, saleID uuid.UUID) (*model.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.rows[saleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rc, nil
}

func (r *receiptRepo) Update(_ context.Context, rc *model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rc.SaleID] = *rc
	return nil
}
