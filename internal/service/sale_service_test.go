package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"
	"clinicrx/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cart(cash string, lines ...dto.SaleLineRequest) dto.CheckoutRequest {
	return dto.CheckoutRequest{Lines: lines, Cash: decimal.RequireFromString(cash)}
}

func line(id uuid.UUID, qty int) dto.SaleLineRequest {
	return dto.SaleLineRequest{MedicineID: id.String(), Quantity: qty}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireCode(t *testing.T, err error, code service.Code) *service.Error {
	t.Helper()
	require.Error(t, err)
	var domainErr *service.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, code, domainErr.Code, "error: %v", err)
	return domainErr
}

func TestCheckout_DepletesFIFOAcrossBatches(t *testing.T) {
	f := newFixture(t)
	amox := f.addMedicine("Amoxicillin", "10.00", 5, 5)

	sale, err := f.sales.Checkout(context.Background(), f.actor, cart("100", line(amox, 7)))

	require.NoError(t, err)
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, "Amoxicillin-B1", sale.Lines[0].BatchNumber)
	assert.Equal(t, 5, sale.Lines[0].Quantity)
	assert.Equal(t, "Amoxicillin-B2", sale.Lines[1].BatchNumber)
	assert.Equal(t, 2, sale.Lines[1].Quantity)
	assert.Equal(t, "Amoxicillin", sale.Lines[0].MedicineName)
	assert.True(t, sale.Total.Equal(dec("70")))
	assert.True(t, sale.Change.Equal(dec("30")))

	assert.Equal(t, 3, f.stock(amox))
	batches := f.batchesOf(amox)
	assert.Equal(t, model.BatchStatusDepleted, batches[0].Status)
	assert.Equal(t, 0, batches[0].Quantity)
	assert.Equal(t, 3, batches[1].Quantity)
	f.assertStockInvariant()

	moves, err := movementRepo{f.store}.ListByReference(context.Background(), uuid.MustParse(sale.ID), nil)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, -5, moves[0].Quantity)
	assert.Equal(t, 10, moves[0].StockBefore)
	assert.Equal(t, 5, moves[0].StockAfter)
	assert.Equal(t, -2, moves[1].Quantity)
	assert.Equal(t, 3, moves[1].StockAfter)
	assert.Equal(t, model.MovementSale, moves[1].Kind)

	assert.Equal(t, []string{sale.ID}, f.queue.jobs)
}

func TestGetSale_KeepsCartAndBatchOrder(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newFixture(t)
		ctx := context.Background()
		zinc := f.addMedicine("Zinc", "5.00", 2)
		amox := f.addMedicine("Amoxicillin", "10.00", 5, 5)

		created, err := f.sales.Checkout(ctx, f.actor, cart("200", line(zinc, 1), line(amox, 7)))
		require.NoError(t, err)

		stored, err := f.sales.GetSale(ctx, uuid.MustParse(created.ID))
		require.NoError(t, err)
		var got []string
		for _, l := range stored.Lines {
			got = append(got, fmt.Sprintf("%s x%d", l.BatchNumber, l.Quantity))
		}
		assert.Equal(t, []string{"Zinc-B1 x1", "Amoxicillin-B1 x5", "Amoxicillin-B2 x2"}, got)

		receipt, err := service.NewReceiptService(saleRepo{f.store}, newReceiptRepo()).GetReceipt(ctx, uuid.MustParse(created.ID))
		require.NoError(t, err)
		require.Len(t, receipt.Lines, 3)
		assert.Equal(t, "Amoxicillin-B2", receipt.Lines[2].BatchNumber)
	}
}

func TestCheckout_SeniorDiscount(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Losartan", "56.00", 10)

	req := cart("100", line(med, 2))
	req.Discount = dto.DiscountRequest{Type: "senior", IDNumber: "SC-0001", Name: "Lola Basyang"}
	sale, err := f.sales.Checkout(context.Background(), f.actor, req)

	require.NoError(t, err)
	assert.Equal(t, "senior", sale.DiscountType)
	assert.Equal(t, "112.00", sale.Subtotal.StringFixed(2))
	assert.Equal(t, "100.00", sale.VATExclusiveSubtotal.StringFixed(2))
	assert.Equal(t, "12.00", sale.VATAmount.StringFixed(2))
	assert.Equal(t, "20.00", sale.DiscountAmount.StringFixed(2))
	assert.Equal(t, "0.00", sale.Tax.StringFixed(2))
	assert.Equal(t, "80.00", sale.Total.StringFixed(2))
	assert.Equal(t, "20.00", sale.Change.StringFixed(2))
}

func TestCheckout_DiscountRequiresBeneficiary(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Losartan", "56.00", 10)

	for _, d := range []dto.DiscountRequest{
		{Type: "senior"},
		{Type: "pwd", IDNumber: "PWD-1"},
		{Type: "pwd", Name: "Juan", IDNumber: "   "},
	} {
		req := cart("1000", line(med, 1))
		req.Discount = d
		_, err := f.sales.Checkout(context.Background(), f.actor, req)
		requireCode(t, err, service.CodeDiscountFieldsMissing)
	}
	assert.Equal(t, 10, f.stock(med))
}

func TestCheckout_InsufficientPaymentLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Cetirizine", "15.00", 4, 6)
	before := f.inventoryBytes()

	for i := 0; i < 2; i++ {
		_, err := f.sales.Checkout(context.Background(), f.actor, cart("20", line(med, 5)))
		requireCode(t, err, service.CodeInsufficientPayment)
		assert.Equal(t, string(before), string(f.inventoryBytes()), "attempt %d changed state", i)
	}
	assert.Empty(t, f.queue.jobs)
}

func TestCheckout_AllOrNothingAcrossLines(t *testing.T) {
	f := newFixture(t)
	a := f.addMedicine("Paracetamol", "5.00", 10)
	b := f.addMedicine("Ibuprofen", "8.00", 5)
	before := f.inventoryBytes()

	_, err := f.sales.Checkout(context.Background(), f.actor, cart("10000", line(a, 3), line(b, 100)))

	domainErr := requireCode(t, err, service.CodeInsufficientStock)
	require.NotNil(t, domainErr.MedicineID)
	assert.Equal(t, b, *domainErr.MedicineID)
	require.NotNil(t, domainErr.Line)
	assert.Equal(t, 1, *domainErr.Line)
	assert.Equal(t, 100, domainErr.Requested)
	assert.Equal(t, 5, domainErr.Available)
	assert.Equal(t, string(before), string(f.inventoryBytes()))
	assert.Equal(t, 10, f.stock(a))
}

func TestCheckout_RepeatedMedicineIsCheckedInAggregate(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Salbutamol", "30.00", 5)

	_, err := f.sales.Checkout(context.Background(), f.actor, cart("1000", line(med, 3), line(med, 3)))

	domainErr := requireCode(t, err, service.CodeInsufficientStock)
	assert.Equal(t, 0, *domainErr.Line)
	assert.Equal(t, 6, domainErr.Requested)
	assert.Equal(t, 5, f.stock(med))
}

func TestCheckout_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Paracetamol", "5.00", 10)
	ctx := context.Background()

	_, err := f.sales.Checkout(ctx, f.actor, cart("10"))
	requireCode(t, err, service.CodeInvalidArgument)

	_, err = f.sales.Checkout(ctx, f.actor, cart("10", line(med, 1), dto.SaleLineRequest{MedicineID: "nope", Quantity: 1}))
	e := requireCode(t, err, service.CodeInvalidArgument)
	assert.Equal(t, 1, *e.Line)

	_, err = f.sales.Checkout(ctx, f.actor, cart("10", line(med, 0)))
	requireCode(t, err, service.CodeInvalidArgument)

	_, err = f.sales.Checkout(ctx, f.actor, cart("-1", line(med, 1)))
	requireCode(t, err, service.CodeInvalidArgument)

	req := cart("10", line(med, 1))
	req.Discount.Type = "student"
	_, err = f.sales.Checkout(ctx, f.actor, req)
	requireCode(t, err, service.CodeInvalidArgument)

	missing := uuid.New()
	_, err = f.sales.Checkout(ctx, f.actor, cart("10", line(med, 1), line(missing, 1)))
	e = requireCode(t, err, service.CodeMedicineNotFound)
	assert.Equal(t, missing, *e.MedicineID)
	assert.Equal(t, 1, *e.Line)

	assert.Equal(t, 10, f.stock(med))
}

func TestCheckout_DeactivatedMedicine(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Ranitidine", "12.00", 10)
	f.store.mu.Lock()
	m := f.store.medicines[med]
	m.Active = false
	f.store.medicines[med] = m
	f.store.mu.Unlock()

	_, err := f.sales.Checkout(context.Background(), f.actor, cart("100", line(med, 1)))
	requireCode(t, err, service.CodeInvalidState)
}

func TestCheckout_UnitPriceOverride(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Vitamin C", "4.00", 20)
	l := line(med, 3)
	override := dec("3.505")
	l.UnitPrice = &override

	sale, err := f.sales.Checkout(context.Background(), f.actor, cart("20", l))

	require.NoError(t, err)
	assert.Equal(t, "3.51", sale.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "10.53", sale.Total.StringFixed(2))
}

func TestCheckout_PersistenceFailureRollsBackDepletion(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Metformin", "6.00", 5, 5)
	before := f.inventoryBytes()
	f.store.failOn["sales.Create"] = errors.New("connection reset")

	_, err := f.sales.Checkout(context.Background(), f.actor, cart("100", line(med, 7)))

	require.Error(t, err)
	var domainErr *service.Error
	assert.False(t, errors.As(err, &domainErr))
	assert.Equal(t, string(before), string(f.inventoryBytes()))
	assert.Empty(t, f.queue.jobs)
}

func TestCheckout_LockTimeoutIsBusy(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Metformin", "6.00", 5)
	f.store.failOn["medicines.FindByIDForUpdate"] = fmt.Errorf("lock medicine: %w", repository.ErrLockTimeout)

	_, err := f.sales.Checkout(context.Background(), f.actor, cart("100", line(med, 1)))

	assert.True(t, errors.Is(err, service.ErrBusy))
	assert.True(t, errors.Is(err, repository.ErrLockTimeout))
	assert.Equal(t, 5, f.stock(med))
}

func TestCheckout_ClientRefReplaysOriginalSale(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Cefalexin", "20.00", 10)
	req := cart("100", line(med, 2))
	ref := "pos-1:0042"
	req.ClientRef = &ref

	first, err := f.sales.Checkout(context.Background(), f.actor, req)
	require.NoError(t, err)
	second, err := f.sales.Checkout(context.Background(), f.actor, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 8, f.stock(med))
	assert.Len(t, f.queue.jobs, 1)
}

func TestCheckout_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Loperamide", "7.00", 2, 3)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sales.Checkout(context.Background(), f.actor, cart("7", line(med, 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)
	assert.Equal(t, 0, f.stock(med))
	f.assertStockInvariant()
}

func TestCheckout_BillsFulfilledPrescriptionWithoutDepletingAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	med := f.addMedicine("Amoxicillin", "10.00", 3, 5)
	rx := f.createPrescription(dto.PrescriptionLineRequest{MedicineID: strPtr(med.String()), Quantity: 4})
	_, err := f.prescriptions.Fulfill(ctx, f.actor, rx)
	require.NoError(t, err)
	require.Equal(t, 4, f.stock(med))

	req := cart("50", line(med, 4))
	rxID := rx.String()
	req.PrescriptionID = &rxID
	sale, err := f.sales.Checkout(ctx, f.actor, req)

	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(med), "billing must not touch stock")
	require.Len(t, sale.Lines, 2)
	assert.Equal(t, "Amoxicillin-B1", sale.Lines[0].BatchNumber)
	assert.Equal(t, 3, sale.Lines[0].Quantity)
	assert.Equal(t, "Amoxicillin-B2", sale.Lines[1].BatchNumber)
	assert.Equal(t, 1, sale.Lines[1].Quantity)
	require.NotNil(t, sale.PrescriptionID)
	assert.Equal(t, rxID, *sale.PrescriptionID)

	_, err = f.sales.Checkout(ctx, f.actor, req)
	requireCode(t, err, service.CodeInvalidState)
	f.assertStockInvariant()
}

func TestCheckout_PrescriptionBillingRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	med := f.addMedicine("Amoxicillin", "10.00", 10)

	pending := f.createPrescription(dto.PrescriptionLineRequest{MedicineID: strPtr(med.String()), Quantity: 2})
	req := cart("100", line(med, 2))
	id := pending.String()
	req.PrescriptionID = &id
	_, err := f.sales.Checkout(ctx, f.actor, req)
	requireCode(t, err, service.CodeInvalidState)

	_, err = f.prescriptions.Fulfill(ctx, f.actor, pending)
	require.NoError(t, err)
	over := cart("100", line(med, 3))
	over.PrescriptionID = &id
	e := requireCode(t, func() error { _, err := f.sales.Checkout(ctx, f.actor, over); return err }(), service.CodeInvalidState)
	assert.Equal(t, 2, e.Available)

	unknown := uuid.NewString()
	req.PrescriptionID = &unknown
	_, err = f.sales.Checkout(ctx, f.actor, req)
	requireCode(t, err, service.CodePrescriptionNotFound)
}

func TestGetSale(t *testing.T) {
	f := newFixture(t)
	med := f.addMedicine("Amlodipine", "9.50", 10)
	sale, err := f.sales.Checkout(context.Background(), f.actor, cart("20", line(med, 2)))
	require.NoError(t, err)

	got, err := f.sales.GetSale(context.Background(), uuid.MustParse(sale.ID))
	require.NoError(t, err)
	assert.Equal(t, sale.ID, got.ID)
	assert.Equal(t, "Amlodipine-B1", got.Lines[0].BatchNumber)

	_, err = f.sales.GetSale(context.Background(), uuid.New())
	requireCode(t, err, service.CodeSaleNotFound)

	list, err := f.sales.ListSales(context.Background(), dto.SaleFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 50, list.Limit)
}

func TestReceiptService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipts := newReceiptRepo()
	svc := service.NewReceiptService(saleRepo{f.store}, receipts)
	med := f.addMedicine("Amlodipine", "9.50", 1, 5)
	sale, err := f.sales.Checkout(ctx, f.actor, cart("20", line(med, 2)))
	require.NoError(t, err)
	saleID := uuid.MustParse(sale.ID)

	rc, err := svc.GetReceipt(ctx, saleID)
	require.NoError(t, err)
	assert.Equal(t, "none", rc.DocumentStatus)
	require.Len(t, rc.Lines, 2)
	assert.Equal(t, "Amlodipine", rc.Lines[0].Description)
	assert.Equal(t, "Amlodipine-B1", rc.Lines[0].BatchNumber)
	assert.Equal(t, "19.00", rc.Total.StringFixed(2))

	_, err = svc.PDFPath(ctx, saleID)
	requireCode(t, err, service.CodeSaleNotFound)

	require.NoError(t, receipts.Create(ctx, &model.Receipt{SaleID: saleID, Status: model.ReceiptPending}))
	_, err = svc.PDFPath(ctx, saleID)
	requireCode(t, err, service.CodeInvalidState)

	path := "/var/receipts/receipt_" + sale.ID + ".pdf"
	require.NoError(t, receipts.Update(ctx, &model.Receipt{SaleID: saleID, Status: model.ReceiptGenerated, PDFPath: &path}))
	got, err := svc.PDFPath(ctx, saleID)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	rc, err = svc.GetReceipt(ctx, saleID)
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptGenerated, rc.DocumentStatus)

	_, err = svc.GetReceipt(ctx, uuid.New())
	requireCode(t, err, service.CodeSaleNotFound)
}
