package worker

// receipt_worker.go
// Renders the PDF receipt of a committed sale and, when the customer left an
// email address, hands it to the email queue.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicrx/internal/infra"
	"clinicrx/internal/metrics"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReceiptJobPayload is the job envelope sent to QueueReceipt.
type ReceiptJobPayload struct {
	SaleID        string  `json:"sale_id"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

// EmailQueue is implemented by Dispatcher.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload EmailJobPayload) error
}

// RenderFunc writes the receipt PDF and returns its path.
type RenderFunc func(sale *model.Sale, clinicName, storagePath string) (string, error)

type ReceiptWorker struct {
	sales       repository.SaleRepository
	receipts    repository.ReceiptRepository
	emails      EmailQueue
	metrics     *metrics.Metrics
	render      RenderFunc
	storagePath string
	clinicName  string
	backoff     time.Duration
}

func NewReceiptWorker(
	sales repository.SaleRepository,
	receipts repository.ReceiptRepository,
	emails EmailQueue,
	m *metrics.Metrics,
	storagePath string,
	clinicName string,
) *ReceiptWorker {
	return &ReceiptWorker{
		sales:       sales,
		receipts:    receipts,
		emails:      emails,
		metrics:     m,
		render:      infra.GenerateReceiptPDF,
		storagePath: storagePath,
		clinicName:  clinicName,
		backoff:     time.Second,
	}
}

// Process handles a single receipt job:
//  1. Load the sale with its lines
//  2. Find or create the Receipt row (status pending)
//  3. Render the PDF with backoff, up to 3 tries
//  4. Record generated / failed
//  5. Optionally enqueue the email job
//
// Generated receipts are not rendered twice, so redelivery is harmless.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("receipt_worker: invalid payload: %w", err)
	}
	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil {
		return fmt.Errorf("receipt_worker: invalid sale_id %q", payload.SaleID)
	}

	sale, err := w.sales.FindByID(ctx, saleID)
	if err != nil {
		return fmt.Errorf("receipt_worker: load sale %s: %w", saleID, err)
	}

	rc, err := w.receipts.FindBySaleID(ctx, saleID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		rc = &model.Receipt{ID: uuid.New(), SaleID: saleID, Status: model.ReceiptPending}
		if err := w.receipts.Create(ctx, rc); err != nil {
			return fmt.Errorf("receipt_worker: create receipt: %w", err)
		}
	case err != nil:
		return fmt.Errorf("receipt_worker: load receipt: %w", err)
	case rc.Status == model.ReceiptGenerated:
		log.Debug().Str("sale_id", payload.SaleID).Msg("receipt_worker: already generated")
		return nil
	}

	var pdfPath string
	renderErr := withRetry(ctx, 3, w.backoff, func(attempt int) error {
		rc.Attempts++
		p, err := w.render(sale, w.clinicName, w.storagePath)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("sale_id", payload.SaleID).
				Msg("receipt_worker: render failed, retrying")
			return err
		}
		pdfPath = p
		return nil
	})

	if renderErr != nil {
		msg := renderErr.Error()
		rc.Status = model.ReceiptFailed
		rc.LastError = &msg
		if err := w.receipts.Update(ctx, rc); err != nil {
			log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: failed to record failure")
		}
		w.metrics.ReceiptJob(model.ReceiptFailed)
		return fmt.Errorf("receipt_worker: render: %w", renderErr)
	}

	rc.Status = model.ReceiptGenerated
	rc.PDFPath = &pdfPath
	rc.LastError = nil
	if err := w.receipts.Update(ctx, rc); err != nil {
		return fmt.Errorf("receipt_worker: update receipt: %w", err)
	}
	w.metrics.ReceiptJob(model.ReceiptGenerated)
	log.Info().Str("pdf", pdfPath).Str("sale_id", payload.SaleID).Msg("receipt_worker: PDF generated")

	if payload.CustomerEmail != nil && *payload.CustomerEmail != "" && w.emails != nil {
		job := EmailJobPayload{
			SaleID:  payload.SaleID,
			ToEmail: *payload.CustomerEmail,
			Subject: fmt.Sprintf("%s receipt", w.clinicName),
			Body:    fmt.Sprintf("Attached is your receipt.\nTotal: %s", sale.Total.StringFixed(2)),
			PDFPath: pdfPath,
		}
		if err := w.emails.EnqueueEmail(ctx, job); err != nil {
			log.Warn().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: failed to enqueue email")
		}
	}
	return nil
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// (immediate, base, 2*base, ...). Returns nil if any attempt succeeds.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := base * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
