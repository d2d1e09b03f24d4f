package worker

// email_worker.go
// Sends receipt PDFs to customers. Calls go through a circuit breaker so a
// downed SMTP relay fails fast instead of stalling the pool.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clinicrx/internal/infra"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EmailJobPayload is the job envelope sent to QueueEmail.
type EmailJobPayload struct {
	SaleID  string `json:"sale_id"`
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	PDFPath string `json:"pdf_path"`
}

// ReceiptSender is implemented by infra.Mailer.
type ReceiptSender interface {
	SendReceipt(to, subject, body, pdfPath string) error
}

type EmailWorker struct {
	sender   ReceiptSender
	breaker  *infra.CircuitBreaker
	receipts repository.ReceiptRepository
}

func NewEmailWorker(sender ReceiptSender, breaker *infra.CircuitBreaker, receipts repository.ReceiptRepository) *EmailWorker {
	return &EmailWorker{sender: sender, breaker: breaker, receipts: receipts}
}

// Process sends one email. An open breaker is reported as an error so the
// pool re-queues the job.
func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("email_worker: invalid payload: %w", err)
	}
	if payload.ToEmail == "" {
		log.Warn().Str("sale_id", payload.SaleID).Msg("email_worker: empty to_email, skipping")
		return nil
	}

	err := w.breaker.Execute(func() error {
		return w.sender.SendReceipt(payload.ToEmail, payload.Subject, payload.Body, payload.PDFPath)
	})
	if err != nil {
		if errors.Is(err, infra.ErrCircuitOpen) {
			log.Debug().Str("sale_id", payload.SaleID).Msg("email_worker: circuit open")
		}
		return fmt.Errorf("email_worker: send to %s: %w", payload.ToEmail, err)
	}

	if saleID, err := uuid.Parse(payload.SaleID); err == nil && w.receipts != nil {
		if rc, err := w.receipts.FindBySaleID(ctx, saleID); err == nil {
			to := payload.ToEmail
			rc.EmailedTo = &to
			if err := w.receipts.Update(ctx, rc); err != nil {
				log.Warn().Err(err).Str("sale_id", payload.SaleID).Msg("email_worker: failed to record recipient")
			}
		}
	}
	log.Info().Str("sale_id", payload.SaleID).Msg("email_worker: receipt sent")
	return nil
}
