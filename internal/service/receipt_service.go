package service

import (
	"context"
	"errors"
	"time"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"

	"github.com/google/uuid"
)

// ReceiptService exposes the read-only projection of a sale used for receipt
// rendering, and the PDF produced by the receipt worker.
type ReceiptService interface {
	GetReceipt(ctx context.Context, saleID uuid.UUID) (*dto.ReceiptResponse, error)
	PDFPath(ctx context.Context, saleID uuid.UUID) (string, error)
}

type receiptService struct {
	sales    repository.SaleRepository
	receipts repository.ReceiptRepository
}

func NewReceiptService(sales repository.SaleRepository, receipts repository.ReceiptRepository) ReceiptService {
	return &receiptService{sales: sales, receipts: receipts}
}

// GetReceipt returns the projection of a sale (GET /v1/sales/:id/receipt).
func (s *receiptService) GetReceipt(ctx context.Context, saleID uuid.UUID) (*dto.ReceiptResponse, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeSaleNotFound, "sale %s not found", saleID)
		}
		return nil, classify("get receipt", err)
	}
	resp := receiptFromSale(sale)
	resp.DocumentStatus = "none"
	if rc, err := s.receipts.FindBySaleID(ctx, saleID); err == nil {
		resp.DocumentStatus = rc.Status
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, classify("get receipt", err)
	}
	return resp, nil
}

// PDFPath returns the filesystem path of the generated receipt
// (GET /v1/sales/:id/receipt/pdf).
func (s *receiptService) PDFPath(ctx context.Context, saleID uuid.UUID) (string, error) {
	rc, err := s.receipts.FindBySaleID(ctx, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", newError(CodeSaleNotFound, "no receipt for sale %s", saleID)
		}
		return "", classify("receipt pdf", err)
	}
	if rc.Status != model.ReceiptGenerated || rc.PDFPath == nil || *rc.PDFPath == "" {
		return "", newError(CodeInvalidState, "receipt is %s, PDF not available", rc.Status)
	}
	return *rc.PDFPath, nil
}

// receiptFromSale builds the projection handed to receipt rendering.
func receiptFromSale(sale *model.Sale) *dto.ReceiptResponse {
	resp := &dto.ReceiptResponse{
		SaleID:         sale.ID.String(),
		Subtotal:       sale.Subtotal,
		Tax:            sale.Tax,
		DiscountType:   sale.DiscountType,
		DiscountAmount: sale.DiscountAmount,
		Total:          sale.Total,
		Cash:           sale.Cash,
		Change:         sale.Change,
		IssuedAt:       sale.CreatedAt.Format(time.RFC3339),
		Lines:          make([]dto.ReceiptLine, 0, len(sale.Lines)),
	}
	for _, l := range sale.Lines {
		line := dto.ReceiptLine{
			Description: l.MedicineID.String(),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		}
		if l.Medicine != nil {
			line.Description = l.Medicine.Name
		}
		if l.Batch != nil {
			line.BatchNumber = l.Batch.BatchNumber
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp
}
