package dto

import "github.com/shopspring/decimal"

// ReceiptResponse is the read-only projection handed to receipt rendering.
type ReceiptResponse struct {
	SaleID         string          `json:"sale_id"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	DiscountType   string          `json:"discount_type"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	Cash           decimal.Decimal `json:"cash"`
	Change         decimal.Decimal `json:"change"`
	Lines          []ReceiptLine   `json:"lines"`
	IssuedAt       string          `json:"issued_at"`
	DocumentStatus string          `json:"document_status"` // pending | generated | failed | none
}

type ReceiptLine struct {
	Description string          `json:"description"`
	BatchNumber string          `json:"batch_number,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}
