package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from query string of GET /v1/sales.
type SaleFilter struct {
	Date        string `form:"date"`         // YYYY-MM-DD; empty = all dates
	ProcessedBy string `form:"processed_by"` // user uuid
	Page        int    `form:"page,default=1"   validate:"min=1"`
	Limit       int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleLineRequest struct {
	MedicineID string `json:"medicine_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity"    validate:"required,min=1"`
	// UnitPrice defaults to the catalog price when omitted.
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// DiscountRequest: IDNumber and Name are mandatory for senior and pwd.
type DiscountRequest struct {
	Type     string `json:"type"      validate:"omitempty,oneof=none senior pwd"`
	IDNumber string `json:"id_number" validate:"max=64"`
	Name     string `json:"name"      validate:"max=200"`
}

type CheckoutRequest struct {
	Lines    []SaleLineRequest `json:"lines"    validate:"required,min=1,dive"`
	Discount DiscountRequest   `json:"discount"`
	Cash     decimal.Decimal   `json:"cash"     validate:"min=0"`
	// PrescriptionID bills a fulfilled prescription; stock was already
	// depleted by the fulfillment and is not touched again.
	PrescriptionID *string `json:"prescription_id" validate:"omitempty,uuid"`
	// ClientRef makes retries safe: a second checkout with the same ref
	// returns the sale created by the first.
	ClientRef     *string `json:"client_ref"     validate:"omitempty,max=64"`
	CustomerEmail *string `json:"customer_email" validate:"omitempty,email"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleLineResponse struct {
	MedicineID   string          `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	BatchID      *string         `json:"batch_id"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type SaleResponse struct {
	ID                   string             `json:"id"`
	Lines                []SaleLineResponse `json:"lines"`
	Subtotal             decimal.Decimal    `json:"subtotal"`
	VATExclusiveSubtotal decimal.Decimal    `json:"vat_exclusive_subtotal"`
	VATAmount            decimal.Decimal    `json:"vat_amount"`
	DiscountType         string             `json:"discount_type"`
	DiscountAmount       decimal.Decimal    `json:"discount_amount"`
	Tax                  decimal.Decimal    `json:"tax"`
	Total                decimal.Decimal    `json:"total"`
	Cash                 decimal.Decimal    `json:"cash"`
	Change               decimal.Decimal    `json:"change"`
	ProcessedBy          string             `json:"processed_by"`
	PrescriptionID       *string            `json:"prescription_id"`
	CreatedAt            string             `json:"created_at"`
}
