package dto

import "github.com/shopspring/decimal"

type MedicineResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	BrandName   *string         `json:"brand_name"`
	GenericName *string         `json:"generic_name"`
	Price       decimal.Decimal `json:"price"`
	MinStock    int             `json:"min_stock"`
	Unit        string          `json:"unit"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	LowStock    bool            `json:"low_stock"`
}

type BatchResponse struct {
	ID          string          `json:"id"`
	MedicineID  string          `json:"medicine_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    int             `json:"quantity"`
	ExpiryDate  *string         `json:"expiry_date"`
	StockedAt   string          `json:"stocked_at"`
	Supplier    *string         `json:"supplier"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	Status      string          `json:"status"`
}

// ReceiveBatchRequest is the body of POST /v1/medicines/:id/batches.
type ReceiveBatchRequest struct {
	BatchNumber string          `json:"batch_number" validate:"required,max=64"`
	Quantity    int             `json:"quantity"     validate:"required,min=1"`
	ExpiryDate  *string         `json:"expiry_date"  validate:"omitempty,datetime=2006-01-02"`
	StockedAt   *string         `json:"stocked_at"   validate:"omitempty,datetime=2006-01-02"` // empty = today
	Supplier    *string         `json:"supplier"     validate:"omitempty,max=200"`
	CostPrice   decimal.Decimal `json:"cost_price"   validate:"min=0"`
}

type LowStockAlert struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	Stock      int    `json:"stock"`
	MinStock   int    `json:"min_stock"`
	Deficit    int    `json:"deficit"`
}

type ExpirySweepResponse struct {
	AsOf    string          `json:"as_of"`
	Expired int             `json:"expired"`
	Batches []BatchResponse `json:"batches"`
}

// MovementFilter is bound from query string of GET /v1/inventory/movements.
type MovementFilter struct {
	MedicineID  string `form:"medicine_id"  validate:"omitempty,uuid"`
	ReferenceID string `form:"reference_id" validate:"omitempty,uuid"`
	Kind        string `form:"kind"         validate:"omitempty,oneof=stock_in sale prescription expiry"`
	Page        int    `form:"page,default=1"    validate:"min=1"`
	Limit       int    `form:"limit,default=100" validate:"min=1,max=500"`
}

type MovementResponse struct {
	ID          string  `json:"id"`
	MedicineID  string  `json:"medicine_id"`
	BatchID     *string `json:"batch_id"`
	Kind        string  `json:"kind"`
	Quantity    int     `json:"quantity"`
	StockBefore int     `json:"stock_before"`
	StockAfter  int     `json:"stock_after"`
	ReferenceID *string `json:"reference_id"`
	Note        string  `json:"note"`
	ActorID     *string `json:"actor_id"`
	CreatedAt   string  `json:"created_at"`
}

type MovementListResponse struct {
	Data  []MovementResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
