// Package seed loads an opening medicine catalog from CSV.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"clinicrx/internal/dto"
	"clinicrx/internal/model"
	"clinicrx/internal/repository"
	"clinicrx/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Columns, in order. Batch columns may be empty for a medicine with no stock yet.
var header = []string{
	"name", "generic_name", "brand_name", "unit", "price", "min_stock",
	"batch_number", "quantity", "stocked_at", "expiry_date", "supplier", "cost_price",
}

// Catalog is the part of the medicine repository the loader needs.
type Catalog interface {
	Create(ctx context.Context, m *model.Medicine) error
	FindByName(ctx context.Context, name string) (*model.Medicine, error)
}

// BatchReceiver is implemented by service.InventoryService.
type BatchReceiver interface {
	ReceiveBatch(ctx context.Context, actor service.Actor, medicineID uuid.UUID, req dto.ReceiveBatchRequest) (*dto.BatchResponse, error)
}

// Result summarizes one load.
type Result struct {
	Medicines int
	Batches   int
	Skipped   int
}

// LoadCatalog creates missing medicines by name and stocks in one batch per
// row through the inventory service, so stock and the movement ledger stay
// consistent. Bad rows are logged and skipped.
func LoadCatalog(ctx context.Context, r io.Reader, catalog Catalog, inventory BatchReceiver, actor service.Actor) (Result, error) {
	var res Result
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(header)

	first, err := reader.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(first[i])) != col {
			return res, fmt.Errorf("unexpected header column %d: %q, want %q", i+1, first[i], col)
		}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("seed: unreadable row")
			res.Skipped++
			continue
		}
		created, stocked, err := loadRow(ctx, record, catalog, inventory, actor)
		if created {
			res.Medicines++
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("seed: row skipped")
			res.Skipped++
			continue
		}
		if stocked {
			res.Batches++
		}
	}
	log.Info().
		Int("medicines", res.Medicines).
		Int("batches", res.Batches).
		Int("skipped", res.Skipped).
		Msg("seed: catalog loaded")
	return res, nil
}

func loadRow(ctx context.Context, rec []string, catalog Catalog, inventory BatchReceiver, actor service.Actor) (created, stocked bool, err error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	name := rec[0]
	if name == "" {
		return false, false, errors.New("empty name")
	}

	med, err := catalog.FindByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		med, err = newMedicine(rec)
		if err != nil {
			return false, false, err
		}
		if err := catalog.Create(ctx, med); err != nil {
			return false, false, fmt.Errorf("create %s: %w", name, err)
		}
		created = true
	case err != nil:
		return false, false, err
	}

	if rec[6] == "" {
		return created, false, nil
	}
	qty, err := strconv.Atoi(rec[7])
	if err != nil {
		return created, false, fmt.Errorf("quantity %q: %w", rec[7], err)
	}
	req := dto.ReceiveBatchRequest{
		BatchNumber: rec[6],
		Quantity:    qty,
		StockedAt:   optional(rec[8]),
		ExpiryDate:  optional(rec[9]),
		Supplier:    optional(rec[10]),
	}
	if rec[11] != "" {
		if req.CostPrice, err = decimal.NewFromString(rec[11]); err != nil {
			return created, false, fmt.Errorf("cost_price %q: %w", rec[11], err)
		}
	}
	if _, err := inventory.ReceiveBatch(ctx, actor, med.ID, req); err != nil {
		return created, false, fmt.Errorf("stock in %s/%s: %w", name, rec[6], err)
	}
	return created, true, nil
}

func newMedicine(rec []string) (*model.Medicine, error) {
	price, err := decimal.NewFromString(rec[4])
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("price %q is not a valid amount", rec[4])
	}
	minStock := 10
	if rec[5] != "" {
		if minStock, err = strconv.Atoi(rec[5]); err != nil || minStock < 0 {
			return nil, fmt.Errorf("min_stock %q is not a valid count", rec[5])
		}
	}
	unit := rec[3]
	if unit == "" {
		unit = "piece"
	}
	return &model.Medicine{
		ID:          uuid.New(),
		Name:        rec[0],
		GenericName: optional(rec[1]),
		BrandName:   optional(rec[2]),
		Unit:        unit,
		Price:       price.Round(2),
		MinStock:    minStock,
		Active:      true,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
