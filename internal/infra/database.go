package infra

import (
	"fmt"

	"clinicrx/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and migrates the
// schema.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table and then applies the
// constraints AutoMigrate cannot express. Safe to run repeatedly; integration
// tests call it against a fresh container.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.Medicine{},
		&model.MedicineBatch{},
		&model.Sale{},
		&model.SaleLine{},
		&model.Prescription{},
		&model.PrescriptionLine{},
		&model.StockMovement{},
		&model.Receipt{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL: CHECK constraints backing the stock
// invariants, partial indexes for the FIFO and idempotency lookups, and the
// visit foreign key when the surrounding system's visits table is present.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"medicines stock non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_medicines_stock_non_negative') THEN
    ALTER TABLE medicines ADD CONSTRAINT chk_medicines_stock_non_negative CHECK (stock >= 0);
  END IF;
END $$`},
		{"batch quantity non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_medicine_batches_quantity_non_negative') THEN
    ALTER TABLE medicine_batches ADD CONSTRAINT chk_medicine_batches_quantity_non_negative CHECK (quantity >= 0);
  END IF;
END $$`},
		{"batch status domain", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_medicine_batches_status') THEN
    ALTER TABLE medicine_batches ADD CONSTRAINT chk_medicine_batches_status
      CHECK (status IN ('active', 'depleted', 'expired'));
  END IF;
END $$`},
		{"prescription status domain", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_prescriptions_status') THEN
    ALTER TABLE prescriptions ADD CONSTRAINT chk_prescriptions_status
      CHECK (status IN ('pending', 'fulfilled', 'cancelled'));
  END IF;
END $$`},
		{"fifo partial index",
			`CREATE INDEX IF NOT EXISTS idx_medicine_batches_fifo
			   ON medicine_batches (medicine_id, stocked_at, created_at, id)
			   WHERE status = 'active' AND quantity > 0`},
		{"sales client_ref unique",
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_client_ref
			   ON sales (client_ref) WHERE client_ref IS NOT NULL`},
		{"sales prescription unique",
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_prescription_id
			   ON sales (prescription_id) WHERE prescription_id IS NOT NULL`},
		{"prescriptions visit fk", `
DO $$ BEGIN
  IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'visits')
    AND NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_prescriptions_visit') THEN
    ALTER TABLE prescriptions ADD CONSTRAINT fk_prescriptions_visit
      FOREIGN KEY (visit_id) REFERENCES visits(id);
  END IF;
END $$`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
