// seedcatalog loads an opening medicine catalog and its batches from CSV.
//
//	go run ./cmd/seedcatalog -file catalog.csv
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"clinicrx/internal/config"
	"clinicrx/internal/infra"
	"clinicrx/internal/middleware"
	"clinicrx/internal/repository"
	"clinicrx/internal/seed"
	"clinicrx/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	file := flag.String("file", "catalog.csv", "CSV catalog to load")
	actorID := flag.String("actor", uuid.Nil.String(), "user id recorded on stock-in movements")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	actor, err := uuid.Parse(*actorID)
	if err != nil {
		log.Fatal().Err(err).Str("actor", *actorID).Msg("invalid actor id")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("cannot open catalog")
	}
	defer f.Close()

	tx := repository.NewTransactionManager(db, cfg.LockTimeout(), cfg.TxTimeout())
	medicineRepo := repository.NewMedicineRepository(db)
	inventory := service.NewInventoryService(tx, medicineRepo, repository.NewStockMovementRepository(db), nil)

	res, err := seed.LoadCatalog(context.Background(), f, medicineRepo, inventory,
		service.Actor{ID: actor, Role: middleware.RoleAdmin})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	if res.Skipped > 0 {
		log.Warn().Int("skipped", res.Skipped).Msg("some rows were not loaded")
	}
}
