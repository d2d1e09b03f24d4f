package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicrx/internal/config"
	"clinicrx/internal/infra"
	"clinicrx/internal/metrics"
	"clinicrx/internal/repository"
	"clinicrx/internal/router"
	"clinicrx/internal/service"
	"clinicrx/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: console in development, JSON in production
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ── Repositories ─────────────────────────────────────────────────────────
	tx := repository.NewTransactionManager(db, cfg.LockTimeout(), cfg.TxTimeout())
	medicineRepo := repository.NewMedicineRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	dispatcher := worker.NewDispatcher(rdb)
	svcs := router.Services{
		Sales:         service.NewSaleService(tx, saleRepo, medicineRepo, movementRepo, prescriptionRepo, dispatcher, m),
		Receipts:      service.NewReceiptService(saleRepo, receiptRepo),
		Prescriptions: service.NewPrescriptionService(tx, prescriptionRepo, medicineRepo, movementRepo, m),
		Inventory:     service.NewInventoryService(tx, medicineRepo, movementRepo, m),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Background work ──────────────────────────────────────────────────────
	smtpCfg := infra.DefaultCBConfig()
	smtpCfg.OnStateChange = func(name string, to infra.CBState) {
		log.Warn().Str("breaker", name).Str("state", to.String()).Msg("circuit breaker state changed")
		m.SetBreakerState(name, int(to))
	}
	smtpCB := infra.NewCircuitBreaker(smtpCfg)
	mailer := infra.NewMailer(cfg)
	if !mailer.Enabled() {
		log.Warn().Msg("SMTP_HOST not set: receipt emails will end in the dead letter queue")
	}

	pool := worker.NewPool(rdb)
	pool.Handle(worker.QueueReceipt, worker.NewReceiptWorker(saleRepo, receiptRepo, dispatcher, m, cfg.ReceiptStoragePath, cfg.ClinicName).Process)
	pool.Handle(worker.QueueEmail, worker.NewEmailWorker(mailer, smtpCB, receiptRepo).Process)
	pool.Start(ctx, cfg.WorkerPoolSize)

	worker.StartExpiryCron(ctx, svcs.Inventory, cfg.ExpirySweepInterval)

	r := router.New(ctx, cfg, db, rdb, smtpCB, m, svcs)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("clinicrx listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("closing redis")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}
