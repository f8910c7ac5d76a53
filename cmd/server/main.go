package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearledger/reconciler/internal/config"
	"github.com/clearledger/reconciler/internal/database"
	"github.com/clearledger/reconciler/internal/modules/compliance"
	"github.com/clearledger/reconciler/internal/modules/ingestion"
	"github.com/clearledger/reconciler/internal/modules/ledger"
	"github.com/clearledger/reconciler/internal/modules/positions"
	"github.com/clearledger/reconciler/internal/modules/reconciliation"
	reconjobs "github.com/clearledger/reconciler/internal/modules/reconciliation/jobs"
	"github.com/clearledger/reconciler/internal/scheduler"
	"github.com/clearledger/reconciler/internal/server"
	"github.com/clearledger/reconciler/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; fall back to a bare one
		fallback := logger.New(logger.Config{Level: "error"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting portfolio reconciler")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Ensure ledger schema
	if err := ledger.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger schema")
	}

	// Repositories
	accountRepo := ledger.NewAccountRepository(db.Conn(), log)
	tradeRepo := ledger.NewTradeRepository(db.Conn(), log)
	positionRepo := ledger.NewPositionRepository(db.Conn(), log)

	// Services
	ingestionService := ingestion.NewService(db, accountRepo, tradeRepo, positionRepo, log)
	positionsService := positions.NewService(tradeRepo, positionRepo, log)
	complianceService := compliance.NewService(tradeRepo, positionRepo, cfg.ConcentrationThresholdPct, log)
	reconciliationService := reconciliation.NewService(tradeRepo, positionRepo, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if cfg.DailyReconCheck {
		job := reconjobs.NewDailyCheckJob(reconciliationService, log)
		if err := sched.AddJob("0 0 6 * * *", job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register daily reconciliation job")
		}
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		DevMode: cfg.DevMode,

		AccountRepo:  accountRepo,
		TradeRepo:    tradeRepo,
		PositionRepo: positionRepo,

		LedgerHandler:         ledger.NewHandler(accountRepo, log),
		IngestionHandler:      ingestion.NewHandler(ingestionService, log),
		PositionsHandler:      positions.NewHandler(positionsService, log),
		ComplianceHandler:     compliance.NewHandler(complianceService, log),
		ReconciliationHandler: reconciliation.NewHandler(reconciliationService, log),
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
