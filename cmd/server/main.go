// Package main is the entry point for the tailrisk risk analytics service.
// It wires the price history and cache databases, the analysis service, the
// periodic refresh scheduler, and the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tailrisk/internal/cache"
	"github.com/aristath/tailrisk/internal/config"
	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/internal/modules/analysis"
	analysishandlers "github.com/aristath/tailrisk/internal/modules/analysis/handlers"
	"github.com/aristath/tailrisk/internal/scheduler"
	"github.com/aristath/tailrisk/internal/server"
	"github.com/aristath/tailrisk/internal/universe"
	"github.com/aristath/tailrisk/pkg/garch"
	"github.com/aristath/tailrisk/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with config level
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting tailrisk service")

	// Open the history and cache databases
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Initialize stores
	history, err := universe.NewHistoryDB(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price history store")
	}

	profileCache, err := cache.New(cacheDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache")
	}

	// Analysis service and HTTP handlers
	service := analysis.NewService(history, profileCache, analysis.Options{
		MonteCarloSamples: cfg.MonteCarloSamples,
		MonteCarloSeed:    cfg.MonteCarloSeed,
		StressSeed:        cfg.StressSeed,
		Garch: garch.Config{
			MaxIterations: cfg.GarchMaxIterations,
			Tolerance:     cfg.GarchTolerance,
		},
		PortfolioWeight:     cfg.PortfolioWeight,
		DivergenceThreshold: cfg.DivergenceThresholdPP,
		RollingVolWindow:    cfg.RollingVolWindow,
		CacheTTL:            cfg.CacheTTL,
	}, log)

	riskHandler := analysishandlers.NewHandler(service, cfg.DefaultPortfolio, cfg.DefaultBenchmark, log)

	// Scheduler with the periodic profile refresh and database maintenance
	sched := scheduler.New(log)
	refreshJob := scheduler.NewRefreshJob(service, cfg.DefaultPortfolio, cfg.DefaultBenchmark, log)
	if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register refresh job")
	}
	maintenanceJob := scheduler.NewMaintenanceJob(log, historyDB, cacheDB)
	if err := sched.AddJob(cfg.MaintenanceSchedule, maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		DevMode:    cfg.DevMode,
		Risk:       riskHandler,
		Scheduler:  sched,
		RefreshJob: refreshJob,
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
