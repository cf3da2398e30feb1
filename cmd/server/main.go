// Package main is the entry point for the factorlab multi-factor analytics
// server. It wires the storage layer, the engine registry, the scheduler and
// the HTTP API, then blocks until a shutdown signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petrakis/factorlab/internal/clients/pricefeed"
	"github.com/petrakis/factorlab/internal/config"
	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/events"
	"github.com/petrakis/factorlab/internal/modules/factors"
	"github.com/petrakis/factorlab/internal/modules/history"
	"github.com/petrakis/factorlab/internal/modules/multifactor/registry"
	"github.com/petrakis/factorlab/internal/modules/universe"
	"github.com/petrakis/factorlab/internal/scheduler"
	"github.com/petrakis/factorlab/internal/server"
	"github.com/petrakis/factorlab/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting factorlab")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	// Three databases: universe (securities), history (daily bars),
	// factors (engine configurations).
	universeDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("universe.db"),
		Profile: database.ProfileStandard,
		Name:    "universe",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open universe database")
	}
	defer universeDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("history.db"),
		Profile: database.ProfileBulk,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	factorsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("factors.db"),
		Profile: database.ProfileStandard,
		Name:    "factors",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open factors database")
	}
	defer factorsDB.Close()

	securityRepo, err := universe.NewSecurityRepository(universeDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize security repository")
	}

	historyStore, err := history.NewStore(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}

	engineRepo, err := registry.NewRepository(factorsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine repository")
	}

	bus := events.NewBus(log)
	factorBuilder := factors.NewBuilder(historyStore, log)
	engines := registry.NewService(engineRepo, historyStore, factorBuilder, securityRepo, bus, cfg.DefaultICHorizon, log)

	if err := engines.LoadAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load stored engines")
	}

	sched := scheduler.New(log)

	rebuildJob := scheduler.NewRebuildEnginesJob(engines, log)
	if err := sched.AddJob(cfg.RebuildSchedule, rebuildJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule engine rebuild job")
	}

	// Price syncing only runs when a feed is configured; the engines remain
	// fully usable against already-stored history without one.
	if cfg.PriceFeedURL != "" {
		feed := pricefeed.NewClient(cfg.PriceFeedURL, cfg.PriceFeedAPIKey, log)
		syncJob := scheduler.NewPriceSyncJob(securityRepo, historyStore, feed, bus, log)
		if err := sched.AddJob(cfg.PriceSyncSchedule, syncJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule price sync job")
		}
	} else {
		log.Info().Msg("No price feed configured, price sync disabled")
	}

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		UniverseDB:   universeDB,
		HistoryDB:    historyDB,
		FactorsDB:    factorsDB,
		SecurityRepo: securityRepo,
		Engines:      engines,
		Bus:          bus,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
