package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/openfinance-sync/internal/api"
	"github.com/dvloznov/openfinance-sync/internal/api/handlers"
	"github.com/dvloznov/openfinance-sync/internal/api/middleware"
	"github.com/dvloznov/openfinance-sync/internal/app"
	"github.com/dvloznov/openfinance-sync/internal/config"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openfinance-sync/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("OPENFINANCE_CONFIG"), "Path to the TOML config file (or set OPENFINANCE_CONFIG env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	log := logger.NewWithConfig(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if len(cfg.Auth.Tokens) == 0 {
		log.Warn().Msg("No auth tokens configured - every /pluggy request will be rejected")
	}

	// Stored amounts are JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx := logger.WithContext(context.Background(), log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer svc.Close()

	// Initialize job infrastructure
	jobQueue := inmemory.NewQueue(cfg.Sync.QueueSize, cfg.Sync.Workers, svc.Jobs)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, req jobs.SyncRequest) error {
		return svc.Orchestrator.Run(ctx, req)
	}

	log.Info().Int("workers", cfg.Sync.Workers).Msg("Starting sync workers")
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync workers")
	}

	handler := api.NewRouter(api.Deps{
		Pluggy:   handlers.NewPluggyHandler(svc.Pluggy, jobQueue, jobQueue, svc.Docs, log),
		Jobs:     handlers.NewJobsHandler(svc.Jobs, log),
		Verifier: middleware.StaticTokens(cfg.Auth.Tokens),
		Log:      log,
	})

	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight syncs finish before the store closes; queued ones are failed.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
