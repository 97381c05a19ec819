package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/api"
	"github.com/dvloznov/finance-dashboard/internal/app"
	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/jobs/inmemory"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/rules"
)

func main() {
	bootLog := logger.New()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		workers = flag.Int("workers", 2, "Number of background import workers")
	)
	flag.Parse()
	cfg.Port = *port

	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}

	if !cfg.AuthEnabled() {
		log.Warn().Msg("API_KEY not set - authentication is disabled")
	}

	ctx := context.Background()

	doc, err := rules.Load(cfg.RulesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load classification rules")
	}

	// Initialize storage
	st, err := app.OpenStore(ctx, cfg, doc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	classifier, err := app.NewClassifier(ctx, cfg, doc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier")
	}

	importer, err := app.NewImporter(ctx, cfg, st, classifier, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create import pipeline")
	}
	defer importer.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(jobStore, inmemory.Options{Workers: *workers, Log: log})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, jobs.NewImportHandler(importer, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	handler := api.NewRouter(api.Deps{
		Store:          st,
		Ingester:       ingest.NewService(st, log),
		Importer:       importer,
		Dashboard:      dashboard.New(st),
		Publisher:      jobQueue,
		Jobs:           jobStore,
		DefaultUserID:  cfg.DefaultUserID,
		APIKey:         cfg.APIKey,
		FrontendOrigin: cfg.FrontendOrigin,
		Log:            log,
	})

	// Uploads run the classifier inline, so the write timeout covers a full
	// import.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.IngestTimeout + cfg.ClassifyBatchTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("db_vendor", string(cfg.DBVendor)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
