package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/mail-ledger/internal/api"
	"github.com/dvloznov/mail-ledger/internal/api/handlers"
	"github.com/dvloznov/mail-ledger/internal/app"
	"github.com/dvloznov/mail-ledger/internal/config"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/runs"
	"github.com/dvloznov/mail-ledger/internal/runs/inmemory"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (or set CONFIG_PATH)")
	flag.Parse()

	cfg := config.MustLoad(config.Path(*configPath))

	log := app.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer application.Close()

	runner, err := application.Runner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build processor")
	}

	// A single worker runs batches so that ticks and API requests never overlap.
	queue := inmemory.NewQueue()
	if err := queue.Start(ctx, runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start batch worker")
	}

	var uploader handlers.BackupUploader
	if application.Archive != nil {
		uploader = application.Archive
	}

	handler := api.NewHandler(api.Options{
		Ledger:   handlers.NewLedgerHandler(application.Ledger, uploader, log),
		Runs:     handlers.NewRunsHandler(application.Runs, queue, log),
		APIToken: cfg.App.APIToken,
		Log:      log,
	})

	server := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.App.HTTPAddr).Msg("Starting status API")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	go func() {
		if _, err := queue.Request(runs.TriggerStartup); err != nil {
			log.Error().Err(err).Msg("Failed to request startup batch")
		}

		ticker := time.NewTicker(cfg.App.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if queued, err := queue.Request(runs.TriggerTicker); err != nil {
					return
				} else if !queued {
					log.Debug().Msg("Batch already pending, tick folded")
				}
			}
		}
	}()

	log.Info().Dur("poll_interval", cfg.App.PollInterval).Msg("Watcher started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down watcher...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Cancelling ctx interrupts the in-flight batch between messages.
	cancel()
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping batch worker")
	}

	log.Info().Msg("Watcher exited")
}
