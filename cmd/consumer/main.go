package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reservations/internal/api"
	"reservations/internal/application/factories/infrastructure"
	"reservations/internal/config"
	"reservations/internal/consumer"
	"reservations/internal/outcome"
	"reservations/internal/processor"
	"reservations/internal/usecase"
	"reservations/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})).
		With("service", cfg.App.Name)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("consumer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer exited")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	// Storage
	store, err := infraFactory.Store(ctx)
	if err != nil {
		return err
	}

	seed, err := cfg.Inventory.SeedStock()
	if err != nil {
		return err
	}
	if err := store.Inventory.Seed(ctx, seed); err != nil {
		return err
	}
	logger.Info("inventory seeded", "driver", cfg.Store.Driver, "items", len(seed))

	// Transport
	transport, err := infraFactory.Transport()
	if err != nil {
		return err
	}

	faults, err := processor.NewFaults(processor.FaultConfig{
		Delay:       cfg.Fault.Delay,
		FailureRate: cfg.Fault.FailureRate,
	})
	if err != nil {
		return err
	}

	publisher := outcome.NewPublisher(transport.Sender, outcome.Config{
		Producer:    cfg.App.Name,
		MaxAttempts: cfg.Publish.MaxAttempts,
		Backoff:     cfg.Publish.Backoff,
		Timeout:     cfg.Publish.Timeout,
	}, logger)

	proc := processor.New(store.Tx, store.Ledger, store.Inventory, publisher,
		processor.WithLogger(logger),
		processor.WithFaults(faults),
	)

	runner := consumer.NewRunner(transport.Source, proc, consumer.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		MaxBackoff:  cfg.Retry.MaxBackoff,
	}, logger)

	// Inspection API
	cache, err := infraFactory.StockCache(ctx)
	if err != nil {
		logger.Warn("stock cache disabled", "error", err)
		cache = nil
	}

	handlers := api.NewHandlers(cfg.App.Name,
		usecase.NewGetStock(cache, store.Inventory),
		usecase.NewListStock(store.Inventory),
		usecase.NewGetLedger(store.Ledger),
		usecase.NewGetQueues(transport.Inspector),
		faults,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
		}
	}()

	go func() {
		_ = worker.NewDepthPoller(transport.Inspector, 15*time.Second, logger).Run(ctx)
	}()

	logger.Info("consumer starting", "transport", cfg.Transport.Kind, "store", cfg.Store.Driver)
	err = runner.Run(ctx)

	logger.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("server forced to shutdown", "error", serr)
	}

	return err
}
