package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/payoutops/internal/api"
	"github.com/punchamoorthee/payoutops/internal/config"
	"github.com/punchamoorthee/payoutops/internal/processor"
	"github.com/punchamoorthee/payoutops/internal/resend"
	"github.com/punchamoorthee/payoutops/internal/service"
	"github.com/punchamoorthee/payoutops/internal/store"
	"github.com/punchamoorthee/payoutops/internal/webhook"
	"github.com/punchamoorthee/payoutops/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "receiver")
	if err := run(logger); err != nil {
		logger.Error("receiver stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	payoutStore, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer payoutStore.Close()

	// Initialize Layers
	client := processor.NewClient(cfg.ProcessorURL, cfg.HTTPTimeout)
	resends := resend.NewCoordinator(resend.NewMemoryLedger(cfg.ResendLedgerTTL), client, cfg.MaxResendRetries, logger)
	receiver := webhook.NewReceiver(payoutStore, resends, cfg.CallbackSecret, cfg.MaxWebhookAge, logger)
	payouts := service.NewPayoutService(payoutStore, client, cfg.Currencies, logger)

	pool := worker.NewPool(cfg.DispatchQueue, payouts.Forward, logger)
	payouts.Dispatcher = pool
	pool.Start(cfg.DispatchWorkers)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewReceiverRouter(api.NewReceiverHandler(payouts, receiver, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "processor_url", cfg.ProcessorURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serveErr:
		failure = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("forwarding pool shutdown", "error", err)
	}
	if failure == nil {
		logger.Info("server stopped gracefully")
	}
	return failure
}

// openStore uses Postgres when DB_SOURCE is set and an in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.PayoutStore, error) {
	if cfg.DBSource == "" {
		logger.Warn("DB_SOURCE not set, payouts are kept in memory")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pg.Db); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
