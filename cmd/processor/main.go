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
	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/simulator"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "processor")
	if err := run(logger); err != nil {
		logger.Error("processor stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine := delivery.NewEngine(cfg.CallbackURL, cfg.WebhookRetryAttempts, cfg.HTTPTimeout, logger)
	sim := simulator.New(
		simulator.NewMemoryRegistry(),
		engine,
		cfg.CallbackSecret,
		cfg.Currencies,
		cfg.SimulatedStatuses,
		simulator.UniformDelay(cfg.WebhookDelayMin, cfg.WebhookDelayMax),
		logger,
	)

	server := &http.Server{
		Addr:              ":" + cfg.ProcessorPort,
		Handler:           api.NewProcessorRouter(api.NewProcessorHandler(sim, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("processor starting", "port", cfg.ProcessorPort, "callback_url", cfg.CallbackURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("shutting down processor")
	case err := <-serveErr:
		failure = fmt.Errorf("serve: %w", err)
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelHTTP()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// A payout created just before shutdown still sleeps its delay, then runs the full retry schedule.
	drain := cfg.WebhookDelayMax + delivery.MaxDeliveryTime(cfg.WebhookRetryAttempts, cfg.HTTPTimeout)
	logger.Info("waiting for in-flight deliveries", "pending", sim.Pending(), "deadline", drain.String())
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drain)
	defer cancelDrain()
	if err := sim.Shutdown(drainCtx); err != nil {
		logger.Warn("deliveries still in flight at shutdown", "pending", sim.Pending(), "error", err)
	}
	return failure
}
