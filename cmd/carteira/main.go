package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"carteira/internal/backend"
	"carteira/internal/cli"
	"carteira/internal/events"
	apphttp "carteira/internal/http"
	"carteira/internal/log"
	"carteira/internal/realtime"
	"carteira/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.ShutdownContext()
	defer stop()

	store := cli.InitStore(ctx, logger, cfg)
	defer cli.Close(logger, "store", store.Cleanup)

	caches, err := backend.NewSummaryCaches(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize summary caches", log.FieldError, err)
		os.Exit(1)
	}
	defer cli.Close(logger, "summary caches", caches.Cleanup)
	caches.Manager.StartCleanup(time.Minute)
	defer caches.Manager.Stop()

	summaries := services.NewSummaries(store.Store, caches.Months, caches.Wallets)
	ledger := services.NewLedger(store.Store,
		services.WithDefaultCurrency(cfg.DefaultCurrency),
		services.OnChange(summaries.Invalidate),
	)

	hub := realtime.NewHub(logger)
	defer hub.Close()

	publisher, closePublisher, err := backend.NewPublisher(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize events publisher", log.FieldError, err, "broker", cfg.EventsBroker)
		os.Exit(1)
	}
	defer cli.Close(logger, "events publisher", closePublisher)

	relayCfg := services.DefaultOutboxRelayConfig()
	relayCfg.PollInterval = cfg.OutboxPollInterval
	relayCfg.BatchSize = cfg.OutboxBatchSize
	relayCfg.MaxRetries = cfg.OutboxMaxRetries
	relay := services.NewOutboxRelay(store.Store.Outbox(), events.Fanout{publisher, hub}, relayCfg, logger)
	if err := relay.Start(ctx); err != nil {
		logger.Error("Failed to start outbox relay", log.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Ledger:    ledger,
		Summaries: summaries,
		Store:     store.Store,
		Realtime:  hub,
		Outbox:    relay,
	}, logger)
	srv.Handler = otelhttp.NewHandler(srv.Handler, "carteira")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting carteira server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"broker", cfg.EventsBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := relay.Stop(shutdownCtx); err != nil {
			logger.Warn("Outbox relay shutdown error", log.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
