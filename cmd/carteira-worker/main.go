package main

import (
	"context"
	"errors"
	"os"
	"time"

	"carteira/internal/backend"
	"carteira/internal/cache"
	"carteira/internal/cli"
	"carteira/internal/log"
	"carteira/internal/worker"
)

// mirroredTTL bounds how long an event id is remembered for redelivery dedupe.
const mirroredTTL = 24 * time.Hour

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting carteira-worker", "broker", cfg.EventsBroker)

	ctx, stop := cli.ShutdownContext()
	defer stop()

	journal, err := backend.NewJournal(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger journal", log.FieldError, err)
		os.Exit(1)
	}

	consumer, err := backend.NewConsumer(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize events consumer", log.FieldError, err)
		os.Exit(1)
	}
	defer cli.Close(logger, "events consumer", consumer.Close)

	seen := cache.NewLRUCache[bool](10000, mirroredTTL)
	mgr := cache.NewManager(logger)
	mgr.Register(seen)
	mgr.StartCleanup(time.Hour)
	defer mgr.Stop()

	mirror := worker.NewMirror(journal, seen, logger)

	if err := consumer.Consume(ctx, mirror.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("carteira-worker shutdown complete")
}
