package main

import (
	"os"

	"carteira/internal/cli"
	"carteira/internal/log"
	"carteira/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentRecurring)

	ctx, stop := cli.ShutdownContext()
	defer stop()

	// Notices land in the outbox; the server's relay publishes them.
	store := cli.InitStore(ctx, logger, cfg)
	defer cli.Close(logger, "store", store.Cleanup)

	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is private to this process, notices will not reach the server")
	}

	logger.Info("Starting recurring-worker",
		"interval", cfg.RecurringInterval,
		"backend", cfg.DataBackend)

	processor := services.NewRecurringProcessor(store.Store)
	if err := processor.Run(ctx, cfg.RecurringInterval); err != nil {
		logger.Error("Recurring processing stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}
