package main

import (
	"context"
	"fmt"

	"carteira/internal/backend"
	"carteira/internal/config"
	"carteira/internal/log"
	"carteira/internal/services"
)

// session is an open store plus the ledger running on top of it.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	store  *backend.Result
	ledger *services.Ledger
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := settings()
	if err != nil {
		return nil, err
	}
	logger := adminLogger(cfg)

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bc.Type, err)
	}
	if bc.Type == backend.MemoryBackend {
		logger.Warn("Memory backend selected, changes are discarded on exit")
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		store:  res,
		ledger: services.NewLedger(res.Store, services.WithDefaultCurrency(cfg.DefaultCurrency)),
	}, nil
}

func (s *session) Close() {
	if s.store.Cleanup == nil {
		return
	}
	if err := s.store.Cleanup(); err != nil {
		s.logger.Warn("Failed to close store", log.FieldError, err)
	}
}
