package backend

import (
	"context"

	"carteira/internal/repository"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the store and the function that releases it
type Result struct {
	Store   repository.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	// CreateBackend creates a store for the configured backend type
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}
