// Package repository declares the persistence ports consumed by the ledger
// use cases. Lookups return (nil, nil) when the row does not exist.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"carteira/internal/core"
	"carteira/internal/events"
)

// ErrNoRows is returned by writes that target a missing row.
var ErrNoRows = errors.New("no rows affected")

// TransactionFilters narrows FindMany. Zero values do not filter.
type TransactionFilters struct {
	WalletID    string
	CategoryID  string
	Type        core.TransactionType
	IsExecuted  *bool
	IsRecurring *bool
	GroupID     string
	DateFrom    *time.Time // inclusive, on due date
	DateTo      *time.Time // inclusive, on due date
}

// Match applies the filters in memory.
func (f TransactionFilters) Match(t core.Transaction) bool {
	switch {
	case f.WalletID != "" && t.WalletID != f.WalletID:
		return false
	case f.CategoryID != "" && t.CategoryID != f.CategoryID:
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.IsExecuted != nil && t.IsExecuted != *f.IsExecuted:
		return false
	case f.IsRecurring != nil && t.IsRecurring != *f.IsRecurring:
		return false
	case f.GroupID != "" && (t.GroupID == nil || *t.GroupID != f.GroupID):
		return false
	case f.DateFrom != nil && t.DueDate.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && t.DueDate.After(*f.DateTo):
		return false
	}
	return true
}

type WalletRepository interface {
	Create(ctx context.Context, w core.Wallet) error
	Update(ctx context.Context, w core.Wallet) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*core.Wallet, error)
	FindAll(ctx context.Context) ([]core.Wallet, error)

	// LockByID reads the wallet and holds a row lock on it until the
	// surrounding unit of work ends. Outside a unit of work it is FindByID.
	LockByID(ctx context.Context, id string) (*core.Wallet, error)

	// UpdateBalance adds delta to the stored balance in a single statement
	// and returns the updated wallet. Missing wallets yield ErrNoRows.
	UpdateBalance(ctx context.Context, id string, delta core.Money) (core.Wallet, error)
}

type CategoryRepository interface {
	Create(ctx context.Context, c core.Category) error
	Update(ctx context.Context, c core.Category) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*core.Category, error)
	FindAll(ctx context.Context) ([]core.Category, error)
	FindByType(ctx context.Context, t core.TransactionType) ([]core.Category, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, t core.Transaction) error
	Update(ctx context.Context, t core.Transaction) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*core.Transaction, error)

	// FindMany orders by due date, newest first.
	FindMany(ctx context.Context, f TransactionFilters) ([]core.Transaction, error)
	FindByIDs(ctx context.Context, ids []string) ([]core.Transaction, error)

	// ExecuteMany marks the pending transactions among ids as executed at
	// the given time and returns the rows it changed.
	ExecuteMany(ctx context.Context, ids []string, at time.Time) ([]core.Transaction, error)

	// FindPendingRecurring returns recurring, unexecuted transactions due
	// on or before now.
	FindPendingRecurring(ctx context.Context, now time.Time) ([]core.Transaction, error)

	// FindByGroupID orders by due date, oldest first.
	FindByGroupID(ctx context.Context, groupID string) ([]core.Transaction, error)
}

type TransferRepository interface {
	Create(ctx context.Context, t core.WalletTransfer) error
	FindByID(ctx context.Context, id string) (*core.WalletTransfer, error)

	// Listings order by executed_at, newest first.
	FindAll(ctx context.Context) ([]core.WalletTransfer, error)
	FindByWalletID(ctx context.Context, walletID string) ([]core.WalletTransfer, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]core.WalletTransfer, error)
}

// Outbox statuses
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxCompleted  = "completed"
	OutboxFailed     = "failed"
)

// OutboxMessage is a ledger event waiting to be relayed to the brokers.
type OutboxMessage struct {
	ID          string
	EventType   events.Type
	AggregateID string
	Payload     json.RawMessage
	Status      string
	Attempts    int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (m OutboxMessage) Event() events.Event {
	return events.Event{
		ID:          m.ID,
		Type:        m.EventType,
		AggregateID: m.AggregateID,
		OccurredAt:  m.CreatedAt,
		Payload:     m.Payload,
	}
}

type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, e events.Event) error

	// Claim moves up to limit pending messages available at now into
	// processing and returns them, oldest first.
	Claim(ctx context.Context, limit int, now time.Time) ([]OutboxMessage, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error

	// Retry puts a message back to pending, counting the failed attempt.
	Retry(ctx context.Context, id string, reason string, availableAt time.Time) error

	// ResetStale returns processing messages last touched before cutoff to pending.
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
	CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error)
	RetryFailed(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (OutboxStats, error)
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Wallets() WalletRepository
	Categories() CategoryRepository
	Transactions() TransactionRepository
	Transfers() TransferRepository
	Outbox() OutboxRepository
}

// Store is a backend. WithTransaction runs fn in a unit of work that is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	Repos
	WithTransaction(ctx context.Context, fn func(tx Repos) error) error
	Ping(ctx context.Context) error
	Close() error
}

type snapshotKey struct{}

// WithSnapshot marks ctx so that WithTransaction gives fn a read-only view
// of a single point in time. Backends that already serialize units of work
// ignore it.
func WithSnapshot(ctx context.Context) context.Context {
	return context.WithValue(ctx, snapshotKey{}, true)
}

// IsSnapshot reports whether ctx was marked by WithSnapshot.
func IsSnapshot(ctx context.Context) bool {
	v, _ := ctx.Value(snapshotKey{}).(bool)
	return v
}
