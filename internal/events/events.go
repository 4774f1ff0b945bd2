// Package events defines the ledger event envelope shared by the outbox,
// the brokers and the consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"carteira/internal/core"
)

type Type string

const (
	WalletCreated        Type = "wallet.created"
	WalletUpdated        Type = "wallet.updated"
	WalletDeleted        Type = "wallet.deleted"
	CategoryCreated      Type = "category.created"
	CategoryUpdated      Type = "category.updated"
	CategoryDeleted      Type = "category.deleted"
	TransactionCreated   Type = "transaction.created"
	TransactionUpdated   Type = "transaction.updated"
	TransactionDeleted   Type = "transaction.deleted"
	TransactionsExecuted Type = "transactions.executed"
	TransferCompleted    Type = "transfer.completed"
	BalanceAdjusted      Type = "balance.adjusted"
	RecurringDue         Type = "recurring.due"
)

// Event is one ledger change. Payload holds the JSON encoded body whose
// shape depends on Type.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// Payloads
type (
	Deleted struct {
		ID string `json:"id"`
	}

	Executed struct {
		Transactions []core.Transaction    `json:"transactions"`
		Deltas       map[string]core.Money `json:"deltas"`
	}

	Adjustment struct {
		WalletID string     `json:"walletId"`
		Delta    core.Money `json:"delta"`
		Balance  core.Money `json:"balance"`
		Reason   string     `json:"reason"`
	}

	Due struct {
		Transaction core.Transaction `json:"transaction"`
		Date        string           `json:"date"`
		Next        string           `json:"next,omitempty"`
	}
)

func New(t Type, aggregateID string, payload any, now time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{
		ID:          core.NewID(core.PrefixEvent),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  now.UTC(),
		Payload:     body,
	}, nil
}

func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler processes one consumed event. Returning an error requeues it.
type Handler func(ctx context.Context, e Event) error

type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops events. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Fail   error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
