package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/log"
	"carteira/internal/repository"
)

// RecurringProcessor emits a recurring.due notice for every recurring
// transaction that is pending past its due date. Occurrences are never
// materialized; the notice is what downstream consumers act on. Each
// transaction is announced at most once per calendar day per process.
type RecurringProcessor struct {
	store repository.Store

	mu       sync.Mutex
	notified map[string]string // transaction id -> YYYY-MM-DD
}

func NewRecurringProcessor(store repository.Store) *RecurringProcessor {
	return &RecurringProcessor{
		store:    store,
		notified: map[string]string{},
	}
}

// ProcessDue enqueues notices for the transactions due at now and returns
// how many were emitted.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	pending, err := p.store.Transactions().FindPendingRecurring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find pending recurring transactions: %w", err)
	}

	day := now.UTC().Format("2006-01-02")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forgetBefore(day)

	var due []core.Transaction
	for _, t := range pending {
		if p.notified[t.ID] == day {
			continue
		}
		due = append(due, t)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"total_pending", len(pending),
		"to_notify", len(due),
		"processing_date", day)

	if len(due) == 0 {
		return 0, nil
	}

	err = p.store.WithTransaction(ctx, func(tx repository.Repos) error {
		for _, t := range due {
			notice := events.Due{Transaction: t, Date: day}
			if next, ok := NextOccurrence(t); ok {
				notice.Next = next.Format("2006-01-02")
			}
			e, err := events.New(events.RecurringDue, t.ID, notice, now)
			if err != nil {
				return err
			}
			if err := tx.Outbox().Enqueue(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue recurring notices: %w", err)
	}

	for _, t := range due {
		p.notified[t.ID] = day
		slog.InfoContext(ctx, "Recurring transaction due",
			log.FieldTransactionID, t.ID,
			log.FieldWalletID, t.WalletID,
			log.FieldAmount, t.Amount.String(),
			"pattern", t.RecurrencePattern,
			"overdue", t.IsOverdue(core.DateOnly(now)))
	}
	return len(due), nil
}

// Run calls ProcessDue immediately and then every interval until ctx ends.
func (p *RecurringProcessor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.ProcessDue(ctx, time.Now().UTC()); err != nil {
			slog.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// forgetBefore drops dedupe entries from earlier days. Callers hold mu.
func (p *RecurringProcessor) forgetBefore(day string) {
	for id, d := range p.notified {
		if d < day {
			delete(p.notified, id)
		}
	}
}
