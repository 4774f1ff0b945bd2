// Package worker mirrors ledger events into the spreadsheet journal.
package worker

import (
	"context"
	"fmt"
	"time"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/log"
	"carteira/internal/sheets"
)

// Mirror turns balance moving events into journal rows. Event ids already
// written are remembered so broker redeliveries do not duplicate lines.
type Mirror struct {
	journal sheets.JournalWriter
	seen    cache.Cache[bool]
	logger  *log.Logger
}

func NewMirror(journal sheets.JournalWriter, seen cache.Cache[bool], logger *log.Logger) *Mirror {
	return &Mirror{
		journal: journal,
		seen:    seen,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Handle processes one consumed event. Undecodable payloads are logged and
// dropped; journal write failures are returned so the broker redelivers.
func (m *Mirror) Handle(ctx context.Context, e events.Event) error {
	if m.alreadyMirrored(ctx, e.ID) {
		m.logger.DebugContext(ctx, "Skipping mirrored event",
			log.FieldEventID, e.ID,
			log.FieldEventType, string(e.Type))
		return nil
	}

	rows, err := Rows(e)
	if err != nil {
		m.logger.ErrorContext(ctx, "Dropping undecodable event",
			log.FieldEventID, e.ID,
			log.FieldEventType, string(e.Type),
			log.FieldError, err)
		return nil
	}
	if len(rows) > 0 {
		ref, err := m.journal.Append(ctx, rows...)
		if err != nil {
			return fmt.Errorf("append journal rows for %s: %w", e.ID, err)
		}
		m.logger.InfoContext(ctx, "Mirrored ledger event",
			log.FieldEventID, e.ID,
			log.FieldEventType, string(e.Type),
			log.FieldCount, len(rows),
			"sheets_ref", ref)
	}

	if err := m.seen.Set(ctx, e.ID, true); err != nil {
		m.logger.WarnContext(ctx, "Failed to remember mirrored event",
			log.FieldEventID, e.ID,
			log.FieldError, err)
	}
	return nil
}

func (m *Mirror) alreadyMirrored(ctx context.Context, id string) bool {
	ok, found, err := m.seen.Get(ctx, id)
	if err != nil {
		m.logger.WarnContext(ctx, "Dedupe lookup failed", log.FieldEventID, id, log.FieldError, err)
		return false
	}
	return found && ok
}

// Rows maps an event to the journal rows it produces. Events that do not
// move money produce none.
func Rows(e events.Event) ([]sheets.JournalRow, error) {
	row := func(date time.Time, wallet, ref, desc string, amount core.Money) sheets.JournalRow {
		return sheets.JournalRow{
			Date:        date,
			EventID:     e.ID,
			EventType:   string(e.Type),
			WalletID:    wallet,
			Reference:   ref,
			Description: desc,
			Amount:      amount,
		}
	}

	switch e.Type {
	case events.TransactionCreated:
		var t core.Transaction
		if err := e.Decode(&t); err != nil {
			return nil, err
		}
		if !t.IsExecuted {
			return nil, nil
		}
		return []sheets.JournalRow{row(executedOn(t, e), t.WalletID, t.ID, t.Description, t.SignedAmount())}, nil

	case events.TransactionsExecuted:
		var p events.Executed
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		out := make([]sheets.JournalRow, 0, len(p.Transactions))
		for _, t := range p.Transactions {
			out = append(out, row(executedOn(t, e), t.WalletID, t.ID, t.Description, t.SignedAmount()))
		}
		return out, nil

	case events.TransactionDeleted:
		var t core.Transaction
		if err := e.Decode(&t); err != nil {
			return nil, err
		}
		if !t.IsExecuted {
			return nil, nil
		}
		desc := "reversal: " + t.Description
		return []sheets.JournalRow{row(e.OccurredAt, t.WalletID, t.ID, desc, t.SignedAmount().Neg())}, nil

	case events.TransferCompleted:
		var tr core.WalletTransfer
		if err := e.Decode(&tr); err != nil {
			return nil, err
		}
		return []sheets.JournalRow{
			row(tr.ExecutedAt, tr.FromWalletID, tr.ID, tr.Description, tr.Amount.Neg()),
			row(tr.ExecutedAt, tr.ToWalletID, tr.ID, tr.Description, tr.Amount),
		}, nil

	case events.BalanceAdjusted:
		var a events.Adjustment
		if err := e.Decode(&a); err != nil {
			return nil, err
		}
		return []sheets.JournalRow{row(e.OccurredAt, a.WalletID, "", a.Reason, a.Delta)}, nil
	}
	return nil, nil
}

func executedOn(t core.Transaction, e events.Event) time.Time {
	if t.ExecutedAt != nil {
		return *t.ExecutedAt
	}
	return e.OccurredAt
}
