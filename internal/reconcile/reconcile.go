// Package reconcile compares stored wallet balances with the balance their
// executed transactions and transfers add up to.
package reconcile

import (
	"context"
	"fmt"

	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/repository"
)

// Adjuster brings a wallet balance back in line with its ledger, recomputing
// the ledger side under the wallet lock.
type Adjuster interface {
	AdjustToLedger(ctx context.Context, walletID, reason string) core.Result[core.Wallet]
}

// Drift is a wallet whose stored balance disagrees with its ledger.
type Drift struct {
	WalletID string
	Name     string
	Stored   core.Money
	Expected core.Money
}

// Delta is what must be added to the stored balance to match the ledger.
func (d Drift) Delta() core.Money { return d.Expected.Sub(d.Stored) }

type Report struct {
	Checked int
	Drifts  []Drift
	Fixed   int
}

type Reconciler struct {
	store    repository.Store
	adjuster Adjuster
	logger   *log.Logger
}

func New(store repository.Store, adjuster Adjuster, logger *log.Logger) *Reconciler {
	return &Reconciler{store: store, adjuster: adjuster, logger: logger}
}

// Check recomputes every wallet balance and reports the ones that drifted.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	var (
		wallets   []core.Wallet
		txns      []core.Transaction
		transfers []core.WalletTransfer
	)
	executed := true
	err := r.store.WithTransaction(repository.WithSnapshot(ctx), func(tx repository.Repos) (err error) {
		if wallets, err = tx.Wallets().FindAll(ctx); err != nil {
			return err
		}
		if txns, err = tx.Transactions().FindMany(ctx, repository.TransactionFilters{IsExecuted: &executed}); err != nil {
			return err
		}
		transfers, err = tx.Transfers().FindAll(ctx)
		return err
	})
	if err != nil {
		return Report{}, fmt.Errorf("load ledger: %w", err)
	}

	report := Report{Checked: len(wallets)}
	for _, w := range wallets {
		expected := core.ExpectedBalance(w.ID, txns, transfers)
		if expected.Equal(w.Balance) {
			continue
		}
		d := Drift{WalletID: w.ID, Name: w.Name, Stored: w.Balance, Expected: expected}
		report.Drifts = append(report.Drifts, d)
		r.logger.WarnContext(ctx, "Wallet balance drift",
			log.FieldWalletID, w.ID,
			"stored", w.Balance.String(),
			"expected", expected.String(),
			log.FieldDelta, d.Delta().String())
	}
	return report, nil
}

// Fix runs Check and adjusts every drifted wallet to its ledger balance.
// The adjustment recomputes the ledger side, so writes landing after Check
// are not undone. It stops at the first failed adjustment.
func (r *Reconciler) Fix(ctx context.Context) (Report, error) {
	report, err := r.Check(ctx)
	if err != nil {
		return report, err
	}
	for _, d := range report.Drifts {
		reason := fmt.Sprintf("reconcile: stored %s, ledger %s", d.Stored, d.Expected)
		if err := r.adjuster.AdjustToLedger(ctx, d.WalletID, reason).Err(); err != nil {
			return report, fmt.Errorf("adjust wallet %s: %w", d.WalletID, err)
		}
		report.Fixed++
	}
	if report.Fixed > 0 {
		r.logger.InfoContext(ctx, "Reconciliation applied", log.FieldCount, report.Fixed)
	}
	return report, nil
}
