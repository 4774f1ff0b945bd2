package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/log"
	"carteira/internal/repository"
	"carteira/internal/repository/memory"
	"carteira/internal/services"
)

type fixture struct {
	store  *memory.Store
	ledger *services.Ledger
	a, b   string
	cat    string
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ledger := services.NewLedger(store)

	a, err := ledger.CreateWallet(ctx, core.NewWallet{Name: "Conta"}).Unwrap()
	require.NoError(t, err)
	b, err := ledger.CreateWallet(ctx, core.NewWallet{Name: "Poupanca"}).Unwrap()
	require.NoError(t, err)
	cat, err := ledger.CreateCategory(ctx, core.NewCategory{Name: "Salario", Type: core.Income}).Unwrap()
	require.NoError(t, err)

	_, err = ledger.CreateTransaction(ctx, core.NewTransaction{
		WalletID: a.ID, CategoryID: cat.ID, Type: core.Income,
		Amount: core.MustMoney("300"), DueDate: time.Now(), IsExecuted: true,
	}).Unwrap()
	require.NoError(t, err)
	_, err = ledger.TransferBetweenWallets(ctx, core.NewTransfer{
		FromWalletID: a.ID, ToWalletID: b.ID, Amount: core.MustMoney("120.55"),
	}).Unwrap()
	require.NoError(t, err)

	return fixture{store: store, ledger: ledger, a: a.ID, b: b.ID, cat: cat.ID}
}

func newReconciler(f fixture, adj Adjuster) *Reconciler {
	return New(f.store, adj, log.New(log.Config{Output: io.Discard}))
}

func TestCheck_CleanLedger(t *testing.T) {
	f := setup(t)
	report, err := newReconciler(f, f.ledger).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Drifts)
}

func TestFix_RestoresLedgerBalance(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.store.Wallets().UpdateBalance(ctx, f.b, core.MustMoney("10"))
	require.NoError(t, err)

	r := newReconciler(f, f.ledger)
	report, err := r.Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	d := report.Drifts[0]
	assert.Equal(t, f.b, d.WalletID)
	assert.Equal(t, "130.55", d.Stored.String())
	assert.Equal(t, "120.55", d.Expected.String())
	assert.Equal(t, "-10.00", d.Delta().String())

	report, err = r.Fix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)

	w, err := f.store.Wallets().FindByID(ctx, f.b)
	require.NoError(t, err)
	assert.Equal(t, "120.55", w.Balance.String())
	assert.Len(t, f.store.Messages(events.BalanceAdjusted), 1)

	report, err = r.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

type failingAdjuster struct{}

func (failingAdjuster) AdjustToLedger(context.Context, string, string) core.Result[core.Wallet] {
	return core.Err[core.Wallet](errors.New("db down"))
}

func TestFix_ReportsAdjustFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.store.Wallets().UpdateBalance(ctx, f.a, core.MustMoney("-1"))
	require.NoError(t, err)

	report, err := newReconciler(f, failingAdjuster{}).Fix(ctx)
	require.Error(t, err)
	assert.Zero(t, report.Fixed)
	assert.Len(t, report.Drifts, 1)
}

// racingStore runs afterWallets once, right after the first wallet listing
// inside a unit of work.
type racingStore struct {
	*memory.Store
	once         *sync.Once
	afterWallets func()
}

func (s racingStore) WithTransaction(ctx context.Context, fn func(tx repository.Repos) error) error {
	return s.Store.WithTransaction(ctx, func(tx repository.Repos) error {
		return fn(racingRepos{Repos: tx, after: func() { s.once.Do(s.afterWallets) }})
	})
}

type racingRepos struct {
	repository.Repos
	after func()
}

func (r racingRepos) Wallets() repository.WalletRepository {
	return racingWallets{WalletRepository: r.Repos.Wallets(), after: r.after}
}

type racingWallets struct {
	repository.WalletRepository
	after func()
}

func (w racingWallets) FindAll(ctx context.Context) ([]core.Wallet, error) {
	ws, err := w.WalletRepository.FindAll(ctx)
	w.after()
	return ws, err
}

func TestFix_WriteDuringCheckIsNotMistakenForDrift(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	done := make(chan error, 1)
	store := racingStore{Store: f.store, once: &sync.Once{}, afterWallets: func() {
		go func() {
			done <- f.ledger.CreateTransaction(ctx, core.NewTransaction{
				WalletID: f.a, CategoryID: f.cat, Type: core.Income,
				Amount: core.MustMoney("10"), DueDate: time.Now(), IsExecuted: true,
			}).Err()
		}()
		select {
		case err := <-done:
			done <- err
		case <-time.After(50 * time.Millisecond):
		}
	}}

	r := New(store, f.ledger, log.New(log.Config{Output: io.Discard}))
	report, err := r.Fix(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
	assert.Zero(t, report.Fixed)
	require.NoError(t, <-done)

	w, err := f.store.Wallets().FindByID(ctx, f.a)
	require.NoError(t, err)
	assert.Equal(t, "189.45", w.Balance.String())
	assert.Empty(t, f.store.Messages(events.BalanceAdjusted))

	report, err = newReconciler(f, f.ledger).Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

// firstComer corrects the wallet itself before handing over, as a second
// reconciler running at the same time would.
type firstComer struct{ ledger *services.Ledger }

func (a firstComer) AdjustToLedger(ctx context.Context, walletID, reason string) core.Result[core.Wallet] {
	if err := a.ledger.AdjustToLedger(ctx, walletID, "concurrent").Err(); err != nil {
		return core.Err[core.Wallet](err)
	}
	return a.ledger.AdjustToLedger(ctx, walletID, reason)
}

func TestFix_DoesNotReapplyCorrectionMadeAfterCheck(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.store.Wallets().UpdateBalance(ctx, f.b, core.MustMoney("10"))
	require.NoError(t, err)

	report, err := newReconciler(f, firstComer{f.ledger}).Fix(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, 1, report.Fixed)

	w, err := f.store.Wallets().FindByID(ctx, f.b)
	require.NoError(t, err)
	assert.Equal(t, "120.55", w.Balance.String())
	assert.Len(t, f.store.Messages(events.BalanceAdjusted), 1)
}
