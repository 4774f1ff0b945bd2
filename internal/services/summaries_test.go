package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/repository"
)

// failingCache errors on every call.
type failingCache[T any] struct{}

var errCacheDown = errors.New("cache down")

func (failingCache[T]) Get(context.Context, string) (T, bool, error) {
	var zero T
	return zero, false, errCacheDown
}
func (failingCache[T]) Set(context.Context, string, T) error { return errCacheDown }
func (failingCache[T]) Delete(context.Context, string) error { return errCacheDown }
func (failingCache[T]) Clear(context.Context) error { return errCacheDown }

func TestSummaries_MonthOverviewIsCachedUntilChange(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	summaries := NewSummaries(store,
		cache.NewLRUCache[core.MonthOverview](10, time.Hour),
		cache.NewLRUCache[core.WalletsOverview](1, time.Hour))
	summaries.now = func() time.Time { return fixedNow }
	l := NewLedger(store, WithClock(func() time.Time { return fixedNow }), OnChange(summaries.Invalidate))

	seedWallet(t, store, "wal_a", "0")
	seedCategory(t, store, "cat_i", core.Income)
	seedCategory(t, store, "cat_f", core.Expense)
	require.True(t, l.CreateTransaction(ctx, draft("wal_a", "cat_i", core.Income, "1000", true)).IsOk())

	overdue := draft("wal_a", "cat_f", core.Expense, "80", false)
	overdue.DueDate = fixedNow.AddDate(0, 0, -5)
	require.True(t, l.CreateTransaction(ctx, overdue).IsOk())

	ov, err := summaries.MonthOverview(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ov.Income.String())
	assert.Equal(t, "80.00", ov.PendingExpense.String())
	assert.Equal(t, 1, ov.Overdue)

	// Writes that bypass the ledger do not invalidate
	require.NoError(t, store.Transactions().Create(ctx, core.Transaction{
		ID: "txn_side", WalletID: "wal_a", CategoryID: "cat_f", Type: core.Expense,
		Amount: core.MustMoney("1"), DueDate: fixedNow, IsExecuted: true,
	}))
	cached, err := summaries.MonthOverview(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.00", cached.Expense.String())

	require.True(t, l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "100", true)).IsOk())
	fresh, err := summaries.MonthOverview(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, "101.00", fresh.Expense.String())
	assert.Equal(t, "899.00", fresh.Net.String())
	require.Len(t, fresh.ByCategory, 1)
	assert.Equal(t, "Category cat_f", fresh.ByCategory[0].Name)

	other, err := summaries.MonthOverview(ctx, 2025, 4)
	require.NoError(t, err)
	assert.True(t, other.Income.IsZero())
}

func TestSummaries_Validation(t *testing.T) {
	summaries := NewSummaries(newStore(), nil, nil)
	_, err := summaries.MonthOverview(context.Background(), 2025, 13)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = summaries.MonthOverview(context.Background(), 1900, 1)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSummaries_CacheFailureFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedWallet(t, store, "wal_a", "10")
	seedWallet(t, store, "wal_b", "5.5")

	summaries := NewSummaries(store, failingCache[core.MonthOverview]{}, failingCache[core.WalletsOverview]{})
	ov, err := summaries.WalletsOverview(ctx)
	require.NoError(t, err)
	assert.Len(t, ov.Wallets, 2)
	assert.Equal(t, "15.50", ov.Totals["BRL"].String())

	summaries.Invalidate(ctx)
}

// pausedRepos holds the first wallet listing after it has read, until
// release is closed.
type pausedRepos struct {
	repository.Repos
	once    *sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r pausedRepos) Wallets() repository.WalletRepository {
	return pausedWallets{WalletRepository: r.Repos.Wallets(), r: r}
}

type pausedWallets struct {
	repository.WalletRepository
	r pausedRepos
}

func (w pausedWallets) FindAll(ctx context.Context) ([]core.Wallet, error) {
	ws, err := w.WalletRepository.FindAll(ctx)
	w.r.once.Do(func() {
		close(w.r.read)
		<-w.r.release
	})
	return ws, err
}

func TestSummaries_LoadOverlappingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedWallet(t, store, "wal_a", "10")

	repos := pausedRepos{Repos: store, once: &sync.Once{}, read: make(chan struct{}), release: make(chan struct{})}
	summaries := NewSummaries(repos, nil, cache.NewLRUCache[core.WalletsOverview](1, time.Hour))
	l := NewLedger(store, WithClock(func() time.Time { return fixedNow }), OnChange(summaries.Invalidate))

	stale := make(chan core.WalletsOverview, 1)
	go func() {
		ov, err := summaries.WalletsOverview(ctx)
		assert.NoError(t, err)
		stale <- ov
	}()

	<-repos.read
	_, err := l.CreateWallet(ctx, core.NewWallet{Name: "Poupanca"}).Unwrap()
	require.NoError(t, err)
	close(repos.release)
	assert.Len(t, (<-stale).Wallets, 1)

	ov, err := summaries.WalletsOverview(ctx)
	require.NoError(t, err)
	assert.Len(t, ov.Wallets, 2)
}
