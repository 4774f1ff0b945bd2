package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/repository"
)

// Tests run against a throwaway database named by CARTEIRA_TEST_DATABASE_URL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CARTEIRA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CARTEIRA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	opts := DefaultOptions()
	opts.ConnectRetries = 1
	s, err := Open(ctx, url, opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE ledger_outbox, wallet_transfers, transactions, categories, wallets`)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Wallets().Create(ctx, core.Wallet{ID: "wal_1", Name: "Main", Currency: "BRL", Balance: core.MustMoney("100"), CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.Wallets().Create(ctx, core.Wallet{ID: "wal_2", Name: "Savings", Currency: "BRL", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.Categories().Create(ctx, core.Category{ID: "cat_1", Name: "Food", Type: core.Expense, CreatedAt: now}))
}

func TestConcurrentBalanceIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Wallets().UpdateBalance(ctx, "wal_1", core.MustMoney("0.10"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := s.Wallets().FindByID(ctx, "wal_1")
	require.NoError(t, err)
	assert.Equal(t, "102.50", w.Balance.String())

	_, err = s.Wallets().UpdateBalance(ctx, "missing", core.MustMoney("1"))
	assert.ErrorIs(t, err, repository.ErrNoRows)
}

func TestTransferUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx repository.Repos) error {
		if _, err := tx.Wallets().LockByID(ctx, "wal_1"); err != nil {
			return err
		}
		if _, err := tx.Wallets().UpdateBalance(ctx, "wal_1", core.MustMoney("-30")); err != nil {
			return err
		}
		if _, err := tx.Wallets().UpdateBalance(ctx, "wal_2", core.MustMoney("30")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w1, err := s.Wallets().FindByID(ctx, "wal_1")
	require.NoError(t, err)
	w2, err := s.Wallets().FindByID(ctx, "wal_2")
	require.NoError(t, err)
	assert.Equal(t, "100.00", w1.Balance.String())
	assert.Equal(t, "0.00", w2.Balance.String())
}

func TestExecuteManyIsGuarded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"txn_a", "txn_b"} {
		require.NoError(t, s.Transactions().Create(ctx, core.Transaction{
			ID: id, WalletID: "wal_1", CategoryID: "cat_1", Type: core.Expense, Amount: core.MustMoney("12.34"),
			DueDate: due, RecurrenceInterval: 1, CreatedAt: due, UpdatedAt: due,
		}))
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	first, err := s.Transactions().ExecuteMany(ctx, []string{"txn_a", "txn_b"}, at)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "12.34", first[0].Amount.String())
	assert.Equal(t, due, first[0].DueDate)
	assert.True(t, at.Equal(*first[0].ExecutedAt))

	second, err := s.Transactions().ExecuteMany(ctx, []string{"txn_a"}, at)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestOutboxClaimSkipsClaimed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 4; i++ {
		e, err := events.New(events.WalletCreated, "wal_1", map[string]int{"n": i}, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Outbox().Enqueue(ctx, e))
	}

	now := time.Now().Add(time.Second)
	a, err := s.Outbox().Claim(ctx, 3, now)
	require.NoError(t, err)
	b, err := s.Outbox().Claim(ctx, 3, now)
	require.NoError(t, err)
	assert.Len(t, a, 3)
	assert.Len(t, b, 1)

	st, err := s.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Processing)
}
