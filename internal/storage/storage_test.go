package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/repository"
	"carteira/internal/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore) (core.Wallet, core.Category) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	w := core.Wallet{ID: "wal_1", Name: "Main", Currency: "BRL", Balance: core.MustMoney("100"), CreatedAt: now, UpdatedAt: now}
	c := core.Category{ID: "cat_1", Name: "Food", Type: core.Expense, CreatedAt: now}
	require.NoError(t, s.Wallets().Create(ctx, w))
	require.NoError(t, s.Categories().Create(ctx, c))
	return w, c
}

func txn(id string, due time.Time, typ core.TransactionType, amount string) core.Transaction {
	return core.Transaction{
		ID: id, WalletID: "wal_1", CategoryID: "cat_1", Type: typ, Amount: core.MustMoney(amount),
		Description: id, DueDate: due, RecurrenceInterval: 1, CreatedAt: due, UpdatedAt: due,
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	version, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestWalletRoundTripAndAtomicIncrement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w, _ := seed(t, s)

	got, err := s.Wallets().FindByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "100.00", got.Balance.String())
	assert.Equal(t, w.CreatedAt, got.CreatedAt)

	missing, err := s.Wallets().FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Wallets().UpdateBalance(ctx, w.ID, core.MustMoney("-2.5"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err = s.Wallets().FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.Balance.String())

	_, err = s.Wallets().UpdateBalance(ctx, "nope", core.MustMoney("1"))
	assert.ErrorIs(t, err, repository.ErrNoRows)
}

func TestAmountsOutsideCentsRangeAreRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w, _ := seed(t, s)
	huge := "184467440737095517.16"

	err := s.Transactions().Create(ctx, txn("txn_huge", time.Now().UTC(), core.Income, huge))
	require.ErrorIs(t, err, core.ErrAmountOutOfRange)
	stored, err := s.Transactions().FindByID(ctx, "txn_huge")
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = s.Wallets().UpdateBalance(ctx, w.ID, core.MustMoney(huge))
	require.ErrorIs(t, err, core.ErrAmountOutOfRange)

	ledger := services.NewLedger(s)
	res := ledger.CreateTransaction(ctx, core.NewTransaction{
		WalletID: w.ID, CategoryID: "cat_1", Type: core.Income,
		Amount: core.MustMoney(huge), DueDate: time.Now().UTC(), IsExecuted: true,
	})
	require.ErrorIs(t, res.Err(), core.ErrInvalidAmount)

	got, err := s.Wallets().FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.String())
	all, err := s.Transactions().FindMany(ctx, repository.TransactionFilters{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWithTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w, _ := seed(t, s)

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx repository.Repos) error {
		if _, err := tx.Wallets().UpdateBalance(ctx, w.ID, core.MustMoney("-40")); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, txn("txn_1", time.Now().UTC(), core.Expense, "40")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Wallets().FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.String())
	tx, err := s.Transactions().FindByID(ctx, "txn_1")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestTransactionQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	day := func(m, d int) time.Time { return time.Date(2025, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	group := "card"
	a := txn("a", day(4, 1), core.Expense, "10")
	a.IsRecurring, a.RecurrencePattern = true, core.Monthly
	end := day(12, 31)
	a.RecurrenceEndDate = &end
	b := txn("b", day(4, 20), core.Income, "20")
	b.GroupID = &group
	c := txn("c", day(4, 10), core.Expense, "30")
	c.GroupID = &group
	c.IsGroupParent = true
	for _, tx := range []core.Transaction{a, b, c} {
		require.NoError(t, s.Transactions().Create(ctx, tx))
	}

	got, err := s.Transactions().FindByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.RecurrenceEndDate)
	assert.Equal(t, end, *got.RecurrenceEndDate)
	assert.Equal(t, core.Monthly, got.RecurrencePattern)
	assert.Nil(t, got.ExecutedAt)

	from, to := day(4, 10), day(4, 20)
	list, err := s.Transactions().FindMany(ctx, repository.TransactionFilters{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(list))

	list, err = s.Transactions().FindMany(ctx, repository.TransactionFilters{Type: core.Income})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(list))

	grouped, err := s.Transactions().FindByGroupID(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(grouped))

	due, err := s.Transactions().FindPendingRecurring(ctx, day(4, 1).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(due))

	at := time.Date(2025, 4, 21, 8, 0, 0, 0, time.UTC)
	executed, err := s.Transactions().ExecuteMany(ctx, []string{"b", "c"}, at)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(executed))
	require.NotNil(t, executed[0].ExecutedAt)
	assert.Equal(t, at, *executed[0].ExecutedAt)

	again, err := s.Transactions().ExecuteMany(ctx, []string{"b", "c"}, at)
	require.NoError(t, err)
	assert.Empty(t, again)

	byIDs, err := s.Transactions().FindByIDs(ctx, []string{"a", "b", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(byIDs))

	require.NoError(t, s.Transactions().Delete(ctx, "a"))
	assert.ErrorIs(t, s.Transactions().Delete(ctx, "a"), repository.ErrNoRows)
}

func TestCategoryTypeFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	color := "#00ff00"
	require.NoError(t, s.Categories().Create(ctx, core.Category{ID: "cat_2", Name: "Salary", Type: core.Income, Color: &color, CreatedAt: time.Now()}))

	incomes, err := s.Categories().FindByType(ctx, core.Income)
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, "#00ff00", *incomes[0].Color)
	assert.Nil(t, incomes[0].Icon)

	all, err := s.Categories().FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Food", all[0].Name)
}

func TestTransfers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)
	now := time.Now().UTC()
	require.NoError(t, s.Wallets().Create(ctx, core.Wallet{ID: "wal_2", Name: "Savings", Currency: "BRL", CreatedAt: now, UpdatedAt: now}))

	for i, at := range []time.Time{now.Add(-48 * time.Hour), now} {
		require.NoError(t, s.Transfers().Create(ctx, core.WalletTransfer{
			ID: []string{"trf_a", "trf_b"}[i], FromWalletID: "wal_1", ToWalletID: "wal_2",
			Amount: core.MustMoney("5"), ExecutedAt: at, CreatedAt: at,
		}))
	}

	same := core.WalletTransfer{ID: "trf_x", FromWalletID: "wal_1", ToWalletID: "wal_1", Amount: core.MustMoney("1"), ExecutedAt: now, CreatedAt: now}
	assert.Error(t, s.Transfers().Create(ctx, same), "check constraint rejects same-wallet transfers")

	all, err := s.Transfers().FindByWalletID(ctx, "wal_2")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "trf_b", all[0].ID)

	recent, err := s.Transfers().FindByDateRange(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "5.00", recent[0].Amount.String())
}

func TestOutboxClaimAndRetry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var eventIDs []string
	for i := 0; i < 3; i++ {
		e, err := events.New(events.WalletCreated, "wal_1", map[string]int{"n": i}, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Outbox().Enqueue(ctx, e))
		eventIDs = append(eventIDs, e.ID)
	}

	now := time.Now().UTC().Add(time.Second)
	first, err := s.Outbox().Claim(ctx, 2, now)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, eventIDs[:2], []string{first[0].ID, first[1].ID})
	assert.JSONEq(t, `{"n":0}`, string(first[0].Payload))

	require.NoError(t, s.Outbox().MarkCompleted(ctx, first[0].ID))
	require.NoError(t, s.Outbox().Retry(ctx, first[1].ID, "timeout", now.Add(time.Hour)))

	next, err := s.Outbox().Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, eventIDs[2], next[0].ID)

	require.NoError(t, s.Outbox().MarkFailed(ctx, next[0].ID, "bad payload"))
	st, err := s.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.OutboxStats{Pending: 1, Completed: 1, Failed: 1}, st)

	n, err := s.Outbox().RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func ids(ts []core.Transaction) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
