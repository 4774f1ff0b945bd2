package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/repository"
)

func day(m, d int) time.Time { return time.Date(2025, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

func TestWithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Wallets().Create(ctx, core.Wallet{ID: "w1", Name: "Main", Currency: "BRL"}))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx repository.Repos) error {
		if _, err := tx.Wallets().UpdateBalance(ctx, "w1", core.MustMoney("10")); err != nil {
			return err
		}
		require.NoError(t, tx.Transfers().Create(ctx, core.WalletTransfer{ID: "t1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	tr, err := s.Transfers().FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestUpdateBalanceMissingWallet(t *testing.T) {
	_, err := New().Wallets().UpdateBalance(context.Background(), "nope", core.MustMoney("1"))
	assert.ErrorIs(t, err, repository.ErrNoRows)
}

func TestTransactionQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	group := "card-2025-04"
	txns := []core.Transaction{
		{ID: "a", WalletID: "w1", Type: core.Expense, DueDate: day(4, 1), IsRecurring: true, RecurrencePattern: core.Monthly},
		{ID: "b", WalletID: "w1", Type: core.Income, DueDate: day(4, 20), GroupID: &group},
		{ID: "c", WalletID: "w2", Type: core.Expense, DueDate: day(4, 10), GroupID: &group, IsExecuted: true},
		{ID: "d", WalletID: "w1", Type: core.Expense, DueDate: day(6, 1), IsRecurring: true, RecurrencePattern: core.Weekly},
	}
	for _, tx := range txns {
		require.NoError(t, s.Transactions().Create(ctx, tx))
	}

	all, err := s.Transactions().FindMany(ctx, repository.TransactionFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(all))

	executed := false
	from, to := day(4, 1), day(4, 30)
	pending, err := s.Transactions().FindMany(ctx, repository.TransactionFilters{
		WalletID: "w1", IsExecuted: &executed, DateFrom: &from, DateTo: &to,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(pending))

	grouped, err := s.Transactions().FindByGroupID(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(grouped))

	due, err := s.Transactions().FindPendingRecurring(ctx, day(5, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(due))

	changed, err := s.Transactions().ExecuteMany(ctx, []string{"a", "c", "missing"}, day(5, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(changed))
	require.NotNil(t, changed[0].ExecutedAt)
	assert.Equal(t, day(5, 2), *changed[0].ExecutedAt)
}

func TestDeleteTransactionDetachesChildren(t *testing.T) {
	ctx := context.Background()
	s := New()
	parent := "txn_parent"
	require.NoError(t, s.Transactions().Create(ctx, core.Transaction{ID: parent, WalletID: "w1", DueDate: day(1, 1)}))
	require.NoError(t, s.Transactions().Create(ctx, core.Transaction{ID: "txn_child", WalletID: "w1", DueDate: day(2, 1), ParentTransactionID: &parent}))
	other := "txn_other"
	require.NoError(t, s.Transactions().Create(ctx, core.Transaction{ID: "txn_unrelated", WalletID: "w1", DueDate: day(2, 1), ParentTransactionID: &other}))

	require.NoError(t, s.Transactions().Delete(ctx, parent))

	child, err := s.Transactions().FindByID(ctx, "txn_child")
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Nil(t, child.ParentTransactionID)

	unrelated, err := s.Transactions().FindByID(ctx, "txn_unrelated")
	require.NoError(t, err)
	require.NotNil(t, unrelated.ParentTransactionID)
	assert.Equal(t, other, *unrelated.ParentTransactionID)
}

func TestTransferOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, at := range []time.Time{day(1, 5), day(3, 1), day(2, 1)} {
		require.NoError(t, s.Transfers().Create(ctx, core.WalletTransfer{
			ID: string(rune('a' + i)), FromWalletID: "w1", ToWalletID: "w2", ExecutedAt: at,
		}))
	}
	all, err := s.Transfers().FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", all[0].ID)

	ranged, err := s.Transfers().FindByDateRange(ctx, day(1, 1), day(2, 1))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	byWallet, err := s.Transfers().FindByWalletID(ctx, "w2")
	require.NoError(t, err)
	assert.Len(t, byWallet, 3)
}

func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	e, err := events.New(events.WalletCreated, "w1", map[string]string{"id": "w1"}, now)
	require.NoError(t, err)
	require.NoError(t, s.Outbox().Enqueue(ctx, e))

	claimed, err := s.Outbox().Claim(ctx, 10, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, repository.OutboxProcessing, claimed[0].Status)

	again, err := s.Outbox().Claim(ctx, 10, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, s.Outbox().Retry(ctx, e.ID, "broker down", now.Add(time.Minute)))
	later, err := s.Outbox().Claim(ctx, 10, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Empty(t, later)

	later, err = s.Outbox().Claim(ctx, 10, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, 1, later[0].Attempts)

	require.NoError(t, s.Outbox().MarkCompleted(ctx, e.ID))
	st, err := s.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Completed)

	n, err := s.Outbox().CleanupCompleted(ctx, time.Now().Add(time.Hour))
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
