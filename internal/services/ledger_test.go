package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/repository"
	"carteira/internal/repository/memory"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore() *memory.Store { return memory.New() }

func newLedger(t *testing.T, opts ...LedgerOption) (*Ledger, *memory.Store) {
	t.Helper()
	store := newStore()
	opts = append([]LedgerOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLedger(store, opts...), store
}

func seedWallet(t *testing.T, store *memory.Store, id, balance string) {
	t.Helper()
	require.NoError(t, store.Wallets().Create(context.Background(), core.Wallet{
		ID:        id,
		Name:      "Wallet " + id,
		Currency:  "BRL",
		Balance:   core.MustMoney(balance),
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}))
}

func seedCategory(t *testing.T, store *memory.Store, id string, typ core.TransactionType) {
	t.Helper()
	require.NoError(t, store.Categories().Create(context.Background(), core.Category{
		ID: id, Name: "Category " + id, Type: typ, CreatedAt: fixedNow,
	}))
}

func balanceOf(t *testing.T, store *memory.Store, id string) string {
	t.Helper()
	w, err := store.Wallets().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w.Balance.String()
}

func draft(walletID, categoryID string, typ core.TransactionType, amount string, executed bool) core.NewTransaction {
	return core.NewTransaction{
		WalletID:    walletID,
		CategoryID:  categoryID,
		Type:        typ,
		Amount:      core.MustMoney(amount),
		Description: "test",
		DueDate:     fixedNow,
		IsExecuted:  executed,
	}
}

// countingStore counts wallet creates reaching persistence.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	creates int
}

func (s *countingStore) WithTransaction(ctx context.Context, fn func(tx repository.Repos) error) error {
	return s.Store.WithTransaction(ctx, func(tx repository.Repos) error {
		return fn(countingRepos{Repos: tx, s: s})
	})
}

type countingRepos struct {
	repository.Repos
	s *countingStore
}

func (r countingRepos) Wallets() repository.WalletRepository {
	return countingWallets{WalletRepository: r.Repos.Wallets(), s: r.s}
}

type countingWallets struct {
	repository.WalletRepository
	s *countingStore
}

func (w countingWallets) Create(ctx context.Context, wallet core.Wallet) error {
	w.s.mu.Lock()
	w.s.creates++
	w.s.mu.Unlock()
	return w.WalletRepository.Create(ctx, wallet)
}

func TestCreateWallet(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults currency to BRL", func(t *testing.T) {
		l, store := newLedger(t)
		res := l.CreateWallet(ctx, core.NewWallet{Name: "  Conta Corrente "})
		require.True(t, res.IsOk(), res.Err())

		w := res.Value()
		assert.Equal(t, "Conta Corrente", w.Name)
		assert.Equal(t, "BRL", w.Currency)
		assert.Equal(t, "0.00", w.Balance.String())
		assert.Len(t, store.Messages(events.WalletCreated), 1)

		stored, err := store.Wallets().FindByID(ctx, w.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "BRL", stored.Currency)
	})

	t.Run("configured default currency", func(t *testing.T) {
		l, _ := newLedger(t, WithDefaultCurrency("EUR"))
		w, err := l.CreateWallet(ctx, core.NewWallet{Name: "Travel"}).Unwrap()
		require.NoError(t, err)
		assert.Equal(t, "EUR", w.Currency)
	})

	t.Run("whitespace name never reaches persistence", func(t *testing.T) {
		store := &countingStore{Store: memory.New()}
		l := NewLedger(store)

		res := l.CreateWallet(ctx, core.NewWallet{Name: "   "})
		require.True(t, res.IsErr())
		assert.ErrorIs(t, res.Err(), core.ErrValidation)
		assert.ErrorIs(t, res.Err(), core.ErrEmptyName)
		assert.Zero(t, store.creates)

		ok := l.CreateWallet(ctx, core.NewWallet{Name: "Savings"})
		require.True(t, ok.IsOk())
		assert.Equal(t, 1, store.creates)
	})

	t.Run("invalid currency", func(t *testing.T) {
		l, _ := newLedger(t)
		res := l.CreateWallet(ctx, core.NewWallet{Name: "X", Currency: "reais"})
		assert.Equal(t, core.KindValidation, core.KindOf(res.Err()))
	})
}

func TestUpdateAndDeleteWallet(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedWallet(t, store, "wal_a", "10")
	seedCategory(t, store, "cat_f", core.Expense)

	name, cur := " Renamed ", "usd"
	w, err := l.UpdateWallet(ctx, "wal_a", core.WalletUpdate{Name: &name, Currency: &cur}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "Renamed", w.Name)
	assert.Equal(t, "USD", w.Currency)
	assert.Equal(t, "10.00", w.Balance.String())

	missing := l.UpdateWallet(ctx, "wal_missing", core.WalletUpdate{Name: &name})
	assert.ErrorIs(t, missing.Err(), core.ErrNotFound)

	require.True(t, l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "1", false)).IsOk())
	inUse := l.DeleteWallet(ctx, "wal_a")
	assert.ErrorIs(t, inUse.Err(), core.ErrInUse)

	seedWallet(t, store, "wal_b", "0")
	require.True(t, l.DeleteWallet(ctx, "wal_b").IsOk())
	gone, err := store.Wallets().FindByID(ctx, "wal_b")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Len(t, store.Messages(events.WalletDeleted), 1)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	c, err := l.CreateCategory(ctx, core.NewCategory{Name: " Salary ", Type: "income"}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "Salary", c.Name)
	assert.Equal(t, core.Income, c.Type)

	bad := l.CreateCategory(ctx, core.NewCategory{Name: "Other", Type: "TRANSFER"})
	assert.ErrorIs(t, bad.Err(), core.ErrValidation)

	blank := " "
	assert.ErrorIs(t, l.UpdateCategory(ctx, c.ID, core.CategoryUpdate{Name: &blank}).Err(), core.ErrEmptyName)

	color := "#00ff00"
	updated, err := l.UpdateCategory(ctx, c.ID, core.CategoryUpdate{Color: &color}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, core.Income, updated.Type)
	require.NotNil(t, updated.Color)
	assert.Equal(t, color, *updated.Color)

	seedWallet(t, store, "wal_a", "0")
	require.True(t, l.CreateTransaction(ctx, draft("wal_a", c.ID, core.Income, "5", false)).IsOk())
	assert.ErrorIs(t, l.DeleteCategory(ctx, c.ID).Err(), core.ErrInUse)
	assert.ErrorIs(t, l.DeleteCategory(ctx, "cat_missing").Err(), core.ErrNotFound)
}

func TestCreateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("pending transaction leaves balance alone", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "200")
		seedCategory(t, store, "cat_f", core.Expense)

		txn, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "50", false)).Unwrap()
		require.NoError(t, err)
		assert.False(t, txn.IsExecuted)
		assert.Nil(t, txn.ExecutedAt)
		assert.Equal(t, "200.00", balanceOf(t, store, "wal_a"))
		assert.Zero(t, store.BalanceUpdates("wal_a"))
	})

	t.Run("executed expense decreases balance by its amount", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "200")
		seedCategory(t, store, "cat_f", core.Expense)

		txn, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "50", true)).Unwrap()
		require.NoError(t, err)
		assert.True(t, txn.IsExecuted)
		require.NotNil(t, txn.ExecutedAt)
		assert.Equal(t, fixedNow, *txn.ExecutedAt)
		assert.Equal(t, "150.00", balanceOf(t, store, "wal_a"))
		assert.Equal(t, 1, store.BalanceUpdates("wal_a"))
	})

	t.Run("executed income increases balance", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")
		seedCategory(t, store, "cat_i", core.Income)

		require.True(t, l.CreateTransaction(ctx, draft("wal_a", "cat_i", core.Income, "1234.56", true)).IsOk())
		assert.Equal(t, "1234.56", balanceOf(t, store, "wal_a"))
	})

	t.Run("missing wallet", func(t *testing.T) {
		l, store := newLedger(t)
		seedCategory(t, store, "cat_f", core.Expense)

		res := l.CreateTransaction(ctx, draft("wal_missing", "cat_f", core.Expense, "1", true))
		var nf *core.NotFoundError
		require.ErrorAs(t, res.Err(), &nf)
		assert.Equal(t, "Wallet", nf.Entity)
		assert.Empty(t, store.Messages(events.TransactionCreated))
	})

	t.Run("missing wallet is reported before field errors", func(t *testing.T) {
		l, store := newLedger(t)
		seedCategory(t, store, "cat_f", core.Expense)

		bad := draft("wal_missing", "cat_f", core.Expense, "0", true)
		bad.Type = "TRANSFER"
		res := l.CreateTransaction(ctx, bad)
		assert.ErrorIs(t, res.Err(), core.ErrNotFound)
		assert.NotErrorIs(t, res.Err(), core.ErrValidation)
	})

	t.Run("amount above the storable range", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")
		seedCategory(t, store, "cat_i", core.Income)

		for _, amount := range []string{"1000000000000.00", "184467440737095517.16"} {
			res := l.CreateTransaction(ctx, draft("wal_a", "cat_i", core.Income, amount, true))
			var ve *core.ValidationError
			require.ErrorAs(t, res.Err(), &ve, amount)
			assert.Equal(t, "amount", ve.Field)
			assert.ErrorIs(t, res.Err(), core.ErrInvalidAmount)
		}
		assert.Equal(t, "0.00", balanceOf(t, store, "wal_a"))

		require.True(t, l.CreateTransaction(ctx, draft("wal_a", "cat_i", core.Income, "999999999999.99", true)).IsOk())
		assert.Equal(t, "999999999999.99", balanceOf(t, store, "wal_a"))
	})

	t.Run("missing category", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")

		res := l.CreateTransaction(ctx, draft("wal_a", "cat_missing", core.Expense, "1", false))
		assert.ErrorIs(t, res.Err(), core.ErrNotFound)
	})

	t.Run("type differing from category is accepted", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")
		seedCategory(t, store, "cat_f", core.Expense)

		res := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Income, "10", true))
		require.True(t, res.IsOk())
		assert.Equal(t, "10.00", balanceOf(t, store, "wal_a"))
	})

	t.Run("invalid drafts", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")
		seedCategory(t, store, "cat_f", core.Expense)

		zero := draft("wal_a", "cat_f", core.Expense, "0", false)
		assert.ErrorIs(t, l.CreateTransaction(ctx, zero).Err(), core.ErrInvalidAmount)

		recurring := draft("wal_a", "cat_f", core.Expense, "1", false)
		recurring.IsRecurring = true
		recurring.RecurrencePattern = "HOURLY"
		assert.ErrorIs(t, l.CreateTransaction(ctx, recurring).Err(), core.ErrValidation)
	})

	t.Run("balance failure rolls back the record", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "100")
		seedCategory(t, store, "cat_f", core.Expense)
		boom := errors.New("disk full")
		store.FailBalanceUpdates("wal_a", boom)

		res := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "50", true))
		require.ErrorIs(t, res.Err(), boom)
		assert.Equal(t, core.KindInternal, core.KindOf(res.Err()))

		txns, err := store.Transactions().FindMany(ctx, repository.TransactionFilters{})
		require.NoError(t, err)
		assert.Empty(t, txns)
		assert.Empty(t, store.Messages(""))
		assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))
	})
}

func TestExecuteTransactions(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Ledger, *memory.Store) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "0")
		seedWallet(t, store, "wal_b", "0")
		seedCategory(t, store, "cat_i", core.Income)
		seedCategory(t, store, "cat_f", core.Expense)
		return l, store
	}
	create := func(t *testing.T, l *Ledger, d core.NewTransaction) string {
		t.Helper()
		txn, err := l.CreateTransaction(ctx, d).Unwrap()
		require.NoError(t, err)
		return txn.ID
	}

	t.Run("one increment per wallet", func(t *testing.T) {
		l, store := setup(t)
		income := create(t, l, draft("wal_a", "cat_i", core.Income, "100", false))
		expense := create(t, l, draft("wal_a", "cat_f", core.Expense, "30", false))

		txns, err := l.ExecuteTransactions(ctx, []string{income, expense}).Unwrap()
		require.NoError(t, err)
		assert.Len(t, txns, 2)
		for _, txn := range txns {
			assert.True(t, txn.IsExecuted)
			assert.NotNil(t, txn.ExecutedAt)
		}
		assert.Equal(t, 1, store.BalanceUpdates("wal_a"))
		assert.Equal(t, "70.00", balanceOf(t, store, "wal_a"))

		msgs := store.Messages(events.TransactionsExecuted)
		require.Len(t, msgs, 1)
		var payload events.Executed
		require.NoError(t, msgs[0].Event().Decode(&payload))
		assert.Equal(t, "70.00", payload.Deltas["wal_a"].String())
	})

	t.Run("already executed id fails the whole batch", func(t *testing.T) {
		l, store := setup(t)
		done := create(t, l, draft("wal_a", "cat_i", core.Income, "10", true))
		pendingA := create(t, l, draft("wal_a", "cat_i", core.Income, "5", false))
		pendingB := create(t, l, draft("wal_b", "cat_f", core.Expense, "7", false))
		updatesA := store.BalanceUpdates("wal_a")

		res := l.ExecuteTransactions(ctx, []string{pendingA, done, pendingB})
		var ae *core.AlreadyExecutedError
		require.ErrorAs(t, res.Err(), &ae)
		assert.Equal(t, 1, ae.Count)

		assert.Equal(t, "10.00", balanceOf(t, store, "wal_a"))
		assert.Equal(t, "0.00", balanceOf(t, store, "wal_b"))
		assert.Equal(t, updatesA, store.BalanceUpdates("wal_a"))
		assert.Zero(t, store.BalanceUpdates("wal_b"))

		for _, id := range []string{pendingA, pendingB} {
			txn, err := store.Transactions().FindByID(ctx, id)
			require.NoError(t, err)
			assert.False(t, txn.IsExecuted)
		}
	})

	t.Run("executing twice", func(t *testing.T) {
		l, _ := setup(t)
		id := create(t, l, draft("wal_a", "cat_i", core.Income, "10", false))
		require.True(t, l.ExecuteTransactions(ctx, []string{id}).IsOk())
		assert.ErrorIs(t, l.ExecuteTransactions(ctx, []string{id}).Err(), core.ErrAlreadyExecuted)
	})

	t.Run("no existing ids", func(t *testing.T) {
		l, _ := setup(t)
		res := l.ExecuteTransactions(ctx, []string{"txn_nope", " "})
		assert.ErrorIs(t, res.Err(), core.ErrNotFound)
		assert.ErrorIs(t, l.ExecuteTransactions(ctx, nil).Err(), core.ErrNotFound)
	})

	t.Run("unknown ids are skipped", func(t *testing.T) {
		l, store := setup(t)
		id := create(t, l, draft("wal_b", "cat_f", core.Expense, "8", false))
		txns, err := l.ExecuteTransactions(ctx, []string{id, "txn_nope", id}).Unwrap()
		require.NoError(t, err)
		assert.Len(t, txns, 1)
		assert.Equal(t, "-8.00", balanceOf(t, store, "wal_b"))
	})

	t.Run("failed increment rolls back executions", func(t *testing.T) {
		l, store := setup(t)
		a := create(t, l, draft("wal_a", "cat_i", core.Income, "10", false))
		b := create(t, l, draft("wal_b", "cat_i", core.Income, "20", false))
		store.FailBalanceUpdates("wal_b", errors.New("lost connection"))

		res := l.ExecuteTransactions(ctx, []string{a, b})
		require.True(t, res.IsErr())
		assert.Equal(t, "0.00", balanceOf(t, store, "wal_a"))
		txn, err := store.Transactions().FindByID(ctx, a)
		require.NoError(t, err)
		assert.False(t, txn.IsExecuted)
	})
}

func TestTransferBetweenWallets(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Ledger, *memory.Store) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_a", "100")
		seedWallet(t, store, "wal_b", "20")
		return l, store
	}
	transfer := func(from, to, amount string) core.NewTransfer {
		return core.NewTransfer{FromWalletID: from, ToWalletID: to, Amount: core.MustMoney(amount), Description: " rent "}
	}
	noTransfers := func(t *testing.T, store *memory.Store) {
		t.Helper()
		all, err := store.Transfers().FindAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	}

	t.Run("moves funds", func(t *testing.T) {
		l, store := setup(t)
		tr, err := l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_b", "40")).Unwrap()
		require.NoError(t, err)
		assert.Equal(t, "rent", tr.Description)
		assert.Equal(t, fixedNow, tr.ExecutedAt)
		assert.Equal(t, "60.00", balanceOf(t, store, "wal_a"))
		assert.Equal(t, "60.00", balanceOf(t, store, "wal_b"))
		assert.Len(t, store.Messages(events.TransferCompleted), 1)
	})

	t.Run("exact balance is allowed", func(t *testing.T) {
		l, store := setup(t)
		require.True(t, l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_b", "100")).IsOk())
		assert.Equal(t, "0.00", balanceOf(t, store, "wal_a"))
	})

	t.Run("same wallet", func(t *testing.T) {
		l, store := setup(t)
		res := l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_a", "10"))
		assert.ErrorIs(t, res.Err(), core.ErrValidation)
		assert.ErrorIs(t, res.Err(), core.ErrSameWallet)
		noTransfers(t, store)
		assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))
		assert.Zero(t, store.BalanceUpdates("wal_a"))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		l, store := setup(t)
		res := l.TransferBetweenWallets(ctx, transfer("wal_b", "wal_a", "20.01"))
		assert.ErrorIs(t, res.Err(), core.ErrInsufficientFunds)
		noTransfers(t, store)
		assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))
		assert.Equal(t, "20.00", balanceOf(t, store, "wal_b"))
	})

	t.Run("missing wallets name their role", func(t *testing.T) {
		l, _ := setup(t)
		var nf *core.NotFoundError

		require.ErrorAs(t, l.TransferBetweenWallets(ctx, transfer("wal_x", "wal_b", "1")).Err(), &nf)
		assert.Equal(t, "origin", nf.Role)
		assert.Equal(t, "origin wallet not found", nf.Error())

		require.ErrorAs(t, l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_x", "1")).Err(), &nf)
		assert.Equal(t, "destination", nf.Role)
	})

	t.Run("non positive amount", func(t *testing.T) {
		l, store := setup(t)
		res := l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_b", "-5"))
		assert.ErrorIs(t, res.Err(), core.ErrInvalidAmount)
		noTransfers(t, store)
	})

	t.Run("amount above the storable range", func(t *testing.T) {
		l, store := newLedger(t)
		seedWallet(t, store, "wal_rich", "184467440737095517.16")
		seedWallet(t, store, "wal_b", "0")
		res := l.TransferBetweenWallets(ctx, transfer("wal_rich", "wal_b", "184467440737095517.16"))
		assert.ErrorIs(t, res.Err(), core.ErrInvalidAmount)
		noTransfers(t, store)
		assert.Equal(t, "0.00", balanceOf(t, store, "wal_b"))
	})

	t.Run("failed credit rolls back debit", func(t *testing.T) {
		l, store := setup(t)
		store.FailBalanceUpdates("wal_b", errors.New("timeout"))
		res := l.TransferBetweenWallets(ctx, transfer("wal_a", "wal_b", "10"))
		require.True(t, res.IsErr())
		assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))
		noTransfers(t, store)
		assert.Empty(t, store.Messages(""))
	})
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedWallet(t, store, "wal_a", "0")
	seedWallet(t, store, "wal_b", "0")
	seedCategory(t, store, "cat_f", core.Expense)
	seedCategory(t, store, "cat_g", core.Expense)

	pending, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "10", false)).Unwrap()
	require.NoError(t, err)

	amount := core.MustMoney("12.5")
	wallet := "wal_b"
	updated, err := l.UpdateTransaction(ctx, pending.ID, core.TransactionUpdate{Amount: &amount, WalletID: &wallet}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "12.50", updated.Amount.String())
	assert.Equal(t, "wal_b", updated.WalletID)
	assert.Equal(t, "0.00", balanceOf(t, store, "wal_b"))

	missingWallet := "wal_x"
	assert.ErrorIs(t, l.UpdateTransaction(ctx, pending.ID, core.TransactionUpdate{WalletID: &missingWallet}).Err(), core.ErrNotFound)

	executed, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "10", true)).Unwrap()
	require.NoError(t, err)

	res := l.UpdateTransaction(ctx, executed.ID, core.TransactionUpdate{Amount: &amount})
	assert.ErrorIs(t, res.Err(), core.ErrAlreadyExecuted)

	desc, cat := "groceries", "cat_g"
	relabeled, err := l.UpdateTransaction(ctx, executed.ID, core.TransactionUpdate{Description: &desc, CategoryID: &cat}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "groceries", relabeled.Description)
	assert.Equal(t, "cat_g", relabeled.CategoryID)
	assert.True(t, relabeled.IsExecuted)
	assert.Equal(t, "-10.00", balanceOf(t, store, "wal_a"))

	assert.ErrorIs(t, l.UpdateTransaction(ctx, "txn_missing", core.TransactionUpdate{}).Err(), core.ErrNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedWallet(t, store, "wal_a", "100")
	seedCategory(t, store, "cat_f", core.Expense)

	executed, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "40", true)).Unwrap()
	require.NoError(t, err)
	require.Equal(t, "60.00", balanceOf(t, store, "wal_a"))

	require.True(t, l.DeleteTransaction(ctx, executed.ID).IsOk())
	assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))

	pending, err := l.CreateTransaction(ctx, draft("wal_a", "cat_f", core.Expense, "40", false)).Unwrap()
	require.NoError(t, err)
	require.True(t, l.DeleteTransaction(ctx, pending.ID).IsOk())
	assert.Equal(t, "100.00", balanceOf(t, store, "wal_a"))

	assert.ErrorIs(t, l.DeleteTransaction(ctx, pending.ID).Err(), core.ErrNotFound)
}

func TestBalanceEquation(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedCategory(t, store, "cat_i", core.Income)
	seedCategory(t, store, "cat_f", core.Expense)

	var walletIDs []string
	for _, name := range []string{"Checking", "Savings", "Cash"} {
		w, err := l.CreateWallet(ctx, core.NewWallet{Name: name}).Unwrap()
		require.NoError(t, err)
		walletIDs = append(walletIDs, w.ID)
	}
	a, b, c := walletIDs[0], walletIDs[1], walletIDs[2]

	require.True(t, l.CreateTransaction(ctx, draft(a, "cat_i", core.Income, "1000", true)).IsOk())
	require.True(t, l.CreateTransaction(ctx, draft(b, "cat_i", core.Income, "250.75", true)).IsOk())
	require.True(t, l.CreateTransaction(ctx, draft(a, "cat_f", core.Expense, "99.99", true)).IsOk())

	var batch []string
	for _, d := range []core.NewTransaction{
		draft(a, "cat_f", core.Expense, "120.10", false),
		draft(b, "cat_f", core.Expense, "50", false),
		draft(c, "cat_i", core.Income, "10.01", false),
		draft(a, "cat_i", core.Income, "0.01", false),
	} {
		txn, err := l.CreateTransaction(ctx, d).Unwrap()
		require.NoError(t, err)
		batch = append(batch, txn.ID)
	}
	require.True(t, l.CreateTransaction(ctx, draft(c, "cat_f", core.Expense, "5000", false)).IsOk())
	require.True(t, l.ExecuteTransactions(ctx, batch).IsOk())

	require.True(t, l.TransferBetweenWallets(ctx, core.NewTransfer{FromWalletID: a, ToWalletID: b, Amount: core.MustMoney("300")}).IsOk())
	require.True(t, l.TransferBetweenWallets(ctx, core.NewTransfer{FromWalletID: b, ToWalletID: c, Amount: core.MustMoney("0.50")}).IsOk())
	require.True(t, l.TransferBetweenWallets(ctx, core.NewTransfer{FromWalletID: c, ToWalletID: a, Amount: core.MustMoney("10")}).IsOk())

	txns, err := store.Transactions().FindMany(ctx, repository.TransactionFilters{})
	require.NoError(t, err)
	transfers, err := store.Transfers().FindAll(ctx)
	require.NoError(t, err)

	for _, id := range walletIDs {
		want := core.ExpectedBalance(id, txns, transfers)
		assert.Equal(t, want.String(), balanceOf(t, store, id), "wallet %s", id)
	}
	assert.Equal(t, "489.92", balanceOf(t, store, a))
}

func TestAdjustBalance(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedWallet(t, store, "wal_a", "10")

	w, err := l.AdjustBalance(ctx, "wal_a", core.MustMoney("-2.5"), "reconcile").Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "7.50", w.Balance.String())

	msgs := store.Messages(events.BalanceAdjusted)
	require.Len(t, msgs, 1)
	var adj events.Adjustment
	require.NoError(t, msgs[0].Event().Decode(&adj))
	assert.Equal(t, "7.50", adj.Balance.String())
	assert.Equal(t, "reconcile", adj.Reason)

	assert.ErrorIs(t, l.AdjustBalance(ctx, "wal_x", core.MustMoney("1"), "").Err(), core.ErrNotFound)
}

func TestAdjustToLedger(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)
	seedWallet(t, store, "wal_a", "0")
	seedWallet(t, store, "wal_b", "0")
	seedCategory(t, store, "cat_in", core.Income)

	_, err := l.CreateTransaction(ctx, draft("wal_a", "cat_in", core.Income, "80", true)).Unwrap()
	require.NoError(t, err)
	_, err = l.CreateTransaction(ctx, draft("wal_a", "cat_in", core.Income, "500", false)).Unwrap()
	require.NoError(t, err)
	_, err = l.TransferBetweenWallets(ctx, core.NewTransfer{FromWalletID: "wal_a", ToWalletID: "wal_b", Amount: core.MustMoney("30")}).Unwrap()
	require.NoError(t, err)
	_, err = store.Wallets().UpdateBalance(ctx, "wal_a", core.MustMoney("7.25"))
	require.NoError(t, err)

	w, err := l.AdjustToLedger(ctx, "wal_a", "reconcile").Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "50.00", w.Balance.String())
	require.Len(t, store.Messages(events.BalanceAdjusted), 1)

	t.Run("wallet already in agreement is left alone", func(t *testing.T) {
		w, err := l.AdjustToLedger(ctx, "wal_a", "reconcile").Unwrap()
		require.NoError(t, err)
		assert.Equal(t, "50.00", w.Balance.String())
		w, err = l.AdjustToLedger(ctx, "wal_b", "reconcile").Unwrap()
		require.NoError(t, err)
		assert.Equal(t, "30.00", w.Balance.String())
		assert.Len(t, store.Messages(events.BalanceAdjusted), 1)
	})

	t.Run("missing wallet", func(t *testing.T) {
		assert.ErrorIs(t, l.AdjustToLedger(ctx, "wal_x", "").Err(), core.ErrNotFound)
	})
}

func TestOnChangeRunsAfterCommitOnly(t *testing.T) {
	ctx := context.Background()
	calls := 0
	l, _ := newLedger(t, OnChange(func(context.Context) { calls++ }))

	require.True(t, l.CreateWallet(ctx, core.NewWallet{Name: "A"}).IsOk())
	assert.Equal(t, 1, calls)

	require.True(t, l.CreateWallet(ctx, core.NewWallet{Name: ""}).IsErr())
	require.True(t, l.DeleteWallet(ctx, "wal_missing").IsErr())
	assert.Equal(t, 1, calls)
}

func TestWalletDeltas(t *testing.T) {
	deltas := WalletDeltas([]core.Transaction{
		{WalletID: "a", Type: core.Income, Amount: core.MustMoney("100")},
		{WalletID: "a", Type: core.Expense, Amount: core.MustMoney("30")},
		{WalletID: "b", Type: core.Expense, Amount: core.MustMoney("0.1")},
		{WalletID: "b", Type: core.Expense, Amount: core.MustMoney("0.2")},
	})
	assert.Len(t, deltas, 2)
	assert.Equal(t, "70.00", deltas["a"].String())
	assert.Equal(t, "-0.30", deltas["b"].String())
}
