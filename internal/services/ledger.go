package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/log"
	"carteira/internal/repository"
)

// Ledger implements the use cases that move money. Every operation runs in
// one unit of work: the record writes, the balance increments and the
// outbox event commit or roll back together.
type Ledger struct {
	store           repository.Store
	defaultCurrency string
	now             func() time.Time
	onChange        []func(ctx context.Context)
}

type LedgerOption func(*Ledger)

// WithDefaultCurrency sets the currency used when a wallet is created
// without one.
func WithDefaultCurrency(code string) LedgerOption {
	return func(l *Ledger) { l.defaultCurrency = code }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// OnChange registers a hook run after every committed write, typically
// read model invalidation.
func OnChange(fn func(ctx context.Context)) LedgerOption {
	return func(l *Ledger) { l.onChange = append(l.onChange, fn) }
}

func NewLedger(store repository.Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:           store,
		defaultCurrency: core.DefaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// unitOfWork runs fn in a store transaction and converts the outcome into
// a Result. Domain errors pass through untouched.
func unitOfWork[T any](ctx context.Context, l *Ledger, op string, fn func(tx repository.Repos) (T, error)) core.Result[T] {
	var out T
	err := l.store.WithTransaction(ctx, func(tx repository.Repos) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		if core.KindOf(err) == core.KindInternal {
			slog.ErrorContext(ctx, "Ledger operation failed", log.FieldOperation, op, log.FieldError, err)
		} else {
			slog.DebugContext(ctx, "Ledger operation rejected", log.FieldOperation, op, log.FieldError, err)
		}
		return core.Err[T](err)
	}
	for _, fn := range l.onChange {
		fn(ctx)
	}
	return core.Ok(out)
}

func (l *Ledger) enqueue(ctx context.Context, tx repository.Repos, t events.Type, aggregateID string, payload any) error {
	e, err := events.New(t, aggregateID, payload, l.now())
	if err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, e)
}

// applyDelta increments the wallet balance in storage.
func applyDelta(ctx context.Context, tx repository.Repos, walletID string, delta core.Money) (core.Wallet, error) {
	w, err := tx.Wallets().UpdateBalance(ctx, walletID, delta)
	if errors.Is(err, repository.ErrNoRows) {
		return core.Wallet{}, core.WalletNotFound(walletID)
	}
	return w, err
}

// Wallets

func (l *Ledger) CreateWallet(ctx context.Context, in core.NewWallet) core.Result[core.Wallet] {
	in, err := in.Normalize(l.defaultCurrency)
	if err != nil {
		return core.Err[core.Wallet](err)
	}
	now := l.now()
	w := core.Wallet{
		ID:        core.NewID(core.PrefixWallet),
		Name:      in.Name,
		Currency:  in.Currency,
		Balance:   core.Money{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return unitOfWork(ctx, l, "create_wallet", func(tx repository.Repos) (core.Wallet, error) {
		if err := tx.Wallets().Create(ctx, w); err != nil {
			return w, err
		}
		if err := l.enqueue(ctx, tx, events.WalletCreated, w.ID, w); err != nil {
			return w, err
		}
		slog.InfoContext(ctx, "Wallet created", log.FieldWalletID, w.ID, "currency", w.Currency)
		return w, nil
	})
}

// UpdateWallet renames a wallet or relabels its currency. The balance is
// never touched here.
func (l *Ledger) UpdateWallet(ctx context.Context, id string, upd core.WalletUpdate) core.Result[core.Wallet] {
	return unitOfWork(ctx, l, "update_wallet", func(tx repository.Repos) (core.Wallet, error) {
		found, err := tx.Wallets().FindByID(ctx, id)
		if err != nil {
			return core.Wallet{}, err
		}
		if found == nil {
			return core.Wallet{}, core.WalletNotFound(id)
		}
		w := *found
		if upd.Name != nil {
			n, err := core.NewWallet{Name: *upd.Name, Currency: w.Currency}.Normalize(w.Currency)
			if err != nil {
				return w, err
			}
			w.Name = n.Name
		}
		if upd.Currency != nil {
			code, err := core.NormalizeCurrency(*upd.Currency)
			if err != nil {
				return w, err
			}
			w.Currency = code
		}
		w.UpdatedAt = l.now()
		if err := tx.Wallets().Update(ctx, w); err != nil {
			return w, err
		}
		return w, l.enqueue(ctx, tx, events.WalletUpdated, w.ID, w)
	})
}

// DeleteWallet refuses wallets still referenced by transactions or transfers.
func (l *Ledger) DeleteWallet(ctx context.Context, id string) core.Result[struct{}] {
	return unitOfWork(ctx, l, "delete_wallet", func(tx repository.Repos) (struct{}, error) {
		w, err := tx.Wallets().LockByID(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if w == nil {
			return struct{}{}, core.WalletNotFound(id)
		}
		txns, err := tx.Transactions().FindMany(ctx, repository.TransactionFilters{WalletID: id})
		if err != nil {
			return struct{}{}, err
		}
		transfers, err := tx.Transfers().FindByWalletID(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if len(txns) > 0 || len(transfers) > 0 {
			return struct{}{}, &core.ValidationError{Field: "wallet", Err: core.ErrInUse}
		}
		if err := tx.Wallets().Delete(ctx, id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, l.enqueue(ctx, tx, events.WalletDeleted, id, events.Deleted{ID: id})
	})
}

// Categories

func (l *Ledger) CreateCategory(ctx context.Context, in core.NewCategory) core.Result[core.Category] {
	in, err := in.Normalize()
	if err != nil {
		return core.Err[core.Category](err)
	}
	c := core.Category{
		ID:        core.NewID(core.PrefixCategory),
		Name:      in.Name,
		Type:      in.Type,
		Color:     in.Color,
		Icon:      in.Icon,
		CreatedAt: l.now(),
	}
	return unitOfWork(ctx, l, "create_category", func(tx repository.Repos) (core.Category, error) {
		if err := tx.Categories().Create(ctx, c); err != nil {
			return c, err
		}
		return c, l.enqueue(ctx, tx, events.CategoryCreated, c.ID, c)
	})
}

// UpdateCategory changes name, color and icon. The type is fixed at creation
// because executed transactions were booked against it.
func (l *Ledger) UpdateCategory(ctx context.Context, id string, upd core.CategoryUpdate) core.Result[core.Category] {
	return unitOfWork(ctx, l, "update_category", func(tx repository.Repos) (core.Category, error) {
		found, err := tx.Categories().FindByID(ctx, id)
		if err != nil {
			return core.Category{}, err
		}
		if found == nil {
			return core.Category{}, core.CategoryNotFound(id)
		}
		c := *found
		if upd.Name != nil {
			c.Name = *upd.Name
		}
		if upd.Color != nil {
			c.Color = upd.Color
		}
		if upd.Icon != nil {
			c.Icon = upd.Icon
		}
		n, err := core.NewCategory{Name: c.Name, Type: c.Type, Color: c.Color, Icon: c.Icon}.Normalize()
		if err != nil {
			return c, err
		}
		c.Name, c.Color, c.Icon = n.Name, n.Color, n.Icon
		if err := tx.Categories().Update(ctx, c); err != nil {
			return c, err
		}
		return c, l.enqueue(ctx, tx, events.CategoryUpdated, c.ID, c)
	})
}

func (l *Ledger) DeleteCategory(ctx context.Context, id string) core.Result[struct{}] {
	return unitOfWork(ctx, l, "delete_category", func(tx repository.Repos) (struct{}, error) {
		c, err := tx.Categories().FindByID(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if c == nil {
			return struct{}{}, core.CategoryNotFound(id)
		}
		txns, err := tx.Transactions().FindMany(ctx, repository.TransactionFilters{CategoryID: id})
		if err != nil {
			return struct{}{}, err
		}
		if len(txns) > 0 {
			return struct{}{}, &core.ValidationError{Field: "category", Err: core.ErrInUse}
		}
		if err := tx.Categories().Delete(ctx, id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, l.enqueue(ctx, tx, events.CategoryDeleted, id, events.Deleted{ID: id})
	})
}

// Transactions

// CreateTransaction records a transaction. When the draft is already
// executed its signed amount is applied to the wallet in the same unit of
// work.
func (l *Ledger) CreateTransaction(ctx context.Context, in core.NewTransaction) core.Result[core.Transaction] {
	return unitOfWork(ctx, l, "create_transaction", func(tx repository.Repos) (core.Transaction, error) {
		// The wallet is checked before the draft so a missing wallet wins
		// over field errors.
		walletID := strings.TrimSpace(in.WalletID)
		w, err := tx.Wallets().LockByID(ctx, walletID)
		if err != nil {
			return core.Transaction{}, err
		}
		if w == nil {
			return core.Transaction{}, core.WalletNotFound(walletID)
		}
		in, err := in.Normalize()
		if err != nil {
			return core.Transaction{}, err
		}
		c, err := tx.Categories().FindByID(ctx, in.CategoryID)
		if err != nil {
			return core.Transaction{}, err
		}
		if c == nil {
			return core.Transaction{}, core.CategoryNotFound(in.CategoryID)
		}
		if c.Type != in.Type {
			slog.WarnContext(ctx, "Transaction type differs from its category type",
				log.FieldCategoryID, c.ID,
				"category_type", c.Type,
				"transaction_type", in.Type)
		}

		now := l.now()
		t := core.Transaction{
			ID:                  core.NewID(core.PrefixTransaction),
			WalletID:            in.WalletID,
			CategoryID:          in.CategoryID,
			Type:                in.Type,
			Amount:              in.Amount,
			Description:         in.Description,
			DueDate:             core.DateOnly(in.DueDate),
			IsExecuted:          in.IsExecuted,
			IsRecurring:         in.IsRecurring,
			RecurrencePattern:   in.RecurrencePattern,
			RecurrenceInterval:  in.RecurrenceInterval,
			RecurrenceEndDate:   dateOnlyPtr(in.RecurrenceEndDate),
			ParentTransactionID: in.ParentTransactionID,
			GroupID:             in.GroupID,
			IsGroupParent:       in.IsGroupParent,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if t.IsExecuted {
			t.ExecutedAt = &now
		}
		if err := tx.Transactions().Create(ctx, t); err != nil {
			return t, err
		}
		if t.IsExecuted {
			if _, err := applyDelta(ctx, tx, t.WalletID, t.SignedAmount()); err != nil {
				return t, err
			}
		}
		if err := l.enqueue(ctx, tx, events.TransactionCreated, t.ID, t); err != nil {
			return t, err
		}
		slog.InfoContext(ctx, "Transaction created", log.NewFields().
			WithLedger(t.WalletID, t.Amount.String()).
			WithOperation(log.OpCreate).ToSlice()...)
		return t, nil
	})
}

// ExecuteTransactions executes a batch all-or-nothing. Amounts are summed
// per wallet so each wallet receives exactly one balance increment.
func (l *Ledger) ExecuteTransactions(ctx context.Context, ids []string) core.Result[[]core.Transaction] {
	ids = uniqueIDs(ids)
	return unitOfWork(ctx, l, "execute_transactions", func(tx repository.Repos) ([]core.Transaction, error) {
		found, err := tx.Transactions().FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, &core.NotFoundError{Entity: "Transactions"}
		}
		if len(found) < len(ids) {
			slog.WarnContext(ctx, "Some transactions of the batch do not exist",
				log.FieldCount, len(ids)-len(found))
		}

		executed := 0
		for _, t := range found {
			if t.IsExecuted {
				executed++
			}
		}
		if executed > 0 {
			return nil, &core.AlreadyExecutedError{Count: executed}
		}

		foundIDs := make([]string, len(found))
		for i, t := range found {
			foundIDs[i] = t.ID
		}
		txns, err := tx.Transactions().ExecuteMany(ctx, foundIDs, l.now())
		if err != nil {
			return nil, err
		}
		// A concurrent execution won the race for part of the batch
		if len(txns) != len(found) {
			return nil, &core.AlreadyExecutedError{Count: len(found) - len(txns)}
		}

		deltas := WalletDeltas(txns)
		for _, walletID := range sortedKeys(deltas) {
			if _, err := applyDelta(ctx, tx, walletID, deltas[walletID]); err != nil {
				return nil, err
			}
		}

		batchID := txns[0].ID
		if err := l.enqueue(ctx, tx, events.TransactionsExecuted, batchID, events.Executed{Transactions: txns, Deltas: deltas}); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Transactions executed",
			log.FieldCount, len(txns),
			"wallets", len(deltas))
		return txns, nil
	})
}

// UpdateTransaction edits a transaction. Executed transactions only accept
// description, category and due date changes since everything else would
// alter a booked balance.
func (l *Ledger) UpdateTransaction(ctx context.Context, id string, upd core.TransactionUpdate) core.Result[core.Transaction] {
	return unitOfWork(ctx, l, "update_transaction", func(tx repository.Repos) (core.Transaction, error) {
		found, err := tx.Transactions().FindByID(ctx, id)
		if err != nil {
			return core.Transaction{}, err
		}
		if found == nil {
			return core.Transaction{}, core.TransactionNotFound(id)
		}
		t := *found
		if t.IsExecuted && touchesBalance(upd) {
			return t, &core.AlreadyExecutedError{Count: 1}
		}

		draft := core.NewTransaction{
			WalletID:            t.WalletID,
			CategoryID:          t.CategoryID,
			Type:                t.Type,
			Amount:              t.Amount,
			Description:         t.Description,
			DueDate:             t.DueDate,
			IsExecuted:          t.IsExecuted,
			IsRecurring:         t.IsRecurring,
			RecurrencePattern:   t.RecurrencePattern,
			RecurrenceInterval:  t.RecurrenceInterval,
			RecurrenceEndDate:   t.RecurrenceEndDate,
			ParentTransactionID: t.ParentTransactionID,
			GroupID:             t.GroupID,
			IsGroupParent:       t.IsGroupParent,
		}
		applyTransactionUpdate(&draft, upd)
		draft, err = draft.Normalize()
		if err != nil {
			return t, err
		}

		if draft.WalletID != t.WalletID {
			w, err := tx.Wallets().FindByID(ctx, draft.WalletID)
			if err != nil {
				return t, err
			}
			if w == nil {
				return t, core.WalletNotFound(draft.WalletID)
			}
		}
		if draft.CategoryID != t.CategoryID {
			c, err := tx.Categories().FindByID(ctx, draft.CategoryID)
			if err != nil {
				return t, err
			}
			if c == nil {
				return t, core.CategoryNotFound(draft.CategoryID)
			}
		}

		t.WalletID = draft.WalletID
		t.CategoryID = draft.CategoryID
		t.Type = draft.Type
		t.Amount = draft.Amount
		t.Description = draft.Description
		t.DueDate = core.DateOnly(draft.DueDate)
		t.IsRecurring = draft.IsRecurring
		t.RecurrencePattern = draft.RecurrencePattern
		t.RecurrenceInterval = draft.RecurrenceInterval
		t.RecurrenceEndDate = dateOnlyPtr(draft.RecurrenceEndDate)
		t.UpdatedAt = l.now()

		if err := tx.Transactions().Update(ctx, t); err != nil {
			return t, err
		}
		return t, l.enqueue(ctx, tx, events.TransactionUpdated, t.ID, t)
	})
}

// DeleteTransaction removes a transaction and, when it was executed,
// reverses its effect on the wallet.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) core.Result[struct{}] {
	return unitOfWork(ctx, l, "delete_transaction", func(tx repository.Repos) (struct{}, error) {
		t, err := tx.Transactions().FindByID(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if t == nil {
			return struct{}{}, core.TransactionNotFound(id)
		}
		if err := tx.Transactions().Delete(ctx, id); err != nil {
			return struct{}{}, err
		}
		if t.IsExecuted {
			if _, err := applyDelta(ctx, tx, t.WalletID, t.SignedAmount().Neg()); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, l.enqueue(ctx, tx, events.TransactionDeleted, id, *t)
	})
}

// Transfers

// TransferBetweenWallets moves amount from one wallet to another. Both
// wallet rows are locked in id order before the balance check so
// concurrent transfers cannot overdraw the origin.
func (l *Ledger) TransferBetweenWallets(ctx context.Context, in core.NewTransfer) core.Result[core.WalletTransfer] {
	in = in.Normalize()
	return unitOfWork(ctx, l, "transfer", func(tx repository.Repos) (core.WalletTransfer, error) {
		locked := map[string]*core.Wallet{}
		for _, id := range sortedUnique(in.FromWalletID, in.ToWalletID) {
			w, err := tx.Wallets().LockByID(ctx, id)
			if err != nil {
				return core.WalletTransfer{}, err
			}
			locked[id] = w
		}
		from, to := locked[in.FromWalletID], locked[in.ToWalletID]

		switch {
		case from == nil:
			return core.WalletTransfer{}, &core.NotFoundError{Entity: "Wallet", ID: in.FromWalletID, Role: "origin"}
		case to == nil:
			return core.WalletTransfer{}, &core.NotFoundError{Entity: "Wallet", ID: in.ToWalletID, Role: "destination"}
		case in.FromWalletID == in.ToWalletID:
			return core.WalletTransfer{}, &core.ValidationError{Err: core.ErrSameWallet}
		case from.HasInsufficientFunds(in.Amount):
			return core.WalletTransfer{}, &core.ValidationError{Err: core.ErrInsufficientFunds}
		case !in.Amount.IsPositive() || in.Amount.ExceedsMax():
			return core.WalletTransfer{}, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
		}

		now := l.now()
		tr := core.WalletTransfer{
			ID:           core.NewID(core.PrefixTransfer),
			FromWalletID: in.FromWalletID,
			ToWalletID:   in.ToWalletID,
			Amount:       in.Amount,
			Description:  in.Description,
			ExecutedAt:   now,
			CreatedAt:    now,
		}
		if err := tx.Transfers().Create(ctx, tr); err != nil {
			return tr, err
		}
		if _, err := applyDelta(ctx, tx, tr.FromWalletID, tr.Amount.Neg()); err != nil {
			return tr, err
		}
		if _, err := applyDelta(ctx, tx, tr.ToWalletID, tr.Amount); err != nil {
			return tr, err
		}
		if err := l.enqueue(ctx, tx, events.TransferCompleted, tr.ID, tr); err != nil {
			return tr, err
		}
		slog.InfoContext(ctx, "Transfer completed",
			log.FieldTransferID, tr.ID,
			"from_wallet_id", tr.FromWalletID,
			"to_wallet_id", tr.ToWalletID,
			log.FieldAmount, tr.Amount.String())
		return tr, nil
	})
}

// AdjustBalance applies a correcting delta outside of any transaction or
// transfer.
func (l *Ledger) AdjustBalance(ctx context.Context, walletID string, delta core.Money, reason string) core.Result[core.Wallet] {
	return unitOfWork(ctx, l, "adjust_balance", func(tx repository.Repos) (core.Wallet, error) {
		return l.adjust(ctx, tx, walletID, delta, reason)
	})
}

// AdjustToLedger sets a wallet balance to the sum of its executed
// transactions and transfers. The sum is taken under the wallet lock, so a
// write committed since the caller last looked is accounted for. A wallet
// already in agreement is returned untouched.
func (l *Ledger) AdjustToLedger(ctx context.Context, walletID, reason string) core.Result[core.Wallet] {
	return unitOfWork(ctx, l, "adjust_to_ledger", func(tx repository.Repos) (core.Wallet, error) {
		w, err := tx.Wallets().LockByID(ctx, walletID)
		if err != nil {
			return core.Wallet{}, err
		}
		if w == nil {
			return core.Wallet{}, core.WalletNotFound(walletID)
		}
		executed := true
		txns, err := tx.Transactions().FindMany(ctx, repository.TransactionFilters{WalletID: walletID, IsExecuted: &executed})
		if err != nil {
			return core.Wallet{}, err
		}
		transfers, err := tx.Transfers().FindByWalletID(ctx, walletID)
		if err != nil {
			return core.Wallet{}, err
		}
		delta := core.ExpectedBalance(walletID, txns, transfers).Sub(w.Balance)
		if delta.IsZero() {
			return *w, nil
		}
		return l.adjust(ctx, tx, walletID, delta, reason)
	})
}

func (l *Ledger) adjust(ctx context.Context, tx repository.Repos, walletID string, delta core.Money, reason string) (core.Wallet, error) {
	w, err := applyDelta(ctx, tx, walletID, delta)
	if err != nil {
		return w, err
	}
	payload := events.Adjustment{WalletID: walletID, Delta: delta, Balance: w.Balance, Reason: reason}
	if err := l.enqueue(ctx, tx, events.BalanceAdjusted, walletID, payload); err != nil {
		return w, err
	}
	slog.WarnContext(ctx, "Wallet balance adjusted",
		log.FieldWalletID, walletID,
		log.FieldDelta, delta.String(),
		"reason", reason)
	return w, nil
}

// WalletDeltas sums the signed amounts of txns per wallet.
func WalletDeltas(txns []core.Transaction) map[string]core.Money {
	deltas := make(map[string]core.Money)
	for _, t := range txns {
		deltas[t.WalletID] = deltas[t.WalletID].Add(t.SignedAmount())
	}
	return deltas
}

func touchesBalance(u core.TransactionUpdate) bool {
	return u.WalletID != nil || u.Type != nil || u.Amount != nil ||
		u.IsRecurring != nil || u.RecurrencePattern != nil ||
		u.RecurrenceInterval != nil || u.RecurrenceEndDate != nil
}

func applyTransactionUpdate(d *core.NewTransaction, u core.TransactionUpdate) {
	if u.WalletID != nil {
		d.WalletID = strings.TrimSpace(*u.WalletID)
	}
	if u.CategoryID != nil {
		d.CategoryID = strings.TrimSpace(*u.CategoryID)
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Amount != nil {
		d.Amount = *u.Amount
	}
	if u.Description != nil {
		d.Description = *u.Description
	}
	if u.DueDate != nil {
		d.DueDate = *u.DueDate
	}
	if u.IsRecurring != nil {
		d.IsRecurring = *u.IsRecurring
		if !d.IsRecurring {
			d.RecurrencePattern = ""
			d.RecurrenceEndDate = nil
		}
	}
	if u.RecurrencePattern != nil {
		d.RecurrencePattern = *u.RecurrencePattern
	}
	if u.RecurrenceInterval != nil {
		d.RecurrenceInterval = *u.RecurrenceInterval
	}
	if u.RecurrenceEndDate != nil {
		d.RecurrenceEndDate = u.RecurrenceEndDate
	}
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := core.DateOnly(*t)
	return &d
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sortedUnique(ids ...string) []string {
	out := uniqueIDs(ids)
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
