// Package memory is an in-process Store used by tests and the default
// development backend. A unit of work holds the store lock for its whole
// duration and restores a snapshot when it fails.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"carteira/internal/core"
	"carteira/internal/events"
	"carteira/internal/repository"
)

type state struct {
	wallets      map[string]core.Wallet
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	transfers    map[string]core.WalletTransfer
	outbox       map[string]repository.OutboxMessage
}

func (s *state) clone() *state {
	return &state{
		wallets:      maps.Clone(s.wallets),
		categories:   maps.Clone(s.categories),
		transactions: maps.Clone(s.transactions),
		transfers:    maps.Clone(s.transfers),
		outbox:       maps.Clone(s.outbox),
	}
}

type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time

	// balanceUpdates counts UpdateBalance calls, per wallet.
	balanceUpdates map[string]int
	failBalance    map[string]error
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: &state{
			wallets:      map[string]core.Wallet{},
			categories:   map[string]core.Category{},
			transactions: map[string]core.Transaction{},
			transfers:    map[string]core.WalletTransfer{},
			outbox:       map[string]repository.OutboxMessage{},
		},
		now:            func() time.Time { return time.Now().UTC() },
		balanceUpdates: map[string]int{},
		failBalance:    map[string]error{},
	}
}

// BalanceUpdates reports how many times UpdateBalance ran against walletID.
func (s *Store) BalanceUpdates(walletID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceUpdates[walletID]
}

// FailBalanceUpdates makes UpdateBalance on walletID return err.
func (s *Store) FailBalanceUpdates(walletID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBalance[walletID] = err
}

func (s *Store) Wallets() repository.WalletRepository { return walletRepo{view{s, false}} }
func (s *Store) Categories() repository.CategoryRepository { return categoryRepo{view{s, false}} }
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{view{s, false}} }
func (s *Store) Transfers() repository.TransferRepository { return transferRepo{view{s, false}} }
func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{view{s, false}} }

func (s *Store) WithTransaction(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()
	return fn(txRepos{view{s, true}})
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error { return nil }

// view binds repositories to the store. Inside a unit of work the lock is
// already held.
type view struct {
	s    *Store
	inTx bool
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

type txRepos struct{ v view }

func (t txRepos) Wallets() repository.WalletRepository { return walletRepo{t.v} }
func (t txRepos) Categories() repository.CategoryRepository { return categoryRepo{t.v} }
func (t txRepos) Transactions() repository.TransactionRepository { return transactionRepo{t.v} }
func (t txRepos) Transfers() repository.TransferRepository { return transferRepo{t.v} }
func (t txRepos) Outbox() repository.OutboxRepository { return outboxRepo{t.v} }

var errDuplicate = errors.New("duplicate id")

// wallets

type walletRepo struct{ view }

func (r walletRepo) Create(_ context.Context, w core.Wallet) error {
	defer r.lock()()
	if _, ok := r.s.data.wallets[w.ID]; ok {
		return fmt.Errorf("create wallet %s: %w", w.ID, errDuplicate)
	}
	r.s.data.wallets[w.ID] = w
	return nil
}

func (r walletRepo) Update(_ context.Context, w core.Wallet) error {
	defer r.lock()()
	if _, ok := r.s.data.wallets[w.ID]; !ok {
		return fmt.Errorf("update wallet %s: %w", w.ID, repository.ErrNoRows)
	}
	r.s.data.wallets[w.ID] = w
	return nil
}

func (r walletRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.s.data.wallets[id]; !ok {
		return fmt.Errorf("delete wallet %s: %w", id, repository.ErrNoRows)
	}
	delete(r.s.data.wallets, id)
	return nil
}

func (r walletRepo) FindByID(_ context.Context, id string) (*core.Wallet, error) {
	defer r.lock()()
	w, ok := r.s.data.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r walletRepo) LockByID(ctx context.Context, id string) (*core.Wallet, error) {
	return r.FindByID(ctx, id)
}

func (r walletRepo) FindAll(_ context.Context) ([]core.Wallet, error) {
	defer r.lock()()
	out := slices.Collect(maps.Values(r.s.data.wallets))
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r walletRepo) UpdateBalance(_ context.Context, id string, delta core.Money) (core.Wallet, error) {
	defer r.lock()()
	r.s.balanceUpdates[id]++
	if err := r.s.failBalance[id]; err != nil {
		return core.Wallet{}, err
	}
	w, ok := r.s.data.wallets[id]
	if !ok {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, repository.ErrNoRows)
	}
	w = w.ApplyDelta(delta, r.s.now())
	r.s.data.wallets[id] = w
	return w, nil
}

// categories

type categoryRepo struct{ view }

func (r categoryRepo) Create(_ context.Context, c core.Category) error {
	defer r.lock()()
	if _, ok := r.s.data.categories[c.ID]; ok {
		return fmt.Errorf("create category %s: %w", c.ID, errDuplicate)
	}
	r.s.data.categories[c.ID] = c
	return nil
}

func (r categoryRepo) Update(_ context.Context, c core.Category) error {
	defer r.lock()()
	if _, ok := r.s.data.categories[c.ID]; !ok {
		return fmt.Errorf("update category %s: %w", c.ID, repository.ErrNoRows)
	}
	r.s.data.categories[c.ID] = c
	return nil
}

func (r categoryRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.s.data.categories[id]; !ok {
		return fmt.Errorf("delete category %s: %w", id, repository.ErrNoRows)
	}
	delete(r.s.data.categories, id)
	return nil
}

func (r categoryRepo) FindByID(_ context.Context, id string) (*core.Category, error) {
	defer r.lock()()
	c, ok := r.s.data.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r categoryRepo) FindAll(ctx context.Context) ([]core.Category, error) {
	return r.find("")
}

func (r categoryRepo) FindByType(_ context.Context, t core.TransactionType) ([]core.Category, error) {
	return r.find(t)
}

func (r categoryRepo) find(t core.TransactionType) ([]core.Category, error) {
	defer r.lock()()
	out := []core.Category{}
	for _, c := range r.s.data.categories {
		if t == "" || c.Type == t {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// transactions

type transactionRepo struct{ view }

func (r transactionRepo) Create(_ context.Context, t core.Transaction) error {
	defer r.lock()()
	if _, ok := r.s.data.transactions[t.ID]; ok {
		return fmt.Errorf("create transaction %s: %w", t.ID, errDuplicate)
	}
	r.s.data.transactions[t.ID] = t
	return nil
}

func (r transactionRepo) Update(_ context.Context, t core.Transaction) error {
	defer r.lock()()
	if _, ok := r.s.data.transactions[t.ID]; !ok {
		return fmt.Errorf("update transaction %s: %w", t.ID, repository.ErrNoRows)
	}
	r.s.data.transactions[t.ID] = t
	return nil
}

func (r transactionRepo) Delete(_ context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.s.data.transactions[id]; !ok {
		return fmt.Errorf("delete transaction %s: %w", id, repository.ErrNoRows)
	}
	delete(r.s.data.transactions, id)
	// Children outlive their parent, as with ON DELETE SET NULL.
	for cid, c := range r.s.data.transactions {
		if c.ParentTransactionID != nil && *c.ParentTransactionID == id {
			c.ParentTransactionID = nil
			r.s.data.transactions[cid] = c
		}
	}
	return nil
}

func (r transactionRepo) FindByID(_ context.Context, id string) (*core.Transaction, error) {
	defer r.lock()()
	t, ok := r.s.data.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r transactionRepo) FindMany(_ context.Context, f repository.TransactionFilters) ([]core.Transaction, error) {
	defer r.lock()()
	out := r.filter(f.Match)
	sortByDueDate(out, false)
	return out, nil
}

func (r transactionRepo) FindByIDs(_ context.Context, ids []string) ([]core.Transaction, error) {
	defer r.lock()()
	out := r.filter(func(t core.Transaction) bool { return slices.Contains(ids, t.ID) })
	sortByDueDate(out, true)
	return out, nil
}

func (r transactionRepo) ExecuteMany(_ context.Context, ids []string, at time.Time) ([]core.Transaction, error) {
	defer r.lock()()
	var out []core.Transaction
	for _, id := range ids {
		t, ok := r.s.data.transactions[id]
		if !ok || t.IsExecuted {
			continue
		}
		t, _ = t.Execute(at)
		r.s.data.transactions[id] = t
		out = append(out, t)
	}
	sortByDueDate(out, true)
	return out, nil
}

func (r transactionRepo) FindPendingRecurring(_ context.Context, now time.Time) ([]core.Transaction, error) {
	defer r.lock()()
	out := r.filter(func(t core.Transaction) bool {
		return t.IsRecurring && !t.IsExecuted && !t.DueDate.After(now)
	})
	sortByDueDate(out, true)
	return out, nil
}

func (r transactionRepo) FindByGroupID(_ context.Context, groupID string) ([]core.Transaction, error) {
	defer r.lock()()
	out := r.filter(func(t core.Transaction) bool { return t.GroupID != nil && *t.GroupID == groupID })
	sortByDueDate(out, true)
	return out, nil
}

func (r transactionRepo) filter(keep func(core.Transaction) bool) []core.Transaction {
	out := []core.Transaction{}
	for _, t := range r.s.data.transactions {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func sortByDueDate(ts []core.Transaction, asc bool) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if !a.DueDate.Equal(b.DueDate) {
			if asc {
				return a.DueDate.Before(b.DueDate)
			}
			return a.DueDate.After(b.DueDate)
		}
		return a.ID < b.ID
	})
}

// transfers

type transferRepo struct{ view }

func (r transferRepo) Create(_ context.Context, t core.WalletTransfer) error {
	defer r.lock()()
	if _, ok := r.s.data.transfers[t.ID]; ok {
		return fmt.Errorf("create transfer %s: %w", t.ID, errDuplicate)
	}
	r.s.data.transfers[t.ID] = t
	return nil
}

func (r transferRepo) FindByID(_ context.Context, id string) (*core.WalletTransfer, error) {
	defer r.lock()()
	t, ok := r.s.data.transfers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r transferRepo) FindAll(context.Context) ([]core.WalletTransfer, error) {
	return r.find(func(core.WalletTransfer) bool { return true })
}

func (r transferRepo) FindByWalletID(_ context.Context, walletID string) ([]core.WalletTransfer, error) {
	return r.find(func(t core.WalletTransfer) bool {
		return t.FromWalletID == walletID || t.ToWalletID == walletID
	})
}

func (r transferRepo) FindByDateRange(_ context.Context, from, to time.Time) ([]core.WalletTransfer, error) {
	return r.find(func(t core.WalletTransfer) bool {
		return !t.ExecutedAt.Before(from) && !t.ExecutedAt.After(to)
	})
}

func (r transferRepo) find(keep func(core.WalletTransfer) bool) ([]core.WalletTransfer, error) {
	defer r.lock()()
	out := []core.WalletTransfer{}
	for _, t := range r.s.data.transfers {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// outbox

type outboxRepo struct{ view }

func (r outboxRepo) Enqueue(_ context.Context, e events.Event) error {
	defer r.lock()()
	now := r.s.now()
	r.s.data.outbox[e.ID] = repository.OutboxMessage{
		ID:          e.ID,
		EventType:   e.Type,
		AggregateID: e.AggregateID,
		Payload:     e.Payload,
		Status:      repository.OutboxPending,
		AvailableAt: now,
		CreatedAt:   e.OccurredAt,
		UpdatedAt:   now,
	}
	return nil
}

func (r outboxRepo) Claim(_ context.Context, limit int, now time.Time) ([]repository.OutboxMessage, error) {
	defer r.lock()()
	var ready []repository.OutboxMessage
	for _, m := range r.s.data.outbox {
		if m.Status == repository.OutboxPending && !m.AvailableAt.After(now) {
			ready = append(ready, m)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	for i := range ready {
		ready[i].Status = repository.OutboxProcessing
		ready[i].UpdatedAt = now
		r.s.data.outbox[ready[i].ID] = ready[i]
	}
	return ready, nil
}

func (r outboxRepo) update(id string, fn func(*repository.OutboxMessage)) error {
	defer r.lock()()
	m, ok := r.s.data.outbox[id]
	if !ok {
		return fmt.Errorf("outbox %s: %w", id, repository.ErrNoRows)
	}
	fn(&m)
	m.UpdatedAt = r.s.now()
	r.s.data.outbox[id] = m
	return nil
}

func (r outboxRepo) MarkCompleted(_ context.Context, id string) error {
	return r.update(id, func(m *repository.OutboxMessage) { m.Status = repository.OutboxCompleted })
}

func (r outboxRepo) MarkFailed(_ context.Context, id, reason string) error {
	return r.update(id, func(m *repository.OutboxMessage) {
		m.Status = repository.OutboxFailed
		m.Attempts++
		m.LastError = reason
	})
}

func (r outboxRepo) Retry(_ context.Context, id, reason string, availableAt time.Time) error {
	return r.update(id, func(m *repository.OutboxMessage) {
		m.Status = repository.OutboxPending
		m.Attempts++
		m.LastError = reason
		m.AvailableAt = availableAt
	})
}

func (r outboxRepo) ResetStale(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for id, m := range r.s.data.outbox {
		if m.Status == repository.OutboxProcessing && m.UpdatedAt.Before(cutoff) {
			m.Status = repository.OutboxPending
			r.s.data.outbox[id] = m
			n++
		}
	}
	return n, nil
}

func (r outboxRepo) CleanupCompleted(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for id, m := range r.s.data.outbox {
		if m.Status == repository.OutboxCompleted && m.UpdatedAt.Before(cutoff) {
			delete(r.s.data.outbox, id)
			n++
		}
	}
	return n, nil
}

func (r outboxRepo) RetryFailed(context.Context) (int64, error) {
	defer r.lock()()
	var n int64
	now := r.s.now()
	for id, m := range r.s.data.outbox {
		if m.Status == repository.OutboxFailed {
			m.Status = repository.OutboxPending
			m.Attempts = 0
			m.AvailableAt = now
			r.s.data.outbox[id] = m
			n++
		}
	}
	return n, nil
}

func (r outboxRepo) Stats(context.Context) (repository.OutboxStats, error) {
	defer r.lock()()
	var st repository.OutboxStats
	for _, m := range r.s.data.outbox {
		switch m.Status {
		case repository.OutboxPending:
			st.Pending++
		case repository.OutboxProcessing:
			st.Processing++
		case repository.OutboxCompleted:
			st.Completed++
		case repository.OutboxFailed:
			st.Failed++
		}
	}
	return st, nil
}

// Messages lists outbox messages of the given type, oldest first.
func (s *Store) Messages(t events.Type) []repository.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.OutboxMessage
	for _, m := range s.data.outbox {
		if t == "" || m.EventType == t || strings.HasPrefix(string(m.EventType), string(t)+".") {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
