package storage

import (
	"context"
	"fmt"

	"carteira/internal/core"
	"carteira/internal/repository"
)

const walletColumns = `id, name, currency, balance, created_at, updated_at`

type walletRepo struct{ q *Queries }

func scanWallet(row scanner) (core.Wallet, error) {
	var (
		w                    core.Wallet
		balance              int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Currency, &balance, &createdAt, &updatedAt); err != nil {
		return w, err
	}
	w.Balance = core.MoneyFromCents(balance)
	var err error
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return w, fmt.Errorf("parse created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return w, fmt.Errorf("parse updated_at: %w", err)
	}
	return w, nil
}

func (r walletRepo) Create(ctx context.Context, w core.Wallet) error {
	balance, err := w.Balance.Cents()
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	_, err = r.q.db.ExecContext(ctx,
		`INSERT INTO wallets (`+walletColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Currency, balance, formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Update writes name and currency. The balance only moves through UpdateBalance.
func (r walletRepo) Update(ctx context.Context, w core.Wallet) error {
	err := affected(r.q.db.ExecContext(ctx,
		`UPDATE wallets SET name = ?, currency = ?, updated_at = ? WHERE id = ?`,
		w.Name, w.Currency, formatTime(w.UpdatedAt), w.ID))
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", w.ID, err)
	}
	return nil
}

func (r walletRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, id)); err != nil {
		return fmt.Errorf("delete wallet %s: %w", id, err)
	}
	return nil
}

func (r walletRepo) FindByID(ctx context.Context, id string) (*core.Wallet, error) {
	w, err := scanWallet(r.q.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", id, err)
	}
	return &w, nil
}

// LockByID relies on the single connection: inside a unit of work no other
// writer can touch the row.
func (r walletRepo) LockByID(ctx context.Context, id string) (*core.Wallet, error) {
	return r.FindByID(ctx, id)
}

func (r walletRepo) FindAll(ctx context.Context) ([]core.Wallet, error) {
	rows, err := r.q.db.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := []core.Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r walletRepo) UpdateBalance(ctx context.Context, id string, delta core.Money) (core.Wallet, error) {
	cents, err := delta.Cents()
	if err != nil {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, err)
	}
	w, err := scanWallet(r.q.db.QueryRowContext(ctx,
		`UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ? RETURNING `+walletColumns,
		cents, formatTime(nowUTC()), id))
	if isNoRows(err) {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, repository.ErrNoRows)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, err)
	}
	return w, nil
}
