package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"carteira/internal/core"
	"carteira/internal/repository"
)

const walletColumns = `id, name, currency, balance, created_at, updated_at`

type walletRepo struct{ q *Queries }

func scanWallet(row pgx.Row) (core.Wallet, error) {
	var w core.Wallet
	if err := row.Scan(&w.ID, &w.Name, &w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return w, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (r walletRepo) Create(ctx context.Context, w core.Wallet) error {
	_, err := r.q.db.Exec(ctx,
		`INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.Name, w.Currency, w.Balance.String(), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Update writes name and currency. The balance only moves through UpdateBalance.
func (r walletRepo) Update(ctx context.Context, w core.Wallet) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE wallets SET name = $1, currency = $2, updated_at = $3 WHERE id = $4`,
		w.Name, w.Currency, w.UpdatedAt, w.ID))
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", w.ID, err)
	}
	return nil
}

func (r walletRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id)); err != nil {
		return fmt.Errorf("delete wallet %s: %w", id, err)
	}
	return nil
}

func (r walletRepo) FindByID(ctx context.Context, id string) (*core.Wallet, error) {
	return r.find(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

func (r walletRepo) LockByID(ctx context.Context, id string) (*core.Wallet, error) {
	return r.find(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

func (r walletRepo) find(ctx context.Context, query, id string) (*core.Wallet, error) {
	w, err := scanWallet(r.q.db.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", id, err)
	}
	return &w, nil
}

func (r walletRepo) FindAll(ctx context.Context) ([]core.Wallet, error) {
	rows, err := r.q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at ASC, id ASC`)
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
	w, err := scanWallet(r.q.db.QueryRow(ctx,
		`UPDATE wallets SET balance = balance + $1::numeric, updated_at = $2 WHERE id = $3 RETURNING `+walletColumns,
		delta.String(), nowUTC(), id))
	if isNoRows(err) {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, repository.ErrNoRows)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("update balance %s: %w", id, err)
	}
	return w, nil
}
