package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"carteira/internal/core"
)

const transferColumns = `id, from_wallet_id, to_wallet_id, amount, description, executed_at, created_at`

type transferRepo struct{ q *Queries }

func scanTransfer(row pgx.Row) (core.WalletTransfer, error) {
	var t core.WalletTransfer
	if err := row.Scan(&t.ID, &t.FromWalletID, &t.ToWalletID, &t.Amount, &t.Description, &t.ExecutedAt, &t.CreatedAt); err != nil {
		return t, err
	}
	t.ExecutedAt = t.ExecutedAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r transferRepo) Create(ctx context.Context, t core.WalletTransfer) error {
	_, err := r.q.db.Exec(ctx,
		`INSERT INTO wallet_transfers (`+transferColumns+`) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		t.ID, t.FromWalletID, t.ToWalletID, t.Amount.String(), t.Description, t.ExecutedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r transferRepo) FindByID(ctx context.Context, id string) (*core.WalletTransfer, error) {
	t, err := scanTransfer(r.q.db.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM wallet_transfers WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer %s: %w", id, err)
	}
	return &t, nil
}

func (r transferRepo) FindAll(ctx context.Context) ([]core.WalletTransfer, error) {
	return r.list(ctx, `SELECT `+transferColumns+` FROM wallet_transfers ORDER BY executed_at DESC, id DESC`)
}

func (r transferRepo) FindByWalletID(ctx context.Context, walletID string) ([]core.WalletTransfer, error) {
	return r.list(ctx,
		`SELECT `+transferColumns+` FROM wallet_transfers
		WHERE from_wallet_id = $1 OR to_wallet_id = $1
		ORDER BY executed_at DESC, id DESC`,
		walletID)
}

func (r transferRepo) FindByDateRange(ctx context.Context, from, to time.Time) ([]core.WalletTransfer, error) {
	return r.list(ctx,
		`SELECT `+transferColumns+` FROM wallet_transfers
		WHERE executed_at BETWEEN $1 AND $2
		ORDER BY executed_at DESC, id DESC`,
		from, to)
}

func (r transferRepo) list(ctx context.Context, query string, args ...any) ([]core.WalletTransfer, error) {
	rows, err := r.q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	transfers := []core.WalletTransfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
