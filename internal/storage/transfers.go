package storage

import (
	"context"
	"fmt"
	"time"

	"carteira/internal/core"
)

const transferColumns = `id, from_wallet_id, to_wallet_id, amount, description, executed_at, created_at`

type transferRepo struct{ q *Queries }

func scanTransfer(row scanner) (core.WalletTransfer, error) {
	var (
		t                     core.WalletTransfer
		amount                int64
		executedAt, createdAt string
	)
	if err := row.Scan(&t.ID, &t.FromWalletID, &t.ToWalletID, &amount, &t.Description, &executedAt, &createdAt); err != nil {
		return t, err
	}
	t.Amount = core.MoneyFromCents(amount)
	var err error
	if t.ExecutedAt, err = parseTime(executedAt); err != nil {
		return t, fmt.Errorf("parse executed_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

func (r transferRepo) Create(ctx context.Context, t core.WalletTransfer) error {
	amount, err := t.Amount.Cents()
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	_, err = r.q.db.ExecContext(ctx,
		`INSERT INTO wallet_transfers (`+transferColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FromWalletID, t.ToWalletID, amount, t.Description, formatTime(t.ExecutedAt), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r transferRepo) FindByID(ctx context.Context, id string) (*core.WalletTransfer, error) {
	t, err := scanTransfer(r.q.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM wallet_transfers WHERE id = ?`, id))
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
		WHERE from_wallet_id = ? OR to_wallet_id = ?
		ORDER BY executed_at DESC, id DESC`,
		walletID, walletID)
}

func (r transferRepo) FindByDateRange(ctx context.Context, from, to time.Time) ([]core.WalletTransfer, error) {
	return r.list(ctx,
		`SELECT `+transferColumns+` FROM wallet_transfers
		WHERE executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at DESC, id DESC`,
		formatTime(from), formatTime(to))
}

func (r transferRepo) list(ctx context.Context, query string, args ...interface{}) ([]core.WalletTransfer, error) {
	rows, err := r.q.db.QueryContext(ctx, query, args...)
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
