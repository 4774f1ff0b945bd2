package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"carteira/internal/core"
	"carteira/internal/repository"
)

const transactionColumns = `id, wallet_id, category_id, type, amount, description, due_date,
	is_executed, executed_at, is_recurring, recurrence_pattern, recurrence_interval,
	recurrence_end_date, parent_transaction_id, group_id, is_group_parent, created_at, updated_at`

type transactionRepo struct{ q *Queries }

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t        core.Transaction
		typ      string
		pattern  *string
		interval int32
	)
	err := row.Scan(&t.ID, &t.WalletID, &t.CategoryID, &typ, &t.Amount, &t.Description, &t.DueDate,
		&t.IsExecuted, &t.ExecutedAt, &t.IsRecurring, &pattern, &interval,
		&t.RecurrenceEndDate, &t.ParentTransactionID, &t.GroupID, &t.IsGroupParent, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Type = core.TransactionType(typ)
	if pattern != nil {
		t.RecurrencePattern = core.RecurrencePattern(*pattern)
	}
	t.RecurrenceInterval = int(interval)
	t.DueDate = core.DateOnly(t.DueDate)
	t.ExecutedAt = utc(t.ExecutedAt)
	t.RecurrenceEndDate = utc(t.RecurrenceEndDate)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r transactionRepo) Create(ctx context.Context, t core.Transaction) error {
	_, err := r.q.db.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		t.ID, t.WalletID, t.CategoryID, string(t.Type), t.Amount.String(), t.Description, core.DateOnly(t.DueDate),
		t.IsExecuted, t.ExecutedAt, t.IsRecurring, optText(string(t.RecurrencePattern)), t.RecurrenceInterval,
		t.RecurrenceEndDate, t.ParentTransactionID, t.GroupID, t.IsGroupParent,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r transactionRepo) Update(ctx context.Context, t core.Transaction) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE transactions SET wallet_id = $1, category_id = $2, type = $3, amount = $4::numeric, description = $5,
		due_date = $6, is_executed = $7, executed_at = $8, is_recurring = $9, recurrence_pattern = $10,
		recurrence_interval = $11, recurrence_end_date = $12, parent_transaction_id = $13, group_id = $14,
		is_group_parent = $15, updated_at = $16
		WHERE id = $17`,
		t.WalletID, t.CategoryID, string(t.Type), t.Amount.String(), t.Description,
		core.DateOnly(t.DueDate), t.IsExecuted, t.ExecutedAt, t.IsRecurring, optText(string(t.RecurrencePattern)),
		t.RecurrenceInterval, t.RecurrenceEndDate, t.ParentTransactionID, t.GroupID,
		t.IsGroupParent, t.UpdatedAt,
		t.ID))
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r transactionRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (r transactionRepo) FindByID(ctx context.Context, id string) (*core.Transaction, error) {
	t, err := scanTransaction(r.q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return &t, nil
}

func (r transactionRepo) FindMany(ctx context.Context, f repository.TransactionFilters) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.WalletID != "" {
		add("wallet_id = $%d", f.WalletID)
	}
	if f.CategoryID != "" {
		add("category_id = $%d", f.CategoryID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.IsExecuted != nil {
		add("is_executed = $%d", *f.IsExecuted)
	}
	if f.IsRecurring != nil {
		add("is_recurring = $%d", *f.IsRecurring)
	}
	if f.GroupID != "" {
		add("group_id = $%d", f.GroupID)
	}
	if f.DateFrom != nil {
		add("due_date >= $%d", core.DateOnly(*f.DateFrom))
	}
	if f.DateTo != nil {
		add("due_date <= $%d", core.DateOnly(*f.DateTo))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date DESC, id ASC`
	return r.list(ctx, query, args...)
}

func (r transactionRepo) FindByIDs(ctx context.Context, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return []core.Transaction{}, nil
	}
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ANY($1) ORDER BY due_date ASC, id ASC`,
		ids)
}

// ExecuteMany only touches rows that are still pending, so a concurrent
// execution of the same id cannot apply twice.
func (r transactionRepo) ExecuteMany(ctx context.Context, ids []string, at time.Time) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return []core.Transaction{}, nil
	}
	txns, err := r.list(ctx,
		`WITH executed AS (
			UPDATE transactions SET is_executed = TRUE, executed_at = $1, updated_at = $1
			WHERE NOT is_executed AND id = ANY($2)
			RETURNING `+transactionColumns+`
		)
		SELECT `+transactionColumns+` FROM executed ORDER BY due_date ASC, id ASC`,
		at, ids)
	if err != nil {
		return nil, fmt.Errorf("execute transactions: %w", err)
	}
	return txns, nil
}

func (r transactionRepo) FindPendingRecurring(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring AND NOT is_executed AND due_date <= $1
		ORDER BY due_date ASC, id ASC`,
		core.DateOnly(now))
}

func (r transactionRepo) FindByGroupID(ctx context.Context, groupID string) ([]core.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE group_id = $1 ORDER BY due_date ASC, id ASC`,
		groupID)
}

func (r transactionRepo) list(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
