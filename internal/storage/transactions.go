package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/repository"
)

const transactionColumns = `id, wallet_id, category_id, type, amount, description, due_date,
	is_executed, executed_at, is_recurring, recurrence_pattern, recurrence_interval,
	recurrence_end_date, parent_transaction_id, group_id, is_group_parent, created_at, updated_at`

type transactionRepo struct{ q *Queries }

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		typ, dueDate         string
		amount               int64
		isExecuted           int64
		executedAt           sql.NullString
		isRecurring          int64
		pattern              sql.NullString
		interval             int64
		endDate              sql.NullString
		parentID, groupID    sql.NullString
		isGroupParent        int64
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.WalletID, &t.CategoryID, &typ, &amount, &t.Description, &dueDate,
		&isExecuted, &executedAt, &isRecurring, &pattern, &interval,
		&endDate, &parentID, &groupID, &isGroupParent, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}

	t.Type = core.TransactionType(typ)
	t.Amount = core.MoneyFromCents(amount)
	t.IsExecuted = isExecuted != 0
	t.IsRecurring = isRecurring != 0
	t.RecurrencePattern = core.RecurrencePattern(pattern.String)
	t.RecurrenceInterval = int(interval)
	t.ParentTransactionID = optString(parentID)
	t.GroupID = optString(groupID)
	t.IsGroupParent = isGroupParent != 0

	if t.DueDate, err = parseDate(dueDate); err != nil {
		return t, fmt.Errorf("parse due_date: %w", err)
	}
	if t.ExecutedAt, err = optTime(executedAt, parseTime); err != nil {
		return t, fmt.Errorf("parse executed_at: %w", err)
	}
	if t.RecurrenceEndDate, err = optTime(endDate, parseDate); err != nil {
		return t, fmt.Errorf("parse recurrence_end_date: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

func nullPattern(p core.RecurrencePattern) sql.NullString {
	if p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(p), Valid: true}
}

func (r transactionRepo) Create(ctx context.Context, t core.Transaction) error {
	amount, err := t.Amount.Cents()
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	_, err = r.q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WalletID, t.CategoryID, string(t.Type), amount, t.Description, formatDate(t.DueDate),
		boolInt(t.IsExecuted), nullTime(t.ExecutedAt), boolInt(t.IsRecurring), nullPattern(t.RecurrencePattern), t.RecurrenceInterval,
		nullDate(t.RecurrenceEndDate), nullString(t.ParentTransactionID), nullString(t.GroupID), boolInt(t.IsGroupParent),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r transactionRepo) Update(ctx context.Context, t core.Transaction) error {
	amount, err := t.Amount.Cents()
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	err = affected(r.q.db.ExecContext(ctx,
		`UPDATE transactions SET wallet_id = ?, category_id = ?, type = ?, amount = ?, description = ?,
		due_date = ?, is_executed = ?, executed_at = ?, is_recurring = ?, recurrence_pattern = ?,
		recurrence_interval = ?, recurrence_end_date = ?, parent_transaction_id = ?, group_id = ?,
		is_group_parent = ?, updated_at = ?
		WHERE id = ?`,
		t.WalletID, t.CategoryID, string(t.Type), amount, t.Description,
		formatDate(t.DueDate), boolInt(t.IsExecuted), nullTime(t.ExecutedAt), boolInt(t.IsRecurring), nullPattern(t.RecurrencePattern),
		t.RecurrenceInterval, nullDate(t.RecurrenceEndDate), nullString(t.ParentTransactionID), nullString(t.GroupID),
		boolInt(t.IsGroupParent), formatTime(t.UpdatedAt),
		t.ID))
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r transactionRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (r transactionRepo) FindByID(ctx context.Context, id string) (*core.Transaction, error) {
	t, err := scanTransaction(r.q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
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
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.WalletID != "" {
		add("wallet_id = ?", f.WalletID)
	}
	if f.CategoryID != "" {
		add("category_id = ?", f.CategoryID)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.IsExecuted != nil {
		add("is_executed = ?", boolInt(*f.IsExecuted))
	}
	if f.IsRecurring != nil {
		add("is_recurring = ?", boolInt(*f.IsRecurring))
	}
	if f.GroupID != "" {
		add("group_id = ?", f.GroupID)
	}
	if f.DateFrom != nil {
		add("due_date >= ?", formatDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		add("due_date <= ?", formatDate(*f.DateTo))
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
		`SELECT `+transactionColumns+` FROM transactions WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY due_date ASC, id ASC`,
		stringArgs(ids)...)
}

// ExecuteMany only touches rows that are still pending, so a concurrent
// execution of the same id cannot apply twice.
func (r transactionRepo) ExecuteMany(ctx context.Context, ids []string, at time.Time) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return []core.Transaction{}, nil
	}
	args := append([]interface{}{formatTime(at), formatTime(at)}, stringArgs(ids)...)
	txns, err := r.list(ctx,
		`UPDATE transactions SET is_executed = 1, executed_at = ?, updated_at = ?
		WHERE is_executed = 0 AND id IN (`+placeholders(len(ids))+`)
		RETURNING `+transactionColumns,
		args...)
	if err != nil {
		return nil, fmt.Errorf("execute transactions: %w", err)
	}
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].DueDate.Equal(txns[j].DueDate) {
			return txns[i].DueDate.Before(txns[j].DueDate)
		}
		return txns[i].ID < txns[j].ID
	})
	return txns, nil
}

func (r transactionRepo) FindPendingRecurring(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring = 1 AND is_executed = 0 AND due_date <= ?
		ORDER BY due_date ASC, id ASC`,
		formatDate(now))
}

func (r transactionRepo) FindByGroupID(ctx context.Context, groupID string) ([]core.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE group_id = ? ORDER BY due_date ASC, id ASC`,
		groupID)
}

func (r transactionRepo) list(ctx context.Context, query string, args ...interface{}) ([]core.Transaction, error) {
	rows, err := r.q.db.QueryContext(ctx, query, args...)
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
