package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"carteira/internal/repository"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries binds the repositories to a connection or a transaction.
type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) Wallets() repository.WalletRepository { return walletRepo{q} }
func (q *Queries) Categories() repository.CategoryRepository { return categoryRepo{q} }
func (q *Queries) Transactions() repository.TransactionRepository { return transactionRepo{q} }
func (q *Queries) Transfers() repository.TransferRepository { return transferRepo{q} }
func (q *Queries) Outbox() repository.OutboxRepository { return outboxRepo{q} }

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }
func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }
func parseDate(s string) (time.Time, error) { return time.Parse(dateLayout, s) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func optTime(ns sql.NullString, parse func(string) (time.Time, error)) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// affected turns a zero-row write into repository.ErrNoRows.
func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNoRows
	}
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

type scanner interface {
	Scan(dest ...interface{}) error
}

var nowUTC = func() time.Time { return time.Now().UTC() }
