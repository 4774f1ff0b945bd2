// Package storage implements the ledger repositories on SQLite.
//
// Money columns hold integer cents so balance increments stay integer
// arithmetic inside the database. Timestamps are fixed-width UTC text,
// which keeps lexical and chronological order identical.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"carteira/internal/repository"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db      *sql.DB
	queries *Queries
}

var _ repository.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; a unit of work owns the only connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		queries: New(db),
	}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Wallets() repository.WalletRepository { return s.queries.Wallets() }
func (s *SQLiteStore) Categories() repository.CategoryRepository { return s.queries.Categories() }
func (s *SQLiteStore) Transactions() repository.TransactionRepository { return s.queries.Transactions() }
func (s *SQLiteStore) Transfers() repository.TransferRepository { return s.queries.Transfers() }
func (s *SQLiteStore) Outbox() repository.OutboxRepository { return s.queries.Outbox() }

// WithTransaction runs fn inside a database transaction. Repositories
// outside tx must not be used from fn: the pool has a single connection.
func (s *SQLiteStore) WithTransaction(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
