// Package postgres implements the ledger repositories on PostgreSQL with
// pgx. Balances are NUMERIC(14,2) and row locks use SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"carteira/internal/log"
	"carteira/internal/repository"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool    *pgxpool.Pool
	queries *Queries
}

var _ repository.Store = (*Store)(nil)

// Options tunes the connection pool.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectRetries  int
	RetryDelay      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectRetries:  5,
		RetryDelay:      2 * time.Second,
	}
}

// Open migrates the database at url and returns a pooled store. Connection
// failures are retried with exponential backoff.
func Open(ctx context.Context, url string, opts Options, logger *log.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	if opts.ConnectRetries < 1 {
		opts.ConnectRetries = 1
	}

	var pool *pgxpool.Pool
	delay := opts.RetryDelay
	for attempt := 1; attempt <= opts.ConnectRetries; attempt++ {
		pool, err = connect(ctx, cfg)
		if err == nil {
			break
		}
		if logger != nil {
			logger.Warn("Database connection failed",
				log.FieldAttempt, attempt,
				log.FieldMaxAttempts, opts.ConnectRetries,
				log.FieldError, err)
		}
		if attempt == opts.ConnectRetries {
			return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	if err := RunMigrations(cfg.ConnConfig); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, queries: New(pool)}, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Wallets() repository.WalletRepository { return s.queries.Wallets() }
func (s *Store) Categories() repository.CategoryRepository { return s.queries.Categories() }
func (s *Store) Transactions() repository.TransactionRepository { return s.queries.Transactions() }
func (s *Store) Transfers() repository.TransferRepository { return s.queries.Transfers() }
func (s *Store) Outbox() repository.OutboxRepository { return s.queries.Outbox() }

// WithTransaction runs fn inside a database transaction. A context marked
// with repository.WithSnapshot gets a read-only REPEATABLE READ transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx repository.Repos) error) error {
	var opts pgx.TxOptions
	if repository.IsSnapshot(ctx) {
		opts = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(s.queries.WithTx(tx))
	})
	if err != nil {
		return err
	}
	return nil
}

// Queries binds the repositories to the pool or a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) Wallets() repository.WalletRepository { return walletRepo{q} }
func (q *Queries) Categories() repository.CategoryRepository { return categoryRepo{q} }
func (q *Queries) Transactions() repository.TransactionRepository { return transactionRepo{q} }
func (q *Queries) Transfers() repository.TransferRepository { return transferRepo{q} }
func (q *Queries) Outbox() repository.OutboxRepository { return outboxRepo{q} }

var nowUTC = func() time.Time { return time.Now().UTC() }

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNoRows
	}
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func optText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
