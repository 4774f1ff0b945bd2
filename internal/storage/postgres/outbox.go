package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"carteira/internal/events"
	"carteira/internal/repository"
)

const outboxColumns = `id, event_type, aggregate_id, payload, status, attempts, last_error, available_at, created_at, updated_at`

type outboxRepo struct{ q *Queries }

func scanOutbox(row pgx.Row) (repository.OutboxMessage, error) {
	var (
		m         repository.OutboxMessage
		eventType string
		payload   []byte
		attempts  int32
		lastError *string
	)
	err := row.Scan(&m.ID, &eventType, &m.AggregateID, &payload, &m.Status, &attempts, &lastError,
		&m.AvailableAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.EventType = events.Type(eventType)
	m.Payload = payload
	m.Attempts = int(attempts)
	if lastError != nil {
		m.LastError = *lastError
	}
	m.AvailableAt = m.AvailableAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func (r outboxRepo) Enqueue(ctx context.Context, e events.Event) error {
	now := nowUTC()
	_, err := r.q.db.Exec(ctx,
		`INSERT INTO ledger_outbox (id, event_type, aggregate_id, payload, status, attempts, available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, 'pending', 0, $5, $6, $5)`,
		e.ID, string(e.Type), e.AggregateID, string(e.Payload), now, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	return nil
}

// Claim skips rows locked by another relay so several workers can drain
// the outbox concurrently.
func (r outboxRepo) Claim(ctx context.Context, limit int, now time.Time) ([]repository.OutboxMessage, error) {
	rows, err := r.q.db.Query(ctx,
		`WITH batch AS (
			SELECT id FROM ledger_outbox
			WHERE status = 'pending' AND available_at <= $1
			ORDER BY id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE ledger_outbox o SET status = 'processing', updated_at = $1
			FROM batch WHERE o.id = batch.id
			RETURNING o.id, o.event_type, o.aggregate_id, o.payload, o.status, o.attempts,
				o.last_error, o.available_at, o.created_at, o.updated_at
		)
		SELECT `+outboxColumns+` FROM claimed ORDER BY id ASC`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var msgs []repository.OutboxMessage
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r outboxRepo) MarkCompleted(ctx context.Context, id string) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE ledger_outbox SET status = 'completed', updated_at = $1 WHERE id = $2`,
		nowUTC(), id))
	if err != nil {
		return fmt.Errorf("mark outbox %s completed: %w", id, err)
	}
	return nil
}

func (r outboxRepo) MarkFailed(ctx context.Context, id, reason string) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE ledger_outbox SET status = 'failed', attempts = attempts + 1, last_error = $1, updated_at = $2 WHERE id = $3`,
		reason, nowUTC(), id))
	if err != nil {
		return fmt.Errorf("mark outbox %s failed: %w", id, err)
	}
	return nil
}

func (r outboxRepo) Retry(ctx context.Context, id, reason string, availableAt time.Time) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE ledger_outbox
		SET status = 'pending', attempts = attempts + 1, last_error = $1, available_at = $2, updated_at = $3
		WHERE id = $4`,
		reason, availableAt, nowUTC(), id))
	if err != nil {
		return fmt.Errorf("retry outbox %s: %w", id, err)
	}
	return nil
}

func (r outboxRepo) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "reset stale outbox messages",
		`UPDATE ledger_outbox SET status = 'pending' WHERE status = 'processing' AND updated_at < $1`,
		cutoff)
}

func (r outboxRepo) CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "cleanup outbox",
		`DELETE FROM ledger_outbox WHERE status = 'completed' AND updated_at < $1`,
		cutoff)
}

func (r outboxRepo) RetryFailed(ctx context.Context) (int64, error) {
	return r.exec(ctx, "retry failed outbox messages",
		`UPDATE ledger_outbox SET status = 'pending', attempts = 0, available_at = $1, updated_at = $1 WHERE status = 'failed'`,
		nowUTC())
}

func (r outboxRepo) exec(ctx context.Context, what, query string, args ...any) (int64, error) {
	tag, err := r.q.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return tag.RowsAffected(), nil
}

func (r outboxRepo) Stats(ctx context.Context) (repository.OutboxStats, error) {
	var st repository.OutboxStats
	err := r.q.db.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM ledger_outbox`).Scan(&st.Pending, &st.Processing, &st.Completed, &st.Failed)
	if err != nil {
		return st, fmt.Errorf("outbox stats: %w", err)
	}
	return st, nil
}
