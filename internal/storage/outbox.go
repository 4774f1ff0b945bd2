package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"carteira/internal/events"
	"carteira/internal/repository"
)

const outboxColumns = `id, event_type, aggregate_id, payload, status, attempts, last_error, available_at, created_at, updated_at`

type outboxRepo struct{ q *Queries }

func scanOutbox(row scanner) (repository.OutboxMessage, error) {
	var (
		m                                 repository.OutboxMessage
		eventType, payload                string
		attempts                          int64
		lastError                         sql.NullString
		availableAt, createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &eventType, &m.AggregateID, &payload, &m.Status, &attempts, &lastError, &availableAt, &createdAt, &updatedAt); err != nil {
		return m, err
	}
	m.EventType = events.Type(eventType)
	m.Payload = []byte(payload)
	m.Attempts = int(attempts)
	m.LastError = lastError.String
	var err error
	if m.AvailableAt, err = parseTime(availableAt); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return m, err
	}
	return m, nil
}

func (r outboxRepo) Enqueue(ctx context.Context, e events.Event) error {
	now := formatTime(nowUTC())
	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO ledger_outbox (id, event_type, aggregate_id, payload, status, attempts, available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?)`,
		e.ID, string(e.Type), e.AggregateID, string(e.Payload), now, formatTime(e.OccurredAt), now)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	return nil
}

func (r outboxRepo) Claim(ctx context.Context, limit int, now time.Time) ([]repository.OutboxMessage, error) {
	rows, err := r.q.db.QueryContext(ctx,
		`UPDATE ledger_outbox SET status = 'processing', updated_at = ?
		WHERE id IN (
			SELECT id FROM ledger_outbox
			WHERE status = 'pending' AND available_at <= ?
			ORDER BY id ASC
			LIMIT ?
		)
		RETURNING `+outboxColumns,
		formatTime(now), formatTime(now), limit)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (r outboxRepo) MarkCompleted(ctx context.Context, id string) error {
	err := affected(r.q.db.ExecContext(ctx,
		`UPDATE ledger_outbox SET status = 'completed', updated_at = ? WHERE id = ?`,
		formatTime(nowUTC()), id))
	if err != nil {
		return fmt.Errorf("mark outbox %s completed: %w", id, err)
	}
	return nil
}

func (r outboxRepo) MarkFailed(ctx context.Context, id, reason string) error {
	err := affected(r.q.db.ExecContext(ctx,
		`UPDATE ledger_outbox SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		reason, formatTime(nowUTC()), id))
	if err != nil {
		return fmt.Errorf("mark outbox %s failed: %w", id, err)
	}
	return nil
}

func (r outboxRepo) Retry(ctx context.Context, id, reason string, availableAt time.Time) error {
	err := affected(r.q.db.ExecContext(ctx,
		`UPDATE ledger_outbox
		SET status = 'pending', attempts = attempts + 1, last_error = ?, available_at = ?, updated_at = ?
		WHERE id = ?`,
		reason, formatTime(availableAt), formatTime(nowUTC()), id))
	if err != nil {
		return fmt.Errorf("retry outbox %s: %w", id, err)
	}
	return nil
}

func (r outboxRepo) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "reset stale outbox messages",
		`UPDATE ledger_outbox SET status = 'pending' WHERE status = 'processing' AND updated_at < ?`,
		formatTime(cutoff))
}

func (r outboxRepo) CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.exec(ctx, "cleanup outbox",
		`DELETE FROM ledger_outbox WHERE status = 'completed' AND updated_at < ?`,
		formatTime(cutoff))
}

func (r outboxRepo) RetryFailed(ctx context.Context) (int64, error) {
	now := formatTime(nowUTC())
	return r.exec(ctx, "retry failed outbox messages",
		`UPDATE ledger_outbox SET status = 'pending', attempts = 0, available_at = ?, updated_at = ? WHERE status = 'failed'`,
		now, now)
}

func (r outboxRepo) exec(ctx context.Context, what, query string, args ...interface{}) (int64, error) {
	res, err := r.q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return res.RowsAffected()
}

func (r outboxRepo) Stats(ctx context.Context) (repository.OutboxStats, error) {
	var st repository.OutboxStats
	err := r.q.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM ledger_outbox`).Scan(&st.Pending, &st.Processing, &st.Completed, &st.Failed)
	if err != nil {
		return st, fmt.Errorf("outbox stats: %w", err)
	}
	return st, nil
}
