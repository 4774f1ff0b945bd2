package storage

import (
	"context"
	"database/sql"
	"fmt"

	"carteira/internal/core"
)

const categoryColumns = `id, name, type, color, icon, created_at`

type categoryRepo struct{ q *Queries }

func scanCategory(row scanner) (core.Category, error) {
	var (
		c           core.Category
		typ         string
		color, icon sql.NullString
		createdAt   string
	)
	if err := row.Scan(&c.ID, &c.Name, &typ, &color, &icon, &createdAt); err != nil {
		return c, err
	}
	c.Type = core.TransactionType(typ)
	c.Color = optString(color)
	c.Icon = optString(icon)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, fmt.Errorf("parse created_at: %w", err)
	}
	return c, nil
}

func (r categoryRepo) Create(ctx context.Context, c core.Category) error {
	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Type), nullString(c.Color), nullString(c.Icon), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// Update never writes type.
func (r categoryRepo) Update(ctx context.Context, c core.Category) error {
	err := affected(r.q.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, icon = ? WHERE id = ?`,
		c.Name, nullString(c.Color), nullString(c.Icon), c.ID))
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

func (r categoryRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

func (r categoryRepo) FindByID(ctx context.Context, id string) (*core.Category, error) {
	c, err := scanCategory(r.q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

func (r categoryRepo) FindAll(ctx context.Context) ([]core.Category, error) {
	return r.list(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name ASC, id ASC`)
}

func (r categoryRepo) FindByType(ctx context.Context, t core.TransactionType) ([]core.Category, error) {
	return r.list(ctx, `SELECT `+categoryColumns+` FROM categories WHERE type = ? ORDER BY name ASC, id ASC`, string(t))
}

func (r categoryRepo) list(ctx context.Context, query string, args ...interface{}) ([]core.Category, error) {
	rows, err := r.q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
