package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"carteira/internal/core"
)

const categoryColumns = `id, name, type, color, icon, created_at`

type categoryRepo struct{ q *Queries }

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	if err := row.Scan(&c.ID, &c.Name, &typ, &c.Color, &c.Icon, &c.CreatedAt); err != nil {
		return c, err
	}
	c.Type = core.TransactionType(typ)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (r categoryRepo) Create(ctx context.Context, c core.Category) error {
	_, err := r.q.db.Exec(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, string(c.Type), c.Color, c.Icon, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r categoryRepo) Update(ctx context.Context, c core.Category) error {
	err := affected(r.q.db.Exec(ctx,
		`UPDATE categories SET name = $1, color = $2, icon = $3 WHERE id = $4`,
		c.Name, c.Color, c.Icon, c.ID))
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

func (r categoryRepo) Delete(ctx context.Context, id string) error {
	if err := affected(r.q.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

func (r categoryRepo) FindByID(ctx context.Context, id string) (*core.Category, error) {
	c, err := scanCategory(r.q.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
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
	return r.list(ctx, `SELECT `+categoryColumns+` FROM categories WHERE type = $1 ORDER BY name ASC, id ASC`, string(t))
}

func (r categoryRepo) list(ctx context.Context, query string, args ...any) ([]core.Category, error) {
	rows, err := r.q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
