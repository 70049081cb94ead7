package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const groveColumns = `id, name, owner_id, plan_type, tree_limit, monthly_price, status, created_at, updated_at`

type pgGroveRepository struct {
	pool *pgxpool.Pool
}

func NewGroveRepository(pool *pgxpool.Pool) GroveRepository {
	return &pgGroveRepository{pool: pool}
}

func scanGrove(row pgx.Row) (*Grove, error) {
	g := &Grove{}
	err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.PlanType, &g.TreeLimit, &g.MonthlyPrice,
		&g.Status, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (r *pgGroveRepository) Create(ctx context.Context, grove *Grove) error {
	return insertGrove(ctx, r.pool, grove)
}

func (r *pgGroveRepository) FindByID(ctx context.Context, id string) (*Grove, error) {
	g, err := scanGrove(r.pool.QueryRow(ctx, `SELECT `+groveColumns+` FROM groves WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *pgGroveRepository) FindByOwner(ctx context.Context, ownerID string) ([]*Grove, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+groveColumns+` FROM groves WHERE owner_id = $1 ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groves []*Grove
	for rows.Next() {
		g, err := scanGrove(rows)
		if err != nil {
			return nil, err
		}
		groves = append(groves, g)
	}
	return groves, rows.Err()
}

func (r *pgGroveRepository) CountTrees(ctx context.Context, groveID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM grove_tree_memberships WHERE grove_id = $1`, groveID,
	).Scan(&count)
	return count, err
}

func (r *pgGroveRepository) SetStatus(ctx context.Context, groveID, status string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE groves SET status = $2, updated_at = $3 WHERE id = $1`, groveID, status, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgGroveRepository) Freeze(ctx context.Context, groveID, status string, now time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE groves SET status = $2, updated_at = $3 WHERE id = $1`, groveID, status, now)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE grove_tree_memberships
		SET status = 'frozen', updated_at = $2
		WHERE grove_id = $1
		  AND is_original = TRUE
		  AND status = 'active'
		  AND subscription_id IS NULL
	`, groveID, now)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgGroveRepository) Unfreeze(ctx context.Context, groveID string, now time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE groves SET status = 'active', updated_at = $2 WHERE id = $1`, groveID, now)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE grove_tree_memberships
		SET status = 'active', updated_at = $2
		WHERE grove_id = $1 AND status = 'frozen'
	`, groveID, now)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
