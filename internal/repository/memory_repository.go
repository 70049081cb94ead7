package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memoryColumns = `id, branch_id, person_id, author_id, author_email, author_name, title, body, visibility, approved, created_at`

type pgMemoryRepository struct {
	pool *pgxpool.Pool
}

func NewMemoryRepository(pool *pgxpool.Pool) MemoryRepository {
	return &pgMemoryRepository{pool: pool}
}

func scanMemory(row pgx.Row) (*Memory, error) {
	m := &Memory{}
	var authorID, authorEmail, authorName *string
	err := row.Scan(&m.ID, &m.BranchID, &m.PersonID, &authorID, &authorEmail, &authorName,
		&m.Title, &m.Body, &m.Visibility, &m.Approved, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Author = contributorFromColumns(authorID, authorEmail, authorName)
	return m, nil
}

func (r *pgMemoryRepository) Create(ctx context.Context, memory *Memory) (int, error) {
	ensureID(&memory.ID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var limit *int
	var count int
	err = tx.QueryRow(ctx,
		`SELECT memory_limit, memory_count FROM persons WHERE id = $1 FOR UPDATE`, memory.PersonID,
	).Scan(&limit, &count)
	if isNoRows(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if limit != nil && count >= *limit {
		return 0, &CapacityReachedError{Count: count, Limit: *limit}
	}

	authorID, authorEmail, authorName := contributorColumns(memory.Author)
	if _, err := tx.Exec(ctx, `
		INSERT INTO memories (id, branch_id, person_id, author_id, author_email, author_name, title, body, visibility, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, memory.ID, memory.BranchID, memory.PersonID, authorID, authorEmail, authorName,
		memory.Title, memory.Body, memory.Visibility, memory.Approved, memory.CreatedAt); err != nil {
		return 0, err
	}

	if err := tx.QueryRow(ctx,
		`UPDATE persons SET memory_count = memory_count + 1 WHERE id = $1 RETURNING memory_count`, memory.PersonID,
	).Scan(&count); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *pgMemoryRepository) FindByID(ctx context.Context, id string) (*Memory, error) {
	m, err := scanMemory(r.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *pgMemoryRepository) Approve(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE memories SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgMemoryRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var personID string
	err = tx.QueryRow(ctx, `DELETE FROM memories WHERE id = $1 RETURNING person_id`, id).Scan(&personID)
	if isNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE persons SET memory_count = GREATEST(memory_count - 1, 0) WHERE id = $1`, personID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgMemoryRepository) FindByBranches(ctx context.Context, branchIDs []string, includePending bool) ([]*Memory, error) {
	if len(branchIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE branch_id = ANY($1::uuid[]) AND (approved OR $2)
		ORDER BY created_at ASC
	`, branchIDs, includePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
