package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgBranchRepository struct {
	pool *pgxpool.Pool
}

func NewBranchRepository(pool *pgxpool.Pool) BranchRepository {
	return &pgBranchRepository{pool: pool}
}

func scanBranch(row pgx.Row) (*Branch, error) {
	b := &Branch{}
	err := row.Scan(&b.ID, &b.PersonID, &b.OwnerID, &b.Name, &b.CreatedAt)
	return b, err
}

func (r *pgBranchRepository) FindByID(ctx context.Context, id string) (*Branch, error) {
	b, err := scanBranch(r.pool.QueryRow(ctx,
		`SELECT id, person_id, owner_id, name, created_at FROM branches WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *pgBranchRepository) FindByPerson(ctx context.Context, personID string) ([]*Branch, error) {
	return r.FindByPersons(ctx, []string{personID})
}

func (r *pgBranchRepository) FindByPersons(ctx context.Context, personIDs []string) ([]*Branch, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_id, owner_id, name, created_at
		FROM branches WHERE person_id = ANY($1::uuid[])
		ORDER BY created_at ASC
	`, personIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []*Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (r *pgBranchRepository) UpsertMember(ctx context.Context, member *BranchMember) error {
	return upsertBranchMember(ctx, r.pool, member)
}

func (r *pgBranchRepository) FindMember(ctx context.Context, branchID, accountID string) (*BranchMember, error) {
	m := &BranchMember{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, branch_id, account_id, role, created_at
		FROM branch_members WHERE branch_id = $1 AND account_id = $2
	`, branchID, accountID).Scan(&m.ID, &m.BranchID, &m.AccountID, &m.Role, &m.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *pgBranchRepository) ListMembers(ctx context.Context, branchID string) ([]*BranchMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, branch_id, account_id, role, created_at
		FROM branch_members WHERE branch_id = $1 ORDER BY created_at ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*BranchMember
	for rows.Next() {
		m := &BranchMember{}
		if err := rows.Scan(&m.ID, &m.BranchID, &m.AccountID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

type pgHeirRepository struct {
	pool *pgxpool.Pool
}

func NewHeirRepository(pool *pgxpool.Pool) HeirRepository {
	return &pgHeirRepository{pool: pool}
}

func (r *pgHeirRepository) Create(ctx context.Context, heir *Heir) error {
	ensureID(&heir.ID)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO heirs (id, branch_id, email, release_condition, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, heir.ID, heir.BranchID, heir.Email, heir.ReleaseCondition, heir.CreatedBy, heir.CreatedAt)
	return err
}

func (r *pgHeirRepository) FindByBranch(ctx context.Context, branchID string) ([]*Heir, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, branch_id, email, release_condition, created_by, created_at
		FROM heirs WHERE branch_id = $1 ORDER BY created_at ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heirs []*Heir
	for rows.Next() {
		h := &Heir{}
		if err := rows.Scan(&h.ID, &h.BranchID, &h.Email, &h.ReleaseCondition, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		heirs = append(heirs, h)
	}
	return heirs, rows.Err()
}
