package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rootColumns = `id, person_id_1, person_id_2, status, created_by, created_at, dissolved_at`

type pgRootRepository struct {
	pool *pgxpool.Pool
}

func NewRootRepository(pool *pgxpool.Pool) RootRepository {
	return &pgRootRepository{pool: pool}
}

func scanRoot(row pgx.Row) (*PersonRoot, error) {
	root := &PersonRoot{}
	err := row.Scan(&root.ID, &root.PersonID1, &root.PersonID2, &root.Status, &root.CreatedBy,
		&root.CreatedAt, &root.DissolvedAt)
	return root, err
}

func (r *pgRootRepository) Create(ctx context.Context, root *PersonRoot) error {
	ensureID(&root.ID)
	root.PersonID1, root.PersonID2 = OrderedPair(root.PersonID1, root.PersonID2)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO person_roots (id, person_id_1, person_id_2, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, root.ID, root.PersonID1, root.PersonID2, root.Status, root.CreatedBy, root.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintActiveRoot {
		return ErrActiveRootExists
	}
	return err
}

func (r *pgRootRepository) FindByID(ctx context.Context, id string) (*PersonRoot, error) {
	root, err := scanRoot(r.pool.QueryRow(ctx, `SELECT `+rootColumns+` FROM person_roots WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (r *pgRootRepository) Dissolve(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE person_roots SET status = 'dissolved', dissolved_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgRootRepository) FindActiveByPersons(ctx context.Context, personIDs []string) ([]*PersonRoot, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+rootColumns+` FROM person_roots
		WHERE status = 'active'
		  AND (person_id_1 = ANY($1::uuid[]) OR person_id_2 = ANY($1::uuid[]))
		ORDER BY created_at ASC
	`, personIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roots []*PersonRoot
	for rows.Next() {
		root, err := scanRoot(rows)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}
