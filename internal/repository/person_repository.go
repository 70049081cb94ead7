package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const personColumns = `
	id, name, name_normalized, birth_date, death_date, is_legacy, owner_id, moderator_id,
	trustee_id, trustee_email, trustee_name, trustee_expires_at, discovery_enabled,
	memory_limit, memory_count, possible_duplicate_of, created_at, updated_at`

type pgPersonRepository struct {
	pool *pgxpool.Pool
}

func NewPersonRepository(pool *pgxpool.Pool) PersonRepository {
	return &pgPersonRepository{pool: pool}
}

func scanPerson(row pgx.Row) (*Person, error) {
	p := &Person{}
	var trusteeID, trusteeEmail, trusteeName *string
	err := row.Scan(
		&p.ID, &p.Name, &p.NameNormalized, &p.BirthDate, &p.DeathDate, &p.IsLegacy, &p.OwnerID, &p.ModeratorID,
		&trusteeID, &trusteeEmail, &trusteeName, &p.TrusteeExpiresAt, &p.DiscoveryEnabled,
		&p.MemoryLimit, &p.MemoryCount, &p.PossibleDuplicateOf, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Trustee = caretakerFromColumns(trusteeID, trusteeEmail, trusteeName)
	return p, nil
}

func (r *pgPersonRepository) Plant(ctx context.Context, planting *Planting) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m := planting.Membership
	if planting.EnforceTreeLimit && m.GroveID != nil {
		if err := lockGroveCapacity(ctx, tx, *m.GroveID); err != nil {
			return err
		}
	}

	if err := insertPerson(ctx, tx, planting.Person); err != nil {
		return err
	}
	planting.Branch.PersonID = &planting.Person.ID
	if err := insertBranch(ctx, tx, planting.Branch); err != nil {
		return err
	}
	m.PersonID = planting.Person.ID
	if err := insertMembership(ctx, tx, m); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgPersonRepository) FindByID(ctx context.Context, id string) (*Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1`
	p, err := scanPerson(r.pool.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgPersonRepository) FindLegacyByNormalizedName(ctx context.Context, normalized string) ([]*Person, error) {
	query := `SELECT ` + personColumns + `
		FROM persons WHERE is_legacy AND name_normalized = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (r *pgPersonRepository) ExpireTrustee(ctx context.Context, personID string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE persons
		SET trustee_id = NULL, trustee_email = NULL, trustee_name = NULL, updated_at = $2
		WHERE id = $1
		  AND trustee_expires_at < $2
		  AND (trustee_id IS NOT NULL OR trustee_email IS NOT NULL)
	`, personID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgPersonRepository) Adopt(ctx context.Context, adoption *Adoption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	m := adoption.Membership
	if m.GroveID != nil {
		if err := lockGroveCapacity(ctx, tx, *m.GroveID); err != nil {
			return err
		}
	}
	if err := insertMembership(ctx, tx, m); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE persons SET memory_limit = NULL, updated_at = $2 WHERE id = $1`,
		m.PersonID, m.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}
