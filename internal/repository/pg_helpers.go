package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the insert
// helpers can run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// isNoRows also treats a malformed id (22P02) as a miss.
func isNoRows(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// lockGroveCapacity locks the grove row and fails with *GroveFullError when
// it already holds treeLimit trees.
func lockGroveCapacity(ctx context.Context, q querier, groveID string) error {
	var limit int
	err := q.QueryRow(ctx, `SELECT tree_limit FROM groves WHERE id = $1 FOR UPDATE`, groveID).Scan(&limit)
	if isNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var count int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM grove_tree_memberships WHERE grove_id = $1`, groveID,
	).Scan(&count); err != nil {
		return err
	}
	if count >= limit {
		return &GroveFullError{Count: count, Limit: limit}
	}
	return nil
}

func insertPerson(ctx context.Context, q querier, p *Person) error {
	ensureID(&p.ID)
	trusteeID, trusteeEmail, trusteeName := caretakerColumns(p.Trustee)
	_, err := q.Exec(ctx, `
		INSERT INTO persons (id, name, name_normalized, birth_date, death_date, is_legacy, owner_id, moderator_id,
			trustee_id, trustee_email, trustee_name, trustee_expires_at, discovery_enabled, memory_limit,
			memory_count, possible_duplicate_of, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`,
		p.ID, p.Name, p.NameNormalized, p.BirthDate, p.DeathDate, p.IsLegacy, p.OwnerID, p.ModeratorID,
		trusteeID, trusteeEmail, trusteeName, p.TrusteeExpiresAt, p.DiscoveryEnabled, p.MemoryLimit,
		p.MemoryCount, p.PossibleDuplicateOf, p.CreatedAt,
	)
	p.UpdatedAt = p.CreatedAt
	return err
}

func insertBranch(ctx context.Context, q querier, b *Branch) error {
	ensureID(&b.ID)
	_, err := q.Exec(ctx, `
		INSERT INTO branches (id, person_id, owner_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.PersonID, b.OwnerID, b.Name, b.CreatedAt)
	return err
}

func insertMembership(ctx context.Context, q querier, m *GroveTreeMembership) error {
	ensureID(&m.ID)
	_, err := q.Exec(ctx, `
		INSERT INTO grove_tree_memberships (id, person_id, grove_id, is_original, status, subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, m.ID, m.PersonID, m.GroveID, m.IsOriginal, m.Status, m.SubscriptionID, m.CreatedAt)
	m.UpdatedAt = m.CreatedAt
	return err
}

func insertGrove(ctx context.Context, q querier, g *Grove) error {
	ensureID(&g.ID)
	_, err := q.Exec(ctx, `
		INSERT INTO groves (id, name, owner_id, plan_type, tree_limit, monthly_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, g.ID, g.Name, g.OwnerID, g.PlanType, g.TreeLimit, g.MonthlyPrice, g.Status, g.CreatedAt)
	g.UpdatedAt = g.CreatedAt
	return err
}

func insertSubscription(ctx context.Context, q querier, s *TreeSubscription) error {
	ensureID(&s.ID)
	_, err := q.Exec(ctx, `
		INSERT INTO tree_subscriptions (id, account_id, person_id, plan_type, monthly_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.AccountID, s.PersonID, s.PlanType, s.MonthlyPrice, s.Status, s.CreatedAt)
	return err
}

func upsertBranchMember(ctx context.Context, q querier, m *BranchMember) error {
	ensureID(&m.ID)
	return q.QueryRow(ctx, `
		INSERT INTO branch_members (id, branch_id, account_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (branch_id, account_id) DO UPDATE SET branch_id = EXCLUDED.branch_id
		RETURNING id, role, created_at
	`, m.ID, m.BranchID, m.AccountID, m.Role, m.CreatedAt).Scan(&m.ID, &m.Role, &m.CreatedAt)
}

func caretakerColumns(c Caretaker) (id, email, name *string) {
	switch v := c.(type) {
	case AccountCaretaker:
		return stringPtr(v.AccountID), nil, nil
	case ContactCaretaker:
		return nil, stringPtr(v.Email), stringPtr(v.Name)
	}
	return nil, nil, nil
}

func caretakerFromColumns(id, email, name *string) Caretaker {
	switch {
	case id != nil:
		return AccountCaretaker{AccountID: *id}
	case email != nil:
		c := ContactCaretaker{Email: *email}
		if name != nil {
			c.Name = *name
		}
		return c
	}
	return nil
}

func contributorColumns(c Contributor) (id, email, name *string) {
	switch v := c.(type) {
	case AccountContributor:
		return stringPtr(v.AccountID), nil, nil
	case AnonymousContributor:
		return nil, stringPtr(v.Email), stringPtr(v.Name)
	}
	return nil, nil, nil
}

func contributorFromColumns(id, email, name *string) Contributor {
	if id != nil {
		return AccountContributor{AccountID: *id}
	}
	c := AnonymousContributor{}
	if email != nil {
		c.Email = *email
	}
	if name != nil {
		c.Name = *name
	}
	return c
}
