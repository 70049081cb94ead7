package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const membershipColumns = `id, person_id, grove_id, is_original, status, subscription_id, created_at, updated_at`

type pgMembershipRepository struct {
	pool *pgxpool.Pool
}

func NewMembershipRepository(pool *pgxpool.Pool) MembershipRepository {
	return &pgMembershipRepository{pool: pool}
}

func scanMembership(row pgx.Row) (*GroveTreeMembership, error) {
	m := &GroveTreeMembership{}
	err := row.Scan(&m.ID, &m.PersonID, &m.GroveID, &m.IsOriginal, &m.Status, &m.SubscriptionID,
		&m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *pgMembershipRepository) findOne(ctx context.Context, where string, arg any) (*GroveTreeMembership, error) {
	m, err := scanMembership(r.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM grove_tree_memberships WHERE `+where+` LIMIT 1`, arg))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *pgMembershipRepository) findMany(ctx context.Context, where string, arg any) ([]*GroveTreeMembership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM grove_tree_memberships WHERE `+where+` ORDER BY created_at DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*GroveTreeMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *pgMembershipRepository) FindByID(ctx context.Context, id string) (*GroveTreeMembership, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *pgMembershipRepository) FindByPerson(ctx context.Context, personID string) ([]*GroveTreeMembership, error) {
	return r.findMany(ctx, "person_id = $1", personID)
}

func (r *pgMembershipRepository) FindByGrove(ctx context.Context, groveID string) ([]*GroveTreeMembership, error) {
	return r.findMany(ctx, "grove_id = $1", groveID)
}

func (r *pgMembershipRepository) FindBySubscription(ctx context.Context, subscriptionID string) (*GroveTreeMembership, error) {
	return r.findOne(ctx, "subscription_id = $1", subscriptionID)
}

func (r *pgMembershipRepository) SetStatus(ctx context.Context, membershipID, status string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE grove_tree_memberships SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> $2
	`, membershipID, status, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	existing, err := r.FindByID(ctx, membershipID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, ErrNotFound
	}
	return false, nil
}

type pgSubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &pgSubscriptionRepository{pool: pool}
}

func (r *pgSubscriptionRepository) FindByID(ctx context.Context, id string) (*TreeSubscription, error) {
	s := &TreeSubscription{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, person_id, plan_type, monthly_price, status, created_at
		FROM tree_subscriptions WHERE id = $1
	`, id).Scan(&s.ID, &s.AccountID, &s.PersonID, &s.PlanType, &s.MonthlyPrice, &s.Status, &s.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *pgSubscriptionRepository) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tree_subscriptions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
