package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transferColumns = `
	id, person_id, sender_user_id, sender_email, recipient_email, message, token, status, expires_at,
	accepted_at, accepted_by, destination_grove_id, created_at`

type pgTransferRepository struct {
	pool *pgxpool.Pool
}

func NewTransferRepository(pool *pgxpool.Pool) TransferRepository {
	return &pgTransferRepository{pool: pool}
}

func scanTransfer(row pgx.Row) (*TreeTransfer, error) {
	t := &TreeTransfer{}
	err := row.Scan(&t.ID, &t.PersonID, &t.SenderUserID, &t.SenderEmail, &t.RecipientEmail, &t.Message, &t.Token,
		&t.Status, &t.ExpiresAt, &t.AcceptedAt, &t.AcceptedBy, &t.DestinationGroveID, &t.CreatedAt)
	return t, err
}

func (r *pgTransferRepository) Create(ctx context.Context, transfer *TreeTransfer, now time.Time) error {
	ensureID(&transfer.ID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// A stale pending row must not block a fresh invitation.
	if _, err := tx.Exec(ctx, `
		UPDATE tree_transfers SET status = 'expired'
		WHERE person_id = $1 AND status = 'pending' AND expires_at <= $2
	`, transfer.PersonID, now); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tree_transfers (id, person_id, sender_user_id, sender_email, recipient_email, message, token, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, transfer.ID, transfer.PersonID, transfer.SenderUserID, transfer.SenderEmail, transfer.RecipientEmail, transfer.Message,
		transfer.Token, transfer.Status, transfer.ExpiresAt, transfer.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintPendingTransfer {
		tx.Rollback(ctx)
		existing, findErr := r.findPending(ctx, transfer.PersonID)
		if findErr != nil {
			return findErr
		}
		return &PendingTransferError{Existing: existing}
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgTransferRepository) findPending(ctx context.Context, personID string) (*TreeTransfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM tree_transfers WHERE person_id = $1 AND status = 'pending'`, personID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *pgTransferRepository) FindByID(ctx context.Context, id string) (*TreeTransfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM tree_transfers WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *pgTransferRepository) FindByToken(ctx context.Context, token string) (*TreeTransfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM tree_transfers WHERE token = $1`, token))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *pgTransferRepository) FindByPerson(ctx context.Context, personID string) ([]*TreeTransfer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transferColumns+` FROM tree_transfers WHERE person_id = $1 ORDER BY created_at DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*TreeTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *pgTransferRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tree_transfers WHERE id = $1`, id)
	return err
}

func (r *pgTransferRepository) Accept(ctx context.Context, a *TransferAcceptance) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Concurrent acceptances queue on this row lock; the loser sees accepted.
	t, err := scanTransfer(tx.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM tree_transfers WHERE id = $1 FOR UPDATE`, a.TransferID))
	if isNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if t.Status != TransferPending {
		return &TransferResolvedError{Status: t.Status}
	}
	if !a.AcceptedAt.Before(t.ExpiresAt) {
		if _, err := tx.Exec(ctx, `UPDATE tree_transfers SET status = 'expired' WHERE id = $1`, t.ID); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return &TransferExpiredError{ExpiresAt: t.ExpiresAt}
	}

	m := a.Membership
	switch {
	case a.NewGrove != nil:
		if err := insertGrove(ctx, tx, a.NewGrove); err != nil {
			return err
		}
		m.GroveID = &a.NewGrove.ID
	case m.GroveID != nil:
		if err := lockGroveCapacity(ctx, tx, *m.GroveID); err != nil {
			return err
		}
	}
	if a.Subscription != nil {
		if err := insertSubscription(ctx, tx, a.Subscription); err != nil {
			return err
		}
		m.SubscriptionID = &a.Subscription.ID
	}

	m.PersonID = t.PersonID
	if err := insertMembership(ctx, tx, m); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE persons
		SET owner_id = $2, moderator_id = $2,
		    trustee_id = NULL, trustee_email = NULL, trustee_name = NULL, trustee_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1
	`, t.PersonID, a.AcceptedBy, a.AcceptedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE branches SET owner_id = $2 WHERE person_id = $1`, t.PersonID, a.AcceptedBy); err != nil {
		return err
	}

	if a.SenderMember != nil {
		if err := upsertBranchMember(ctx, tx, a.SenderMember); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tree_transfers
		SET status = 'accepted', accepted_at = $2, accepted_by = $3, destination_grove_id = $4
		WHERE id = $1
	`, t.ID, a.AcceptedAt, a.AcceptedBy, m.GroveID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgTransferRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tree_transfers SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
