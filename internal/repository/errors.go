package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrActiveRootExists is returned when the pair is already actively rooted.
	ErrActiveRootExists = errors.New("persons are already rooted")
)

// Constraint names from the schema that the store maps back to domain errors.
const (
	constraintPendingTransfer = "tree_transfers_one_pending_per_person"
	constraintActiveRoot      = "person_roots_one_active_pair"
)

// PendingTransferError reports the transfer already blocking a new one.
type PendingTransferError struct {
	Existing *TreeTransfer
}

func (e *PendingTransferError) Error() string {
	if e.Existing == nil {
		return "a pending transfer already exists"
	}
	return fmt.Sprintf("transfer %s is already pending until %s", e.Existing.ID, e.Existing.ExpiresAt.Format(time.RFC3339))
}

// TransferResolvedError is returned when accept finds the row no longer pending.
type TransferResolvedError struct {
	Status string
}

func (e *TransferResolvedError) Error() string {
	return "transfer already resolved: " + e.Status
}

// TransferExpiredError is returned when accept finds the row past expiry.
type TransferExpiredError struct {
	ExpiresAt time.Time
}

func (e *TransferExpiredError) Error() string {
	return "transfer expired at " + e.ExpiresAt.Format(time.RFC3339)
}

// CapacityReachedError is returned by the memory insert when the counter is
// already at the person's limit.
type CapacityReachedError struct {
	Count int
	Limit int
}

func (e *CapacityReachedError) Error() string {
	return fmt.Sprintf("memory limit reached: %d/%d", e.Count, e.Limit)
}

// GroveFullError is returned when a grove has no room for another tree.
type GroveFullError struct {
	Count int
	Limit int
}

func (e *GroveFullError) Error() string {
	return fmt.Sprintf("grove is full: %d/%d trees", e.Count, e.Limit)
}

// uniqueViolation reports the violated constraint name, if err is a 23505.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}
