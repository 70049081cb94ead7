package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

type PersonRepository interface {
	// Plant creates the Person, its Branch and its original Membership together.
	Plant(ctx context.Context, planting *Planting) error
	FindByID(ctx context.Context, id string) (*Person, error)
	FindLegacyByNormalizedName(ctx context.Context, normalized string) ([]*Person, error)
	// ExpireTrustee clears the trustee designation when trusteeExpiresAt is
	// before now. It reports whether a row changed.
	ExpireTrustee(ctx context.Context, personID string, now time.Time) (bool, error)
	// Adopt attaches the Person to a grove and lifts its memory limit.
	Adopt(ctx context.Context, adoption *Adoption) error
}

type BranchRepository interface {
	FindByID(ctx context.Context, id string) (*Branch, error)
	FindByPerson(ctx context.Context, personID string) ([]*Branch, error)
	FindByPersons(ctx context.Context, personIDs []string) ([]*Branch, error)
	UpsertMember(ctx context.Context, member *BranchMember) error
	FindMember(ctx context.Context, branchID, accountID string) (*BranchMember, error)
	ListMembers(ctx context.Context, branchID string) ([]*BranchMember, error)
}

type GroveRepository interface {
	Create(ctx context.Context, grove *Grove) error
	FindByID(ctx context.Context, id string) (*Grove, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*Grove, error)
	CountTrees(ctx context.Context, groveID string) (int, error)
	// SetStatus changes only the grove row.
	SetStatus(ctx context.Context, groveID, status string, now time.Time) error
	// Freeze sets the grove status and freezes its dependent active
	// memberships in one unit. It returns how many memberships changed.
	Freeze(ctx context.Context, groveID, status string, now time.Time) (int, error)
	// Unfreeze activates the grove and every frozen membership under it.
	Unfreeze(ctx context.Context, groveID string, now time.Time) (int, error)
}

type MembershipRepository interface {
	FindByID(ctx context.Context, id string) (*GroveTreeMembership, error)
	// FindByPerson returns memberships newest first.
	FindByPerson(ctx context.Context, personID string) ([]*GroveTreeMembership, error)
	FindByGrove(ctx context.Context, groveID string) ([]*GroveTreeMembership, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (*GroveTreeMembership, error)
	// SetStatus reports whether the status actually changed.
	SetStatus(ctx context.Context, membershipID, status string, now time.Time) (bool, error)
}

type SubscriptionRepository interface {
	FindByID(ctx context.Context, id string) (*TreeSubscription, error)
	SetStatus(ctx context.Context, id, status string) error
}

type TransferRepository interface {
	// Create expires stale pending rows for the Person and inserts the new
	// transfer. A live pending row yields *PendingTransferError.
	Create(ctx context.Context, transfer *TreeTransfer, now time.Time) error
	FindByID(ctx context.Context, id string) (*TreeTransfer, error)
	FindByToken(ctx context.Context, token string) (*TreeTransfer, error)
	FindByPerson(ctx context.Context, personID string) ([]*TreeTransfer, error)
	Delete(ctx context.Context, id string) error
	// Accept serializes on the transfer row and applies the ownership change.
	Accept(ctx context.Context, acceptance *TransferAcceptance) error
	// ExpireStale rewrites pending rows past expiry. It returns the count.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type RootRepository interface {
	// Create yields ErrActiveRootExists for a pair that is already active.
	Create(ctx context.Context, root *PersonRoot) error
	FindByID(ctx context.Context, id string) (*PersonRoot, error)
	// Dissolve reports whether the root was active before the call.
	Dissolve(ctx context.Context, id string, now time.Time) (bool, error)
	FindActiveByPersons(ctx context.Context, personIDs []string) ([]*PersonRoot, error)
}

type MemoryRepository interface {
	// Create locks the Person, enforces memoryLimit, inserts the memory and
	// increments memoryCount. It returns the new count.
	Create(ctx context.Context, memory *Memory) (int, error)
	FindByID(ctx context.Context, id string) (*Memory, error)
	Approve(ctx context.Context, id string) error
	// Delete removes the memory and decrements the counter together.
	Delete(ctx context.Context, id string) error
	FindByBranches(ctx context.Context, branchIDs []string, includePending bool) ([]*Memory, error)
}

type HeirRepository interface {
	Create(ctx context.Context, heir *Heir) error
	FindByBranch(ctx context.Context, branchID string) ([]*Heir, error)
}

// AuditRepository is the append-only audit sink.
type AuditRepository interface {
	Append(ctx context.Context, event *AuditEvent) error
}

// Repositories holds all repository instances
type Repositories struct {
	PersonRepo       PersonRepository
	BranchRepo       BranchRepository
	GroveRepo        GroveRepository
	MembershipRepo   MembershipRepository
	SubscriptionRepo SubscriptionRepository
	TransferRepo     TransferRepository
	RootRepo         RootRepository
	MemoryRepo       MemoryRepository
	HeirRepo         HeirRepository
	AuditRepo        AuditRepository
}

// NewRepositories creates all PostgreSQL-backed repositories.
func NewRepositories(pool *pgxpool.Pool, db *sqlx.DB) *Repositories {
	return &Repositories{
		PersonRepo:       NewPersonRepository(pool),
		BranchRepo:       NewBranchRepository(pool),
		GroveRepo:        NewGroveRepository(pool),
		MembershipRepo:   NewMembershipRepository(pool),
		SubscriptionRepo: NewSubscriptionRepository(pool),
		TransferRepo:     NewTransferRepository(pool),
		RootRepo:         NewRootRepository(pool),
		MemoryRepo:       NewMemoryRepository(pool),
		HeirRepo:         NewHeirRepository(pool),
		AuditRepo:        NewAuditRepository(db),
	}
}

// NewMemoryRepositories returns repositories backed by one in-process store.
func NewMemoryRepositories() *Repositories {
	s := newMemStore()
	return &Repositories{
		PersonRepo:       &memPersonRepository{s},
		BranchRepo:       &memBranchRepository{s},
		GroveRepo:        &memGroveRepository{s},
		MembershipRepo:   &memMembershipRepository{s},
		SubscriptionRepo: &memSubscriptionRepository{s},
		TransferRepo:     &memTransferRepository{s},
		RootRepo:         &memRootRepository{s},
		MemoryRepo:       &memMemoryRepository{s},
		HeirRepo:         &memHeirRepository{s},
		AuditRepo:        &memAuditRepository{s},
	}
}
