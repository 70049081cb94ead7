package service

import (
	"context"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
)

// Authority is the resolved owner → moderator → trustee chain for one caller.
type Authority struct {
	Owner     bool
	Moderator bool
	Trustee   bool
	// TrusteeLapsed is set when the caller held the trustee grant and it
	// lapsed during this resolution.
	TrusteeLapsed bool
}

// Any reports whether the caller holds any authority over the Person.
func (a Authority) Any() bool {
	return a.Owner || a.Moderator || a.Trustee
}

// CanTransfer reports whether the caller may hand the Person to someone else.
func (a Authority) CanTransfer() bool {
	return a.Owner || a.Trustee
}

// BranchAccess is the single answer every mutating path consults before it
// writes to a Branch.
type BranchAccess struct {
	Branch     *repository.Branch
	Person     *repository.Person
	Membership *repository.GroveTreeMembership
	Grove      *repository.Grove
	Authority  Authority
	IsMember   bool
	Editable   bool
	// FrozenReason explains why Editable is false.
	FrozenReason string
}

// RequireEditable fails with Forbidden when the Branch is read-only.
func (a *BranchAccess) RequireEditable() error {
	if !a.Editable {
		return forbidden(a.FrozenReason)
	}
	return nil
}

// CanView reports whether the caller may read the Branch.
func (a *BranchAccess) CanView() bool {
	if a.Authority.Any() || a.IsMember {
		return true
	}
	return a.Person != nil && a.Person.DiscoveryEnabled
}

type AccessService interface {
	ResolveBranch(ctx context.Context, branchID string, caller *Caller) (*BranchAccess, error)
	// ResolvePerson resolves access through the Person's own Branch.
	ResolvePerson(ctx context.Context, personID string, caller *Caller) (*BranchAccess, error)
	CanEditBranch(ctx context.Context, branchID string) (bool, error)
}

type accessService struct {
	repos   *repository.Repositories
	trustee TrusteeService
	now     Clock
}

func NewAccessService(repos *repository.Repositories, trustee TrusteeService, now Clock) AccessService {
	return &accessService{repos: repos, trustee: trustee, now: now}
}

func (s *accessService) CanEditBranch(ctx context.Context, branchID string) (bool, error) {
	access, err := s.ResolveBranch(ctx, branchID, nil)
	if err != nil {
		return false, err
	}
	return access.Editable, nil
}

func (s *accessService) ResolveBranch(ctx context.Context, branchID string, caller *Caller) (*BranchAccess, error) {
	branch, err := s.repos.BranchRepo.FindByID(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, notFound("branch")
	}
	if branch.PersonID == nil {
		return s.resolveOwnerlessBranch(ctx, branch, caller)
	}
	return s.resolve(ctx, branch, *branch.PersonID, caller)
}

func (s *accessService) ResolvePerson(ctx context.Context, personID string, caller *Caller) (*BranchAccess, error) {
	branches, err := s.repos.BranchRepo.FindByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return nil, notFound("person")
	}
	return s.resolve(ctx, branches[0], personID, caller)
}

func (s *accessService) resolve(ctx context.Context, branch *repository.Branch, personID string, caller *Caller) (*BranchAccess, error) {
	person, lapsed, err := s.trustee.CheckAndExpireTrustee(ctx, personID)
	if err != nil {
		return nil, err
	}

	access := &BranchAccess{
		Branch:    branch,
		Person:    person,
		Authority: resolveAuthority(person, caller, s.now()),
	}
	if lapsed != nil && caretakerMatches(lapsed, caller) {
		access.Authority.TrusteeLapsed = true
	}

	if caller != nil {
		member, err := s.repos.BranchRepo.FindMember(ctx, branch.ID, caller.AccountID)
		if err != nil {
			return nil, err
		}
		access.IsMember = member != nil
	}

	// The most recent membership governs: after a transfer the new
	// owner's container decides, not the sender's.
	memberships, err := s.repos.MembershipRepo.FindByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		access.FrozenReason = "tree is not planted in any grove"
		return access, nil
	}
	access.Membership = memberships[0]

	if access.Membership.GroveID != nil {
		grove, err := s.repos.GroveRepo.FindByID(ctx, *access.Membership.GroveID)
		if err != nil {
			return nil, err
		}
		access.Grove = grove
	}

	access.Editable, access.FrozenReason = membershipEditable(access.Membership, access.Grove)
	return access, nil
}

// resolveOwnerlessBranch handles branches created before Persons existed:
// write eligibility follows the owning account's groves directly.
func (s *accessService) resolveOwnerlessBranch(ctx context.Context, branch *repository.Branch, caller *Caller) (*BranchAccess, error) {
	access := &BranchAccess{Branch: branch, Editable: true}
	if branch.OwnerID == nil {
		return access, nil
	}
	if caller != nil && caller.AccountID == *branch.OwnerID {
		access.Authority = Authority{Owner: true, Moderator: true}
	}

	groves, err := s.repos.GroveRepo.FindByOwner(ctx, *branch.OwnerID)
	if err != nil {
		return nil, err
	}
	if len(groves) == 0 {
		return access, nil
	}
	for _, g := range groves {
		if groveEntitles(g) {
			access.Grove = g
			return access, nil
		}
	}
	access.Grove = groves[0]
	access.Editable = false
	access.FrozenReason = "owner's grove is " + groves[0].Status
	return access, nil
}

// groveEntitles reports whether the grove's subscription still permits writes.
// past_due is a grace period, not a freeze.
func groveEntitles(g *repository.Grove) bool {
	return g.Status == repository.GroveActive || g.Status == repository.GrovePastDue
}

func membershipEditable(m *repository.GroveTreeMembership, g *repository.Grove) (bool, string) {
	if m.Status == repository.MembershipFrozen {
		return false, "tree is frozen"
	}
	// An individually subscribed tree is governed by its own subscription.
	if m.SubscriptionID != nil || g == nil {
		return true, ""
	}
	if !groveEntitles(g) {
		return false, "grove is " + g.Status
	}
	return true, ""
}

func resolveAuthority(p *repository.Person, caller *Caller, now time.Time) Authority {
	if caller == nil {
		return Authority{}
	}
	a := Authority{
		Owner:     p.OwnerID != nil && *p.OwnerID == caller.AccountID,
		Moderator: p.ModeratorID != nil && *p.ModeratorID == caller.AccountID,
	}
	if p.Trustee != nil && !trusteeLapsed(p, now) {
		a.Trustee = caretakerMatches(p.Trustee, caller)
	}
	return a
}

func caretakerMatches(c repository.Caretaker, caller *Caller) bool {
	if caller == nil {
		return false
	}
	switch v := c.(type) {
	case repository.AccountCaretaker:
		return v.AccountID == caller.AccountID
	case repository.ContactCaretaker:
		return caller.Email != "" && normalizeEmail(v.Email) == normalizeEmail(caller.Email)
	}
	return false
}
