package service

import (
	"context"
	"strings"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
)

type BranchService interface {
	GetAccess(ctx context.Context, caller *Caller, branchID string) (*BranchAccess, error)
	AddBranchMember(ctx context.Context, caller *Caller, branchID, accountID, role string) (*repository.BranchMember, error)
	ListBranchMembers(ctx context.Context, caller *Caller, branchID string) ([]*repository.BranchMember, error)
	AddHeir(ctx context.Context, caller *Caller, branchID, email, releaseCondition string) (*repository.Heir, error)
	ListHeirs(ctx context.Context, caller *Caller, branchID string) ([]*repository.Heir, error)
}

type branchService struct {
	repos  *repository.Repositories
	access AccessService
	now    Clock
}

func NewBranchService(repos *repository.Repositories, access AccessService, now Clock) BranchService {
	return &branchService{repos: repos, access: access, now: now}
}

func (s *branchService) GetAccess(ctx context.Context, caller *Caller, branchID string) (*BranchAccess, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	return s.access.ResolveBranch(ctx, branchID, caller)
}

// caretakerAccess resolves the branch and requires authority over it.
func (s *branchService) caretakerAccess(ctx context.Context, caller *Caller, branchID string) (*BranchAccess, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	access, err := s.access.ResolveBranch(ctx, branchID, caller)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Any() {
		return nil, forbidden("only the tree's caretakers can manage this branch")
	}
	return access, nil
}

func (s *branchService) AddBranchMember(ctx context.Context, caller *Caller, branchID, accountID, role string) (*repository.BranchMember, error) {
	if accountID == "" {
		return nil, invalid("accountId", "required")
	}
	if role == "" {
		role = repository.RoleContributor
	}
	if role != repository.RoleContributor {
		return nil, invalid("role", "must be contributor")
	}

	access, err := s.caretakerAccess(ctx, caller, branchID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireEditable(); err != nil {
		return nil, err
	}

	member := &repository.BranchMember{
		BranchID:  access.Branch.ID,
		AccountID: accountID,
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := s.repos.BranchRepo.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *branchService) ListBranchMembers(ctx context.Context, caller *Caller, branchID string) ([]*repository.BranchMember, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	access, err := s.access.ResolveBranch(ctx, branchID, caller)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Any() && !access.IsMember {
		return nil, forbidden("not a member of this branch")
	}
	return s.repos.BranchRepo.ListMembers(ctx, access.Branch.ID)
}

// AddHeir records who inherits the branch. Succession planning stays open
// while a tree is frozen.
func (s *branchService) AddHeir(ctx context.Context, caller *Caller, branchID, email, releaseCondition string) (*repository.Heir, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, invalid("email", "must be a valid email address")
	}
	access, err := s.caretakerAccess(ctx, caller, branchID)
	if err != nil {
		return nil, err
	}

	heir := &repository.Heir{
		BranchID:         access.Branch.ID,
		Email:            email,
		ReleaseCondition: strings.TrimSpace(releaseCondition),
		CreatedBy:        caller.AccountID,
		CreatedAt:        s.now(),
	}
	if err := s.repos.HeirRepo.Create(ctx, heir); err != nil {
		return nil, err
	}
	return heir, nil
}

func (s *branchService) ListHeirs(ctx context.Context, caller *Caller, branchID string) ([]*repository.Heir, error) {
	access, err := s.caretakerAccess(ctx, caller, branchID)
	if err != nil {
		return nil, err
	}
	return s.repos.HeirRepo.FindByBranch(ctx, access.Branch.ID)
}
