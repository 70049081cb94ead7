package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Near-limit severity tiers
const (
	WarningApproaching = "approaching"
	WarningCritical    = "warning"
)

type MemoryInput struct {
	Title      string
	Body       string
	Visibility string
	// AuthorEmail and AuthorName identify an anonymous contributor.
	AuthorEmail string
	AuthorName  string
}

type MemoryResult struct {
	Memory             *repository.Memory
	MemoryCount        int
	MemoryLimit        *int
	ShowAdoptionPrompt bool
	WarningLevel       string
}

type MemoryService interface {
	AddMemory(ctx context.Context, caller *Caller, branchID string, input MemoryInput) (*MemoryResult, error)
	ApproveMemory(ctx context.Context, caller *Caller, memoryID string) (*repository.Memory, error)
	DeleteMemory(ctx context.Context, caller *Caller, memoryID string) error
	ListMemories(ctx context.Context, caller *Caller, branchID string, includePending bool) ([]*repository.Memory, error)
}

type memoryService struct {
	repos  *repository.Repositories
	access AccessService
	events EventPublisher
	policy config.Policy
	now    Clock
	log    zerolog.Logger
}

func NewMemoryService(repos *repository.Repositories, access AccessService, events EventPublisher, policy config.Policy, now Clock, log zerolog.Logger) MemoryService {
	return &memoryService{repos: repos, access: access, events: events, policy: policy, now: now, log: log}
}

func (s *memoryService) AddMemory(ctx context.Context, caller *Caller, branchID string, input MemoryInput) (*MemoryResult, error) {
	if err := validateMemoryInput(caller, input); err != nil {
		return nil, err
	}

	access, err := s.access.ResolveBranch(ctx, branchID, caller)
	if err != nil {
		return nil, err
	}
	person := access.Person
	if person == nil {
		return nil, invalid("branchId", "branch has no person to remember")
	}
	if err := access.RequireEditable(); err != nil {
		return nil, err
	}

	memory := &repository.Memory{
		BranchID:  access.Branch.ID,
		PersonID:  person.ID,
		Title:     strings.TrimSpace(input.Title),
		Body:      strings.TrimSpace(input.Body),
		CreatedAt: s.now(),
	}

	if caller == nil {
		if !person.DiscoveryEnabled {
			return nil, ErrUnauthorized
		}
		memory.Author = repository.AnonymousContributor{
			Email: normalizeEmail(input.AuthorEmail),
			Name:  strings.TrimSpace(input.AuthorName),
		}
		// Open contributions are trusted and always public.
		memory.Visibility = repository.VisibilityShared
		memory.Approved = true
	} else {
		if !access.Authority.Any() && !access.IsMember && !person.DiscoveryEnabled {
			return nil, forbidden("not a contributor to this branch")
		}
		visibility, _ := memoryVisibility(input.Visibility)
		memory.Author = repository.AccountContributor{AccountID: caller.AccountID}
		memory.Visibility = visibility
		memory.Approved = access.Authority.Any()
	}

	count, err := s.repos.MemoryRepo.Create(ctx, memory)
	if err != nil {
		var full *repository.CapacityReachedError
		if errors.As(err, &full) {
			metrics.MemoriesRejected.WithLabelValues("capacity").Inc()
			return nil, &CapacityError{CurrentCount: full.Count, Limit: full.Limit}
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("person")
		}
		return nil, err
	}

	result := &MemoryResult{Memory: memory, MemoryCount: count, MemoryLimit: person.MemoryLimit}
	if person.MemoryLimit != nil {
		result.ShowAdoptionPrompt, result.WarningLevel = capacityWarning(count, *person.MemoryLimit, s.policy)
	}

	if !memory.Approved && person.OwnerID != nil {
		s.events.PublishToAccount(*person.OwnerID, EventMemoryPending, map[string]any{
			"memoryId": memory.ID,
			"branchId": memory.BranchID,
			"personId": person.ID,
		})
	}
	s.log.Debug().Str("memory_id", memory.ID).Str("person_id", person.ID).Bool("approved", memory.Approved).Int("count", count).Msg("memory added")
	return result, nil
}

// validateMemoryInput checks everything about an entry that does not depend
// on the branch it goes to.
func validateMemoryInput(caller *Caller, input MemoryInput) error {
	if strings.TrimSpace(input.Title) == "" && strings.TrimSpace(input.Body) == "" {
		return invalid("body", "a memory needs a title or a body")
	}
	if caller == nil {
		if !validEmail(normalizeEmail(input.AuthorEmail)) {
			return invalid("authorEmail", "anonymous contributors must give a valid email")
		}
		return nil
	}
	_, err := memoryVisibility(input.Visibility)
	return err
}

func memoryVisibility(v string) (string, error) {
	switch v {
	case "":
		return repository.VisibilityMembers, nil
	case repository.VisibilityPrivate, repository.VisibilityMembers, repository.VisibilityShared:
		return v, nil
	}
	return "", invalid("visibility", "must be private, members or shared")
}

// capacityWarning evaluates the post-insert count against the near-limit
// policy. The prompt shows from max(floor, limit*ratio) and escalates at
// limit*criticalRatio.
func capacityWarning(count, limit int, policy config.Policy) (bool, string) {
	threshold := int(math.Floor(float64(limit)*policy.WarningRatio + 1e-9))
	if policy.WarningFloor > threshold {
		threshold = policy.WarningFloor
	}
	if count < threshold {
		return false, ""
	}
	critical := int(math.Ceil(float64(limit)*policy.CriticalRatio - 1e-9))
	if count >= critical {
		return true, WarningCritical
	}
	return true, WarningApproaching
}

func (s *memoryService) findMemory(ctx context.Context, memoryID string) (*repository.Memory, error) {
	m, err := s.repos.MemoryRepo.FindByID(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, notFound("memory")
	}
	return m, nil
}

func (s *memoryService) ApproveMemory(ctx context.Context, caller *Caller, memoryID string) (*repository.Memory, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	m, err := s.findMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	access, err := s.access.ResolveBranch(ctx, m.BranchID, caller)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Any() {
		return nil, forbidden("only the tree's caretakers can approve memories")
	}
	if err := access.RequireEditable(); err != nil {
		return nil, err
	}
	if m.Approved {
		return m, nil
	}

	if err := s.repos.MemoryRepo.Approve(ctx, memoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("memory")
		}
		return nil, err
	}
	m.Approved = true
	return m, nil
}

func (s *memoryService) DeleteMemory(ctx context.Context, caller *Caller, memoryID string) error {
	if caller == nil {
		return ErrUnauthorized
	}
	m, err := s.findMemory(ctx, memoryID)
	if err != nil {
		return err
	}
	access, err := s.access.ResolveBranch(ctx, m.BranchID, caller)
	if err != nil {
		return err
	}
	if !access.Authority.Any() && !authoredBy(m, caller) {
		return forbidden("only the author or the tree's caretakers can delete a memory")
	}
	if err := access.RequireEditable(); err != nil {
		return err
	}

	if err := s.repos.MemoryRepo.Delete(ctx, memoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("memory")
		}
		return err
	}
	return nil
}

func authoredBy(m *repository.Memory, caller *Caller) bool {
	if caller == nil {
		return false
	}
	author, ok := m.Author.(repository.AccountContributor)
	return ok && author.AccountID == caller.AccountID
}

func (s *memoryService) ListMemories(ctx context.Context, caller *Caller, branchID string, includePending bool) ([]*repository.Memory, error) {
	access, err := s.access.ResolveBranch(ctx, branchID, caller)
	if err != nil {
		return nil, err
	}
	if !access.CanView() {
		return nil, forbidden("branch is not visible to this caller")
	}

	caretaker := access.Authority.Any()
	memories, err := s.repos.MemoryRepo.FindByBranches(ctx, []string{access.Branch.ID}, includePending && caretaker)
	if err != nil {
		return nil, err
	}

	visible := make([]*repository.Memory, 0, len(memories))
	for _, m := range memories {
		if caretaker || authoredBy(m, caller) {
			visible = append(visible, m)
			continue
		}
		switch m.Visibility {
		case repository.VisibilityShared:
			visible = append(visible, m)
		case repository.VisibilityMembers:
			if access.IsMember {
				visible = append(visible, m)
			}
		}
	}
	return visible, nil
}
