package service

import (
	"context"
	"errors"

	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// TreeView is every Branch that belongs to a Tree when viewed from PersonID,
// including Branches reached through active roots.
type TreeView struct {
	PersonID  string               `json:"personId"`
	PersonIDs []string             `json:"personIds"`
	Branches  []*repository.Branch `json:"branches"`
}

type RootService interface {
	CreateRoot(ctx context.Context, caller *Caller, personIDA, personIDB string) (*repository.PersonRoot, error)
	DissolveRoot(ctx context.Context, caller *Caller, rootID string) (*repository.PersonRoot, error)
	GetTreeBranches(ctx context.Context, caller *Caller, personID string) (*TreeView, error)
}

type rootService struct {
	repos  *repository.Repositories
	access AccessService
	cache  TreeCache
	audit  *auditor
	now    Clock
	log    zerolog.Logger
}

func NewRootService(repos *repository.Repositories, access AccessService, cache TreeCache, audit *auditor, now Clock, log zerolog.Logger) RootService {
	return &rootService{repos: repos, access: access, cache: cache, audit: audit, now: now, log: log}
}

func (s *rootService) CreateRoot(ctx context.Context, caller *Caller, personIDA, personIDB string) (*repository.PersonRoot, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	if personIDA == "" || personIDB == "" {
		return nil, invalid("personId", "both persons are required")
	}
	if personIDA == personIDB {
		return nil, invalid("personId", "a person cannot be rooted to itself")
	}

	access, err := s.access.ResolvePerson(ctx, personIDA, caller)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Any() {
		return nil, forbidden("no authority over the initiating person")
	}
	if err := access.RequireEditable(); err != nil {
		return nil, err
	}

	other, err := s.repos.PersonRepo.FindByID(ctx, personIDB)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, notFound("person")
	}

	id1, id2 := repository.OrderedPair(personIDA, personIDB)
	root := &repository.PersonRoot{
		PersonID1: id1,
		PersonID2: id2,
		Status:    repository.RootActive,
		CreatedBy: caller.AccountID,
		CreatedAt: s.now(),
	}
	if err := s.repos.RootRepo.Create(ctx, root); err != nil {
		if errors.Is(err, repository.ErrActiveRootExists) {
			return nil, s.existingRootConflict(ctx, id1, id2)
		}
		return nil, err
	}

	metrics.RootsChanged.WithLabelValues("create").Inc()
	s.log.Info().Str("root_id", root.ID).Str("person_a", personIDA).Str("person_b", personIDB).Msg("persons rooted")
	s.audit.record(ctx, caller, "root.created", "root", root.ID, map[string]any{
		"personId1": id1,
		"personId2": id2,
	})
	s.invalidateComponent(ctx, personIDA)
	return root, nil
}

func (s *rootService) existingRootConflict(ctx context.Context, id1, id2 string) error {
	conflict := &ConflictError{Reason: "persons are already rooted"}
	roots, err := s.repos.RootRepo.FindActiveByPersons(ctx, []string{id1})
	if err != nil {
		return conflict
	}
	for _, r := range roots {
		if r.PersonID1 == id1 && r.PersonID2 == id2 {
			conflict.RootID = r.ID
		}
	}
	return conflict
}

// DissolveRoot is a no-op on an already dissolved root. Either side may
// dissolve it.
func (s *rootService) DissolveRoot(ctx context.Context, caller *Caller, rootID string) (*repository.PersonRoot, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	root, err := s.repos.RootRepo.FindByID(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, notFound("root")
	}

	authorized := false
	for _, personID := range []string{root.PersonID1, root.PersonID2} {
		access, err := s.access.ResolvePerson(ctx, personID, caller)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if access.Authority.Any() {
			authorized = true
			break
		}
	}
	if !authorized {
		return nil, forbidden("no authority over either rooted person")
	}
	if root.Status != repository.RootActive {
		return root, nil
	}

	// The component shrinks after dissolution, so collect it first.
	component, err := s.component(ctx, root.PersonID1)
	if err != nil {
		return nil, err
	}

	changed, err := s.repos.RootRepo.Dissolve(ctx, rootID, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.RootsChanged.WithLabelValues("dissolve").Inc()
		s.log.Info().Str("root_id", rootID).Msg("root dissolved")
		s.audit.record(ctx, caller, "root.dissolved", "root", rootID, map[string]any{
			"personId1": root.PersonID1,
			"personId2": root.PersonID2,
		})
		s.cache.Invalidate(ctx, component...)
	}

	return s.repos.RootRepo.FindByID(ctx, rootID)
}

func (s *rootService) GetTreeBranches(ctx context.Context, caller *Caller, personID string) (*TreeView, error) {
	access, err := s.access.ResolvePerson(ctx, personID, caller)
	if err != nil {
		return nil, err
	}
	if !access.CanView() {
		return nil, forbidden("tree is not visible to this caller")
	}

	if view, ok := s.cache.GetTree(ctx, personID); ok {
		return view, nil
	}

	personIDs, err := s.component(ctx, personID)
	if err != nil {
		return nil, err
	}
	branches, err := s.repos.BranchRepo.FindByPersons(ctx, personIDs)
	if err != nil {
		return nil, err
	}

	view := &TreeView{PersonID: personID, PersonIDs: personIDs, Branches: branches}
	s.cache.SetTree(ctx, view)
	return view, nil
}

// component walks active roots breadth first, one query per ring, and
// returns every Person connected to personID with personID first.
func (s *rootService) component(ctx context.Context, personID string) ([]string, error) {
	seen := map[string]bool{personID: true}
	ordered := []string{personID}
	frontier := []string{personID}

	for len(frontier) > 0 {
		roots, err := s.repos.RootRepo.FindActiveByPersons(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, r := range roots {
			for _, id := range []string{r.PersonID1, r.PersonID2} {
				if !seen[id] {
					seen[id] = true
					ordered = append(ordered, id)
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	return ordered, nil
}

func (s *rootService) invalidateComponent(ctx context.Context, personID string) {
	component, err := s.component(ctx, personID)
	if err != nil {
		s.log.Warn().Err(err).Str("person_id", personID).Msg("failed to walk roots for cache invalidation")
		s.cache.Invalidate(ctx, personID)
		return
	}
	s.cache.Invalidate(ctx, component...)
}
