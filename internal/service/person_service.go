package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Duplicate resolutions offered to a creator
const (
	ResolutionNone         = ""
	ResolutionConnect      = "connect"
	ResolutionCreateAnyway = "create_anyway"
)

type CreatePersonInput struct {
	Name      string
	BirthDate *time.Time
	DeathDate *time.Time
	// GroveID plants the tree in one of the caller's groves. Empty means the
	// Open Grove.
	GroveID         string
	Resolution      string
	ConnectPersonID string
	// TrusteeEmail and TrusteeName identify an anonymous creator.
	TrusteeEmail  string
	TrusteeName   string
	InitialMemory *MemoryInput
}

type DuplicateCandidate struct {
	Person     *repository.Person
	YearsMatch bool
}

type CreatePersonResult struct {
	// Created is false when candidates were returned for the creator to
	// choose from, or when the contribution was connected to one of them.
	Created    bool
	Person     *repository.Person
	Branch     *repository.Branch
	Membership *repository.GroveTreeMembership
	Duplicates []*DuplicateCandidate
	Memory     *MemoryResult
}

type PersonService interface {
	CreateLegacyPerson(ctx context.Context, caller *Caller, input CreatePersonInput) (*CreatePersonResult, error)
	FindDuplicates(ctx context.Context, caller *Caller, name string, birthYear, deathYear int) ([]*DuplicateCandidate, error)
	AdoptPerson(ctx context.Context, caller *Caller, personID, groveID string) (*repository.GroveTreeMembership, error)
	GetPerson(ctx context.Context, caller *Caller, personID string) (*BranchAccess, error)
}

type personService struct {
	repos  *repository.Repositories
	access AccessService
	memory MemoryService
	audit  *auditor
	cfg    *config.Config
	now    Clock
	log    zerolog.Logger
}

func NewPersonService(repos *repository.Repositories, access AccessService, memory MemoryService, audit *auditor, cfg *config.Config, now Clock, log zerolog.Logger) PersonService {
	return &personService{repos: repos, access: access, memory: memory, audit: audit, cfg: cfg, now: now, log: log}
}

func (s *personService) CreateLegacyPerson(ctx context.Context, caller *Caller, input CreatePersonInput) (*CreatePersonResult, error) {
	name := strings.Join(strings.Fields(input.Name), " ")
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, invalid("name", "required")
	}
	if input.DeathDate == nil {
		return nil, invalid("deathDate", "required for a memorial")
	}
	if input.BirthDate != nil && input.BirthDate.After(*input.DeathDate) {
		return nil, invalid("birthDate", "must not be after the date of death")
	}
	if caller == nil && input.GroveID != "" {
		return nil, ErrUnauthorized
	}
	first := initialMemory(caller, input)
	if first != nil {
		if err := validateMemoryInput(caller, *first); err != nil {
			return nil, err
		}
	}

	switch input.Resolution {
	case ResolutionConnect:
		return s.connect(ctx, caller, input.ConnectPersonID, first)
	case ResolutionNone, ResolutionCreateAnyway:
	default:
		return nil, invalid("resolution", "must be connect or create_anyway")
	}

	candidates, err := s.FindDuplicates(ctx, caller, name, yearOf(input.BirthDate), yearOf(input.DeathDate))
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 && input.Resolution == ResolutionNone {
		return &CreatePersonResult{Duplicates: candidates}, nil
	}

	now := s.now()
	person := &repository.Person{
		Name:           name,
		NameNormalized: normalized,
		BirthDate:      input.BirthDate,
		DeathDate:      input.DeathDate,
		IsLegacy:       true,
		CreatedAt:      now,
	}
	if len(candidates) > 0 {
		person.PossibleDuplicateOf = &candidates[0].Person.ID
	}
	trusteeExpiresAt := now.Add(s.cfg.Policy.TrusteeWindow)
	person.TrusteeExpiresAt = &trusteeExpiresAt

	if caller == nil {
		email := normalizeEmail(input.TrusteeEmail)
		if !validEmail(email) {
			return nil, invalid("trusteeEmail", "anonymous creators must give a valid email")
		}
		person.Trustee = repository.ContactCaretaker{Email: email, Name: strings.TrimSpace(input.TrusteeName)}
	} else {
		person.OwnerID = &caller.AccountID
		person.ModeratorID = &caller.AccountID
		person.Trustee = repository.AccountCaretaker{AccountID: caller.AccountID}
	}

	grove, err := s.plantingGrove(ctx, caller, input.GroveID)
	if err != nil {
		return nil, err
	}
	openGrove := input.GroveID == ""
	if openGrove {
		limit := s.cfg.Policy.OpenGroveMemoryLimit
		person.MemoryLimit = &limit
		person.DiscoveryEnabled = true
	}

	planting := &repository.Planting{
		Person: person,
		Branch: &repository.Branch{
			OwnerID:   person.OwnerID,
			Name:      name,
			CreatedAt: now,
		},
		Membership: &repository.GroveTreeMembership{
			GroveID:    &grove.ID,
			IsOriginal: true,
			Status:     repository.MembershipActive,
			CreatedAt:  now,
		},
		EnforceTreeLimit: !openGrove,
	}
	if err := s.repos.PersonRepo.Plant(ctx, planting); err != nil {
		var full *repository.GroveFullError
		if errors.As(err, &full) {
			return nil, &GroveCapacityError{TreeCount: full.Count, TreeLimit: full.Limit}
		}
		return nil, err
	}

	s.log.Info().Str("person_id", person.ID).Str("grove_id", grove.ID).
		Bool("anonymous", caller == nil).Bool("possible_duplicate", person.PossibleDuplicateOf != nil).
		Msg("legacy person planted")

	meta := map[string]any{"groveId": grove.ID, "branchId": planting.Branch.ID}
	if caller == nil {
		s.audit.recordAnonymous(ctx, "person.planted", "person", person.ID, meta)
	} else {
		s.audit.record(ctx, caller, "person.planted", "person", person.ID, meta)
	}

	result := &CreatePersonResult{
		Created:    true,
		Person:     person,
		Branch:     planting.Branch,
		Membership: planting.Membership,
		Duplicates: candidates,
	}
	if first != nil {
		if result.Memory, err = s.memory.AddMemory(ctx, caller, planting.Branch.ID, *first); err != nil {
			return nil, err
		}
		result.Person.MemoryCount = result.Memory.MemoryCount
	}
	return result, nil
}

// initialMemory returns the creator's first entry. An anonymous creator signs
// it with their trustee contact unless they gave an author.
func initialMemory(caller *Caller, input CreatePersonInput) *MemoryInput {
	if input.InitialMemory == nil {
		return nil
	}
	first := *input.InitialMemory
	if caller == nil && first.AuthorEmail == "" {
		first.AuthorEmail, first.AuthorName = input.TrusteeEmail, input.TrusteeName
	}
	return &first
}

// plantingGrove returns the grove a new tree goes into.
func (s *personService) plantingGrove(ctx context.Context, caller *Caller, groveID string) (*repository.Grove, error) {
	if groveID == "" {
		grove, err := s.repos.GroveRepo.FindByID(ctx, s.cfg.OpenGroveID)
		if err != nil {
			return nil, err
		}
		if grove == nil {
			return nil, notFound("open grove")
		}
		return grove, nil
	}

	grove, err := s.repos.GroveRepo.FindByID(ctx, groveID)
	if err != nil {
		return nil, err
	}
	if grove == nil {
		return nil, notFound("grove")
	}
	if grove.OwnerID != caller.AccountID {
		return nil, forbidden("grove is not yours")
	}
	if !groveEntitles(grove) {
		return nil, forbidden("grove is " + grove.Status)
	}
	return grove, nil
}

func (s *personService) connect(ctx context.Context, caller *Caller, personID string, first *MemoryInput) (*CreatePersonResult, error) {
	if personID == "" {
		return nil, invalid("connectPersonId", "required to connect")
	}
	access, err := s.access.ResolvePerson(ctx, personID, caller)
	if err != nil {
		return nil, err
	}
	if !access.Person.IsLegacy {
		return nil, invalid("connectPersonId", "not a memorial")
	}
	if !access.CanView() {
		return nil, forbidden("memorial is not visible to this caller")
	}

	result := &CreatePersonResult{Person: access.Person, Branch: access.Branch, Membership: access.Membership}
	if first != nil {
		if result.Memory, err = s.memory.AddMemory(ctx, caller, access.Branch.ID, *first); err != nil {
			return nil, err
		}
		result.Person.MemoryCount = result.Memory.MemoryCount
	}
	return result, nil
}

func (s *personService) FindDuplicates(ctx context.Context, caller *Caller, name string, birthYear, deathYear int) ([]*DuplicateCandidate, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, nil
	}
	persons, err := s.repos.PersonRepo.FindLegacyByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, err
	}

	var candidates []*DuplicateCandidate
	for _, p := range persons {
		if !duplicateVisible(p, caller) {
			continue
		}
		birthOK, birthKnown := yearAgrees(p.BirthDate, birthYear)
		deathOK, deathKnown := yearAgrees(p.DeathDate, deathYear)
		if !birthOK || !deathOK {
			continue
		}
		candidates = append(candidates, &DuplicateCandidate{Person: p, YearsMatch: birthKnown || deathKnown})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].YearsMatch && !candidates[j].YearsMatch
	})
	return candidates, nil
}

func duplicateVisible(p *repository.Person, caller *Caller) bool {
	if p.DiscoveryEnabled {
		return true
	}
	if caller == nil {
		return false
	}
	return (p.OwnerID != nil && *p.OwnerID == caller.AccountID) ||
		(p.Trustee != nil && caretakerMatches(p.Trustee, caller))
}

// yearAgrees reports whether a known year matches, and whether both sides
// knew one. An unknown year on either side never excludes a candidate.
func yearAgrees(date *time.Time, year int) (ok, compared bool) {
	if date == nil || year == 0 {
		return true, false
	}
	return date.Year() == year, true
}

func yearOf(t *time.Time) int {
	if t == nil {
		return 0
	}
	return t.Year()
}

func (s *personService) AdoptPerson(ctx context.Context, caller *Caller, personID, groveID string) (*repository.GroveTreeMembership, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	access, err := s.access.ResolvePerson(ctx, personID, caller)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Any() {
		return nil, forbidden("no authority over this tree")
	}

	grove, err := s.repos.GroveRepo.FindByID(ctx, groveID)
	if err != nil {
		return nil, err
	}
	if grove == nil {
		return nil, notFound("grove")
	}
	if grove.OwnerID != caller.AccountID {
		return nil, forbidden("grove is not yours")
	}
	if !groveEntitles(grove) {
		return nil, forbidden("grove is " + grove.Status)
	}

	memberships, err := s.repos.MembershipRepo.FindByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.GroveID != nil && *m.GroveID == groveID {
			return nil, &ConflictError{Reason: "tree is already in this grove"}
		}
	}

	membership := &repository.GroveTreeMembership{
		PersonID:   personID,
		GroveID:    &grove.ID,
		IsOriginal: false,
		Status:     repository.MembershipActive,
		CreatedAt:  s.now(),
	}
	if err := s.repos.PersonRepo.Adopt(ctx, &repository.Adoption{Membership: membership}); err != nil {
		var full *repository.GroveFullError
		if errors.As(err, &full) {
			return nil, &GroveCapacityError{TreeCount: full.Count, TreeLimit: full.Limit}
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("person")
		}
		return nil, err
	}

	s.log.Info().Str("person_id", personID).Str("grove_id", groveID).Msg("tree adopted into grove")
	return membership, nil
}

func (s *personService) GetPerson(ctx context.Context, caller *Caller, personID string) (*BranchAccess, error) {
	access, err := s.access.ResolvePerson(ctx, personID, caller)
	if err != nil {
		return nil, err
	}
	if !access.CanView() {
		return nil, forbidden("tree is not visible to this caller")
	}
	return access, nil
}
