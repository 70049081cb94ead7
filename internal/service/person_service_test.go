package service

import (
	"testing"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dateOf(year int) *time.Time {
	d := time.Date(year, time.January, 15, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestCreateLegacyPersonInOwnGrove(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")

	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{
		Name:      "  José   O'Brien ",
		BirthDate: dateOf(1931),
		DeathDate: dateOf(2019),
		GroveID:   grove.ID,
		InitialMemory: &MemoryInput{
			Title: "First",
			Body:  "He built the porch himself.",
		},
	})
	require.NoError(t, err)
	require.True(t, res.Created)

	p := env.person(res.Person.ID)
	assert.Equal(t, "José O'Brien", p.Name)
	assert.Equal(t, "jose obrien", p.NameNormalized)
	assert.True(t, p.IsLegacy)
	assert.Equal(t, "owner", *p.OwnerID)
	assert.Equal(t, "owner", *p.ModeratorID)
	assert.Equal(t, repository.AccountCaretaker{AccountID: "owner"}, p.Trustee)
	assert.Equal(t, testEpoch.Add(30*24*time.Hour), *p.TrusteeExpiresAt)
	assert.Nil(t, p.MemoryLimit)
	assert.False(t, p.DiscoveryEnabled)
	assert.Equal(t, 1, p.MemoryCount)

	assert.True(t, res.Membership.IsOriginal)
	assert.Equal(t, grove.ID, *res.Membership.GroveID)
	assert.Equal(t, res.Person.ID, *res.Branch.PersonID)
	require.NotNil(t, res.Memory)
	assert.True(t, res.Memory.Memory.Approved)
}

func TestCreateLegacyPersonAnonymous(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{Name: "Grace Hopper", DeathDate: deathDate()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{Name: "Grace Hopper", DeathDate: deathDate(), GroveID: "g", TrusteeEmail: "k@example.com"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{
		Name:          "Grace Hopper",
		DeathDate:     deathDate(),
		TrusteeEmail:  "K@Example.com",
		TrusteeName:   "Keeper",
		InitialMemory: &MemoryInput{Body: "Nanoseconds on a string"},
	})
	require.NoError(t, err)

	p := env.person(res.Person.ID)
	assert.Nil(t, p.OwnerID)
	assert.Equal(t, repository.ContactCaretaker{Email: "k@example.com", Name: "Keeper"}, p.Trustee)
	require.NotNil(t, p.MemoryLimit)
	assert.Equal(t, 100, *p.MemoryLimit)
	assert.True(t, p.DiscoveryEnabled)
	assert.Equal(t, testOpenGroveID, *res.Membership.GroveID)

	require.NotNil(t, res.Memory)
	assert.Equal(t, repository.AnonymousContributor{Email: "k@example.com", Name: "Keeper"}, res.Memory.Memory.Author)
}

func TestCreateLegacyPersonValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")

	_, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Ada"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Ada", BirthDate: dateOf(2000), DeathDate: dateOf(1990)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Ada", DeathDate: deathDate(), Resolution: "merge"})
	assert.ErrorIs(t, err, ErrValidation)

	stranger := env.createGrove("stranger", "family")
	_, err = env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Ada", DeathDate: deathDate(), GroveID: stranger.ID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateLegacyPersonRespectsTreeLimit(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "seedling")
	env.plant(owner, "Ada Lovelace", grove.ID)

	_, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Charles Babbage", DeathDate: deathDate(), GroveID: grove.ID})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestDuplicateDetectionAndResolutions(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.svc.Person.CreateLegacyPerson(env.ctx, account("owner"), CreatePersonInput{
		Name:      "José O'Brien",
		BirthDate: dateOf(1931),
		DeathDate: dateOf(2019),
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	visitor := account("visitor")
	check, err := env.svc.Person.CreateLegacyPerson(env.ctx, visitor, CreatePersonInput{Name: "jose obrien", DeathDate: dateOf(2019)})
	require.NoError(t, err)
	assert.False(t, check.Created)
	require.Len(t, check.Duplicates, 1)
	assert.Equal(t, first.Person.ID, check.Duplicates[0].Person.ID)
	assert.True(t, check.Duplicates[0].YearsMatch)

	connected, err := env.svc.Person.CreateLegacyPerson(env.ctx, visitor, CreatePersonInput{
		Name:            "jose obrien",
		DeathDate:       dateOf(2019),
		Resolution:      ResolutionConnect,
		ConnectPersonID: first.Person.ID,
		InitialMemory:   &MemoryInput{Body: "He fixed my bike", Visibility: repository.VisibilityShared},
	})
	require.NoError(t, err)
	assert.False(t, connected.Created)
	assert.Equal(t, first.Person.ID, connected.Person.ID)
	require.NotNil(t, connected.Memory)
	assert.Equal(t, 1, connected.Memory.MemoryCount)

	separate, err := env.svc.Person.CreateLegacyPerson(env.ctx, visitor, CreatePersonInput{
		Name:       "Jose OBrien",
		DeathDate:  dateOf(2019),
		Resolution: ResolutionCreateAnyway,
	})
	require.NoError(t, err)
	require.True(t, separate.Created)
	require.NotNil(t, separate.Person.PossibleDuplicateOf)
	assert.Equal(t, first.Person.ID, *separate.Person.PossibleDuplicateOf)
}

func TestFindDuplicatesFiltersByYearAndVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")

	public, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Mary Smith", BirthDate: dateOf(1920), DeathDate: dateOf(1990)})
	require.NoError(t, err)
	undated, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Mary Smith", DeathDate: dateOf(2001), Resolution: ResolutionCreateAnyway})
	require.NoError(t, err)
	hidden, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Mary Smith", DeathDate: dateOf(1990), GroveID: grove.ID, Resolution: ResolutionCreateAnyway})
	require.NoError(t, err)

	candidates, err := env.svc.Person.FindDuplicates(env.ctx, nil, "MARY  smith", 1920, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, public.Person.ID, candidates[0].Person.ID)
	assert.True(t, candidates[0].YearsMatch)
	assert.Equal(t, undated.Person.ID, candidates[1].Person.ID)
	assert.False(t, candidates[1].YearsMatch)

	candidates, err = env.svc.Person.FindDuplicates(env.ctx, nil, "Mary Smith", 1921, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, undated.Person.ID, candidates[0].Person.ID)

	candidates, err = env.svc.Person.FindDuplicates(env.ctx, owner, "Mary Smith", 0, 1990)
	require.NoError(t, err)
	ids := []string{}
	for _, c := range candidates {
		ids = append(ids, c.Person.ID)
	}
	assert.ElementsMatch(t, []string{public.Person.ID, hidden.Person.ID}, ids)
}

func TestAdoptPersonLiftsMemoryLimit(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	grove := env.createGrove("owner", "family")

	_, err := env.svc.Person.AdoptPerson(env.ctx, account("stranger"), res.Person.ID, grove.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	membership, err := env.svc.Person.AdoptPerson(env.ctx, owner, res.Person.ID, grove.ID)
	require.NoError(t, err)
	assert.False(t, membership.IsOriginal)
	assert.Equal(t, grove.ID, *membership.GroveID)
	assert.Nil(t, env.person(res.Person.ID).MemoryLimit)

	_, err = env.svc.Person.AdoptPerson(env.ctx, owner, res.Person.ID, grove.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetPersonVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")
	res := env.plant(owner, "Ada Lovelace", grove.ID)

	access, err := env.svc.Person.GetPerson(env.ctx, owner, res.Person.ID)
	require.NoError(t, err)
	assert.True(t, access.Authority.Owner)
	assert.True(t, access.Editable)

	_, err = env.svc.Person.GetPerson(env.ctx, account("stranger"), res.Person.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateLegacyPersonRejectsBadInitialMemory(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")

	cases := []struct {
		name   string
		caller *Caller
		input  CreatePersonInput
	}{
		{"bad visibility", owner, CreatePersonInput{InitialMemory: &MemoryInput{Body: "hi", Visibility: "bogus"}}},
		{"empty entry", owner, CreatePersonInput{InitialMemory: &MemoryInput{Title: " ", Body: " "}}},
		{"bad author email", nil, CreatePersonInput{TrusteeEmail: "k@example.com", InitialMemory: &MemoryInput{Body: "hi", AuthorEmail: "nope"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.input.Name = "Ada Lovelace"
			tc.input.DeathDate = deathDate()
			_, err := env.svc.Person.CreateLegacyPerson(env.ctx, tc.caller, tc.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	persons, err := env.repos.PersonRepo.FindLegacyByNormalizedName(env.ctx, "ada lovelace")
	require.NoError(t, err)
	assert.Empty(t, persons)

	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, owner, CreatePersonInput{Name: "Ada Lovelace", DeathDate: deathDate()})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.Duplicates)
}

func TestAnonymousConnectSignsWithTrusteeContact(t *testing.T) {
	env := newTestEnv(t)
	first := env.plant(account("owner"), "Grace Hopper", "")

	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{
		Name:            "Grace Hopper",
		DeathDate:       deathDate(),
		Resolution:      ResolutionConnect,
		ConnectPersonID: first.Person.ID,
		TrusteeEmail:    "Visitor@Example.com",
		TrusteeName:     "Visitor",
		InitialMemory:   &MemoryInput{Body: "She visited our school."},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	require.NotNil(t, res.Memory)
	assert.Equal(t, repository.AnonymousContributor{Email: "visitor@example.com", Name: "Visitor"}, res.Memory.Memory.Author)
	assert.Equal(t, 1, res.Memory.MemoryCount)
}

func TestPlantingIsAudited(t *testing.T) {
	env := newTestEnv(t)
	owned := env.plant(account("owner"), "Ada Lovelace", "")
	anonymous, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{
		Name:         "Grace Hopper",
		DeathDate:    deathDate(),
		TrusteeEmail: "k@example.com",
	})
	require.NoError(t, err)

	reader := env.repos.AuditRepo.(repository.AuditReader)
	events, err := reader.FindByTarget(env.ctx, "person", owned.Person.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "account", events[0].ActorType)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, "owner", *events[0].ActorID)

	events, err = reader.FindByTarget(env.ctx, "person", anonymous.Person.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "anonymous", events[0].ActorType)
	assert.Nil(t, events[0].ActorID)
	assert.Equal(t, "person.planted", events[0].Action)
}
