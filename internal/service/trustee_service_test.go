package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndExpireTrusteeWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	env.advance(29 * 24 * time.Hour)
	p, lapsed, err := env.svc.Trustee.CheckAndExpireTrustee(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Nil(t, lapsed)
	assert.Equal(t, repository.AccountCaretaker{AccountID: "owner"}, p.Trustee)
	assert.Equal(t, []string{"person.planted"}, env.auditActions("person", res.Person.ID))
}

func TestCheckAndExpireTrusteeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	env.advance(31 * 24 * time.Hour)

	first, lapsed, err := env.svc.Trustee.CheckAndExpireTrustee(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AccountCaretaker{AccountID: "owner"}, lapsed)
	assert.Nil(t, first.Trustee)

	second, lapsedAgain, err := env.svc.Trustee.CheckAndExpireTrustee(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Nil(t, lapsedAgain)
	assert.Nil(t, second.Trustee)

	stored := env.person(res.Person.ID)
	assert.Nil(t, stored.Trustee)
	require.NotNil(t, stored.OwnerID)
	assert.Equal(t, "owner", *stored.OwnerID)
	require.NotNil(t, stored.ModeratorID)
	assert.Equal(t, "owner", *stored.ModeratorID)

	assert.Equal(t, []string{"person.planted", "trustee.expired"}, env.auditActions("person", res.Person.ID))
}

func TestCheckAndExpireTrusteeConcurrent(t *testing.T) {
	env := newTestEnv(t)
	res := env.plant(account("owner"), "Ada Lovelace", "")
	env.advance(31 * 24 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.svc.Trustee.CheckAndExpireTrustee(env.ctx, res.Person.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Nil(t, env.person(res.Person.ID).Trustee)
	assert.Equal(t, []string{"person.planted", "trustee.expired"}, env.auditActions("person", res.Person.ID))
}

func TestLapsedTrusteeLosesAuthority(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{
		Name:         "Grace Hopper",
		DeathDate:    deathDate(),
		TrusteeEmail: "Keeper@Example.com",
		TrusteeName:  "Keeper",
	})
	require.NoError(t, err)
	keeper := &Caller{AccountID: "keeper-acct", Email: "keeper@example.com"}

	access, err := env.svc.Access.ResolvePerson(env.ctx, res.Person.ID, keeper)
	require.NoError(t, err)
	assert.True(t, access.Authority.Trustee)

	env.advance(30*24*time.Hour + time.Second)
	access, err = env.svc.Access.ResolvePerson(env.ctx, res.Person.ID, keeper)
	require.NoError(t, err)
	assert.False(t, access.Authority.Any())
	assert.True(t, access.Authority.TrusteeLapsed)
}

func TestCheckAndExpireTrusteeUnknownPerson(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.Trustee.CheckAndExpireTrustee(env.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
