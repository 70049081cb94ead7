package service

import (
	"testing"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type membershipSeeder interface {
	CreateMembership(m *repository.GroveTreeMembership)
}

type subscriptionSeeder interface {
	CreateSubscription(sub *repository.TreeSubscription)
}

// subscribedMembership adds an independently subscribed membership for
// personID under groveID.
func (e *testEnv) subscribedMembership(personID, groveID string) (*repository.GroveTreeMembership, *repository.TreeSubscription) {
	e.t.Helper()
	sub := &repository.TreeSubscription{
		ID:        "sub-" + personID,
		AccountID: "subscriber",
		PersonID:  personID,
		PlanType:  SinglePlanType,
		Status:    repository.SubscriptionActive,
		CreatedAt: e.clock(),
	}
	e.repos.SubscriptionRepo.(subscriptionSeeder).CreateSubscription(sub)

	m := &repository.GroveTreeMembership{
		ID:             "m-sub-" + personID,
		PersonID:       personID,
		GroveID:        &groveID,
		IsOriginal:     false,
		Status:         repository.MembershipActive,
		SubscriptionID: &sub.ID,
		CreatedAt:      e.clock(),
	}
	e.repos.MembershipRepo.(membershipSeeder).CreateMembership(m)
	return m, sub
}

func TestFreezeThenUnfreezeGroveRestoresMemberships(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")

	a := env.plant(owner, "Ada Lovelace", grove.ID)
	b := env.plant(owner, "Charles Babbage", grove.ID)
	c := env.plant(owner, "Mary Somerville", "")
	subscribed, _ := env.subscribedMembership(c.Person.ID, grove.ID)

	frozen, err := env.svc.Membership.FreezeGrove(env.ctx, grove.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, frozen)

	assert.Equal(t, repository.MembershipFrozen, env.membership(a.Membership.ID).Status)
	assert.Equal(t, repository.MembershipFrozen, env.membership(b.Membership.ID).Status)
	assert.Equal(t, repository.MembershipActive, env.membership(subscribed.ID).Status)

	editable, err := env.svc.Membership.CanEditBranch(env.ctx, a.Branch.ID)
	require.NoError(t, err)
	assert.False(t, editable)

	again, err := env.svc.Membership.FreezeGrove(env.ctx, grove.ID, owner)
	require.NoError(t, err)
	assert.Zero(t, again)

	thawed, err := env.svc.Membership.UnfreezeGrove(env.ctx, grove.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, thawed)

	for _, id := range []string{a.Membership.ID, b.Membership.ID, subscribed.ID} {
		assert.Equal(t, repository.MembershipActive, env.membership(id).Status)
	}
	editable, err = env.svc.Membership.CanEditBranch(env.ctx, a.Branch.ID)
	require.NoError(t, err)
	assert.True(t, editable)

	assert.Equal(t, []string{"grove.frozen", "grove.unfrozen"}, env.auditActions("grove", grove.ID))
}

func TestUnfreezeGroveAlsoThawsSubscribedMemberships(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")
	c := env.plant(owner, "Mary Somerville", "")
	subscribed, _ := env.subscribedMembership(c.Person.ID, grove.ID)

	changed, err := env.svc.Membership.FreezeTree(env.ctx, subscribed.ID, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	thawed, err := env.svc.Membership.UnfreezeGrove(env.ctx, grove.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, thawed)
	assert.Equal(t, repository.MembershipActive, env.membership(subscribed.ID).Status)
}

func TestFreezeGroveRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	grove := env.createGrove("owner", "family")

	_, err := env.svc.Membership.FreezeGrove(env.ctx, grove.ID, account("stranger"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Membership.FreezeGrove(env.ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Membership.FreezeTree(env.ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPastDueGroveStaysEditable(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")
	a := env.plant(owner, "Ada Lovelace", grove.ID)

	require.NoError(t, env.svc.Membership.MarkGrovePastDue(env.ctx, grove.ID))

	editable, err := env.svc.Membership.CanEditBranch(env.ctx, a.Branch.ID)
	require.NoError(t, err)
	assert.True(t, editable)
	assert.Equal(t, repository.MembershipActive, env.membership(a.Membership.ID).Status)
}

func TestFreezeTreeOnSubscriptionExpiryRespectsActiveGrove(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")
	c := env.plant(owner, "Mary Somerville", "")
	subscribed, _ := env.subscribedMembership(c.Person.ID, grove.ID)

	changed, err := env.svc.Membership.FreezeTreeOnSubscriptionExpiry(env.ctx, subscribed.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, repository.MembershipActive, env.membership(subscribed.ID).Status)

	_, err = env.svc.Membership.CancelGrove(env.ctx, grove.ID, nil)
	require.NoError(t, err)

	changed, err = env.svc.Membership.FreezeTreeOnSubscriptionExpiry(env.ctx, subscribed.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, repository.MembershipFrozen, env.membership(subscribed.ID).Status)
}

func TestOwnerlessBranchFollowsOwnerGrove(t *testing.T) {
	env := newTestEnv(t)
	ownerID := "owner"
	grove := env.createGrove(ownerID, "family")

	branch := &repository.Branch{ID: "legacy-branch", OwnerID: &ownerID, Name: "Old notes", CreatedAt: env.clock()}
	env.repos.BranchRepo.(interface{ CreateBranch(*repository.Branch) }).CreateBranch(branch)

	editable, err := env.svc.Membership.CanEditBranch(env.ctx, branch.ID)
	require.NoError(t, err)
	assert.True(t, editable)

	_, err = env.svc.Membership.FreezeGrove(env.ctx, grove.ID, nil)
	require.NoError(t, err)

	editable, err = env.svc.Membership.CanEditBranch(env.ctx, branch.ID)
	require.NoError(t, err)
	assert.False(t, editable)
}
