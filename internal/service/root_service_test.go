package service

import (
	"errors"
	"testing"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchIDs(view *TreeView) []string {
	ids := make([]string, 0, len(view.Branches))
	for _, b := range view.Branches {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestCreateRootIsSymmetric(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := account("alice"), account("bob")
	ga := env.createGrove("alice", "family")
	gb := env.createGrove("bob", "family")
	a := env.plant(alice, "Ada Lovelace", ga.ID)
	b := env.plant(bob, "Ada Lovelace", gb.ID)

	_, err := env.svc.Memory.AddMemory(env.ctx, alice, a.Branch.ID, MemoryInput{Body: "from alice"})
	require.NoError(t, err)

	root, err := env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, b.Person.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.RootActive, root.Status)
	assert.Equal(t, "alice", root.CreatedBy)

	fromA, err := env.svc.Root.GetTreeBranches(env.ctx, alice, a.Person.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.Branch.ID, b.Branch.ID}, branchIDs(fromA))
	assert.Equal(t, a.Person.ID, fromA.PersonIDs[0])

	fromB, err := env.svc.Root.GetTreeBranches(env.ctx, bob, b.Person.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.Branch.ID, b.Branch.ID}, branchIDs(fromB))

	// Rooting never moves entries.
	memories, err := env.repos.MemoryRepo.FindByBranches(env.ctx, []string{a.Branch.ID}, true)
	require.NoError(t, err)
	assert.Len(t, memories, 1)
	memories, err = env.repos.MemoryRepo.FindByBranches(env.ctx, []string{b.Branch.ID}, true)
	require.NoError(t, err)
	assert.Empty(t, memories)

	assert.Equal(t, []string{"root.created"}, env.auditActions("root", root.ID))
}

func TestCreateRootRejections(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := account("alice"), account("bob")
	a := env.plant(alice, "Ada Lovelace", "")
	b := env.plant(bob, "Ada Lovelace", "")

	_, err := env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, a.Person.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Root.CreateRoot(env.ctx, bob, a.Person.ID, b.Person.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Root.CreateRoot(env.ctx, nil, a.Person.ID, b.Person.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	root, err := env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, b.Person.ID)
	require.NoError(t, err)

	// Either direction names the same pair.
	_, err = env.svc.Root.CreateRoot(env.ctx, bob, b.Person.ID, a.Person.ID)
	require.ErrorIs(t, err, ErrConflict)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, root.ID, conflict.RootID)
}

func TestRootTraversalFollowsComponent(t *testing.T) {
	env := newTestEnv(t)
	alice := account("alice")
	a := env.plant(alice, "Ada Lovelace", "")
	b := env.plant(alice, "Ada King", "")
	c := env.plant(alice, "Augusta Ada", "")
	d := env.plant(alice, "Unrelated", "")

	_, err := env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, b.Person.ID)
	require.NoError(t, err)
	_, err = env.svc.Root.CreateRoot(env.ctx, alice, b.Person.ID, c.Person.ID)
	require.NoError(t, err)

	view, err := env.svc.Root.GetTreeBranches(env.ctx, alice, a.Person.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.Person.ID, b.Person.ID, c.Person.ID}, view.PersonIDs)
	assert.NotContains(t, branchIDs(view), d.Branch.ID)
}

func TestDissolveRootRemovesTraversalOnly(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := account("alice"), account("bob")
	a := env.plant(alice, "Ada Lovelace", "")
	b := env.plant(bob, "Ada Lovelace", "")

	root, err := env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, b.Person.ID)
	require.NoError(t, err)

	cached, err := env.svc.Root.GetTreeBranches(env.ctx, alice, a.Person.ID)
	require.NoError(t, err)
	assert.Len(t, cached.Branches, 2)
	_, ok := env.cache.GetTree(env.ctx, a.Person.ID)
	require.True(t, ok)

	_, err = env.svc.Root.DissolveRoot(env.ctx, account("stranger"), root.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	dissolved, err := env.svc.Root.DissolveRoot(env.ctx, bob, root.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.RootDissolved, dissolved.Status)
	require.NotNil(t, dissolved.DissolvedAt)

	_, ok = env.cache.GetTree(env.ctx, a.Person.ID)
	assert.False(t, ok)

	view, err := env.svc.Root.GetTreeBranches(env.ctx, alice, a.Person.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Branch.ID}, branchIDs(view))

	again, err := env.svc.Root.DissolveRoot(env.ctx, alice, root.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.RootDissolved, again.Status)

	// The dissolved edge is kept and the pair may be rooted again.
	stored, err := env.repos.RootRepo.FindByID(env.ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	_, err = env.svc.Root.CreateRoot(env.ctx, alice, a.Person.ID, b.Person.ID)
	assert.NoError(t, err)

	assert.Equal(t, []string{"root.created", "root.dissolved"}, env.auditActions("root", root.ID))
}

func TestTreeViewVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	grove := env.createGrove("owner", "family")
	private := env.plant(owner, "Ada Lovelace", grove.ID)
	public := env.plant(owner, "Grace Hopper", "")

	_, err := env.svc.Root.GetTreeBranches(env.ctx, account("stranger"), private.Person.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	view, err := env.svc.Root.GetTreeBranches(env.ctx, nil, public.Person.ID)
	require.NoError(t, err)
	assert.Len(t, view.Branches, 1)
}
