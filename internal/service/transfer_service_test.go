package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) sendTransfer(sender *Caller, personID, recipient string) *repository.TreeTransfer {
	e.t.Helper()
	transfer, err := e.svc.Transfer.CreateTransfer(e.ctx, sender, CreateTransferInput{
		PersonID:       personID,
		RecipientEmail: recipient,
		Message:        "She would want you to have this.",
	})
	require.NoError(e.t, err)
	return transfer
}

func TestCreateTransferSendsInvitation(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	transfer := env.sendTransfer(owner, res.Person.ID, "R@X.com")
	assert.Equal(t, repository.TransferPending, transfer.Status)
	assert.Equal(t, "r@x.com", transfer.RecipientEmail)
	assert.Equal(t, testEpoch.Add(30*24*time.Hour), transfer.ExpiresAt)
	assert.Len(t, transfer.Token, 43)

	sent := env.dispatcher.byTemplate(TemplateTransferInvitation)
	require.Len(t, sent, 1)
	assert.Equal(t, "r@x.com", sent[0].Recipient)
	assert.Equal(t, "https://grove.test/transfers/"+transfer.Token, sent[0].Data["AcceptURL"])
	assert.Equal(t, []string{"transfer.created"}, env.auditActions("transfer", transfer.ID))
}

func TestCreateTransferRejectsSecondPending(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	first := env.sendTransfer(owner, res.Person.ID, "r@x.com")

	_, err := env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "other@x.com"})
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.TransferID)
	assert.Equal(t, repository.TransferPending, conflict.TransferStatus)
	require.NotNil(t, conflict.ExpiresAt)
	assert.Equal(t, first.ExpiresAt, *conflict.ExpiresAt)
}

func TestConcurrentTransfersYieldOnePending(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	var (
		wg      sync.WaitGroup
		results outcomes
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "r@x.com"})
			results.add(err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, results.ok)
	assert.Len(t, results.errs, 5)
	assert.True(t, results.allAre(ErrConflict))

	transfers, err := env.repos.TransferRepo.FindByPerson(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}

func TestCreateTransferValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	_, err := env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "Owner@Example.com"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Transfer.CreateTransfer(env.ctx, account("stranger"), CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "r@x.com"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Transfer.CreateTransfer(env.ctx, nil, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "r@x.com"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: "missing", RecipientEmail: "r@x.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTransferByContactTrustee(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Person.CreateLegacyPerson(env.ctx, nil, CreatePersonInput{
		Name:         "Grace Hopper",
		DeathDate:    deathDate(),
		TrusteeEmail: "keeper@example.com",
	})
	require.NoError(t, err)
	keeper := &Caller{AccountID: "keeper-acct", Email: "keeper@example.com"}

	transfer, err := env.svc.Transfer.CreateTransfer(env.ctx, keeper, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "heir@example.com"})
	require.NoError(t, err)
	require.NoError(t, env.repos.TransferRepo.Delete(env.ctx, transfer.ID))

	env.advance(31 * 24 * time.Hour)
	_, err = env.svc.Transfer.CreateTransfer(env.ctx, keeper, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "heir@example.com"})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCreateTransferCompensatesFailedDispatch(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")

	env.dispatcher.fail = errors.New("smtp: connection refused")
	_, err := env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "r@x.com"})
	require.ErrorIs(t, err, ErrDeliveryFailed)

	transfers, err := env.repos.TransferRepo.FindByPerson(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Empty(t, transfers)

	env.dispatcher.fail = nil
	env.sendTransfer(owner, res.Person.ID, "r@x.com")
}

func TestAcceptTransferIntoExistingGrove(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	recipient := &Caller{AccountID: "recipient", Email: "r@x.com", DisplayName: "Recipient"}
	g1 := env.createGrove("owner", "family")
	g2 := env.createGrove("recipient", "family")
	res := env.plant(owner, "Ada Lovelace", g1.ID)

	transfer := env.sendTransfer(owner, res.Person.ID, "r@x.com")

	_, err := env.svc.Transfer.CreateTransfer(env.ctx, owner, CreateTransferInput{PersonID: res.Person.ID, RecipientEmail: "r@x.com"})
	require.ErrorIs(t, err, ErrConflict)

	env.advance(time.Hour)
	result, err := env.svc.Transfer.AcceptTransfer(env.ctx, recipient, AcceptTransferInput{
		Token:   transfer.Token,
		Option:  AcceptIntoGrove,
		GroveID: g2.ID,
	})
	require.NoError(t, err)

	p := env.person(res.Person.ID)
	require.NotNil(t, p.OwnerID)
	assert.Equal(t, "recipient", *p.OwnerID)
	assert.Equal(t, "recipient", *p.ModeratorID)
	assert.Nil(t, p.Trustee)

	require.NotNil(t, result.Membership.GroveID)
	assert.Equal(t, g2.ID, *result.Membership.GroveID)
	assert.False(t, result.Membership.IsOriginal)
	assert.Equal(t, g2.ID, result.Grove.ID)

	original := env.membership(res.Membership.ID)
	assert.Equal(t, g1.ID, *original.GroveID)
	assert.True(t, original.IsOriginal)
	assert.Equal(t, repository.MembershipActive, original.Status)

	assert.Equal(t, repository.TransferAccepted, result.Transfer.Status)
	require.NotNil(t, result.Transfer.AcceptedBy)
	assert.Equal(t, "recipient", *result.Transfer.AcceptedBy)
	require.NotNil(t, result.Transfer.AcceptedAt)
	assert.Equal(t, testEpoch.Add(time.Hour), *result.Transfer.AcceptedAt)
	require.NotNil(t, result.Transfer.DestinationGroveID)
	assert.Equal(t, g2.ID, *result.Transfer.DestinationGroveID)

	member, err := env.repos.BranchRepo.FindMember(env.ctx, res.Branch.ID, "owner")
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, repository.RoleContributor, member.Role)

	assert.Len(t, env.dispatcher.byTemplate(TemplateTransferCompletedSender), 1)
	assert.Len(t, env.dispatcher.byTemplate(TemplateTransferCompletedReceiver), 1)
	assert.Contains(t, env.events.events, publishedEvent{AccountID: "owner", Event: EventTransferAccepted})
	assert.Contains(t, env.cache.invalidated, res.Person.ID)
	assert.Equal(t, []string{"transfer.created", "transfer.accepted"}, env.auditActions("transfer", transfer.ID))

	// The new owner's grove now governs editability.
	_, err = env.svc.Membership.FreezeGrove(env.ctx, g1.ID, nil)
	require.NoError(t, err)
	editable, err := env.svc.Access.CanEditBranch(env.ctx, res.Branch.ID)
	require.NoError(t, err)
	assert.True(t, editable)
}

func TestAcceptTransferDemotesSenderToContributor(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	recipient := account("recipient")
	g1 := env.createGrove("owner", "family")
	g2 := env.createGrove("recipient", "family")
	res := env.plant(owner, "Ada Lovelace", g1.ID)

	transfer := env.sendTransfer(owner, res.Person.ID, "recipient@example.com")
	_, err := env.svc.Transfer.AcceptTransfer(env.ctx, recipient, AcceptTransferInput{
		Token:   transfer.Token,
		Option:  AcceptIntoGrove,
		GroveID: g2.ID,
	})
	require.NoError(t, err)

	branch, err := env.repos.BranchRepo.FindByID(env.ctx, res.Branch.ID)
	require.NoError(t, err)
	require.NotNil(t, branch.OwnerID)
	assert.Equal(t, "recipient", *branch.OwnerID)

	access, err := env.svc.Access.ResolveBranch(env.ctx, res.Branch.ID, owner)
	require.NoError(t, err)
	assert.False(t, access.Authority.Any())
	assert.True(t, access.IsMember)

	added, err := env.svc.Memory.AddMemory(env.ctx, owner, res.Branch.ID, MemoryInput{Body: "I still remember the porch."})
	require.NoError(t, err)
	assert.False(t, added.Memory.Approved)

	_, err = env.svc.Memory.ApproveMemory(env.ctx, owner, added.Memory.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Branch.AddHeir(env.ctx, owner, res.Branch.ID, "heir@example.com", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Branch.AddBranchMember(env.ctx, owner, res.Branch.ID, "cousin", "")
	assert.ErrorIs(t, err, ErrForbidden)

	byRecipient, err := env.svc.Memory.AddMemory(env.ctx, recipient, res.Branch.ID, MemoryInput{Body: "Mine now.", Visibility: repository.VisibilityPrivate})
	require.NoError(t, err)
	assert.True(t, byRecipient.Memory.Approved)
	assert.ErrorIs(t, env.svc.Memory.DeleteMemory(env.ctx, owner, byRecipient.Memory.ID), ErrForbidden)

	visible, err := env.svc.Memory.ListMemories(env.ctx, owner, res.Branch.ID, true)
	require.NoError(t, err)
	for _, m := range visible {
		assert.NotEqual(t, byRecipient.Memory.ID, m.ID)
	}

	approved, err := env.svc.Memory.ApproveMemory(env.ctx, recipient, added.Memory.ID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
}

func TestAcceptTransferSingle(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	recipient := account("recipient")
	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "recipient@example.com")

	result, err := env.svc.Transfer.AcceptTransfer(env.ctx, recipient, AcceptTransferInput{Token: transfer.Token, Option: AcceptSingle})
	require.NoError(t, err)

	assert.Nil(t, result.Grove)
	assert.Nil(t, result.Membership.GroveID)
	assert.False(t, result.Membership.IsOriginal)
	require.NotNil(t, result.Membership.SubscriptionID)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, SinglePlanType, result.Subscription.PlanType)
	assert.Equal(t, "2.99", result.Subscription.MonthlyPrice.StringFixed(2))

	groves, err := env.repos.GroveRepo.FindByOwner(env.ctx, "recipient")
	require.NoError(t, err)
	assert.Empty(t, groves)

	original := env.membership(res.Membership.ID)
	assert.Equal(t, repository.MembershipActive, original.Status)
	assert.True(t, original.IsOriginal)
}

func TestAcceptTransferNewGrove(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	recipient := account("recipient")
	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "recipient@example.com")

	result, err := env.svc.Transfer.AcceptTransfer(env.ctx, recipient, AcceptTransferInput{Token: transfer.Token, Option: AcceptNewGrove})
	require.NoError(t, err)

	groves, err := env.repos.GroveRepo.FindByOwner(env.ctx, "recipient")
	require.NoError(t, err)
	require.Len(t, groves, 1)
	assert.GreaterOrEqual(t, groves[0].TreeLimit, 1)
	assert.Equal(t, "seedling", groves[0].PlanType)
	assert.Equal(t, groves[0].ID, *result.Membership.GroveID)
	assert.Equal(t, groves[0].ID, *result.Transfer.DestinationGroveID)

	count, err := env.repos.GroveRepo.CountTrees(env.ctx, groves[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	original := env.membership(res.Membership.ID)
	assert.Equal(t, testOpenGroveID, *original.GroveID)
}

func TestAcceptTransferIntoFullGrove(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	recipient := account("recipient")
	full := env.createGrove("recipient", "seedling")
	env.plant(recipient, "Existing Tree", full.ID)

	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "recipient@example.com")

	_, err := env.svc.Transfer.AcceptTransfer(env.ctx, recipient, AcceptTransferInput{Token: transfer.Token, Option: AcceptIntoGrove, GroveID: full.ID})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	var groveErr *GroveCapacityError
	require.True(t, errors.As(err, &groveErr))
	assert.Equal(t, 1, groveErr.TreeCount)
	assert.Equal(t, 1, groveErr.TreeLimit)

	lookup, err := env.svc.Transfer.GetTransferByToken(env.ctx, transfer.Token)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferPending, lookup.Transfer.Status)
}

func TestAcceptTransferRules(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "r@x.com")
	stranger := env.createGrove("stranger", "family")

	_, err := env.svc.Transfer.AcceptTransfer(env.ctx, nil, AcceptTransferInput{Token: transfer.Token, Option: AcceptSingle})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Transfer.AcceptTransfer(env.ctx, owner, AcceptTransferInput{Token: transfer.Token, Option: AcceptSingle})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Transfer.AcceptTransfer(env.ctx, account("recipient"), AcceptTransferInput{Token: transfer.Token, Option: AcceptIntoGrove, GroveID: stranger.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Transfer.AcceptTransfer(env.ctx, account("recipient"), AcceptTransferInput{Token: transfer.Token, Option: "gift"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Transfer.AcceptTransfer(env.ctx, account("recipient"), AcceptTransferInput{Token: "nope", Option: AcceptSingle})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "r@x.com")

	var (
		wg      sync.WaitGroup
		results outcomes
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			acceptor := account("recipient-" + string(rune('a'+n)))
			_, err := env.svc.Transfer.AcceptTransfer(env.ctx, acceptor, AcceptTransferInput{Token: transfer.Token, Option: AcceptSingle})
			results.add(err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, results.ok)
	assert.Len(t, results.errs, 7)
	assert.True(t, results.allAre(ErrConflict))

	memberships, err := env.repos.MembershipRepo.FindByPerson(env.ctx, res.Person.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 2)
}

func TestTransferExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	transfer := env.sendTransfer(owner, res.Person.ID, "r@x.com")

	env.advance(30 * 24 * time.Hour)

	lookup, err := env.svc.Transfer.GetTransferByToken(env.ctx, transfer.Token)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferExpired, lookup.Transfer.Status)
	assert.Equal(t, "Ada Lovelace", lookup.PersonName)

	stored, err := env.repos.TransferRepo.FindByID(env.ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferPending, stored.Status)

	_, err = env.svc.Transfer.AcceptTransfer(env.ctx, account("recipient"), AcceptTransferInput{Token: transfer.Token, Option: AcceptSingle})
	assert.ErrorIs(t, err, ErrExpired)

	// A stale invitation does not block a new one.
	renewed := env.sendTransfer(owner, res.Person.ID, "r@x.com")
	assert.NotEqual(t, transfer.Token, renewed.Token)
}

func TestSweepExpiredRewritesStaleRows(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	a := env.plant(owner, "Ada Lovelace", "")
	b := env.plant(owner, "Charles Babbage", "")
	stale := env.sendTransfer(owner, a.Person.ID, "r@x.com")

	env.advance(20 * 24 * time.Hour)
	fresh := env.sendTransfer(owner, b.Person.ID, "r@x.com")
	env.advance(11 * 24 * time.Hour)

	n, err := env.svc.Transfer.SweepExpired(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.repos.TransferRepo.FindByID(env.ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferExpired, got.Status)
	got, err = env.repos.TransferRepo.FindByID(env.ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferPending, got.Status)
}

func TestListTransfersForPerson(t *testing.T) {
	env := newTestEnv(t)
	owner := account("owner")
	res := env.plant(owner, "Ada Lovelace", "")
	env.sendTransfer(owner, res.Person.ID, "r@x.com")

	transfers, err := env.svc.Transfer.ListTransfersForPerson(env.ctx, owner, res.Person.ID)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)

	_, err = env.svc.Transfer.ListTransfersForPerson(env.ctx, account("stranger"), res.Person.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
