package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Acceptance options
const (
	AcceptIntoGrove = "grove"
	AcceptSingle    = "single"
	AcceptNewGrove  = "new-grove"
)

type CreateTransferInput struct {
	PersonID       string
	RecipientEmail string
	Message        string
}

type AcceptTransferInput struct {
	Token  string
	Option string
	// GroveID is the destination for the grove option.
	GroveID string
	// PlanType and GroveName shape the grove created by new-grove.
	PlanType  string
	GroveName string
}

type AcceptTransferResult struct {
	Transfer     *repository.TreeTransfer
	Membership   *repository.GroveTreeMembership
	Grove        *repository.Grove
	Subscription *repository.TreeSubscription
}

// TransferLookup is what a recipient sees when opening an invitation link.
type TransferLookup struct {
	Transfer   *repository.TreeTransfer
	PersonName string
}

type TransferService interface {
	CreateTransfer(ctx context.Context, caller *Caller, input CreateTransferInput) (*repository.TreeTransfer, error)
	AcceptTransfer(ctx context.Context, caller *Caller, input AcceptTransferInput) (*AcceptTransferResult, error)
	GetTransferByToken(ctx context.Context, token string) (*TransferLookup, error)
	ListTransfersForPerson(ctx context.Context, caller *Caller, personID string) ([]*repository.TreeTransfer, error)
	SweepExpired(ctx context.Context) (int, error)
}

type TransferDeps struct {
	Repos       *repository.Repositories
	Access      AccessService
	Dispatcher  Dispatcher
	Events      EventPublisher
	Cache       TreeCache
	Audit       *auditor
	Policy      config.Policy
	FrontendURL string
	Now         Clock
	Logger      zerolog.Logger
}

type transferService struct {
	*TransferDeps
}

func NewTransferService(deps *TransferDeps) TransferService {
	return &transferService{TransferDeps: deps}
}

// newTransferToken returns 256 random bits, URL-safe.
func newTransferToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *transferService) acceptURL(token string) string {
	return strings.TrimRight(s.FrontendURL, "/") + "/transfers/" + token
}

func (s *transferService) CreateTransfer(ctx context.Context, caller *Caller, input CreateTransferInput) (*repository.TreeTransfer, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	recipient := normalizeEmail(input.RecipientEmail)
	if !validEmail(recipient) {
		return nil, invalid("recipientEmail", "must be a valid email address")
	}
	if caller.Email != "" && recipient == normalizeEmail(caller.Email) {
		return nil, invalid("recipientEmail", "cannot transfer a tree to yourself")
	}

	access, err := s.Access.ResolvePerson(ctx, input.PersonID, caller)
	if err != nil {
		return nil, err
	}
	person := access.Person
	if !person.IsLegacy {
		return nil, invalid("personId", "only legacy trees can be transferred")
	}
	if !access.Authority.CanTransfer() {
		if access.Authority.TrusteeLapsed {
			return nil, &ExpiredError{What: "trustee authority", ExpiredAt: *person.TrusteeExpiresAt}
		}
		return nil, forbidden("only the owner or an active trustee can transfer this tree")
	}

	token, err := newTransferToken()
	if err != nil {
		return nil, fmt.Errorf("generate transfer token: %w", err)
	}

	now := s.Now()
	transfer := &repository.TreeTransfer{
		PersonID:       person.ID,
		SenderUserID:   caller.AccountID,
		SenderEmail:    normalizeEmail(caller.Email),
		RecipientEmail: recipient,
		Message:        strings.TrimSpace(input.Message),
		Token:          token,
		Status:         repository.TransferPending,
		ExpiresAt:      now.Add(s.Policy.TransferTTL),
		CreatedAt:      now,
	}

	if err := s.Repos.TransferRepo.Create(ctx, transfer, now); err != nil {
		var pending *repository.PendingTransferError
		if errors.As(err, &pending) {
			conflict := &ConflictError{Reason: "a transfer is already pending for this tree"}
			if pending.Existing != nil {
				conflict.TransferID = pending.Existing.ID
				conflict.TransferStatus = pending.Existing.Status
				expiresAt := pending.Existing.ExpiresAt
				conflict.ExpiresAt = &expiresAt
			}
			return nil, conflict
		}
		return nil, err
	}

	// The row is committed before dispatch so no lock is held across the
	// network call. If delivery fails the invitation must not exist.
	sendErr := s.Dispatcher.Send(ctx, recipient, TemplateTransferInvitation, map[string]any{
		"PersonName": person.Name,
		"SenderName": caller.DisplayName,
		"Message":    transfer.Message,
		"AcceptURL":  s.acceptURL(token),
		"ExpiresAt":  transfer.ExpiresAt.Format("January 2, 2006"),
	})
	if sendErr != nil {
		s.compensate(ctx, caller, transfer, sendErr)
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}

	metrics.TransfersCreated.Inc()
	s.Logger.Info().Str("transfer_id", transfer.ID).Str("person_id", person.ID).Msg("transfer invitation sent")
	s.Audit.record(ctx, caller, "transfer.created", "transfer", transfer.ID, map[string]any{
		"personId":  person.ID,
		"recipient": recipient,
		"expiresAt": transfer.ExpiresAt,
	})
	return transfer, nil
}

func (s *transferService) compensate(ctx context.Context, caller *Caller, transfer *repository.TreeTransfer, cause error) {
	ctx = context.WithoutCancel(ctx)
	metrics.TransfersCompensated.Inc()

	if err := s.Repos.TransferRepo.Delete(ctx, transfer.ID); err != nil {
		s.Logger.Error().Err(err).AnErr("dispatch_error", cause).
			Str("transfer_id", transfer.ID).Str("person_id", transfer.PersonID).
			Msg("invitation undeliverable and compensating delete failed")
		return
	}
	s.Logger.Warn().AnErr("dispatch_error", cause).
		Str("transfer_id", transfer.ID).Str("person_id", transfer.PersonID).
		Msg("invitation undeliverable, transfer row deleted")
	s.Audit.record(ctx, caller, "transfer.compensated", "transfer", transfer.ID, map[string]any{
		"personId": transfer.PersonID,
		"reason":   cause.Error(),
	})
}

func (s *transferService) AcceptTransfer(ctx context.Context, caller *Caller, input AcceptTransferInput) (*AcceptTransferResult, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}

	transfer, err := s.Repos.TransferRepo.FindByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, notFound("transfer")
	}

	now := s.Now()
	switch transfer.EffectiveStatus(now) {
	case repository.TransferPending:
	case repository.TransferExpired:
		return nil, &ExpiredError{What: "transfer", ExpiredAt: transfer.ExpiresAt}
	default:
		return nil, &ConflictError{Reason: "transfer already resolved", TransferID: transfer.ID, TransferStatus: transfer.Status}
	}
	if transfer.SenderUserID == caller.AccountID {
		return nil, forbidden("the sender cannot accept their own transfer")
	}

	acceptance, err := s.buildAcceptance(ctx, caller, transfer, input)
	if err != nil {
		return nil, err
	}

	branches, err := s.Repos.BranchRepo.FindByPerson(ctx, transfer.PersonID)
	if err != nil {
		return nil, err
	}
	if len(branches) > 0 {
		// The prior caretaker keeps contributor access to the entries.
		acceptance.SenderMember = &repository.BranchMember{
			BranchID:  branches[0].ID,
			AccountID: transfer.SenderUserID,
			Role:      repository.RoleContributor,
			CreatedAt: now,
		}
	}

	if err := s.Repos.TransferRepo.Accept(ctx, acceptance); err != nil {
		return nil, s.mapAcceptError(transfer, err)
	}

	accepted, err := s.Repos.TransferRepo.FindByID(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}
	result := &AcceptTransferResult{
		Transfer:     accepted,
		Membership:   acceptance.Membership,
		Grove:        acceptance.NewGrove,
		Subscription: acceptance.Subscription,
	}
	if result.Grove == nil && acceptance.Membership.GroveID != nil {
		if result.Grove, err = s.Repos.GroveRepo.FindByID(ctx, *acceptance.Membership.GroveID); err != nil {
			return nil, err
		}
	}

	s.afterAccept(ctx, caller, accepted, input.Option)
	return result, nil
}

func (s *transferService) buildAcceptance(ctx context.Context, caller *Caller, transfer *repository.TreeTransfer, input AcceptTransferInput) (*repository.TransferAcceptance, error) {
	now := s.Now()
	acceptance := &repository.TransferAcceptance{
		TransferID: transfer.ID,
		AcceptedBy: caller.AccountID,
		AcceptedAt: now,
		Membership: &repository.GroveTreeMembership{
			PersonID:   transfer.PersonID,
			IsOriginal: false,
			Status:     repository.MembershipActive,
			CreatedAt:  now,
		},
	}

	switch input.Option {
	case AcceptIntoGrove:
		if input.GroveID == "" {
			return nil, invalid("groveId", "required for the grove option")
		}
		grove, err := s.Repos.GroveRepo.FindByID(ctx, input.GroveID)
		if err != nil {
			return nil, err
		}
		if grove == nil {
			return nil, notFound("grove")
		}
		if grove.OwnerID != caller.AccountID {
			return nil, forbidden("destination grove is not yours")
		}
		if !groveEntitles(grove) {
			return nil, forbidden("destination grove is " + grove.Status)
		}
		acceptance.Membership.GroveID = &grove.ID

	case AcceptNewGrove:
		plan, err := choosePlan(input.PlanType, 1)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.GroveName)
		if name == "" {
			name = strings.TrimSpace(caller.DisplayName + " Grove")
		}
		acceptance.NewGrove = &repository.Grove{
			Name:         name,
			OwnerID:      caller.AccountID,
			PlanType:     plan.Type,
			TreeLimit:    plan.TreeLimit,
			MonthlyPrice: plan.MonthlyPrice,
			Status:       repository.GroveActive,
			CreatedAt:    now,
		}

	case AcceptSingle:
		acceptance.Subscription = &repository.TreeSubscription{
			AccountID:    caller.AccountID,
			PersonID:     transfer.PersonID,
			PlanType:     singlePlan.Type,
			MonthlyPrice: singlePlan.MonthlyPrice,
			Status:       repository.SubscriptionActive,
			CreatedAt:    now,
		}

	default:
		return nil, invalid("option", "must be one of grove, single, new-grove")
	}
	return acceptance, nil
}

func (s *transferService) mapAcceptError(transfer *repository.TreeTransfer, err error) error {
	var resolved *repository.TransferResolvedError
	var expired *repository.TransferExpiredError
	var full *repository.GroveFullError
	switch {
	case errors.As(err, &resolved):
		return &ConflictError{Reason: "transfer already resolved", TransferID: transfer.ID, TransferStatus: resolved.Status}
	case errors.As(err, &expired):
		return &ExpiredError{What: "transfer", ExpiredAt: expired.ExpiresAt}
	case errors.As(err, &full):
		return &GroveCapacityError{TreeCount: full.Count, TreeLimit: full.Limit}
	case errors.Is(err, repository.ErrNotFound):
		return notFound("transfer")
	}
	return err
}

// afterAccept runs once the ownership change is durable. Nothing here can
// undo the acceptance, so failures are only logged.
func (s *transferService) afterAccept(ctx context.Context, caller *Caller, transfer *repository.TreeTransfer, option string) {
	metrics.TransfersAccepted.WithLabelValues(option).Inc()
	s.Logger.Info().Str("transfer_id", transfer.ID).Str("person_id", transfer.PersonID).
		Str("accepted_by", caller.AccountID).Str("option", option).Msg("transfer accepted")

	personName := ""
	if p, err := s.Repos.PersonRepo.FindByID(ctx, transfer.PersonID); err == nil && p != nil {
		personName = p.Name
	}
	data := map[string]any{
		"PersonName":    personName,
		"RecipientName": caller.DisplayName,
		"Option":        option,
	}
	if transfer.SenderEmail != "" {
		if err := s.Dispatcher.Send(ctx, transfer.SenderEmail, TemplateTransferCompletedSender, data); err != nil {
			s.Logger.Error().Err(err).Str("transfer_id", transfer.ID).Msg("failed to notify sender of completed transfer")
		}
	}
	if caller.Email != "" {
		if err := s.Dispatcher.Send(ctx, caller.Email, TemplateTransferCompletedReceiver, data); err != nil {
			s.Logger.Error().Err(err).Str("transfer_id", transfer.ID).Msg("failed to notify recipient of completed transfer")
		}
	}

	s.Audit.record(ctx, caller, "transfer.accepted", "transfer", transfer.ID, map[string]any{
		"personId":           transfer.PersonID,
		"previousOwner":      transfer.SenderUserID,
		"option":             option,
		"destinationGroveId": transfer.DestinationGroveID,
	})
	s.Events.PublishToAccount(transfer.SenderUserID, EventTransferAccepted, map[string]any{
		"transferId": transfer.ID,
		"personId":   transfer.PersonID,
	})
	s.Cache.Invalidate(ctx, transfer.PersonID)
}

func (s *transferService) GetTransferByToken(ctx context.Context, token string) (*TransferLookup, error) {
	transfer, err := s.Repos.TransferRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, notFound("transfer")
	}
	transfer.Status = transfer.EffectiveStatus(s.Now())

	lookup := &TransferLookup{Transfer: transfer}
	person, err := s.Repos.PersonRepo.FindByID(ctx, transfer.PersonID)
	if err != nil {
		return nil, err
	}
	if person != nil {
		lookup.PersonName = person.Name
	}
	return lookup, nil
}

func (s *transferService) ListTransfersForPerson(ctx context.Context, caller *Caller, personID string) ([]*repository.TreeTransfer, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	access, err := s.Access.ResolvePerson(ctx, personID, caller)
	if err != nil {
		return nil, err
	}

	transfers, err := s.Repos.TransferRepo.FindByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	visible := make([]*repository.TreeTransfer, 0, len(transfers))
	for _, t := range transfers {
		if !access.Authority.Any() && t.SenderUserID != caller.AccountID {
			continue
		}
		t.Status = t.EffectiveStatus(now)
		visible = append(visible, t)
	}
	if len(visible) == 0 && !access.Authority.Any() {
		return nil, forbidden("no authority over this tree")
	}
	return visible, nil
}

func (s *transferService) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.Repos.TransferRepo.ExpireStale(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.TransfersExpired.Add(float64(n))
		s.Logger.Info().Int("expired", n).Msg("stale transfers expired")
	}
	return n, nil
}
