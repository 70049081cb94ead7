package service

import (
	"context"
	"errors"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Billing feed event types
const (
	BillingGroveActive     = "grove.active"
	BillingGrovePastDue    = "grove.past_due"
	BillingGroveFrozen     = "grove.frozen"
	BillingGroveCanceled   = "grove.canceled"
	BillingTreeLapsed      = "tree.lapsed"
	BillingTreeReactivated = "tree.reactivated"
)

// BillingEvent is one signal from the subscription status feed. Grove events
// carry GroveID; tree events carry MembershipID or SubscriptionID.
type BillingEvent struct {
	Type           string
	GroveID        string
	MembershipID   string
	SubscriptionID string
}

type BillingResult struct {
	Changed int
}

type BillingService interface {
	HandleEvent(ctx context.Context, event BillingEvent) (*BillingResult, error)
}

type billingService struct {
	subscriptionRepo repository.SubscriptionRepository
	membershipRepo   repository.MembershipRepository
	membership       MembershipService
	now              Clock
	log              zerolog.Logger
}

func NewBillingService(repos *repository.Repositories, membership MembershipService, now Clock, log zerolog.Logger) BillingService {
	return &billingService{
		subscriptionRepo: repos.SubscriptionRepo,
		membershipRepo:   repos.MembershipRepo,
		membership:       membership,
		now:              now,
		log:              log,
	}
}

func (s *billingService) HandleEvent(ctx context.Context, event BillingEvent) (*BillingResult, error) {
	s.log.Info().Str("type", event.Type).Str("grove_id", event.GroveID).
		Str("membership_id", event.MembershipID).Str("subscription_id", event.SubscriptionID).
		Msg("billing event received")

	switch event.Type {
	case BillingGroveActive, BillingGrovePastDue, BillingGroveFrozen, BillingGroveCanceled:
		if event.GroveID == "" {
			return nil, invalid("groveId", "required for grove events")
		}
	}

	result := &BillingResult{}
	var err error
	switch event.Type {
	case BillingGroveActive:
		result.Changed, err = s.membership.UnfreezeGrove(ctx, event.GroveID, nil)
	case BillingGrovePastDue:
		err = s.membership.MarkGrovePastDue(ctx, event.GroveID)
	case BillingGroveFrozen:
		result.Changed, err = s.membership.FreezeGrove(ctx, event.GroveID, nil)
	case BillingGroveCanceled:
		result.Changed, err = s.membership.CancelGrove(ctx, event.GroveID, nil)
	case BillingTreeLapsed, BillingTreeReactivated:
		return s.handleTreeEvent(ctx, event)
	default:
		return nil, invalid("type", "unknown billing event "+event.Type)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *billingService) handleTreeEvent(ctx context.Context, event BillingEvent) (*BillingResult, error) {
	membershipID, err := s.resolveMembership(ctx, event)
	if err != nil {
		return nil, err
	}

	subStatus := repository.SubscriptionActive
	if event.Type == BillingTreeLapsed {
		subStatus = repository.SubscriptionLapsed
	}
	if event.SubscriptionID != "" {
		if err := s.subscriptionRepo.SetStatus(ctx, event.SubscriptionID, subStatus); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, notFound("subscription")
			}
			return nil, err
		}
	}

	var changed bool
	if event.Type == BillingTreeLapsed {
		changed, err = s.membership.FreezeTreeOnSubscriptionExpiry(ctx, membershipID)
	} else {
		changed, err = s.membership.UnfreezeTree(ctx, membershipID, nil)
	}
	if err != nil {
		return nil, err
	}

	result := &BillingResult{}
	if changed {
		result.Changed = 1
	}
	return result, nil
}

func (s *billingService) resolveMembership(ctx context.Context, event BillingEvent) (string, error) {
	if event.MembershipID != "" {
		return event.MembershipID, nil
	}
	if event.SubscriptionID == "" {
		return "", invalid("membershipId", "tree events need a membership or subscription id")
	}
	m, err := s.membershipRepo.FindBySubscription(ctx, event.SubscriptionID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", notFound("membership")
	}
	return m.ID, nil
}
