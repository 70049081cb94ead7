package service

import (
	"context"
	"errors"

	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// MembershipService toggles groves and their tree memberships between active
// and frozen. A nil actor means the billing feed or an operator.
type MembershipService interface {
	FreezeGrove(ctx context.Context, groveID string, actor *Caller) (int, error)
	CancelGrove(ctx context.Context, groveID string, actor *Caller) (int, error)
	UnfreezeGrove(ctx context.Context, groveID string, actor *Caller) (int, error)
	MarkGrovePastDue(ctx context.Context, groveID string) error
	FreezeTree(ctx context.Context, membershipID string, actor *Caller) (bool, error)
	UnfreezeTree(ctx context.Context, membershipID string, actor *Caller) (bool, error)
	FreezeTreeOnSubscriptionExpiry(ctx context.Context, membershipID string) (bool, error)
	CanEditBranch(ctx context.Context, branchID string) (bool, error)
}

type membershipService struct {
	groveRepo      repository.GroveRepository
	membershipRepo repository.MembershipRepository
	access         AccessService
	audit          *auditor
	events         EventPublisher
	now            Clock
	log            zerolog.Logger
}

func NewMembershipService(repos *repository.Repositories, access AccessService, audit *auditor, events EventPublisher, now Clock, log zerolog.Logger) MembershipService {
	return &membershipService{
		groveRepo:      repos.GroveRepo,
		membershipRepo: repos.MembershipRepo,
		access:         access,
		audit:          audit,
		events:         events,
		now:            now,
		log:            log,
	}
}

func (s *membershipService) authorizeGrove(ctx context.Context, groveID string, actor *Caller) (*repository.Grove, error) {
	grove, err := s.groveRepo.FindByID(ctx, groveID)
	if err != nil {
		return nil, err
	}
	if grove == nil {
		return nil, notFound("grove")
	}
	if actor != nil && grove.OwnerID != actor.AccountID {
		return nil, forbidden("only the grove owner can change its status")
	}
	return grove, nil
}

func (s *membershipService) FreezeGrove(ctx context.Context, groveID string, actor *Caller) (int, error) {
	return s.freezeGrove(ctx, groveID, repository.GroveFrozen, actor)
}

func (s *membershipService) CancelGrove(ctx context.Context, groveID string, actor *Caller) (int, error) {
	return s.freezeGrove(ctx, groveID, repository.GroveCanceled, actor)
}

func (s *membershipService) freezeGrove(ctx context.Context, groveID, status string, actor *Caller) (int, error) {
	grove, err := s.authorizeGrove(ctx, groveID, actor)
	if err != nil {
		return 0, err
	}

	frozen, err := s.groveRepo.Freeze(ctx, groveID, status, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return 0, notFound("grove")
	}
	if err != nil {
		return 0, err
	}
	if grove.Status == status && frozen == 0 {
		return 0, nil
	}

	metrics.MembershipsFrozen.WithLabelValues("freeze").Add(float64(frozen))
	s.log.Info().Str("grove_id", groveID).Str("status", status).Int("frozen", frozen).Msg("grove frozen")
	s.audit.record(ctx, actor, "grove."+status, "grove", groveID, map[string]any{
		"previousStatus": grove.Status,
		"frozen":         frozen,
	})
	s.events.PublishToAccount(grove.OwnerID, EventGroveFrozen, map[string]any{
		"groveId": groveID,
		"status":  status,
		"frozen":  frozen,
	})
	return frozen, nil
}

func (s *membershipService) UnfreezeGrove(ctx context.Context, groveID string, actor *Caller) (int, error) {
	grove, err := s.authorizeGrove(ctx, groveID, actor)
	if err != nil {
		return 0, err
	}

	thawed, err := s.groveRepo.Unfreeze(ctx, groveID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return 0, notFound("grove")
	}
	if err != nil {
		return 0, err
	}
	if grove.Status == repository.GroveActive && thawed == 0 {
		return 0, nil
	}

	metrics.MembershipsFrozen.WithLabelValues("unfreeze").Add(float64(thawed))
	s.log.Info().Str("grove_id", groveID).Int("unfrozen", thawed).Msg("grove reactivated")
	s.audit.record(ctx, actor, "grove.unfrozen", "grove", groveID, map[string]any{
		"previousStatus": grove.Status,
		"unfrozen":       thawed,
	})
	s.events.PublishToAccount(grove.OwnerID, EventGroveUnfrozen, map[string]any{
		"groveId":  groveID,
		"unfrozen": thawed,
	})
	return thawed, nil
}

func (s *membershipService) MarkGrovePastDue(ctx context.Context, groveID string) error {
	err := s.groveRepo.SetStatus(ctx, groveID, repository.GrovePastDue, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("grove")
	}
	return err
}

func (s *membershipService) authorizeMembership(ctx context.Context, membershipID string, actor *Caller) (*repository.GroveTreeMembership, error) {
	m, err := s.membershipRepo.FindByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, notFound("membership")
	}
	if actor == nil {
		return m, nil
	}
	access, err := s.access.ResolvePerson(ctx, m.PersonID, actor)
	if err != nil {
		return nil, err
	}
	if !access.Authority.Owner {
		return nil, forbidden("only the tree owner can change its status")
	}
	return m, nil
}

func (s *membershipService) FreezeTree(ctx context.Context, membershipID string, actor *Caller) (bool, error) {
	if _, err := s.authorizeMembership(ctx, membershipID, actor); err != nil {
		return false, err
	}
	return s.setTreeStatus(ctx, membershipID, repository.MembershipFrozen, actor)
}

func (s *membershipService) UnfreezeTree(ctx context.Context, membershipID string, actor *Caller) (bool, error) {
	if _, err := s.authorizeMembership(ctx, membershipID, actor); err != nil {
		return false, err
	}
	return s.setTreeStatus(ctx, membershipID, repository.MembershipActive, actor)
}

// FreezeTreeOnSubscriptionExpiry freezes a tree whose own subscription
// lapsed, unless its grove still entitles it.
func (s *membershipService) FreezeTreeOnSubscriptionExpiry(ctx context.Context, membershipID string) (bool, error) {
	m, err := s.membershipRepo.FindByID(ctx, membershipID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, notFound("membership")
	}

	if m.GroveID != nil {
		grove, err := s.groveRepo.FindByID(ctx, *m.GroveID)
		if err != nil {
			return false, err
		}
		if grove != nil && grove.Status == repository.GroveActive {
			s.log.Debug().Str("membership_id", membershipID).Msg("subscription lapsed but grove is active, leaving tree unfrozen")
			return false, nil
		}
	}
	return s.setTreeStatus(ctx, membershipID, repository.MembershipFrozen, nil)
}

func (s *membershipService) setTreeStatus(ctx context.Context, membershipID, status string, actor *Caller) (bool, error) {
	changed, err := s.membershipRepo.SetStatus(ctx, membershipID, status, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, notFound("membership")
	}
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	direction := "freeze"
	if status == repository.MembershipActive {
		direction = "unfreeze"
	}
	metrics.MembershipsFrozen.WithLabelValues(direction).Inc()
	s.audit.record(ctx, actor, "membership."+status, "membership", membershipID, nil)
	return true, nil
}

func (s *membershipService) CanEditBranch(ctx context.Context, branchID string) (bool, error) {
	return s.access.CanEditBranch(ctx, branchID)
}
