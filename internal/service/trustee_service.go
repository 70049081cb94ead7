package service

import (
	"context"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

type TrusteeService interface {
	// CheckAndExpireTrustee returns the Person with its trustee state
	// reconciled against now. The second value is the designation cleared
	// by this call, if any.
	CheckAndExpireTrustee(ctx context.Context, personID string) (*repository.Person, repository.Caretaker, error)
}

type trusteeService struct {
	personRepo repository.PersonRepository
	audit      *auditor
	now        Clock
	log        zerolog.Logger
}

func NewTrusteeService(personRepo repository.PersonRepository, audit *auditor, now Clock, log zerolog.Logger) TrusteeService {
	return &trusteeService{personRepo: personRepo, audit: audit, now: now, log: log}
}

// trusteeLapsed reports whether a trustee grant exists but its window passed.
func trusteeLapsed(p *repository.Person, now time.Time) bool {
	return p.Trustee != nil && p.TrusteeExpiresAt != nil && p.TrusteeExpiresAt.Before(now)
}

func (s *trusteeService) CheckAndExpireTrustee(ctx context.Context, personID string) (*repository.Person, repository.Caretaker, error) {
	p, err := s.personRepo.FindByID(ctx, personID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, notFound("person")
	}

	now := s.now()
	if !trusteeLapsed(p, now) {
		return p, nil, nil
	}

	lapsed := p.Trustee
	changed, err := s.personRepo.ExpireTrustee(ctx, personID, now)
	if err != nil {
		return nil, nil, err
	}
	// Owner and moderator survive; only the time-boxed grant goes.
	p.Trustee = nil

	if changed {
		metrics.TrusteesExpired.Inc()
		s.log.Info().Str("person_id", personID).Time("expired_at", *p.TrusteeExpiresAt).Msg("trustee designation lapsed")
		s.audit.record(ctx, nil, "trustee.expired", "person", personID, map[string]any{
			"expiresAt": p.TrusteeExpiresAt,
		})
	}
	return p, lapsed, nil
}
