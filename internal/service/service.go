package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/logger"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Caller is the identity supplied by the session provider. A nil *Caller is
// an anonymous visitor.
type Caller struct {
	AccountID   string
	Email       string
	DisplayName string
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// Notification template kinds
const (
	TemplateTransferInvitation        = "transfer_invitation"
	TemplateTransferCompletedSender   = "transfer_completed_sender"
	TemplateTransferCompletedReceiver = "transfer_completed_recipient"
)

// Dispatcher delivers templated notifications and reports whether delivery
// succeeded.
type Dispatcher interface {
	Send(ctx context.Context, recipient, templateKind string, data map[string]any) error
}

// Lifecycle event names pushed to connected sessions
const (
	EventTransferAccepted = "transfer_accepted"
	EventGroveFrozen      = "grove_frozen"
	EventGroveUnfrozen    = "grove_unfrozen"
	EventMemoryPending    = "memory_pending_approval"
)

// EventPublisher pushes lifecycle events to an account's live sessions.
type EventPublisher interface {
	PublishToAccount(accountID, event string, payload map[string]any)
}

// TreeCache caches rooted Tree views by queried Person.
type TreeCache interface {
	GetTree(ctx context.Context, personID string) (*TreeView, bool)
	SetTree(ctx context.Context, view *TreeView)
	Invalidate(ctx context.Context, personIDs ...string)
}

type ServiceDeps struct {
	Config     *config.Config
	Repos      *repository.Repositories
	Dispatcher Dispatcher
	Events     EventPublisher
	Cache      TreeCache
	Logger     zerolog.Logger
	Now        Clock
}

// Services holds all service instances
type Services struct {
	Auth       AuthService
	Access     AccessService
	Membership MembershipService
	Trustee    TrusteeService
	Transfer   TransferService
	Root       RootService
	Person     PersonService
	Memory     MemoryService
	Branch     BranchService
	Billing    BillingService
}

// NewServices creates all services
func NewServices(deps *ServiceDeps) *Services {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	events := deps.Events
	if events == nil {
		events = noopEvents{}
	}
	cache := deps.Cache
	if cache == nil {
		cache = noopCache{}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = logDispatcher{log: logger.Component(deps.Logger, "dispatch")}
	}

	repos := deps.Repos
	cfg := deps.Config
	audit := &auditor{repo: repos.AuditRepo, log: logger.Component(deps.Logger, "audit"), now: now}

	trustee := NewTrusteeService(repos.PersonRepo, audit, now, logger.Component(deps.Logger, "trustee"))
	access := NewAccessService(repos, trustee, now)
	membership := NewMembershipService(repos, access, audit, events, now, logger.Component(deps.Logger, "freeze"))
	memory := NewMemoryService(repos, access, events, cfg.Policy, now, logger.Component(deps.Logger, "memory"))
	person := NewPersonService(repos, access, memory, audit, cfg, now, logger.Component(deps.Logger, "person"))

	return &Services{
		Auth:       NewAuthService(cfg.JWTSecret, cfg.JWTIssuer),
		Access:     access,
		Membership: membership,
		Trustee:    trustee,
		Transfer: NewTransferService(&TransferDeps{
			Repos:       repos,
			Access:      access,
			Dispatcher:  dispatcher,
			Events:      events,
			Cache:       cache,
			Audit:       audit,
			Policy:      cfg.Policy,
			FrontendURL: cfg.FrontendURL,
			Now:         now,
			Logger:      logger.Component(deps.Logger, "transfer"),
		}),
		Root:    NewRootService(repos, access, cache, audit, now, logger.Component(deps.Logger, "root")),
		Person:  person,
		Memory:  memory,
		Branch:  NewBranchService(repos, access, now),
		Billing: NewBillingService(repos, membership, now, logger.Component(deps.Logger, "billing")),
	}
}

// ---------------------------------------------------------------------------
// Audit sink
// ---------------------------------------------------------------------------

const (
	actorAccount   = "account"
	actorAnonymous = "anonymous"
	actorSystem    = "system"
)

type auditor struct {
	repo repository.AuditRepository
	log  zerolog.Logger
	now  Clock
}

// record appends an audit row. Failures are logged; the mutation being
// audited has already committed. A nil actor is recorded as the system.
func (a *auditor) record(ctx context.Context, actor *Caller, action, targetType, targetID string, meta map[string]any) {
	if actor == nil {
		a.write(ctx, nil, actorSystem, action, targetType, targetID, meta)
		return
	}
	a.write(ctx, &actor.AccountID, actorAccount, action, targetType, targetID, meta)
}

func (a *auditor) recordAnonymous(ctx context.Context, action, targetType, targetID string, meta map[string]any) {
	a.write(ctx, nil, actorAnonymous, action, targetType, targetID, meta)
}

func (a *auditor) write(ctx context.Context, actorID *string, actorType, action, targetType, targetID string, meta map[string]any) {
	event := &repository.AuditEvent{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  a.now(),
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			a.log.Error().Err(err).Str("action", action).Msg("failed to encode audit metadata")
		} else {
			event.Metadata = raw
		}
	}
	if err := a.repo.Append(context.WithoutCancel(ctx), event); err != nil {
		a.log.Error().Err(err).Str("action", action).Str("target", targetID).Msg("failed to append audit event")
	}
}

// ---------------------------------------------------------------------------
// Defaults for optional collaborators
// ---------------------------------------------------------------------------

type noopEvents struct{}

func (noopEvents) PublishToAccount(string, string, map[string]any) {}

type noopCache struct{}

func (noopCache) GetTree(context.Context, string) (*TreeView, bool) { return nil, false }
func (noopCache) SetTree(context.Context, *TreeView)                {}
func (noopCache) Invalidate(context.Context, ...string)             {}

// logDispatcher stands in when no SMTP relay is configured.
type logDispatcher struct {
	log zerolog.Logger
}

func (d logDispatcher) Send(ctx context.Context, recipient, templateKind string, data map[string]any) error {
	d.log.Info().Str("recipient", recipient).Str("template", templateKind).Msg("notification not configured, skipping send")
	return nil
}
