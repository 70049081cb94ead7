package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/logger"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/stretchr/testify/require"
)

const testOpenGroveID = "open-grove"

var testEpoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type sentNotification struct {
	Recipient string
	Template  string
	Data      map[string]any
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
	fail error
}

func (d *recordingDispatcher) Send(ctx context.Context, recipient, templateKind string, data map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sent = append(d.sent, sentNotification{Recipient: recipient, Template: templateKind, Data: data})
	return nil
}

func (d *recordingDispatcher) byTemplate(kind string) []sentNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []sentNotification
	for _, n := range d.sent {
		if n.Template == kind {
			out = append(out, n)
		}
	}
	return out
}

type publishedEvent struct {
	AccountID string
	Event     string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *recordingEvents) PublishToAccount(accountID, event string, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{AccountID: accountID, Event: event})
}

// mapCache is a TreeCache that remembers what was invalidated.
type mapCache struct {
	mu          sync.Mutex
	views       map[string]*TreeView
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{views: map[string]*TreeView{}}
}

func (c *mapCache) GetTree(ctx context.Context, personID string) (*TreeView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[personID]
	return v, ok
}

func (c *mapCache) SetTree(ctx context.Context, view *TreeView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[view.PersonID] = view
}

func (c *mapCache) Invalidate(ctx context.Context, personIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range personIDs {
		delete(c.views, id)
		c.invalidated = append(c.invalidated, id)
	}
}

type testEnv struct {
	t          *testing.T
	ctx        context.Context
	cfg        *config.Config
	repos      *repository.Repositories
	svc        *Services
	dispatcher *recordingDispatcher
	events     *recordingEvents
	cache      *mapCache

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, config.DefaultPolicy())
}

func newTestEnvWithPolicy(t *testing.T, policy config.Policy) *testEnv {
	t.Helper()
	env := &testEnv{
		t:   t,
		ctx: context.Background(),
		cfg: &config.Config{
			JWTSecret:   "test-secret",
			JWTIssuer:   "grove",
			FrontendURL: "https://grove.test/",
			OpenGroveID: testOpenGroveID,
			Policy:      policy,
		},
		repos:      repository.NewMemoryRepositories(),
		dispatcher: &recordingDispatcher{},
		events:     &recordingEvents{},
		cache:      newMapCache(),
		now:        testEpoch,
	}
	env.svc = NewServices(&ServiceDeps{
		Config:     env.cfg,
		Repos:      env.repos,
		Dispatcher: env.dispatcher,
		Events:     env.events,
		Cache:      env.cache,
		Logger:     logger.Nop(),
		Now:        env.clock,
	})

	require.NoError(t, env.repos.GroveRepo.Create(env.ctx, &repository.Grove{
		ID:        testOpenGroveID,
		Name:      "Open Grove",
		OwnerID:   "system",
		PlanType:  "open",
		TreeLimit: 1 << 30,
		Status:    repository.GroveActive,
		CreatedAt: testEpoch,
	}))
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func account(id string) *Caller {
	return &Caller{AccountID: id, Email: id + "@example.com", DisplayName: id}
}

func deathDate() *time.Time {
	d := time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &d
}

func (e *testEnv) createGrove(owner, plan string) *repository.Grove {
	e.t.Helper()
	p, err := choosePlan(plan, 1)
	require.NoError(e.t, err)
	g := &repository.Grove{
		Name:         owner + " grove",
		OwnerID:      owner,
		PlanType:     p.Type,
		TreeLimit:    p.TreeLimit,
		MonthlyPrice: p.MonthlyPrice,
		Status:       repository.GroveActive,
		CreatedAt:    e.clock(),
	}
	require.NoError(e.t, e.repos.GroveRepo.Create(e.ctx, g))
	return g
}

// plant creates a legacy Person owned by caller. An empty groveID plants it
// in the Open Grove.
func (e *testEnv) plant(caller *Caller, name, groveID string) *CreatePersonResult {
	e.t.Helper()
	res, err := e.svc.Person.CreateLegacyPerson(e.ctx, caller, CreatePersonInput{
		Name:       name,
		DeathDate:  deathDate(),
		GroveID:    groveID,
		Resolution: ResolutionCreateAnyway,
	})
	require.NoError(e.t, err)
	require.True(e.t, res.Created)
	return res
}

func (e *testEnv) person(id string) *repository.Person {
	e.t.Helper()
	p, err := e.repos.PersonRepo.FindByID(e.ctx, id)
	require.NoError(e.t, err)
	require.NotNil(e.t, p)
	return p
}

func (e *testEnv) membership(id string) *repository.GroveTreeMembership {
	e.t.Helper()
	m, err := e.repos.MembershipRepo.FindByID(e.ctx, id)
	require.NoError(e.t, err)
	require.NotNil(e.t, m)
	return m
}

func (e *testEnv) auditActions(targetType, targetID string) []string {
	e.t.Helper()
	reader, ok := e.repos.AuditRepo.(repository.AuditReader)
	require.True(e.t, ok)
	events, err := reader.FindByTarget(e.ctx, targetType, targetID)
	require.NoError(e.t, err)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	return actions
}

// outcomes counts nil and non-nil results of concurrent calls.
type outcomes struct {
	mu   sync.Mutex
	ok   int
	errs []error
}

func (o *outcomes) add(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.ok++
		return
	}
	o.errs = append(o.errs, err)
}

func (o *outcomes) allAre(target error) bool {
	for _, err := range o.errs {
		if !errors.Is(err, target) {
			return false
		}
	}
	return true
}
