package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore backs every in-memory repository. A single mutex makes each
// method one atomic unit, mirroring the transactions of the PostgreSQL
// repositories. Values are copied on the way in and out.
type memStore struct {
	mu sync.Mutex

	persons       map[string]Person
	branches      map[string]Branch
	branchMembers map[string]BranchMember
	groves        map[string]Grove
	memberships   map[string]GroveTreeMembership
	subscriptions map[string]TreeSubscription
	transfers     map[string]TreeTransfer
	roots         map[string]PersonRoot
	memories      map[string]Memory
	heirs         map[string]Heir
	audit         []AuditEvent

	// seq orders rows created within the same clock tick.
	seq      int64
	rowOrder map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		persons:       make(map[string]Person),
		branches:      make(map[string]Branch),
		branchMembers: make(map[string]BranchMember),
		groves:        make(map[string]Grove),
		memberships:   make(map[string]GroveTreeMembership),
		subscriptions: make(map[string]TreeSubscription),
		transfers:     make(map[string]TreeTransfer),
		roots:         make(map[string]PersonRoot),
		memories:      make(map[string]Memory),
		heirs:         make(map[string]Heir),
		rowOrder:      make(map[string]int64),
	}
}

func (s *memStore) stamp(id string) {
	s.seq++
	s.rowOrder[id] = s.seq
}

func (s *memStore) treeCount(groveID string) int {
	n := 0
	for _, m := range s.memberships {
		if m.GroveID != nil && *m.GroveID == groveID {
			n++
		}
	}
	return n
}

func (s *memStore) checkGroveCapacity(groveID string) error {
	g, ok := s.groves[groveID]
	if !ok {
		return ErrNotFound
	}
	if count := s.treeCount(groveID); count >= g.TreeLimit {
		return &GroveFullError{Count: count, Limit: g.TreeLimit}
	}
	return nil
}

func (s *memStore) putMembership(m *GroveTreeMembership) {
	ensureID(&m.ID)
	m.UpdatedAt = m.CreatedAt
	s.memberships[m.ID] = *m
	s.stamp(m.ID)
}

func (s *memStore) upsertMember(m *BranchMember) {
	for _, existing := range s.branchMembers {
		if existing.BranchID == m.BranchID && existing.AccountID == m.AccountID {
			*m = existing
			return
		}
	}
	ensureID(&m.ID)
	s.branchMembers[m.ID] = *m
	s.stamp(m.ID)
}

// ---------------------------------------------------------------------------
// Persons
// ---------------------------------------------------------------------------

type memPersonRepository struct{ s *memStore }

func (r *memPersonRepository) Plant(ctx context.Context, planting *Planting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := planting.Membership
	if planting.EnforceTreeLimit && m.GroveID != nil {
		if err := r.s.checkGroveCapacity(*m.GroveID); err != nil {
			return err
		}
	}

	p := planting.Person
	ensureID(&p.ID)
	p.UpdatedAt = p.CreatedAt
	r.s.persons[p.ID] = *p
	r.s.stamp(p.ID)

	b := planting.Branch
	ensureID(&b.ID)
	b.PersonID = &p.ID
	r.s.branches[b.ID] = *b
	r.s.stamp(b.ID)

	m.PersonID = p.ID
	r.s.putMembership(m)
	return nil
}

func (r *memPersonRepository) FindByID(ctx context.Context, id string) (*Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPersonRepository) FindLegacyByNormalizedName(ctx context.Context, normalized string) ([]*Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*Person
	for _, p := range r.s.persons {
		if p.IsLegacy && p.NameNormalized == normalized {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

func (r *memPersonRepository) ExpireTrustee(ctx context.Context, personID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.persons[personID]
	if !ok || p.Trustee == nil || p.TrusteeExpiresAt == nil || !p.TrusteeExpiresAt.Before(now) {
		return false, nil
	}
	p.Trustee = nil
	p.UpdatedAt = now
	r.s.persons[personID] = p
	return true, nil
}

func (r *memPersonRepository) Adopt(ctx context.Context, adoption *Adoption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := adoption.Membership
	p, ok := r.s.persons[m.PersonID]
	if !ok {
		return ErrNotFound
	}
	if m.GroveID != nil {
		if err := r.s.checkGroveCapacity(*m.GroveID); err != nil {
			return err
		}
	}
	r.s.putMembership(m)

	p.MemoryLimit = nil
	p.UpdatedAt = m.CreatedAt
	r.s.persons[p.ID] = p
	return nil
}

// ---------------------------------------------------------------------------
// Branches, members and heirs
// ---------------------------------------------------------------------------

type memBranchRepository struct{ s *memStore }

func (r *memBranchRepository) FindByID(ctx context.Context, id string) (*Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memBranchRepository) FindByPerson(ctx context.Context, personID string) ([]*Branch, error) {
	return r.FindByPersons(ctx, []string{personID})
}

func (r *memBranchRepository) FindByPersons(ctx context.Context, personIDs []string) ([]*Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := make(map[string]bool, len(personIDs))
	for _, id := range personIDs {
		want[id] = true
	}
	var out []*Branch
	for _, b := range r.s.branches {
		if b.PersonID != nil && want[*b.PersonID] {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

// CreateBranch is used by seeds and tests to build branches without a Person.
func (r *memBranchRepository) CreateBranch(b *Branch) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&b.ID)
	r.s.branches[b.ID] = *b
	r.s.stamp(b.ID)
}

func (r *memBranchRepository) UpsertMember(ctx context.Context, member *BranchMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.upsertMember(member)
	return nil
}

func (r *memBranchRepository) FindMember(ctx context.Context, branchID, accountID string) (*BranchMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.branchMembers {
		if m.BranchID == branchID && m.AccountID == accountID {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memBranchRepository) ListMembers(ctx context.Context, branchID string) ([]*BranchMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*BranchMember
	for _, m := range r.s.branchMembers {
		if m.BranchID == branchID {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

type memHeirRepository struct{ s *memStore }

func (r *memHeirRepository) Create(ctx context.Context, heir *Heir) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&heir.ID)
	r.s.heirs[heir.ID] = *heir
	r.s.stamp(heir.ID)
	return nil
}

func (r *memHeirRepository) FindByBranch(ctx context.Context, branchID string) ([]*Heir, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Heir
	for _, h := range r.s.heirs {
		if h.BranchID == branchID {
			h := h
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

// ---------------------------------------------------------------------------
// Groves, memberships and subscriptions
// ---------------------------------------------------------------------------

type memGroveRepository struct{ s *memStore }

func (r *memGroveRepository) Create(ctx context.Context, grove *Grove) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&grove.ID)
	grove.UpdatedAt = grove.CreatedAt
	r.s.groves[grove.ID] = *grove
	r.s.stamp(grove.ID)
	return nil
}

func (r *memGroveRepository) FindByID(ctx context.Context, id string) (*Grove, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groves[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *memGroveRepository) FindByOwner(ctx context.Context, ownerID string) ([]*Grove, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Grove
	for _, g := range r.s.groves {
		if g.OwnerID == ownerID {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

func (r *memGroveRepository) CountTrees(ctx context.Context, groveID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.treeCount(groveID), nil
}

func (r *memGroveRepository) SetStatus(ctx context.Context, groveID, status string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groves[groveID]
	if !ok {
		return ErrNotFound
	}
	g.Status = status
	g.UpdatedAt = now
	r.s.groves[groveID] = g
	return nil
}

func (r *memGroveRepository) Freeze(ctx context.Context, groveID, status string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.groves[groveID]
	if !ok {
		return 0, ErrNotFound
	}
	g.Status = status
	g.UpdatedAt = now
	r.s.groves[groveID] = g

	frozen := 0
	for id, m := range r.s.memberships {
		if m.GroveID == nil || *m.GroveID != groveID {
			continue
		}
		if m.Dependent() && m.Status == MembershipActive {
			m.Status = MembershipFrozen
			m.UpdatedAt = now
			r.s.memberships[id] = m
			frozen++
		}
	}
	return frozen, nil
}

func (r *memGroveRepository) Unfreeze(ctx context.Context, groveID string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.groves[groveID]
	if !ok {
		return 0, ErrNotFound
	}
	g.Status = GroveActive
	g.UpdatedAt = now
	r.s.groves[groveID] = g

	thawed := 0
	for id, m := range r.s.memberships {
		if m.GroveID != nil && *m.GroveID == groveID && m.Status == MembershipFrozen {
			m.Status = MembershipActive
			m.UpdatedAt = now
			r.s.memberships[id] = m
			thawed++
		}
	}
	return thawed, nil
}

type memMembershipRepository struct{ s *memStore }

func (r *memMembershipRepository) FindByID(ctx context.Context, id string) (*GroveTreeMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memMembershipRepository) newestFirst(match func(GroveTreeMembership) bool) []*GroveTreeMembership {
	var out []*GroveTreeMembership
	for _, m := range r.s.memberships {
		if match(m) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.s.rowOrder[out[i].ID] > r.s.rowOrder[out[j].ID]
	})
	return out
}

func (r *memMembershipRepository) FindByPerson(ctx context.Context, personID string) ([]*GroveTreeMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.newestFirst(func(m GroveTreeMembership) bool { return m.PersonID == personID }), nil
}

func (r *memMembershipRepository) FindByGrove(ctx context.Context, groveID string) ([]*GroveTreeMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.newestFirst(func(m GroveTreeMembership) bool {
		return m.GroveID != nil && *m.GroveID == groveID
	}), nil
}

func (r *memMembershipRepository) FindBySubscription(ctx context.Context, subscriptionID string) (*GroveTreeMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.memberships {
		if m.SubscriptionID != nil && *m.SubscriptionID == subscriptionID {
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memMembershipRepository) SetStatus(ctx context.Context, membershipID, status string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[membershipID]
	if !ok {
		return false, ErrNotFound
	}
	if m.Status == status {
		return false, nil
	}
	m.Status = status
	m.UpdatedAt = now
	r.s.memberships[membershipID] = m
	return true, nil
}

// CreateMembership is used by seeds and tests to attach memberships directly.
func (r *memMembershipRepository) CreateMembership(m *GroveTreeMembership) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.putMembership(m)
}

type memSubscriptionRepository struct{ s *memStore }

func (r *memSubscriptionRepository) FindByID(ctx context.Context, id string) (*TreeSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *memSubscriptionRepository) SetStatus(ctx context.Context, id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = status
	r.s.subscriptions[id] = sub
	return nil
}

// CreateSubscription is used by tests to attach an individual subscription.
func (r *memSubscriptionRepository) CreateSubscription(sub *TreeSubscription) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&sub.ID)
	r.s.subscriptions[sub.ID] = *sub
	r.s.stamp(sub.ID)
}

// ---------------------------------------------------------------------------
// Transfers
// ---------------------------------------------------------------------------

type memTransferRepository struct{ s *memStore }

func (r *memTransferRepository) Create(ctx context.Context, transfer *TreeTransfer, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, t := range r.s.transfers {
		if t.PersonID != transfer.PersonID || t.Status != TransferPending {
			continue
		}
		if !now.Before(t.ExpiresAt) {
			t.Status = TransferExpired
			r.s.transfers[id] = t
			continue
		}
		existing := t
		return &PendingTransferError{Existing: &existing}
	}

	ensureID(&transfer.ID)
	r.s.transfers[transfer.ID] = *transfer
	r.s.stamp(transfer.ID)
	return nil
}

func (r *memTransferRepository) FindByID(ctx context.Context, id string) (*TreeTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transfers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTransferRepository) FindByToken(ctx context.Context, token string) (*TreeTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.transfers {
		if t.Token == token {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memTransferRepository) FindByPerson(ctx context.Context, personID string) ([]*TreeTransfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*TreeTransfer
	for _, t := range r.s.transfers {
		if t.PersonID == personID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] > r.s.rowOrder[out[j].ID] })
	return out, nil
}

func (r *memTransferRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.transfers, id)
	return nil
}

func (r *memTransferRepository) Accept(ctx context.Context, a *TransferAcceptance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.transfers[a.TransferID]
	if !ok {
		return ErrNotFound
	}
	if t.Status != TransferPending {
		return &TransferResolvedError{Status: t.Status}
	}
	if !a.AcceptedAt.Before(t.ExpiresAt) {
		t.Status = TransferExpired
		r.s.transfers[t.ID] = t
		return &TransferExpiredError{ExpiresAt: t.ExpiresAt}
	}
	p, ok := r.s.persons[t.PersonID]
	if !ok {
		return ErrNotFound
	}

	// Validate everything before the first write so a failure leaves no trace.
	m := a.Membership
	if a.NewGrove == nil && m.GroveID != nil {
		if err := r.s.checkGroveCapacity(*m.GroveID); err != nil {
			return err
		}
	}

	if g := a.NewGrove; g != nil {
		ensureID(&g.ID)
		g.UpdatedAt = g.CreatedAt
		r.s.groves[g.ID] = *g
		r.s.stamp(g.ID)
		m.GroveID = &g.ID
	}
	if sub := a.Subscription; sub != nil {
		ensureID(&sub.ID)
		r.s.subscriptions[sub.ID] = *sub
		r.s.stamp(sub.ID)
		m.SubscriptionID = &sub.ID
	}

	m.PersonID = t.PersonID
	r.s.putMembership(m)

	p.OwnerID = stringPtr(a.AcceptedBy)
	p.ModeratorID = stringPtr(a.AcceptedBy)
	p.Trustee = nil
	p.TrusteeExpiresAt = nil
	p.UpdatedAt = a.AcceptedAt
	r.s.persons[p.ID] = p
	for id, b := range r.s.branches {
		if b.PersonID != nil && *b.PersonID == p.ID {
			b.OwnerID = stringPtr(a.AcceptedBy)
			r.s.branches[id] = b
		}
	}

	if a.SenderMember != nil {
		r.s.upsertMember(a.SenderMember)
	}

	acceptedAt := a.AcceptedAt
	t.Status = TransferAccepted
	t.AcceptedAt = &acceptedAt
	t.AcceptedBy = stringPtr(a.AcceptedBy)
	t.DestinationGroveID = m.GroveID
	r.s.transfers[t.ID] = t
	return nil
}

func (r *memTransferRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, t := range r.s.transfers {
		if t.Status == TransferPending && !now.Before(t.ExpiresAt) {
			t.Status = TransferExpired
			r.s.transfers[id] = t
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

type memRootRepository struct{ s *memStore }

func (r *memRootRepository) Create(ctx context.Context, root *PersonRoot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	root.PersonID1, root.PersonID2 = OrderedPair(root.PersonID1, root.PersonID2)
	for _, existing := range r.s.roots {
		if existing.Status == RootActive &&
			existing.PersonID1 == root.PersonID1 && existing.PersonID2 == root.PersonID2 {
			return ErrActiveRootExists
		}
	}
	ensureID(&root.ID)
	r.s.roots[root.ID] = *root
	r.s.stamp(root.ID)
	return nil
}

func (r *memRootRepository) FindByID(ctx context.Context, id string) (*PersonRoot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	root, ok := r.s.roots[id]
	if !ok {
		return nil, nil
	}
	return &root, nil
}

func (r *memRootRepository) Dissolve(ctx context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	root, ok := r.s.roots[id]
	if !ok || root.Status != RootActive {
		return false, nil
	}
	root.Status = RootDissolved
	root.DissolvedAt = &now
	r.s.roots[id] = root
	return true, nil
}

func (r *memRootRepository) FindActiveByPersons(ctx context.Context, personIDs []string) ([]*PersonRoot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := make(map[string]bool, len(personIDs))
	for _, id := range personIDs {
		want[id] = true
	}
	var out []*PersonRoot
	for _, root := range r.s.roots {
		if root.Status == RootActive && (want[root.PersonID1] || want[root.PersonID2]) {
			root := root
			out = append(out, &root)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

// ---------------------------------------------------------------------------
// Memories
// ---------------------------------------------------------------------------

type memMemoryRepository struct{ s *memStore }

func (r *memMemoryRepository) Create(ctx context.Context, memory *Memory) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.persons[memory.PersonID]
	if !ok {
		return 0, ErrNotFound
	}
	if p.MemoryLimit != nil && p.MemoryCount >= *p.MemoryLimit {
		return 0, &CapacityReachedError{Count: p.MemoryCount, Limit: *p.MemoryLimit}
	}

	ensureID(&memory.ID)
	r.s.memories[memory.ID] = *memory
	r.s.stamp(memory.ID)

	p.MemoryCount++
	r.s.persons[p.ID] = p
	return p.MemoryCount, nil
}

func (r *memMemoryRepository) FindByID(ctx context.Context, id string) (*Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memories[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memMemoryRepository) Approve(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memories[id]
	if !ok {
		return ErrNotFound
	}
	m.Approved = true
	r.s.memories[id] = m
	return nil
}

func (r *memMemoryRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memories[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.s.memories, id)

	if p, ok := r.s.persons[m.PersonID]; ok && p.MemoryCount > 0 {
		p.MemoryCount--
		r.s.persons[p.ID] = p
	}
	return nil
}

func (r *memMemoryRepository) FindByBranches(ctx context.Context, branchIDs []string, includePending bool) ([]*Memory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := make(map[string]bool, len(branchIDs))
	for _, id := range branchIDs {
		want[id] = true
	}
	var out []*Memory
	for _, m := range r.s.memories {
		if want[m.BranchID] && (m.Approved || includePending) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.rowOrder[out[i].ID] < r.s.rowOrder[out[j].ID] })
	return out, nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

type memAuditRepository struct{ s *memStore }

func (r *memAuditRepository) Append(ctx context.Context, event *AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&event.ID)
	r.s.audit = append(r.s.audit, *event)
	return nil
}

func (r *memAuditRepository) FindByTarget(ctx context.Context, targetType, targetID string) ([]*AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*AuditEvent
	for _, e := range r.s.audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}
