package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Grove statuses
const (
	GroveActive   = "active"
	GrovePastDue  = "past_due"
	GroveFrozen   = "frozen"
	GroveCanceled = "canceled"
)

// Membership statuses
const (
	MembershipActive = "active"
	MembershipFrozen = "frozen"
)

// Transfer statuses
const (
	TransferPending  = "pending"
	TransferAccepted = "accepted"
	TransferExpired  = "expired"
)

// Root statuses
const (
	RootActive    = "active"
	RootDissolved = "dissolved"
)

// Subscription statuses
const (
	SubscriptionActive = "active"
	SubscriptionLapsed = "lapsed"
)

// Memory visibility
const (
	VisibilityPrivate = "private"
	VisibilityMembers = "members"
	VisibilityShared  = "shared"
)

// Branch member roles
const (
	RoleContributor = "contributor"
)

// Caretaker is the trustee designation on a legacy Person. It is either a
// registered account or an unregistered contact identified by email.
type Caretaker interface {
	caretaker()
}

type AccountCaretaker struct {
	AccountID string
}

type ContactCaretaker struct {
	Email string
	Name  string
}

func (AccountCaretaker) caretaker() {}
func (ContactCaretaker) caretaker() {}

// Contributor is the author of record for a memory.
type Contributor interface {
	contributor()
}

type AccountContributor struct {
	AccountID string
}

type AnonymousContributor struct {
	Email string
	Name  string
}

func (AccountContributor) contributor()   {}
func (AnonymousContributor) contributor() {}

type Person struct {
	ID                  string
	Name                string
	NameNormalized      string
	BirthDate           *time.Time
	DeathDate           *time.Time
	IsLegacy            bool
	OwnerID             *string
	ModeratorID         *string
	Trustee             Caretaker
	TrusteeExpiresAt    *time.Time
	DiscoveryEnabled    bool
	MemoryLimit         *int
	MemoryCount         int
	PossibleDuplicateOf *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Branch struct {
	ID        string
	PersonID  *string
	OwnerID   *string
	Name      string
	CreatedAt time.Time
}

type Grove struct {
	ID           string
	Name         string
	OwnerID      string
	PlanType     string
	TreeLimit    int
	MonthlyPrice decimal.Decimal
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type GroveTreeMembership struct {
	ID             string
	PersonID       string
	GroveID        *string
	IsOriginal     bool
	Status         string
	SubscriptionID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Dependent reports whether the membership mirrors its grove's subscription.
func (m *GroveTreeMembership) Dependent() bool {
	return m.IsOriginal && m.SubscriptionID == nil
}

type TreeSubscription struct {
	ID           string
	AccountID    string
	PersonID     string
	PlanType     string
	MonthlyPrice decimal.Decimal
	Status       string
	CreatedAt    time.Time
}

type TreeTransfer struct {
	ID                 string
	PersonID           string
	SenderUserID       string
	SenderEmail        string
	RecipientEmail     string
	Message            string
	Token              string
	Status             string
	ExpiresAt          time.Time
	AcceptedAt         *time.Time
	AcceptedBy         *string
	DestinationGroveID *string
	CreatedAt          time.Time
}

// EffectiveStatus reports expired for pending rows past their expiry
// without rewriting them.
func (t *TreeTransfer) EffectiveStatus(now time.Time) string {
	if t.Status == TransferPending && !now.Before(t.ExpiresAt) {
		return TransferExpired
	}
	return t.Status
}

type PersonRoot struct {
	ID          string
	PersonID1   string
	PersonID2   string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
	DissolvedAt *time.Time
}

// Other returns the id on the far side of the pairing.
func (r *PersonRoot) Other(personID string) string {
	if r.PersonID1 == personID {
		return r.PersonID2
	}
	return r.PersonID1
}

// OrderedPair returns the two ids lowest first, the stored form of a root.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

type BranchMember struct {
	ID        string
	BranchID  string
	AccountID string
	Role      string
	CreatedAt time.Time
}

type Heir struct {
	ID               string
	BranchID         string
	Email            string
	ReleaseCondition string
	CreatedBy        string
	CreatedAt        time.Time
}

type Memory struct {
	ID         string
	BranchID   string
	PersonID   string
	Author     Contributor
	Title      string
	Body       string
	Visibility string
	Approved   bool
	CreatedAt  time.Time
}

type AuditEvent struct {
	ID         string          `db:"id"`
	ActorID    *string         `db:"actor_id"`
	ActorType  string          `db:"actor_type"`
	Action     string          `db:"action"`
	TargetType string          `db:"target_type"`
	TargetID   string          `db:"target_id"`
	Metadata   json.RawMessage `db:"metadata"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Planting is the atomic unit that brings a new legacy Person into a grove.
type Planting struct {
	Person     *Person
	Branch     *Branch
	Membership *GroveTreeMembership
	// EnforceTreeLimit checks the grove's treeLimit inside the same unit.
	EnforceTreeLimit bool
}

// Adoption attaches an existing Person to another grove and lifts its cap.
type Adoption struct {
	Membership *GroveTreeMembership
}

// TransferAcceptance carries everything the accept unit writes.
type TransferAcceptance struct {
	TransferID   string
	AcceptedBy   string
	AcceptedAt   time.Time
	NewGrove     *Grove
	Subscription *TreeSubscription
	Membership   *GroveTreeMembership
	SenderMember *BranchMember
}

func stringPtr(s string) *string {
	return &s
}
