package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================
// Person DTOs
// ============================================

type MemoryRequest struct {
	Title       string `json:"title" binding:"max=200"`
	Body        string `json:"body" binding:"max=20000"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=private members shared"`
	AuthorEmail string `json:"authorEmail" binding:"omitempty,email"`
	AuthorName  string `json:"authorName" binding:"max=200"`
}

type CreatePersonRequest struct {
	Name            string         `json:"name" binding:"required,max=200"`
	BirthDate       *string        `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
	DeathDate       *string        `json:"deathDate" binding:"required,datetime=2006-01-02"`
	GroveID         string         `json:"groveId"`
	Resolution      string         `json:"resolution" binding:"omitempty,oneof=connect create_anyway"`
	ConnectPersonID string         `json:"connectPersonId"`
	TrusteeEmail    string         `json:"trusteeEmail" binding:"omitempty,email"`
	TrusteeName     string         `json:"trusteeName" binding:"max=200"`
	InitialMemory   *MemoryRequest `json:"initialMemory"`
}

type AdoptPersonRequest struct {
	GroveID string `json:"groveId" binding:"required"`
}

type TrusteeResponse struct {
	Type      string  `json:"type"`
	AccountID *string `json:"accountId,omitempty"`
	Name      string  `json:"name,omitempty"`
}

type PersonResponse struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	BirthDate           *time.Time       `json:"birthDate,omitempty"`
	DeathDate           *time.Time       `json:"deathDate,omitempty"`
	IsLegacy            bool             `json:"isLegacy"`
	OwnerID             *string          `json:"ownerId,omitempty"`
	ModeratorID         *string          `json:"moderatorId,omitempty"`
	Trustee             *TrusteeResponse `json:"trustee,omitempty"`
	TrusteeExpiresAt    *time.Time       `json:"trusteeExpiresAt,omitempty"`
	DiscoveryEnabled    bool             `json:"discoveryEnabled"`
	MemoryLimit         *int             `json:"memoryLimit"`
	MemoryCount         int              `json:"memoryCount"`
	PossibleDuplicateOf *string          `json:"possibleDuplicateOf,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}

type DuplicateResponse struct {
	Person     PersonResponse `json:"person"`
	YearsMatch bool           `json:"yearsMatch"`
}

type CreatePersonResponse struct {
	Created    bool                  `json:"created"`
	Person     *PersonResponse       `json:"person,omitempty"`
	Branch     *BranchResponse       `json:"branch,omitempty"`
	Membership *MembershipResponse   `json:"membership,omitempty"`
	Duplicates []DuplicateResponse   `json:"duplicates"`
	Memory     *MemoryResultResponse `json:"memory,omitempty"`
}

// ============================================
// Branch / Grove DTOs
// ============================================

type BranchResponse struct {
	ID        string    `json:"id"`
	PersonID  *string   `json:"personId,omitempty"`
	OwnerID   *string   `json:"ownerId,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type MembershipResponse struct {
	ID             string    `json:"id"`
	PersonID       string    `json:"personId"`
	GroveID        *string   `json:"groveId,omitempty"`
	IsOriginal     bool      `json:"isOriginal"`
	Status         string    `json:"status"`
	SubscriptionID *string   `json:"subscriptionId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type GroveResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	OwnerID      string          `json:"ownerId"`
	PlanType     string          `json:"planType"`
	TreeLimit    int             `json:"treeLimit"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type SubscriptionResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	PersonID     string          `json:"personId"`
	PlanType     string          `json:"planType"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type AuthorityResponse struct {
	Owner     bool `json:"owner"`
	Moderator bool `json:"moderator"`
	Trustee   bool `json:"trustee"`
}

type AccessResponse struct {
	Branch       BranchResponse      `json:"branch"`
	Person       *PersonResponse     `json:"person,omitempty"`
	Membership   *MembershipResponse `json:"membership,omitempty"`
	Grove        *GroveResponse      `json:"grove,omitempty"`
	Authority    AuthorityResponse   `json:"authority"`
	IsMember     bool                `json:"isMember"`
	Editable     bool                `json:"editable"`
	FrozenReason string              `json:"frozenReason,omitempty"`
}

type AddBranchMemberRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Role      string `json:"role" binding:"omitempty,oneof=contributor"`
}

type BranchMemberResponse struct {
	ID        string    `json:"id"`
	BranchID  string    `json:"branchId"`
	AccountID string    `json:"accountId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type AddHeirRequest struct {
	Email            string `json:"email" binding:"required,email"`
	ReleaseCondition string `json:"releaseCondition" binding:"max=500"`
}

type HeirResponse struct {
	ID               string    `json:"id"`
	BranchID         string    `json:"branchId"`
	Email            string    `json:"email"`
	ReleaseCondition string    `json:"releaseCondition,omitempty"`
	CreatedBy        string    `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
}

type FreezeResponse struct {
	GroveID string `json:"groveId"`
	Changed int    `json:"changed"`
}

// ============================================
// Memory DTOs
// ============================================

type MemoryResponse struct {
	ID              string    `json:"id"`
	BranchID        string    `json:"branchId"`
	PersonID        string    `json:"personId"`
	AuthorType      string    `json:"authorType"`
	AuthorAccountID *string   `json:"authorAccountId,omitempty"`
	AuthorName      string    `json:"authorName,omitempty"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Visibility      string    `json:"visibility"`
	Approved        bool      `json:"approved"`
	CreatedAt       time.Time `json:"createdAt"`
}

type MemoryResultResponse struct {
	Memory             MemoryResponse `json:"memory"`
	MemoryCount        int            `json:"memoryCount"`
	MemoryLimit        *int           `json:"memoryLimit"`
	ShowAdoptionPrompt bool           `json:"showAdoptionPrompt"`
	WarningLevel       string         `json:"warningLevel,omitempty"`
}

// ============================================
// Transfer DTOs
// ============================================

type CreateTransferRequest struct {
	RecipientEmail string `json:"recipientEmail" binding:"required,email"`
	Message        string `json:"message" binding:"max=2000"`
}

type AcceptTransferRequest struct {
	Option    string `json:"option" binding:"required,oneof=grove single new-grove"`
	GroveID   string `json:"groveId"`
	PlanType  string `json:"planType"`
	GroveName string `json:"groveName" binding:"max=200"`
}

// TransferResponse never carries the token; it is the bearer secret.
type TransferResponse struct {
	ID                 string     `json:"id"`
	PersonID           string     `json:"personId"`
	SenderUserID       string     `json:"senderUserId"`
	RecipientEmail     string     `json:"recipientEmail"`
	Message            string     `json:"message,omitempty"`
	Status             string     `json:"status"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	AcceptedAt         *time.Time `json:"acceptedAt,omitempty"`
	AcceptedBy         *string    `json:"acceptedBy,omitempty"`
	DestinationGroveID *string    `json:"destinationGroveId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type TransferLookupResponse struct {
	Transfer   TransferResponse `json:"transfer"`
	PersonName string           `json:"personName"`
}

type AcceptTransferResponse struct {
	Transfer     TransferResponse      `json:"transfer"`
	Membership   MembershipResponse    `json:"membership"`
	Grove        *GroveResponse        `json:"grove,omitempty"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

// ============================================
// Root DTOs
// ============================================

type CreateRootRequest struct {
	PersonID1 string `json:"personId1" binding:"required"`
	PersonID2 string `json:"personId2" binding:"required"`
}

type RootResponse struct {
	ID          string     `json:"id"`
	PersonID1   string     `json:"personId1"`
	PersonID2   string     `json:"personId2"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	DissolvedAt *time.Time `json:"dissolvedAt,omitempty"`
}

type TreeResponse struct {
	PersonID  string           `json:"personId"`
	PersonIDs []string         `json:"personIds"`
	Branches  []BranchResponse `json:"branches"`
}

// ============================================
// Billing DTOs
// ============================================

type BillingEventRequest struct {
	Type           string `json:"type" binding:"required"`
	GroveID        string `json:"groveId"`
	MembershipID   string `json:"membershipId"`
	SubscriptionID string `json:"subscriptionId"`
}

type BillingEventResponse struct {
	Changed int `json:"changed"`
}
