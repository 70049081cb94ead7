package handlers

import (
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/rs/zerolog"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Person   *PersonHandler
	Memory   *MemoryHandler
	Transfer *TransferHandler
	Root     *RootHandler
	Branch   *BranchHandler
	Grove    *GroveHandler
	Billing  *BillingHandler
}

// NewHandlers creates all handlers
func NewHandlers(services *service.Services, log zerolog.Logger) *Handlers {
	errs := errorWriter{log: log}
	return &Handlers{
		Person:   &PersonHandler{personService: services.Person, errs: errs},
		Memory:   &MemoryHandler{memoryService: services.Memory, errs: errs},
		Transfer: &TransferHandler{transferService: services.Transfer, errs: errs},
		Root:     &RootHandler{rootService: services.Root, errs: errs},
		Branch:   &BranchHandler{branchService: services.Branch, errs: errs},
		Grove:    &GroveHandler{membershipService: services.Membership, errs: errs},
		Billing:  &BillingHandler{billingService: services.Billing, errs: errs},
	}
}

// ============================================
// Response Mappers
// ============================================

func toTrusteeResponse(t repository.Caretaker) *models.TrusteeResponse {
	switch v := t.(type) {
	case repository.AccountCaretaker:
		id := v.AccountID
		return &models.TrusteeResponse{Type: "account", AccountID: &id}
	case repository.ContactCaretaker:
		return &models.TrusteeResponse{Type: "contact", Name: v.Name}
	}
	return nil
}

func toPersonResponse(p *repository.Person) models.PersonResponse {
	return models.PersonResponse{
		ID:                  p.ID,
		Name:                p.Name,
		BirthDate:           p.BirthDate,
		DeathDate:           p.DeathDate,
		IsLegacy:            p.IsLegacy,
		OwnerID:             p.OwnerID,
		ModeratorID:         p.ModeratorID,
		Trustee:             toTrusteeResponse(p.Trustee),
		TrusteeExpiresAt:    p.TrusteeExpiresAt,
		DiscoveryEnabled:    p.DiscoveryEnabled,
		MemoryLimit:         p.MemoryLimit,
		MemoryCount:         p.MemoryCount,
		PossibleDuplicateOf: p.PossibleDuplicateOf,
		CreatedAt:           p.CreatedAt,
	}
}

func toBranchResponse(b *repository.Branch) models.BranchResponse {
	return models.BranchResponse{
		ID:        b.ID,
		PersonID:  b.PersonID,
		OwnerID:   b.OwnerID,
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
	}
}

func toMembershipResponse(m *repository.GroveTreeMembership) models.MembershipResponse {
	return models.MembershipResponse{
		ID:             m.ID,
		PersonID:       m.PersonID,
		GroveID:        m.GroveID,
		IsOriginal:     m.IsOriginal,
		Status:         m.Status,
		SubscriptionID: m.SubscriptionID,
		CreatedAt:      m.CreatedAt,
	}
}

func toGroveResponse(g *repository.Grove) models.GroveResponse {
	return models.GroveResponse{
		ID:           g.ID,
		Name:         g.Name,
		OwnerID:      g.OwnerID,
		PlanType:     g.PlanType,
		TreeLimit:    g.TreeLimit,
		MonthlyPrice: g.MonthlyPrice,
		Status:       g.Status,
		CreatedAt:    g.CreatedAt,
	}
}

func toSubscriptionResponse(s *repository.TreeSubscription) models.SubscriptionResponse {
	return models.SubscriptionResponse{
		ID:           s.ID,
		AccountID:    s.AccountID,
		PersonID:     s.PersonID,
		PlanType:     s.PlanType,
		MonthlyPrice: s.MonthlyPrice,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
	}
}

func toAccessResponse(a *service.BranchAccess) models.AccessResponse {
	resp := models.AccessResponse{
		Branch: toBranchResponse(a.Branch),
		Authority: models.AuthorityResponse{
			Owner:     a.Authority.Owner,
			Moderator: a.Authority.Moderator,
			Trustee:   a.Authority.Trustee,
		},
		IsMember:     a.IsMember,
		Editable:     a.Editable,
		FrozenReason: a.FrozenReason,
	}
	if a.Person != nil {
		p := toPersonResponse(a.Person)
		resp.Person = &p
	}
	if a.Membership != nil {
		m := toMembershipResponse(a.Membership)
		resp.Membership = &m
	}
	if a.Grove != nil {
		g := toGroveResponse(a.Grove)
		resp.Grove = &g
	}
	return resp
}

func toMemoryResponse(m *repository.Memory) models.MemoryResponse {
	resp := models.MemoryResponse{
		ID:         m.ID,
		BranchID:   m.BranchID,
		PersonID:   m.PersonID,
		Title:      m.Title,
		Body:       m.Body,
		Visibility: m.Visibility,
		Approved:   m.Approved,
		CreatedAt:  m.CreatedAt,
	}
	switch a := m.Author.(type) {
	case repository.AccountContributor:
		id := a.AccountID
		resp.AuthorType = "account"
		resp.AuthorAccountID = &id
	case repository.AnonymousContributor:
		resp.AuthorType = "anonymous"
		resp.AuthorName = a.Name
	}
	return resp
}

func toMemoryResultResponse(r *service.MemoryResult) models.MemoryResultResponse {
	return models.MemoryResultResponse{
		Memory:             toMemoryResponse(r.Memory),
		MemoryCount:        r.MemoryCount,
		MemoryLimit:        r.MemoryLimit,
		ShowAdoptionPrompt: r.ShowAdoptionPrompt,
		WarningLevel:       r.WarningLevel,
	}
}

func toTransferResponse(t *repository.TreeTransfer) models.TransferResponse {
	return models.TransferResponse{
		ID:                 t.ID,
		PersonID:           t.PersonID,
		SenderUserID:       t.SenderUserID,
		RecipientEmail:     t.RecipientEmail,
		Message:            t.Message,
		Status:             t.Status,
		ExpiresAt:          t.ExpiresAt,
		AcceptedAt:         t.AcceptedAt,
		AcceptedBy:         t.AcceptedBy,
		DestinationGroveID: t.DestinationGroveID,
		CreatedAt:          t.CreatedAt,
	}
}

func toRootResponse(r *repository.PersonRoot) models.RootResponse {
	return models.RootResponse{
		ID:          r.ID,
		PersonID1:   r.PersonID1,
		PersonID2:   r.PersonID2,
		Status:      r.Status,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		DissolvedAt: r.DissolvedAt,
	}
}

func toTreeResponse(v *service.TreeView) models.TreeResponse {
	branches := make([]models.BranchResponse, len(v.Branches))
	for i, b := range v.Branches {
		branches[i] = toBranchResponse(b)
	}
	return models.TreeResponse{
		PersonID:  v.PersonID,
		PersonIDs: safeStringSlice(v.PersonIDs),
		Branches:  branches,
	}
}

// Helper to ensure nil slices become empty slices
func safeStringSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
