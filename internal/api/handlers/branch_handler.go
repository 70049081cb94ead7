package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Branch Handler
// ============================================

type BranchHandler struct {
	branchService service.BranchService
	errs          errorWriter
}

// GetAccess - Resolve the caller's access to a Branch
// GET /branches/:id/access
func (h *BranchHandler) GetAccess(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	access, err := h.branchService.GetAccess(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccessResponse(access))
}

// AddMember - Invite a collaborator onto a Branch
// POST /branches/:id/members
func (h *BranchHandler) AddMember(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.AddBranchMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := h.branchService.AddBranchMember(c.Request.Context(), caller, c.Param("id"), req.AccountID, req.Role)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.BranchMemberResponse{
		ID:        member.ID,
		BranchID:  member.BranchID,
		AccountID: member.AccountID,
		Role:      member.Role,
		CreatedAt: member.CreatedAt,
	})
}

// ListMembers - List Branch collaborators
// GET /branches/:id/members
func (h *BranchHandler) ListMembers(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	members, err := h.branchService.ListBranchMembers(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	response := make([]models.BranchMemberResponse, len(members))
	for i, m := range members {
		response[i] = models.BranchMemberResponse{
			ID:        m.ID,
			BranchID:  m.BranchID,
			AccountID: m.AccountID,
			Role:      m.Role,
			CreatedAt: m.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, response)
}

// AddHeir - Name an heir for a Branch
// POST /branches/:id/heirs
func (h *BranchHandler) AddHeir(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.AddHeirRequest
	if !bindJSON(c, &req) {
		return
	}

	heir, err := h.branchService.AddHeir(c.Request.Context(), caller, c.Param("id"), req.Email, req.ReleaseCondition)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toHeirResponse(heir))
}

// ListHeirs - List heirs of a Branch
// GET /branches/:id/heirs
func (h *BranchHandler) ListHeirs(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	heirs, err := h.branchService.ListHeirs(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	response := make([]models.HeirResponse, len(heirs))
	for i, heir := range heirs {
		response[i] = toHeirResponse(heir)
	}
	c.JSON(http.StatusOK, response)
}

func toHeirResponse(h *repository.Heir) models.HeirResponse {
	return models.HeirResponse{
		ID:               h.ID,
		BranchID:         h.BranchID,
		Email:            h.Email,
		ReleaseCondition: h.ReleaseCondition,
		CreatedBy:        h.CreatedBy,
		CreatedAt:        h.CreatedAt,
	}
}
