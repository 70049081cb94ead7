package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Root Handler
// ============================================

type RootHandler struct {
	rootService service.RootService
	errs        errorWriter
}

// Create - Root two Persons into one Tree
// POST /roots
func (h *RootHandler) Create(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.CreateRootRequest
	if !bindJSON(c, &req) {
		return
	}

	root, err := h.rootService.CreateRoot(c.Request.Context(), caller, req.PersonID1, req.PersonID2)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRootResponse(root))
}

// Dissolve - Dissolve a root
// DELETE /roots/:id
func (h *RootHandler) Dissolve(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	root, err := h.rootService.DissolveRoot(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toRootResponse(root))
}

// GetTree - Branches of every Person rooted with this one
// GET /persons/:id/tree
func (h *RootHandler) GetTree(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	view, err := h.rootService.GetTreeBranches(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toTreeResponse(view))
}
