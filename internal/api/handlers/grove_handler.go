package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Grove Handler
// ============================================

type GroveHandler struct {
	membershipService service.MembershipService
	errs              errorWriter
}

// Freeze - Freeze a grove and its dependent trees
// POST /groves/:id/freeze
func (h *GroveHandler) Freeze(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	groveID := c.Param("id")
	changed, err := h.membershipService.FreezeGrove(c.Request.Context(), groveID, caller)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FreezeResponse{GroveID: groveID, Changed: changed})
}

// Unfreeze - Reactivate a grove and thaw its trees
// POST /groves/:id/unfreeze
func (h *GroveHandler) Unfreeze(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	groveID := c.Param("id")
	changed, err := h.membershipService.UnfreezeGrove(c.Request.Context(), groveID, caller)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FreezeResponse{GroveID: groveID, Changed: changed})
}
