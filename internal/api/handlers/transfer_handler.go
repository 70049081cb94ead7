package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Transfer Handler
// ============================================

type TransferHandler struct {
	transferService service.TransferService
	errs            errorWriter
}

// Create - Invite someone to take over a legacy tree
// POST /persons/:id/transfers
func (h *TransferHandler) Create(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.CreateTransferRequest
	if !bindJSON(c, &req) {
		return
	}

	transfer, err := h.transferService.CreateTransfer(c.Request.Context(), caller, service.CreateTransferInput{
		PersonID:       c.Param("id"),
		RecipientEmail: req.RecipientEmail,
		Message:        req.Message,
	})
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransferResponse(transfer))
}

// ListForPerson - List transfers of a Person
// GET /persons/:id/transfers
func (h *TransferHandler) ListForPerson(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	transfers, err := h.transferService.ListTransfersForPerson(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	response := make([]models.TransferResponse, len(transfers))
	for i, t := range transfers {
		response[i] = toTransferResponse(t)
	}
	c.JSON(http.StatusOK, response)
}

// GetByToken - Look up an invitation from its link
// GET /transfers/:token
func (h *TransferHandler) GetByToken(c *gin.Context) {
	lookup, err := h.transferService.GetTransferByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TransferLookupResponse{
		Transfer:   toTransferResponse(lookup.Transfer),
		PersonName: lookup.PersonName,
	})
}

// Accept - Accept an invitation
// POST /transfers/:token/accept
func (h *TransferHandler) Accept(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.AcceptTransferRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.transferService.AcceptTransfer(c.Request.Context(), caller, service.AcceptTransferInput{
		Token:     c.Param("token"),
		Option:    req.Option,
		GroveID:   req.GroveID,
		PlanType:  req.PlanType,
		GroveName: req.GroveName,
	})
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	resp := models.AcceptTransferResponse{
		Transfer:   toTransferResponse(res.Transfer),
		Membership: toMembershipResponse(res.Membership),
	}
	if res.Grove != nil {
		g := toGroveResponse(res.Grove)
		resp.Grove = &g
	}
	if res.Subscription != nil {
		s := toSubscriptionResponse(res.Subscription)
		resp.Subscription = &s
	}
	c.JSON(http.StatusOK, resp)
}
