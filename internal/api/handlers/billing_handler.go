package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// BillingHandler receives subscription status changes from the billing
// provider. The route is guarded by middleware.BillingSecret.
type BillingHandler struct {
	billingService service.BillingService
	errs           errorWriter
}

// HandleEvent - Apply a billing status change
// POST /billing/events
func (h *BillingHandler) HandleEvent(c *gin.Context) {
	var req models.BillingEventRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.billingService.HandleEvent(c.Request.Context(), service.BillingEvent{
		Type:           req.Type,
		GroveID:        req.GroveID,
		MembershipID:   req.MembershipID,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, models.BillingEventResponse{Changed: res.Changed})
}
