package handlers

import (
	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the lifecycle API under api.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, auth service.AuthService, billingSecret string) {
	// ============================================
	// Open routes (anonymous visitors allowed)
	// ============================================
	validID := middleware.RequireUUIDParam("id")

	open := api.Group("")
	open.Use(middleware.OptionalAuthMiddleware(auth))
	{
		open.POST("/persons", h.Person.Create)
		open.GET("/persons/duplicates", h.Person.FindDuplicates)
		open.POST("/branches/:id/memories", validID, h.Memory.Add)
		open.GET("/branches/:id/memories", validID, h.Memory.List)
		open.GET("/transfers/:token", h.Transfer.GetByToken)
	}

	// ============================================
	// Protected routes (require auth middleware)
	// ============================================
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(auth))
	{
		persons := protected.Group("/persons/:id")
		persons.Use(validID)
		{
			persons.GET("", h.Person.Get)
			persons.GET("/tree", h.Root.GetTree)
			persons.POST("/adopt", h.Person.Adopt)
			persons.POST("/transfers", h.Transfer.Create)
			persons.GET("/transfers", h.Transfer.ListForPerson)
		}

		protected.POST("/transfers/:token/accept", h.Transfer.Accept)

		protected.POST("/roots", h.Root.Create)
		protected.DELETE("/roots/:id", validID, h.Root.Dissolve)

		protected.POST("/memories/:id/approve", validID, h.Memory.Approve)
		protected.DELETE("/memories/:id", validID, h.Memory.Delete)

		branches := protected.Group("/branches/:id")
		branches.Use(validID)
		{
			branches.GET("/access", h.Branch.GetAccess)
			branches.POST("/members", h.Branch.AddMember)
			branches.GET("/members", h.Branch.ListMembers)
			branches.POST("/heirs", h.Branch.AddHeir)
			branches.GET("/heirs", h.Branch.ListHeirs)
		}

		groves := protected.Group("/groves/:id")
		groves.Use(validID)
		{
			groves.POST("/freeze", h.Grove.Freeze)
			groves.POST("/unfreeze", h.Grove.Unfreeze)
		}
	}

	// Billing feed
	api.POST("/billing/events", middleware.BillingSecret(billingSecret), h.Billing.HandleEvent)
}
