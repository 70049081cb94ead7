package handlers

import (
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Memory Handler
// ============================================

type MemoryHandler struct {
	memoryService service.MemoryService
	errs          errorWriter
}

// Add - Contribute a memory to a Branch
// POST /branches/:id/memories
func (h *MemoryHandler) Add(c *gin.Context) {
	var req models.MemoryRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.memoryService.AddMemory(c.Request.Context(), middleware.GetCaller(c), c.Param("id"), *toMemoryInput(&req))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMemoryResultResponse(res))
}

// List - List memories visible to the caller
// GET /branches/:id/memories?includePending=true
func (h *MemoryHandler) List(c *gin.Context) {
	includePending := c.Query("includePending") == "true"

	memories, err := h.memoryService.ListMemories(c.Request.Context(), middleware.GetCaller(c), c.Param("id"), includePending)
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	response := make([]models.MemoryResponse, len(memories))
	for i, m := range memories {
		response[i] = toMemoryResponse(m)
	}
	c.JSON(http.StatusOK, response)
}

// Approve - Approve a pending memory
// POST /memories/:id/approve
func (h *MemoryHandler) Approve(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	memory, err := h.memoryService.ApproveMemory(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(memory))
}

// Delete - Delete a memory
// DELETE /memories/:id
func (h *MemoryHandler) Delete(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	if err := h.memoryService.DeleteMemory(c.Request.Context(), caller, c.Param("id")); err != nil {
		h.errs.respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
