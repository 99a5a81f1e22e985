package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"provider-sync/internal/service"
)

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// connectIntegration handles POST /api/v1/integrations/connect
func (h *Handler) connectIntegration(c *gin.Context) {
	var req service.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	integration, err := h.integrations.Connect(c.Request.Context(), callerID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"status":      integration.Status,
		"integration": integration,
	})
}

// disconnectIntegration handles POST /api/v1/integrations/disconnect
func (h *Handler) disconnectIntegration(c *gin.Context) {
	var req service.DisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.integrations.Disconnect(c.Request.Context(), callerID(c), &req); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// listIntegrations handles GET /api/v1/businesses/:business_id/integrations
func (h *Handler) listIntegrations(c *gin.Context) {
	integrations, err := h.integrations.List(c.Request.Context(), callerID(c), c.Param("business_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

// updateOrderStatus handles POST /api/v1/orders/status. The response is 200
// whatever happened upstream; the sync outcome is reported alongside.
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.orders.UpdateStatus(c.Request.Context(), callerID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   resp.Order,
		"sync":    resp.Sync,
	})
}

// listOrderEvents handles GET /api/v1/orders/:id/events
func (h *Handler) listOrderEvents(c *gin.Context) {
	events, err := h.orders.ListEvents(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// retryProviderSync handles POST /internal/retry-provider-sync
func (h *Handler) retryProviderSync(c *gin.Context) {
	res, err := h.retry.Sweep(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
