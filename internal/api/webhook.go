package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
)

// maxWebhookBody caps inbound webhook bodies
const maxWebhookBody = 1 << 20

func (h *Handler) uberEatsWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderUberEats)
}

func (h *Handler) doorDashWebhook(c *gin.Context) {
	h.handleWebhook(c, models.ProviderDoorDash)
}

// handleWebhook reads the raw body so the signature is checked against the
// exact bytes the provider signed
func (h *Handler) handleWebhook(c *gin.Context, p models.Provider) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	res, err := h.webhooks.Handle(c.Request.Context(), p, body, c.GetHeader(provider.SignatureHeader(p)))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if res.Ignored {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"ignored": true,
			"reason":  res.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": res.OrderID,
	})
}
