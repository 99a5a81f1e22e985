package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provider-sync/internal/models"
)

// writeError maps the service error taxonomy onto HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		authnErr *models.AuthenticationError
		authzErr *models.AuthorizationError
		sigErr   *models.SignatureVerificationError
		nfErr    *models.IntegrationNotFoundError
		valErr   *models.ValidationError
	)

	switch {
	case errors.As(err, &authnErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.As(err, &authzErr):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.As(err, &sigErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, gin.H{"error": "store not linked"})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
