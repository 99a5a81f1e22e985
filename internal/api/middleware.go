package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"provider-sync/internal/models"
)

const userIDKey = "user_id"

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// requireUser authenticates the caller from a bearer JWT
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			h.writeError(c, &models.AuthenticationError{Reason: "missing bearer token"})
			c.Abort()
			return
		}

		userID, err := h.auth.Authenticate(token)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requireSchedulerToken guards internal endpoints with a shared token.
// With no token configured every request is refused.
func (h *Handler) requireSchedulerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if h.schedulerToken == "" || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(h.schedulerToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
