package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"provider-sync/internal/service"
	"provider-sync/internal/util"
)

// Authenticator resolves a bearer token to a user id
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Dependencies wires the handler to the services it exposes
type Dependencies struct {
	Webhooks       *service.WebhookService
	Orders         *service.OrderService
	Integrations   *service.IntegrationLifecycleManager
	Retry          *service.RetryScheduler
	Auth           Authenticator
	SchedulerToken string
	Readiness      map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	webhooks       *service.WebhookService
	orders         *service.OrderService
	integrations   *service.IntegrationLifecycleManager
	retry          *service.RetryScheduler
	auth           Authenticator
	schedulerToken string
	readiness      map[string]ReadinessCheck
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		webhooks:       deps.Webhooks,
		orders:         deps.Orders,
		integrations:   deps.Integrations,
		retry:          deps.Retry,
		auth:           deps.Auth,
		schedulerToken: deps.SchedulerToken,
		readiness:      deps.Readiness,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/uber-eats", h.uberEatsWebhook)
		webhooks.POST("/doordash", h.doorDashWebhook)
	}

	v1 := router.Group("/api/v1", h.requireUser())
	{
		v1.POST("/integrations/connect", h.connectIntegration)
		v1.POST("/integrations/disconnect", h.disconnectIntegration)
		v1.GET("/businesses/:business_id/integrations", h.listIntegrations)
		v1.POST("/orders/status", h.updateOrderStatus)
		v1.GET("/orders/:id/events", h.listOrderEvents)
	}

	internal := router.Group("/internal", h.requireSchedulerToken())
	{
		internal.POST("/retry-provider-sync", h.retryProviderSync)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.readiness {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
