package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_webhooks_received_total",
		Help: "Total number of inbound provider webhooks by outcome",
	}, []string{"provider", "outcome"})

	WebhookProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_webhook_processing_seconds",
		Help:    "Latency of inbound webhook processing",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	UnsignedWebhooksAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_webhooks_unsigned_accepted_total",
		Help: "Webhooks accepted without signature verification because no secret is configured",
	}, []string{"provider"})

	OrdersUpsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_orders_upserted_total",
		Help: "Total number of provider orders written by the upsert engine",
	}, []string{"provider", "result"})

	ProviderSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_sync_total",
		Help: "Total number of outbound status sync attempts by result",
	}, []string{"provider", "result"})

	ProviderSyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_sync_latency_seconds",
		Help:    "Latency of outbound provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	RetrySweepOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_sync_retry_orders_total",
		Help: "Orders processed by the retry sweep by result",
	}, []string{"result"})

	IntegrationChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_integration_changes_total",
		Help: "Integration connect/disconnect operations",
	}, []string{"provider", "action"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
