package models

import "time"

// Audit event types
const (
	EventTypeWebhookReceived    = "provider_webhook_received"
	EventTypeOrderUpserted      = "order_upserted"
	EventTypeStatusChanged      = "order_status_changed"
	EventTypeSyncSucceeded      = "provider_sync_succeeded"
	EventTypeSyncFailed         = "provider_sync_failed"
	EventTypeSyncSkipped        = "provider_sync_skipped"
	EventTypeSyncRetry          = "provider_sync_retry"
	EventTypeSyncQueued         = "provider_sync_queued"
	EventTypeIntegrationLinked  = "integration_connected"
	EventTypeIntegrationRemoved = "integration_disconnected"
)

// Stream message types
const (
	MessageTypeAuditEvent = "AUDIT_EVENT"
	MessageTypeSyncJob    = "SYNC_JOB"
)

// BaseEvent contains common fields for all stream messages
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEventMessage mirrors an order_events row onto the event stream
type AuditEventMessage struct {
	BaseEvent
	Event OrderEvent `json:"event"`
}

// SyncJob asks a worker to push an order's status to its provider.
// StatusVersion pins the job to the local change that produced it.
type SyncJob struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	StatusVersion int64  `json:"status_version"`
}
