package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/util"
)

// EventPublisher publishes audit events and sync jobs
type EventPublisher struct {
	audit *Producer
	jobs  *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(audit, jobs *Producer) *EventPublisher {
	return &EventPublisher{audit: audit, jobs: jobs}
}

func orderKey(orderID string) string {
	return "order-" + orderID
}

// PublishAuditEvent mirrors an order_events row onto the audit topic
func (ep *EventPublisher) PublishAuditEvent(ctx context.Context, event *models.OrderEvent) error {
	key := "business-" + event.BusinessID
	if event.OrderID != nil {
		key = orderKey(*event.OrderID)
	}

	msg := &models.AuditEventMessage{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.MessageTypeAuditEvent,
			Timestamp: time.Now(),
		},
		Event: *event,
	}
	return ep.audit.PublishEvent(ctx, key, msg)
}

// PublishSyncJob queues a provider sync job
func (ep *EventPublisher) PublishSyncJob(ctx context.Context, job *models.SyncJob) error {
	return ep.jobs.PublishEvent(ctx, orderKey(job.OrderID), job)
}

// Close closes both producers
func (ep *EventPublisher) Close() error {
	auditErr := ep.audit.Close()
	jobsErr := ep.jobs.Close()
	if auditErr != nil {
		return auditErr
	}
	return jobsErr
}

// EventHandler handles incoming events
type EventHandler struct {
	onSyncJob func(context.Context, *models.SyncJob) error
	logger    *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSyncJob registers a handler for sync jobs
func (eh *EventHandler) OnSyncJob(handler func(context.Context, *models.SyncJob) error) {
	eh.onSyncJob = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.MessageTypeSyncJob:
		if eh.onSyncJob != nil {
			var job models.SyncJob
			if err := json.Unmarshal(msg.Value, &job); err != nil {
				return fmt.Errorf("failed to unmarshal sync job: %w", err)
			}
			return eh.onSyncJob(ctx, &job)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
