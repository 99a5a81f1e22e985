package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/util"
)

// AuditEntry is one event to append to the audit log
type AuditEntry struct {
	OrderID    string
	BusinessID string
	EventType  string
	Provider   models.Provider
	Payload    interface{}
}

// EventAuditLog appends immutable order events and mirrors them onto the
// event stream. Audit writes never fail the operation being audited.
type EventAuditLog struct {
	events    EventRepository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewEventAuditLog creates an audit log; publisher may be nil
func NewEventAuditLog(events EventRepository, publisher EventPublisher) *EventAuditLog {
	return &EventAuditLog{
		events:    events,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Record appends entry. Failures are logged and swallowed.
func (a *EventAuditLog) Record(ctx context.Context, entry AuditEntry) {
	payload := []byte("{}")
	if entry.Payload != nil {
		b, err := json.Marshal(entry.Payload)
		if err != nil {
			a.logger.Error("Failed to encode audit payload",
				zap.String("event_type", entry.EventType), zap.Error(err))
		} else {
			payload = b
		}
	}

	event := &models.OrderEvent{
		BusinessID: entry.BusinessID,
		EventType:  entry.EventType,
		Payload:    payload,
	}
	if entry.OrderID != "" {
		orderID := entry.OrderID
		event.OrderID = &orderID
	}
	if entry.Provider != "" {
		p := string(entry.Provider)
		event.Provider = &p
	}

	if err := a.events.InsertOrderEvent(ctx, event); err != nil {
		a.logger.Error("Failed to write audit event",
			zap.String("event_type", entry.EventType),
			zap.String("business_id", entry.BusinessID),
			zap.String("order_id", entry.OrderID),
			zap.Error(err))
		return
	}

	if a.publisher != nil {
		if err := a.publisher.PublishAuditEvent(ctx, event); err != nil {
			a.logger.Warn("Failed to publish audit event",
				zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

// List returns an order's audit trail
func (a *EventAuditLog) List(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	return a.events.ListOrderEvents(ctx, orderID)
}
