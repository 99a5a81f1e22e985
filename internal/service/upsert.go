package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/util"
)

// OrderUpsertEngine writes normalized provider orders idempotently
type OrderUpsertEngine struct {
	orders OrderRepository
	audit  *EventAuditLog
	logger *zap.Logger
}

func NewOrderUpsertEngine(orders OrderRepository, audit *EventAuditLog) *OrderUpsertEngine {
	return &OrderUpsertEngine{
		orders: orders,
		audit:  audit,
		logger: util.GetLogger(),
	}
}

// UpsertResult is the stored order and whether this call created it
type UpsertResult struct {
	Order    *models.Order
	Inserted bool
}

// sourceDetails is stored on the order: what we understood and what we received
type sourceDetails struct {
	Canonical *provider.Draft `json:"canonical"`
	Raw       json.RawMessage `json:"raw"`
}

// ResolveStatus picks the status a webhook writes. A terminal provider state
// always wins; otherwise an existing order keeps its status and a new one
// starts as created. override reports whether the stored status must be
// replaced on conflict.
func ResolveStatus(existing *models.Order, terminal string) (status string, override bool) {
	if terminal != provider.TerminalNone {
		return terminal, true
	}
	if existing != nil {
		return existing.Status, false
	}
	return models.OrderStatusCreated, false
}

// Upsert creates or refreshes the order described by draft for integration
func (e *OrderUpsertEngine) Upsert(ctx context.Context, integration *models.Integration, draft *provider.Draft, raw []byte) (*UpsertResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderUpsertEngine.Upsert",
		attribute.String("provider", string(draft.Provider)),
		attribute.String("external_order_id", draft.ExternalOrderID))
	defer span.End()

	existing, err := e.orders.FindOrderByExternalID(ctx, integration.BusinessID, draft.Source, draft.ExternalOrderID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if errors.Is(err, models.ErrNotFound) {
		existing = nil
	}

	status, override := ResolveStatus(existing, draft.Terminal)

	details, err := json.Marshal(sourceDetails{Canonical: draft, Raw: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode source details: %w", err)
	}

	order := &models.Order{
		BusinessID:      integration.BusinessID,
		Source:          draft.Source,
		ExternalOrderID: draft.ExternalOrderID,
		Status:          status,
		CustomerName:    draft.CustomerName,
		CustomerPhone:   draft.CustomerPhone,
		Notes:           draft.Notes,
		Description:     draft.Description(),
		Subtotal:        draft.Totals.Subtotal,
		Tax:             draft.Totals.Tax,
		Total:           draft.Totals.Total,
		Currency:        draft.Totals.Currency,
		SourceDetails:   details,
	}
	if status == models.OrderStatusCancelled {
		reason := "Cancelled by " + draft.Source
		order.CancelReason = &reason
	}

	inserted, err := e.orders.UpsertOrder(ctx, order, override)
	if err != nil {
		util.RecordError(span, err)
		util.OrdersUpsertedTotal.WithLabelValues(string(draft.Provider), "error").Inc()
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}

	if inserted {
		util.OrdersUpsertedTotal.WithLabelValues(string(draft.Provider), "created").Inc()
		e.logger.Info("Provider order created",
			zap.String("order_id", order.ID),
			zap.String("provider", string(draft.Provider)),
			zap.String("external_order_id", draft.ExternalOrderID))
		e.audit.Record(ctx, AuditEntry{
			OrderID:    order.ID,
			BusinessID: order.BusinessID,
			EventType:  models.EventTypeOrderUpserted,
			Provider:   draft.Provider,
			Payload: map[string]interface{}{
				"external_order_id": draft.ExternalOrderID,
				"status":            order.Status,
				"total":             order.Total,
				"currency":          order.Currency,
			},
		})
	} else {
		util.OrdersUpsertedTotal.WithLabelValues(string(draft.Provider), "updated").Inc()
		if override && existing != nil && existing.Status != order.Status {
			e.audit.Record(ctx, AuditEntry{
				OrderID:    order.ID,
				BusinessID: order.BusinessID,
				EventType:  models.EventTypeStatusChanged,
				Provider:   draft.Provider,
				Payload: map[string]interface{}{
					"from":           existing.Status,
					"to":             order.Status,
					"by":             string(draft.Provider),
					"status_version": order.StatusVersion,
				},
			})
		}
	}

	return &UpsertResult{Order: order, Inserted: inserted}, nil
}
