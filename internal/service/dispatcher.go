package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/util"
)

// Sync results
const (
	SyncResultSynced  = "synced"
	SyncResultFailed  = "failed"
	SyncResultSkipped = "skipped"
	SyncResultQueued  = "queued"
)

// Provider actions
const (
	actionNone   = ""
	actionAccept = "accept"
	actionCancel = "cancel"
)

const defaultCancelReason = "Cancelled by merchant"

// SyncOutcome reports what happened to one status sync
type SyncOutcome struct {
	OrderID string `json:"order_id"`
	Result  string `json:"result"`
	Action  string `json:"action,omitempty"`
	Error   string `json:"error,omitempty"`
	// Stale is set when the order changed status while the call was in
	// flight; the result was not written to the order.
	Stale bool `json:"stale,omitempty"`
}

// actionFor maps a local status to the provider call that mirrors it.
// ready, completed and created have no provider counterpart.
func actionFor(status string) string {
	switch status {
	case models.OrderStatusPreparing:
		return actionAccept
	case models.OrderStatusCancelled:
		return actionCancel
	}
	return actionNone
}

// StatusSyncDispatcher pushes local status changes to the order's provider
type StatusSyncDispatcher struct {
	orders    OrderRepository
	registry  *IntegrationRegistry
	clients   ProviderClients
	audit     *EventAuditLog
	publisher EventPublisher
	async     bool
	logger    *zap.Logger
}

// NewStatusSyncDispatcher creates a dispatcher. With async set and a
// publisher available, Dispatch queues a sync job instead of calling out.
func NewStatusSyncDispatcher(
	orders OrderRepository,
	registry *IntegrationRegistry,
	clients ProviderClients,
	audit *EventAuditLog,
	publisher EventPublisher,
	async bool,
) *StatusSyncDispatcher {
	return &StatusSyncDispatcher{
		orders:    orders,
		registry:  registry,
		clients:   clients,
		audit:     audit,
		publisher: publisher,
		async:     async && publisher != nil,
		logger:    util.GetLogger(),
	}
}

// Dispatch propagates order's current status using the configured mode
func (d *StatusSyncDispatcher) Dispatch(ctx context.Context, order *models.Order) SyncOutcome {
	if d.async {
		return d.Enqueue(ctx, order)
	}
	return d.Sync(ctx, order)
}

// Sync propagates order's current status to its provider in the caller's
// goroutine. The local status is never rolled back; failures are recorded
// on the order for the retry sweep.
func (d *StatusSyncDispatcher) Sync(ctx context.Context, order *models.Order) SyncOutcome {
	ctx, span := util.StartSpan(ctx, "StatusSyncDispatcher.Sync",
		attribute.String("order_id", order.ID),
		attribute.String("status", order.Status))
	defer span.End()

	p, ok := order.Provider()
	if !ok {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped}
	}

	action := actionFor(order.Status)
	if action == actionNone {
		return d.skip(ctx, order, p)
	}

	marked, err := d.orders.MarkSyncPending(ctx, order.ID, order.StatusVersion)
	if err != nil {
		d.logger.Error("Failed to mark sync pending", zap.String("order_id", order.ID), zap.Error(err))
	} else if !marked {
		d.logger.Info("Order changed before sync started, skipping",
			zap.String("order_id", order.ID), zap.Int64("status_version", order.StatusVersion))
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped, Action: action, Stale: true}
	}

	return d.attempt(ctx, order, p, action)
}

// Enqueue marks the order pending and publishes a sync job for the worker.
// If publishing fails the order stays pending and is reclaimed by the retry
// sweep once its lease expires.
func (d *StatusSyncDispatcher) Enqueue(ctx context.Context, order *models.Order) SyncOutcome {
	p, ok := order.Provider()
	if !ok {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped}
	}

	action := actionFor(order.Status)
	if action == actionNone {
		return d.skip(ctx, order, p)
	}

	marked, err := d.orders.MarkSyncPending(ctx, order.ID, order.StatusVersion)
	if err != nil {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultFailed, Action: action, Error: err.Error()}
	}
	if !marked {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped, Action: action, Stale: true}
	}

	job := &models.SyncJob{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.MessageTypeSyncJob,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		StatusVersion: order.StatusVersion,
	}
	outcome := SyncOutcome{OrderID: order.ID, Result: SyncResultQueued, Action: action}
	if err := d.publisher.PublishSyncJob(ctx, job); err != nil {
		d.logger.Error("Failed to publish sync job, leaving order for the retry sweep",
			zap.String("order_id", order.ID), zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}

	d.audit.Record(ctx, AuditEntry{
		OrderID:    order.ID,
		BusinessID: order.BusinessID,
		EventType:  models.EventTypeSyncQueued,
		Provider:   p,
		Payload: map[string]interface{}{
			"job_id":         job.EventID,
			"action":         action,
			"status_version": order.StatusVersion,
		},
	})
	return outcome
}

// HandleJob runs a queued sync job. Jobs for superseded versions or orders
// no longer pending are dropped.
func (d *StatusSyncDispatcher) HandleJob(ctx context.Context, job *models.SyncJob) (SyncOutcome, error) {
	order, err := d.orders.GetOrderByID(ctx, job.OrderID)
	if err != nil {
		return SyncOutcome{OrderID: job.OrderID}, fmt.Errorf("failed to load order %s: %w", job.OrderID, err)
	}

	if order.StatusVersion != job.StatusVersion || order.SyncState != models.SyncStatePending {
		d.logger.Info("Dropping superseded sync job",
			zap.String("order_id", order.ID),
			zap.Int64("job_version", job.StatusVersion),
			zap.Int64("order_version", order.StatusVersion),
			zap.String("sync_state", order.SyncState))
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped, Stale: true}, nil
	}

	p, ok := order.Provider()
	if !ok {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped}, nil
	}
	action := actionFor(order.Status)
	if action == actionNone {
		return d.skip(ctx, order, p), nil
	}
	return d.attempt(ctx, order, p, action), nil
}

// Retry re-attempts a sync for an order the retry sweep already claimed
func (d *StatusSyncDispatcher) Retry(ctx context.Context, order *models.Order) SyncOutcome {
	ctx, span := util.StartSpan(ctx, "StatusSyncDispatcher.Retry",
		attribute.String("order_id", order.ID),
		attribute.Int("retry_count", order.RetryCount))
	defer span.End()

	p, ok := order.Provider()
	if !ok {
		return SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped}
	}

	action := actionFor(order.Status)
	d.audit.Record(ctx, AuditEntry{
		OrderID:    order.ID,
		BusinessID: order.BusinessID,
		EventType:  models.EventTypeSyncRetry,
		Provider:   p,
		Payload: map[string]interface{}{
			"attempt":        order.RetryCount + 1,
			"status":         order.Status,
			"status_version": order.StatusVersion,
		},
	})

	if action == actionNone {
		return d.skip(ctx, order, p)
	}
	return d.attempt(ctx, order, p, action)
}

// skip resolves a status with no provider counterpart
func (d *StatusSyncDispatcher) skip(ctx context.Context, order *models.Order, p models.Provider) SyncOutcome {
	outcome := SyncOutcome{OrderID: order.ID, Result: SyncResultSkipped}

	ok, err := d.orders.MarkSyncSucceeded(ctx, order.ID, order.StatusVersion)
	if err != nil {
		d.logger.Error("Failed to resolve skipped sync", zap.String("order_id", order.ID), zap.Error(err))
	}
	outcome.Stale = err == nil && !ok

	util.ProviderSyncTotal.WithLabelValues(string(p), SyncResultSkipped).Inc()
	d.audit.Record(ctx, AuditEntry{
		OrderID:    order.ID,
		BusinessID: order.BusinessID,
		EventType:  models.EventTypeSyncSkipped,
		Provider:   p,
		Payload: map[string]interface{}{
			"status":         order.Status,
			"status_version": order.StatusVersion,
			"reason":         "status has no provider action",
		},
	})
	return outcome
}

// attempt performs the provider call and records its result against the
// order version that produced it
func (d *StatusSyncDispatcher) attempt(ctx context.Context, order *models.Order, p models.Provider, action string) SyncOutcome {
	outcome := SyncOutcome{OrderID: order.ID, Action: action}

	start := time.Now()
	callErr := d.call(ctx, order, p, action)
	util.ProviderSyncLatency.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())

	d.registry.RecordSync(ctx, order.BusinessID, p, callErr)

	var written bool
	var err error
	if callErr != nil {
		outcome.Result = SyncResultFailed
		outcome.Error = callErr.Error()
		written, err = d.orders.MarkSyncFailed(ctx, order.ID, order.StatusVersion, callErr.Error())
		d.logger.Warn("Provider sync failed",
			zap.String("order_id", order.ID),
			zap.String("provider", string(p)),
			zap.String("action", action),
			zap.Error(callErr))
	} else {
		outcome.Result = SyncResultSynced
		written, err = d.orders.MarkSyncSucceeded(ctx, order.ID, order.StatusVersion)
		d.logger.Info("Provider sync succeeded",
			zap.String("order_id", order.ID),
			zap.String("provider", string(p)),
			zap.String("action", action))
	}

	if err != nil {
		d.logger.Error("Failed to record sync result", zap.String("order_id", order.ID), zap.Error(err))
	} else if !written {
		outcome.Stale = true
		d.logger.Info("Discarding stale sync result",
			zap.String("order_id", order.ID),
			zap.Int64("status_version", order.StatusVersion),
			zap.String("result", outcome.Result))
	}

	util.ProviderSyncTotal.WithLabelValues(string(p), outcome.Result).Inc()

	eventType := models.EventTypeSyncSucceeded
	payload := map[string]interface{}{
		"action":         action,
		"status":         order.Status,
		"status_version": order.StatusVersion,
	}
	if callErr != nil {
		eventType = models.EventTypeSyncFailed
		payload["error"] = callErr.Error()
	}
	if outcome.Stale {
		payload["stale"] = true
	}
	d.audit.Record(ctx, AuditEntry{
		OrderID:    order.ID,
		BusinessID: order.BusinessID,
		EventType:  eventType,
		Provider:   p,
		Payload:    payload,
	})

	return outcome
}

// call obtains a fresh token and performs the provider action
func (d *StatusSyncDispatcher) call(ctx context.Context, order *models.Order, p models.Provider, action string) error {
	client, ok := d.clients[p]
	if !ok {
		return fmt.Errorf("no client configured for provider %s", p)
	}

	creds, err := d.registry.Credentials(ctx, order.BusinessID, p)
	if err != nil {
		return err
	}

	token, err := client.AccessToken(ctx, creds)
	if err != nil {
		return err
	}

	switch action {
	case actionAccept:
		return client.AcceptOrder(ctx, token, order.ExternalOrderID)
	case actionCancel:
		reason := defaultCancelReason
		if order.CancelReason != nil && *order.CancelReason != "" {
			reason = *order.CancelReason
		}
		return client.CancelOrder(ctx, token, order.ExternalOrderID, reason)
	}
	return fmt.Errorf("unknown provider action %q", action)
}
