package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/util"
)

// OrderService applies local status changes and exposes the audit trail
type OrderService struct {
	orders     OrderRepository
	authz      *Authorizer
	audit      *EventAuditLog
	dispatcher *StatusSyncDispatcher
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	authz *Authorizer,
	audit *EventAuditLog,
	dispatcher *StatusSyncDispatcher,
) *OrderService {
	return &OrderService{
		orders:     orders,
		authz:      authz,
		audit:      audit,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// UpdateStatusRequest represents a staff status change
type UpdateStatusRequest struct {
	OrderID      string `json:"order_id" binding:"required"`
	Status       string `json:"status" binding:"required"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// UpdateStatusResponse carries the stored order and what happened upstream
type UpdateStatusResponse struct {
	Order *models.Order `json:"order"`
	Sync  *SyncOutcome  `json:"sync,omitempty"`
}

// UpdateStatus changes an order's local status and propagates it to the
// originating provider. Provider failures are recorded on the order and
// never returned to the caller.
func (s *OrderService) UpdateStatus(ctx context.Context, callerID string, req *UpdateStatusRequest) (*UpdateStatusResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order_id", req.OrderID),
		attribute.String("status", req.Status))
	defer span.End()

	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !models.IsValidOrderStatus(status) {
		return nil, &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", req.Status)}
	}

	order, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if err := s.authz.Require(ctx, callerID, order.BusinessID, MemberRoles...); err != nil {
		return nil, err
	}

	var cancelReason *string
	if status == models.OrderStatusCancelled {
		reason := strings.TrimSpace(req.CancelReason)
		if reason == "" {
			reason = defaultCancelReason
		}
		cancelReason = &reason
	}

	previous := order.Status
	updated, err := s.orders.UpdateOrderStatus(ctx, order.ID, status, cancelReason)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", updated.ID),
		zap.String("from", previous),
		zap.String("to", updated.Status),
		zap.String("user_id", callerID))

	p, _ := updated.Provider()
	s.audit.Record(ctx, AuditEntry{
		OrderID:    updated.ID,
		BusinessID: updated.BusinessID,
		EventType:  models.EventTypeStatusChanged,
		Provider:   p,
		Payload: map[string]interface{}{
			"from":           previous,
			"to":             updated.Status,
			"by":             callerID,
			"status_version": updated.StatusVersion,
		},
	})

	resp := &UpdateStatusResponse{Order: updated}
	if p == "" {
		return resp, nil
	}

	outcome := s.dispatcher.Dispatch(ctx, updated)
	resp.Sync = &outcome

	// Reload so the response reflects the recorded sync state
	if refreshed, err := s.orders.GetOrderByID(ctx, updated.ID); err == nil {
		resp.Order = refreshed
	} else {
		s.logger.Warn("Failed to reload order after sync", zap.String("order_id", updated.ID), zap.Error(err))
	}
	return resp, nil
}

// ListEvents returns an order's audit trail to members of its business
func (s *OrderService) ListEvents(ctx context.Context, callerID, orderID string) ([]models.OrderEvent, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if err := s.authz.Require(ctx, callerID, order.BusinessID, MemberRoles...); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, orderID)
}
