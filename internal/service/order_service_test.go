package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provider-sync/internal/models"
)

func TestUpdateStatusSyncsCancellation(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	h.store.AddMember(testBusiness, "staff-1", models.RoleStaff)
	created := h.deliver(t, scenarioPayload)

	resp, err := h.orders.UpdateStatus(context.Background(), "staff-1", &UpdateStatusRequest{
		OrderID:      created.OrderID,
		Status:       models.OrderStatusCancelled,
		CancelReason: "Out of buns",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, resp.Order.Status)
	assert.Equal(t, models.SyncStateOK, resp.Order.SyncState)
	assert.NotNil(t, resp.Order.LastSyncedAt)
	assert.Nil(t, resp.Order.LastSyncError)
	require.NotNil(t, resp.Sync)
	assert.Equal(t, SyncResultSynced, resp.Sync.Result)
	assert.Equal(t, "Out of buns", h.client.cancelled["O1"])
	require.Len(t, h.client.tokens, 1)
	assert.Equal(t, "client-id", h.client.tokens[0].ClientID)
	assert.Equal(t, "client-secret", h.client.tokens[0].ClientSecret)

	events := h.store.Events()
	assert.Equal(t, 1, countEvents(events, models.EventTypeStatusChanged))
	assert.Equal(t, 1, countEvents(events, models.EventTypeSyncSucceeded))
}

func TestUpdateStatusRecordsProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	h.client.callErr = &models.ProviderAPIError{Provider: models.ProviderUberEats, Op: "cancel", StatusCode: 503}

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, resp.Order.Status)
	assert.Equal(t, models.SyncStateError, resp.Order.SyncState)
	assert.Equal(t, 1, resp.Order.RetryCount)
	require.NotNil(t, resp.Order.LastSyncError)
	assert.Contains(t, *resp.Order.LastSyncError, "HTTP 503")
	assert.Equal(t, SyncResultFailed, resp.Sync.Result)
	assert.Equal(t, 1, countEvents(h.store.Events(), models.EventTypeSyncFailed))

	integration, err := h.store.GetIntegration(context.Background(), testBusiness, models.ProviderUberEats)
	require.NoError(t, err)
	require.NotNil(t, integration.LastError)
	assert.NotNil(t, integration.LastSyncAt)
}

func TestUpdateStatusPreparingAcceptsOrder(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  "Preparing",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, resp.Order.Status)
	assert.Equal(t, []string{"O1"}, h.client.accepted)
}

func TestUpdateStatusWithoutProviderActionSkipsCall(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	for _, status := range []string{models.OrderStatusReady, models.OrderStatusCompleted} {
		resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
			OrderID: created.OrderID,
			Status:  status,
		})
		require.NoError(t, err)
		assert.Equal(t, SyncResultSkipped, resp.Sync.Result)
		assert.Equal(t, models.SyncStateOK, resp.Order.SyncState)
	}

	assert.Zero(t, h.client.calls())
	assert.Empty(t, h.client.tokens)
	assert.Equal(t, 2, countEvents(h.store.Events(), models.EventTypeSyncSkipped))
}

func TestUpdateStatusManualOrderIsNotSynced(t *testing.T) {
	h := newHarness(t)
	order := h.store.PutOrder(models.Order{
		BusinessID: testBusiness,
		Source:     "phone",
		Status:     models.OrderStatusCreated,
		SyncState:  models.SyncStateOK,
	})

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: order.ID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Sync)
	assert.Zero(t, h.client.calls())
}

func TestUpdateStatusDiscardsStaleSyncResult(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	// A second change lands while the provider call is in flight
	h.client.onCall = func() {
		h.client.onCall = nil
		_, err := h.store.UpdateOrderStatus(context.Background(), created.OrderID, models.OrderStatusReady, nil)
		require.NoError(t, err)
	}

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.True(t, resp.Sync.Stale)

	order := h.order(t, created.OrderID)
	assert.Equal(t, models.OrderStatusReady, order.Status)
	assert.Nil(t, order.LastSyncedAt)
}

func TestUpdateStatusRequiresMembership(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	_, err := h.orders.UpdateStatus(context.Background(), "stranger", &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	var authErr *models.AuthorizationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, models.OrderStatusCreated, h.order(t, created.OrderID).Status)
}

func TestUpdateStatusValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{OrderID: "x", Status: "eaten"})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{OrderID: "missing", Status: "ready"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListEventsReturnsTrail(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	events, err := h.orders.ListEvents(context.Background(), testOwner, created.OrderID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTypeOrderUpserted, events[0].EventType)
	assert.Equal(t, models.EventTypeWebhookReceived, events[1].EventType)

	_, err = h.orders.ListEvents(context.Background(), "stranger", created.OrderID)
	var authErr *models.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}

func TestAsyncModeQueuesSyncJob(t *testing.T) {
	h := newHarness(t, withAsync())
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResultQueued, resp.Sync.Result)
	assert.Equal(t, models.SyncStatePending, resp.Order.SyncState)
	assert.Zero(t, h.client.calls())
	require.Len(t, h.publisher.jobs, 1)

	job := h.publisher.jobs[0]
	assert.Equal(t, models.MessageTypeSyncJob, job.EventType)
	assert.Equal(t, resp.Order.StatusVersion, job.StatusVersion)

	outcome, err := h.dispatcher.HandleJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, SyncResultSynced, outcome.Result)
	assert.Equal(t, models.SyncStateOK, h.order(t, created.OrderID).SyncState)

	// Redelivery of the same job is a no-op
	outcome, err = h.dispatcher.HandleJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, outcome.Stale)
	assert.Equal(t, 1, h.client.calls())
}

func TestAsyncPublishFailureLeavesOrderPending(t *testing.T) {
	h := newHarness(t, withAsync())
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)
	h.publisher.jobErr = errors.New("broker down")

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResultQueued, resp.Sync.Result)
	assert.Equal(t, "broker down", resp.Sync.Error)
	assert.Equal(t, models.SyncStatePending, resp.Order.SyncState)
}

func TestNewStatusChangeClearsPreviousSyncError(t *testing.T) {
	h := newHarness(t, withAsync())
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	_, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusPreparing,
	})
	require.NoError(t, err)
	require.Len(t, h.publisher.jobs, 1)

	h.client.callErr = errors.New("provider down")
	outcome, err := h.dispatcher.HandleJob(context.Background(), h.publisher.jobs[0])
	require.NoError(t, err)
	require.Equal(t, SyncResultFailed, outcome.Result)
	require.NotNil(t, h.order(t, created.OrderID).LastSyncError)

	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, SyncResultQueued, resp.Sync.Result)
	assert.Equal(t, models.SyncStatePending, resp.Order.SyncState)
	assert.Nil(t, resp.Order.LastSyncError)
}
