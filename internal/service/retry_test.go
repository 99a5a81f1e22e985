package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provider-sync/internal/models"
)

func failedOrder(retries int, updated time.Time) models.Order {
	msg := "uber_eats cancel failed: HTTP 503"
	return models.Order{
		SyncState:     models.SyncStateError,
		RetryCount:    retries,
		LastSyncError: &msg,
		UpdatedAt:     updated,
	}
}

func TestSweepRespectsRetryBudget(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	now := time.Now()

	exhausted := h.putExternalOrder(failedOrder(3, now.Add(-time.Minute)))
	eligible := h.putExternalOrder(failedOrder(2, now.Add(-time.Minute)))

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	assert.Equal(t, []SweepItem{{ID: eligible.ID, Status: SyncResultSynced}}, res.Results)

	synced := h.order(t, eligible.ID)
	assert.Equal(t, models.SyncStateOK, synced.SyncState)
	assert.Zero(t, synced.RetryCount)
	assert.Nil(t, synced.LastSyncError)

	untouched := h.order(t, exhausted.ID)
	assert.Equal(t, models.SyncStateError, untouched.SyncState)
	assert.Equal(t, 3, untouched.RetryCount)
}

func TestSweepIgnoresOrdersOutsideWindowAndManualSources(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	now := time.Now()

	h.putExternalOrder(failedOrder(0, now.Add(-3*time.Hour)))
	manual := failedOrder(0, now.Add(-time.Minute))
	manual.Source = "walk-in"
	h.putExternalOrder(manual)
	ok := failedOrder(0, now.Add(-time.Minute))
	ok.SyncState = models.SyncStateOK
	h.putExternalOrder(ok)

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Empty(t, res.Results)
	assert.Zero(t, h.client.calls())
}

func TestSweepFailureConsumesBudget(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	h.client.callErr = errors.New("connection refused")

	order := h.putExternalOrder(failedOrder(2, time.Now().Add(-time.Minute)))

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SweepItem{{ID: order.ID, Status: SyncResultFailed}}, res.Results)

	after := h.order(t, order.ID)
	assert.Equal(t, 3, after.RetryCount)
	assert.Equal(t, models.SyncStateError, after.SyncState)
	assert.Equal(t, 1, countEvents(h.store.Events(), models.EventTypeSyncRetry))

	res, err = h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestSweepReclaimsExpiredClaims(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	now := time.Now()

	abandoned := failedOrder(1, now.Add(-20*time.Minute))
	abandoned.SyncState = models.SyncStatePending
	abandoned = h.putExternalOrder(abandoned)

	inFlight := failedOrder(1, now.Add(-time.Minute))
	inFlight.SyncState = models.SyncStatePending
	inFlight = h.putExternalOrder(inFlight)

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, abandoned.ID, res.Results[0].ID)
	assert.Equal(t, models.SyncStatePending, h.order(t, inFlight.ID).SyncState)
}

func TestSweepSkipsWhileLockHeld(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	order := h.putExternalOrder(failedOrder(0, time.Now().Add(-time.Minute)))

	h.locker.held = true
	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, models.SyncStateError, h.order(t, order.ID).SyncState)

	h.locker.held = false
	res, err = h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, h.locker.released)
}

func TestSweepResolvesStatusesWithoutProviderAction(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)

	o := failedOrder(1, time.Now().Add(-time.Minute))
	o.Status = models.OrderStatusReady
	order := h.putExternalOrder(o)

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SweepItem{{ID: order.ID, Status: SyncResultSynced, Outcome: SyncResultSkipped}}, res.Results)
	assert.Zero(t, h.client.calls())
	assert.Equal(t, models.SyncStateOK, h.order(t, order.ID).SyncState)
}

func TestSweepReportsStaleRetryAsNotSynced(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	order := h.putExternalOrder(failedOrder(1, time.Now().Add(-time.Minute)))

	h.client.onCall = func() {
		h.client.onCall = nil
		reason := "Customer called"
		_, err := h.store.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusCancelled, &reason)
		require.NoError(t, err)
	}

	res, err := h.retry.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SweepItem{{ID: order.ID, Status: SyncResultFailed, Outcome: "stale"}}, res.Results)
	assert.Equal(t, 1, h.client.calls())
}
