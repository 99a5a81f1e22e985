package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/util"
)

const retrySweepLockKey = "provider-sync:retry-sweep"

// RetryPolicy bounds automatic re-attempts of failed syncs
type RetryPolicy struct {
	MaxRetries int
	Window     time.Duration
	ClaimLease time.Duration
	BatchSize  int
}

// DefaultRetryPolicy allows three attempts within two hours
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Window:     2 * time.Hour,
		ClaimLease: 10 * time.Minute,
		BatchSize:  100,
	}
}

// SweepItem is the result of retrying one order. Status is synced or failed;
// Outcome qualifies it when no provider call settled the order.
type SweepItem struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// sweepOutcomeStale marks a retry whose result was discarded because the
// order changed status during the call
const sweepOutcomeStale = "stale"

// sweepItem reports a skipped retry as synced, since the order is settled
// without a provider call, and a stale one as failed, since nothing was
// confirmed for the current status.
func sweepItem(orderID string, outcome SyncOutcome) SweepItem {
	switch {
	case outcome.Stale:
		return SweepItem{ID: orderID, Status: SyncResultFailed, Outcome: sweepOutcomeStale}
	case outcome.Result == SyncResultSkipped:
		return SweepItem{ID: orderID, Status: SyncResultSynced, Outcome: SyncResultSkipped}
	case outcome.Result == SyncResultFailed:
		return SweepItem{ID: orderID, Status: SyncResultFailed}
	}
	return SweepItem{ID: orderID, Status: SyncResultSynced}
}

// SweepResult summarizes one retry sweep
type SweepResult struct {
	Processed int         `json:"processed"`
	Results   []SweepItem `json:"results"`
	// Skipped is set when another replica held the sweep lock
	Skipped bool `json:"skipped,omitempty"`
}

// RetryScheduler re-attempts failed provider syncs within the retry budget
type RetryScheduler struct {
	orders     OrderRepository
	dispatcher *StatusSyncDispatcher
	locker     Locker
	policy     RetryPolicy
	now        func() time.Time
	logger     *zap.Logger
}

// NewRetryScheduler creates a scheduler; locker may be nil for a single replica
func NewRetryScheduler(orders OrderRepository, dispatcher *StatusSyncDispatcher, locker Locker, policy RetryPolicy) *RetryScheduler {
	return &RetryScheduler{
		orders:     orders,
		dispatcher: dispatcher,
		locker:     locker,
		policy:     policy,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// Sweep claims every eligible failed sync and re-attempts it once
func (r *RetryScheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "RetryScheduler.Sweep")
	defer span.End()

	result := &SweepResult{Results: []SweepItem{}}

	if r.locker != nil {
		token, acquired, err := r.locker.AcquireLock(ctx, retrySweepLockKey, r.policy.ClaimLease)
		if err != nil {
			util.RecordError(span, err)
			return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !acquired {
			r.logger.Info("Retry sweep already running elsewhere, skipping")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := r.locker.ReleaseLock(context.Background(), retrySweepLockKey, token); err != nil {
				r.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	now := r.now()
	orders, err := r.orders.ClaimRetryableOrders(ctx, models.RetryCriteria{
		Sources:      models.ExternalSources(),
		MaxRetries:   r.policy.MaxRetries,
		UpdatedAfter: now.Add(-r.policy.Window),
		StaleBefore:  now.Add(-r.policy.ClaimLease),
		Limit:        r.policy.BatchSize,
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to claim retryable orders: %w", err)
	}
	span.SetAttributes(attribute.Int("claimed", len(orders)))

	for i := range orders {
		item := sweepItem(orders[i].ID, r.dispatcher.Retry(ctx, &orders[i]))

		label := item.Status
		if item.Outcome != "" {
			label = item.Outcome
		}
		util.RetrySweepOrders.WithLabelValues(label).Inc()
		result.Results = append(result.Results, item)
	}
	result.Processed = len(result.Results)

	if result.Processed > 0 {
		r.logger.Info("Retry sweep finished", zap.Int("processed", result.Processed))
	}
	return result, nil
}
