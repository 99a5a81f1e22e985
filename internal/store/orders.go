package store

import (
	"context"
	"strings"

	"github.com/lib/pq"

	"provider-sync/internal/models"
)

var orderColumnNames = []string{
	"id", "business_id", "source", "external_order_id", "status", "status_version",
	"cancel_reason", "customer_name", "customer_phone", "notes", "description",
	"subtotal", "tax", "total", "currency", "source_details", "sync_state",
	"retry_count", "last_sync_error", "last_synced_at", "created_at", "updated_at",
}

// orderColumns renders the order select list, qualified by alias when given.
// Manual orders have no external id, so it is coalesced for scanning.
func orderColumns(alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	cols := make([]string, 0, len(orderColumnNames))
	for _, c := range orderColumnNames {
		if c == "external_order_id" {
			cols = append(cols, "COALESCE("+prefix+c+", '') AS external_order_id")
			continue
		}
		cols = append(cols, prefix+c)
	}
	return strings.Join(cols, ", ")
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns("")+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// FindOrderByExternalID retrieves an order by its provider identity
func (s *Store) FindOrderByExternalID(ctx context.Context, businessID, source, externalOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns("")+" FROM orders WHERE business_id = $1 AND source = $2 AND external_order_id = $3",
		businessID, source, externalOrderID)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

type upsertedOrder struct {
	models.Order
	Inserted bool `db:"inserted"`
}

// UpsertOrder inserts an order or refreshes the existing row with the same
// (business_id, source, external_order_id). The stored status is only
// replaced when overrideStatus is set. A status the provider changed needs no
// sync back, so the row's sync state is reset with it. order is filled from
// the stored row.
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order, overrideStatus bool) (bool, error) {
	query := `
		INSERT INTO orders (business_id, source, external_order_id, status, cancel_reason,
			customer_name, customer_phone, notes, description, subtotal, tax, total,
			currency, source_details, sync_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'ok')
		ON CONFLICT (business_id, source, external_order_id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			notes = EXCLUDED.notes,
			description = EXCLUDED.description,
			subtotal = EXCLUDED.subtotal,
			tax = EXCLUDED.tax,
			total = EXCLUDED.total,
			currency = EXCLUDED.currency,
			source_details = EXCLUDED.source_details,
			status = CASE WHEN $15::boolean THEN EXCLUDED.status ELSE orders.status END,
			cancel_reason = CASE WHEN $15::boolean AND orders.status <> EXCLUDED.status
				THEN EXCLUDED.cancel_reason ELSE orders.cancel_reason END,
			status_version = CASE WHEN $15::boolean AND orders.status <> EXCLUDED.status
				THEN orders.status_version + 1 ELSE orders.status_version END,
			sync_state = CASE WHEN $15::boolean AND orders.status <> EXCLUDED.status
				THEN 'ok' ELSE orders.sync_state END,
			last_sync_error = CASE WHEN $15::boolean AND orders.status <> EXCLUDED.status
				THEN NULL ELSE orders.last_sync_error END,
			retry_count = CASE WHEN $15::boolean AND orders.status <> EXCLUDED.status
				THEN 0 ELSE orders.retry_count END,
			updated_at = NOW()
		RETURNING ` + orderColumns("orders") + `, (xmax = 0) AS inserted`

	var row upsertedOrder
	err := s.db.GetContext(ctx, &row, query,
		order.BusinessID, order.Source, order.ExternalOrderID, order.Status, order.CancelReason,
		order.CustomerName, order.CustomerPhone, order.Notes, order.Description,
		order.Subtotal, order.Tax, order.Total, order.Currency, order.SourceDetails,
		overrideStatus)
	if err != nil {
		return false, err
	}

	*order = row.Order
	return row.Inserted, nil
}

// UpdateOrderStatus sets a new local status and bumps the status version
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string, cancelReason *string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		`UPDATE orders SET status = $2, cancel_reason = $3, status_version = status_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns(""),
		id, status, cancelReason)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// MarkSyncPending flags an order as waiting for a provider call.
// It reports false when the order moved past statusVersion.
func (s *Store) MarkSyncPending(ctx context.Context, id string, statusVersion int64) (bool, error) {
	return s.execGuarded(ctx,
		`UPDATE orders SET sync_state = 'pending', last_sync_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status_version = $2`,
		id, statusVersion)
}

// MarkSyncSucceeded records a successful provider call for statusVersion.
// The retry counter restarts so later changes get a fresh budget.
func (s *Store) MarkSyncSucceeded(ctx context.Context, id string, statusVersion int64) (bool, error) {
	return s.execGuarded(ctx,
		`UPDATE orders SET sync_state = 'ok', last_sync_error = NULL, last_synced_at = NOW(),
			retry_count = 0, updated_at = NOW()
		WHERE id = $1 AND status_version = $2`,
		id, statusVersion)
}

// MarkSyncFailed records a failed provider call for statusVersion
func (s *Store) MarkSyncFailed(ctx context.Context, id string, statusVersion int64, message string) (bool, error) {
	return s.execGuarded(ctx,
		`UPDATE orders SET sync_state = 'error', last_sync_error = $3, retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE id = $1 AND status_version = $2`,
		id, statusVersion, message)
}

func (s *Store) execGuarded(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimRetryableOrders locks a batch of failed syncs and flips them to pending.
// Rows locked by a concurrent sweep are skipped, so two sweeps never claim
// the same order.
func (s *Store) ClaimRetryableOrders(ctx context.Context, c models.RetryCriteria) ([]models.Order, error) {
	query := `
		WITH claimable AS (
			SELECT id FROM orders
			WHERE source = ANY($1)
				AND retry_count < $2
				AND updated_at >= $3
				AND (sync_state = 'error' OR (sync_state = 'pending' AND updated_at < $4))
			ORDER BY updated_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		UPDATE orders o SET sync_state = 'pending', updated_at = NOW()
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING ` + orderColumns("o")

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, query,
		pq.Array(c.Sources), c.MaxRetries, c.UpdatedAfter, c.StaleBefore, c.Limit)
	return orders, err
}
