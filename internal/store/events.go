package store

import (
	"context"

	"provider-sync/internal/models"
)

// InsertOrderEvent appends an audit event and fills its id and timestamp
func (s *Store) InsertOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO order_events (order_id, business_id, event_type, provider, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		event.OrderID, event.BusinessID, event.EventType, event.Provider, payload,
	).Scan(&event.ID, &event.CreatedAt)
}

// ListOrderEvents returns an order's audit trail, oldest first
func (s *Store) ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	events := []models.OrderEvent{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, order_id, business_id, event_type, provider, payload, created_at
		FROM order_events WHERE order_id = $1 ORDER BY created_at, id`,
		orderID)
	return events, err
}
