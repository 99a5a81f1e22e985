// Package memstore is an in-memory implementation of the repositories the
// services depend on. It mirrors the constraints of the Postgres schema and
// backs service tests and local runs without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"provider-sync/internal/models"
)

type integrationRow struct {
	models.Integration
	credentials []byte
}

type orderKey struct {
	businessID      string
	source          string
	externalOrderID string
}

type Store struct {
	mu           sync.Mutex
	owners       map[string]string
	members      map[string]map[string]string
	integrations map[string]*integrationRow
	orders       map[string]*models.Order
	orderKeys    map[orderKey]string
	events       []models.OrderEvent

	// Now is the store clock; tests may replace it
	Now func() time.Time
}

func New() *Store {
	return &Store{
		owners:       make(map[string]string),
		members:      make(map[string]map[string]string),
		integrations: make(map[string]*integrationRow),
		orders:       make(map[string]*models.Order),
		orderKeys:    make(map[orderKey]string),
		Now:          time.Now,
	}
}

// AddBusiness registers a business and its owner
func (s *Store) AddBusiness(businessID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[businessID] = ownerID
}

// AddMember grants a user a role within a business
func (s *Store) AddMember(businessID, userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[businessID] == nil {
		s.members[businessID] = make(map[string]string)
	}
	s.members[businessID][userID] = role
}

// PutOrder stores an order as is, assigning an id when empty
func (s *Store) PutOrder(order models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.StatusVersion == 0 {
		order.StatusVersion = 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.Now()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	cp := order
	s.orders[order.ID] = &cp
	if order.ExternalOrderID != "" {
		s.orderKeys[orderKey{order.BusinessID, order.Source, order.ExternalOrderID}] = order.ID
	}
	return order
}

// Orders returns a snapshot of every stored order
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Events returns a snapshot of the audit log in insertion order
func (s *Store) Events() []models.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrderEvent(nil), s.events...)
}

// SealedCredentials returns the raw stored credentials of an integration
func (s *Store) SealedCredentials(businessID string, provider models.Provider) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row := s.findIntegration(businessID, provider); row != nil {
		return row.credentials
	}
	return nil
}

func (s *Store) findIntegration(businessID string, provider models.Provider) *integrationRow {
	for _, row := range s.integrations {
		if row.BusinessID == businessID && row.Provider == provider {
			return row
		}
	}
	return nil
}

func (s *Store) FindConnectedIntegration(_ context.Context, provider models.Provider, externalStoreID string) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *integrationRow
	for _, row := range s.integrations {
		if row.Provider != provider || row.ExternalStoreID != externalStoreID || row.Status != models.IntegrationStatusConnected {
			continue
		}
		if found == nil || row.UpdatedAt.After(found.UpdatedAt) {
			found = row
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	integration := found.Integration
	return &integration, nil
}

func (s *Store) GetIntegration(_ context.Context, businessID string, provider models.Provider) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.findIntegration(businessID, provider)
	if row == nil {
		return nil, models.ErrNotFound
	}
	integration := row.Integration
	return &integration, nil
}

func (s *Store) ListIntegrations(_ context.Context, businessID string) ([]models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Integration{}
	for _, row := range s.integrations {
		if row.BusinessID == businessID {
			out = append(out, row.Integration)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) GetSealedCredentials(_ context.Context, businessID string, provider models.Provider) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.findIntegration(businessID, provider)
	if row == nil || row.Status != models.IntegrationStatusConnected || row.credentials == nil {
		return nil, models.ErrNotFound
	}
	return append([]byte(nil), row.credentials...), nil
}

func (s *Store) SaveConnectedIntegration(_ context.Context, businessID string, provider models.Provider, externalStoreID string, sealedCredentials []byte) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	row := s.findIntegration(businessID, provider)
	if row == nil {
		row = &integrationRow{Integration: models.Integration{
			ID:         uuid.New().String(),
			BusinessID: businessID,
			Provider:   provider,
			CreatedAt:  now,
		}}
		s.integrations[row.ID] = row
	}
	row.ExternalStoreID = externalStoreID
	row.Status = models.IntegrationStatusConnected
	row.LastError = nil
	row.UpdatedAt = now
	row.credentials = append([]byte(nil), sealedCredentials...)
	integration := row.Integration
	return &integration, nil
}

func (s *Store) DisconnectIntegration(_ context.Context, businessID string, provider models.Provider) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.findIntegration(businessID, provider)
	if row == nil {
		return nil, models.ErrNotFound
	}
	row.Status = models.IntegrationStatusDisconnected
	row.credentials = nil
	row.UpdatedAt = s.Now()
	integration := row.Integration
	return &integration, nil
}

func (s *Store) TouchIntegrationWebhook(_ context.Context, integrationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.integrations[integrationID]; ok {
		row.LastWebhookAt = &at
		row.UpdatedAt = s.Now()
	}
	return nil
}

func (s *Store) RecordIntegrationSync(_ context.Context, businessID string, provider models.Provider, at time.Time, lastErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.findIntegration(businessID, provider)
	if row == nil || row.Status != models.IntegrationStatusConnected {
		return nil
	}
	row.LastSyncAt = &at
	row.LastError = lastErr
	row.UpdatedAt = s.Now()
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Store) FindOrderByExternalID(_ context.Context, businessID, source, externalOrderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orderKeys[orderKey{businessID, source, externalOrderID}]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s.orders[id]
	return &cp, nil
}

func (s *Store) UpsertOrder(_ context.Context, order *models.Order, overrideStatus bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	key := orderKey{order.BusinessID, order.Source, order.ExternalOrderID}

	id, exists := s.orderKeys[key]
	if !exists {
		row := *order
		row.ID = uuid.New().String()
		row.StatusVersion = 1
		row.SyncState = models.SyncStateOK
		row.RetryCount = 0
		row.CreatedAt = now
		row.UpdatedAt = now
		s.orders[row.ID] = &row
		s.orderKeys[key] = row.ID
		*order = row
		return true, nil
	}

	row := s.orders[id]
	row.CustomerName = order.CustomerName
	row.CustomerPhone = order.CustomerPhone
	row.Notes = order.Notes
	row.Description = order.Description
	row.Subtotal = order.Subtotal
	row.Tax = order.Tax
	row.Total = order.Total
	row.Currency = order.Currency
	row.SourceDetails = order.SourceDetails
	if overrideStatus && row.Status != order.Status {
		row.Status = order.Status
		row.CancelReason = order.CancelReason
		row.StatusVersion++
		row.SyncState = models.SyncStateOK
		row.LastSyncError = nil
		row.RetryCount = 0
	}
	row.UpdatedAt = now
	*order = *row
	return false, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id, status string, cancelReason *string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	row.Status = status
	row.CancelReason = cancelReason
	row.StatusVersion++
	row.UpdatedAt = s.Now()
	cp := *row
	return &cp, nil
}

func (s *Store) guarded(id string, statusVersion int64, apply func(*models.Order)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.orders[id]
	if !ok || row.StatusVersion != statusVersion {
		return false
	}
	apply(row)
	row.UpdatedAt = s.Now()
	return true
}

func (s *Store) MarkSyncPending(_ context.Context, id string, statusVersion int64) (bool, error) {
	return s.guarded(id, statusVersion, func(o *models.Order) {
		o.SyncState = models.SyncStatePending
		o.LastSyncError = nil
	}), nil
}

func (s *Store) MarkSyncSucceeded(_ context.Context, id string, statusVersion int64) (bool, error) {
	now := s.Now()
	return s.guarded(id, statusVersion, func(o *models.Order) {
		o.SyncState = models.SyncStateOK
		o.LastSyncError = nil
		o.LastSyncedAt = &now
		o.RetryCount = 0
	}), nil
}

func (s *Store) MarkSyncFailed(_ context.Context, id string, statusVersion int64, message string) (bool, error) {
	return s.guarded(id, statusVersion, func(o *models.Order) {
		o.SyncState = models.SyncStateError
		o.LastSyncError = &message
		o.RetryCount++
	}), nil
}

func (s *Store) ClaimRetryableOrders(_ context.Context, c models.RetryCriteria) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		sources[src] = true
	}

	candidates := make([]*models.Order, 0)
	for _, o := range s.orders {
		if !sources[o.Source] || o.RetryCount >= c.MaxRetries || o.UpdatedAt.Before(c.UpdatedAfter) {
			continue
		}
		stale := o.SyncState == models.SyncStatePending && o.UpdatedAt.Before(c.StaleBefore)
		if o.SyncState != models.SyncStateError && !stale {
			continue
		}
		candidates = append(candidates, o)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt) })
	if c.Limit > 0 && len(candidates) > c.Limit {
		candidates = candidates[:c.Limit]
	}

	now := s.Now()
	claimed := make([]models.Order, 0, len(candidates))
	for _, o := range candidates {
		o.SyncState = models.SyncStatePending
		o.UpdatedAt = now
		claimed = append(claimed, *o)
	}
	return claimed, nil
}

func (s *Store) InsertOrderEvent(_ context.Context, event *models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = uuid.New().String()
	event.CreatedAt = s.Now()
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *Store) ListOrderEvents(_ context.Context, orderID string) ([]models.OrderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.OrderEvent{}
	for _, e := range s.events {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GetBusinessOwner(_ context.Context, businessID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[businessID]
	if !ok {
		return "", models.ErrNotFound
	}
	return owner, nil
}

func (s *Store) GetMemberRole(_ context.Context, businessID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.members[businessID][userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return role, nil
}
