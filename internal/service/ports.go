package service

import (
	"context"
	"time"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
)

// IntegrationRepository persists provider integrations
type IntegrationRepository interface {
	FindConnectedIntegration(ctx context.Context, p models.Provider, externalStoreID string) (*models.Integration, error)
	GetIntegration(ctx context.Context, businessID string, p models.Provider) (*models.Integration, error)
	ListIntegrations(ctx context.Context, businessID string) ([]models.Integration, error)
	GetSealedCredentials(ctx context.Context, businessID string, p models.Provider) ([]byte, error)
	SaveConnectedIntegration(ctx context.Context, businessID string, p models.Provider, externalStoreID string, sealedCredentials []byte) (*models.Integration, error)
	DisconnectIntegration(ctx context.Context, businessID string, p models.Provider) (*models.Integration, error)
	TouchIntegrationWebhook(ctx context.Context, integrationID string, at time.Time) error
	RecordIntegrationSync(ctx context.Context, businessID string, p models.Provider, at time.Time, lastErr *string) error
}

// OrderRepository persists orders and their sync state
type OrderRepository interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	FindOrderByExternalID(ctx context.Context, businessID, source, externalOrderID string) (*models.Order, error)
	UpsertOrder(ctx context.Context, order *models.Order, overrideStatus bool) (bool, error)
	UpdateOrderStatus(ctx context.Context, id, status string, cancelReason *string) (*models.Order, error)
	MarkSyncPending(ctx context.Context, id string, statusVersion int64) (bool, error)
	MarkSyncSucceeded(ctx context.Context, id string, statusVersion int64) (bool, error)
	MarkSyncFailed(ctx context.Context, id string, statusVersion int64, message string) (bool, error)
	ClaimRetryableOrders(ctx context.Context, c models.RetryCriteria) ([]models.Order, error)
}

// EventRepository persists the audit log
type EventRepository interface {
	InsertOrderEvent(ctx context.Context, event *models.OrderEvent) error
	ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error)
}

// MembershipRepository answers who may act on a business
type MembershipRepository interface {
	GetBusinessOwner(ctx context.Context, businessID string) (string, error)
	GetMemberRole(ctx context.Context, businessID, userID string) (string, error)
}

// Repository is everything the services read and write
type Repository interface {
	IntegrationRepository
	OrderRepository
	EventRepository
	MembershipRepository
}

// EventPublisher mirrors audit events and sync jobs onto the event stream
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, event *models.OrderEvent) error
	PublishSyncJob(ctx context.Context, job *models.SyncJob) error
}

// Locker is a lease-based mutual exclusion lock shared by replicas
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// CredentialSealer encrypts provider credentials at rest
type CredentialSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// ProviderClients holds the outbound client for each provider
type ProviderClients map[models.Provider]provider.Client
