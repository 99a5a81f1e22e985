package store

import (
	"context"
	"time"

	"provider-sync/internal/models"
)

const integrationColumns = `id, business_id, provider, external_store_id, status, last_error,
	last_sync_at, last_webhook_at, created_at, updated_at`

// FindConnectedIntegration returns the connected integration that owns a provider store
func (s *Store) FindConnectedIntegration(ctx context.Context, provider models.Provider, externalStoreID string) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.GetContext(ctx, &integration,
		`SELECT `+integrationColumns+` FROM integrations_public
		WHERE provider = $1 AND external_store_id = $2 AND status = 'connected'
		ORDER BY updated_at DESC LIMIT 1`,
		provider, externalStoreID)
	if err != nil {
		return nil, notFound(err)
	}
	return &integration, nil
}

// GetIntegration returns a business's integration with a provider
func (s *Store) GetIntegration(ctx context.Context, businessID string, provider models.Provider) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.GetContext(ctx, &integration,
		`SELECT `+integrationColumns+` FROM integrations_public WHERE business_id = $1 AND provider = $2`,
		businessID, provider)
	if err != nil {
		return nil, notFound(err)
	}
	return &integration, nil
}

// ListIntegrations returns every integration of a business
func (s *Store) ListIntegrations(ctx context.Context, businessID string) ([]models.Integration, error) {
	integrations := []models.Integration{}
	err := s.db.SelectContext(ctx, &integrations,
		`SELECT `+integrationColumns+` FROM integrations_public WHERE business_id = $1 ORDER BY provider`,
		businessID)
	return integrations, err
}

// GetSealedCredentials returns the sealed credentials of a connected integration
func (s *Store) GetSealedCredentials(ctx context.Context, businessID string, provider models.Provider) ([]byte, error) {
	var sealed []byte
	err := s.db.GetContext(ctx, &sealed,
		`SELECT credentials FROM integrations
		WHERE business_id = $1 AND provider = $2 AND status = 'connected' AND credentials IS NOT NULL`,
		businessID, provider)
	if err != nil {
		return nil, notFound(err)
	}
	return sealed, nil
}

// SaveConnectedIntegration creates or reconnects a business's integration
func (s *Store) SaveConnectedIntegration(ctx context.Context, businessID string, provider models.Provider, externalStoreID string, sealedCredentials []byte) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.GetContext(ctx, &integration,
		`INSERT INTO integrations (business_id, provider, external_store_id, credentials, status)
		VALUES ($1, $2, $3, $4, 'connected')
		ON CONFLICT (business_id, provider) DO UPDATE SET
			external_store_id = EXCLUDED.external_store_id,
			credentials = EXCLUDED.credentials,
			status = 'connected',
			last_error = NULL,
			updated_at = NOW()
		RETURNING `+integrationColumns,
		businessID, provider, externalStoreID, sealedCredentials)
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// DisconnectIntegration marks an integration disconnected and erases its credentials
func (s *Store) DisconnectIntegration(ctx context.Context, businessID string, provider models.Provider) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.GetContext(ctx, &integration,
		`UPDATE integrations SET status = 'disconnected', credentials = NULL, updated_at = NOW()
		WHERE business_id = $1 AND provider = $2
		RETURNING `+integrationColumns,
		businessID, provider)
	if err != nil {
		return nil, notFound(err)
	}
	return &integration, nil
}

// TouchIntegrationWebhook records when a webhook last arrived for an integration
func (s *Store) TouchIntegrationWebhook(ctx context.Context, integrationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE integrations SET last_webhook_at = $1, updated_at = NOW() WHERE id = $2",
		at, integrationID)
	return err
}

// RecordIntegrationSync stamps the outcome of the latest outbound call.
// A nil lastErr clears the previous error.
func (s *Store) RecordIntegrationSync(ctx context.Context, businessID string, provider models.Provider, at time.Time, lastErr *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET last_sync_at = $1, last_error = $2, updated_at = NOW()
		WHERE business_id = $3 AND provider = $4 AND status = 'connected'`,
		at, lastErr, businessID, provider)
	return err
}
