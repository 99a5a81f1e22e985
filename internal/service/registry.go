package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/util"
)

// ErrMissingCredentials means the integration is gone or was disconnected
var ErrMissingCredentials = errors.New("integration is not connected or has no stored credentials")

// IntegrationRegistry maps provider stores to businesses and hands out
// unsealed credentials to the sync path
type IntegrationRegistry struct {
	repo   IntegrationRepository
	sealer CredentialSealer
	logger *zap.Logger
}

func NewIntegrationRegistry(repo IntegrationRepository, sealer CredentialSealer) *IntegrationRegistry {
	return &IntegrationRegistry{
		repo:   repo,
		sealer: sealer,
		logger: util.GetLogger(),
	}
}

// Resolve returns the connected integration that owns externalStoreID
func (r *IntegrationRegistry) Resolve(ctx context.Context, p models.Provider, externalStoreID string) (*models.Integration, error) {
	integration, err := r.repo.FindConnectedIntegration(ctx, p, externalStoreID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &models.IntegrationNotFoundError{Provider: p, ExternalStoreID: externalStoreID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve integration: %w", err)
	}
	return integration, nil
}

// Credentials unseals the stored credentials of a connected integration
func (r *IntegrationRegistry) Credentials(ctx context.Context, businessID string, p models.Provider) (provider.Credentials, error) {
	var creds provider.Credentials

	blob, err := r.repo.GetSealedCredentials(ctx, businessID, p)
	if errors.Is(err, models.ErrNotFound) {
		return creds, ErrMissingCredentials
	}
	if err != nil {
		return creds, fmt.Errorf("failed to load credentials: %w", err)
	}

	plain, err := r.sealer.Open(blob)
	if err != nil {
		return creds, fmt.Errorf("failed to unseal credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return creds, nil
}

// TouchWebhook stamps the time a webhook was accepted for an integration
func (r *IntegrationRegistry) TouchWebhook(ctx context.Context, integration *models.Integration) {
	if err := r.repo.TouchIntegrationWebhook(ctx, integration.ID, time.Now()); err != nil {
		r.logger.Warn("Failed to stamp last_webhook_at",
			zap.String("integration_id", integration.ID), zap.Error(err))
	}
}

// RecordSync stamps the outcome of an outbound call on the integration
func (r *IntegrationRegistry) RecordSync(ctx context.Context, businessID string, p models.Provider, syncErr error) {
	var lastErr *string
	if syncErr != nil {
		msg := syncErr.Error()
		lastErr = &msg
	}
	if err := r.repo.RecordIntegrationSync(ctx, businessID, p, time.Now(), lastErr); err != nil {
		r.logger.Warn("Failed to stamp integration sync",
			zap.String("business_id", businessID),
			zap.String("provider", string(p)),
			zap.Error(err))
	}
}
