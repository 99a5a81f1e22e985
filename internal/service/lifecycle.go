package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/util"
)

// IntegrationLifecycleManager connects and disconnects provider integrations
type IntegrationLifecycleManager struct {
	repo   IntegrationRepository
	authz  *Authorizer
	sealer CredentialSealer
	audit  *EventAuditLog
	logger *zap.Logger
}

func NewIntegrationLifecycleManager(repo IntegrationRepository, authz *Authorizer, sealer CredentialSealer, audit *EventAuditLog) *IntegrationLifecycleManager {
	return &IntegrationLifecycleManager{
		repo:   repo,
		authz:  authz,
		sealer: sealer,
		audit:  audit,
		logger: util.GetLogger(),
	}
}

// ConnectRequest links a business to a provider store
type ConnectRequest struct {
	BusinessID      string          `json:"business_id" binding:"required"`
	Provider        models.Provider `json:"provider" binding:"required"`
	ExternalStoreID string          `json:"external_store_id" binding:"required"`
	APIKey          string          `json:"api_key" binding:"required"`
	APISecret       string          `json:"api_secret" binding:"required"`
}

// DisconnectRequest unlinks a business from a provider
type DisconnectRequest struct {
	BusinessID string          `json:"business_id" binding:"required"`
	Provider   models.Provider `json:"provider" binding:"required"`
}

func validateProvider(p models.Provider) error {
	if !p.IsValid() {
		return &models.ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", p)}
	}
	return nil
}

// Connect stores sealed credentials and marks the integration connected.
// Only owners and admins may connect.
func (m *IntegrationLifecycleManager) Connect(ctx context.Context, callerID string, req *ConnectRequest) (*models.Integration, error) {
	ctx, span := util.StartSpan(ctx, "IntegrationLifecycleManager.Connect")
	defer span.End()

	if err := m.authz.Require(ctx, callerID, req.BusinessID, ManagerRoles...); err != nil {
		return nil, err
	}

	if err := validateProvider(req.Provider); err != nil {
		return nil, err
	}
	storeID := strings.TrimSpace(req.ExternalStoreID)
	if storeID == "" {
		return nil, &models.ValidationError{Field: "external_store_id", Reason: "required"}
	}
	if req.APIKey == "" || req.APISecret == "" {
		return nil, &models.ValidationError{Field: "api_key", Reason: "credentials are required"}
	}

	plain, err := json.Marshal(provider.Credentials{ClientID: req.APIKey, ClientSecret: req.APISecret})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := m.sealer.Seal(plain)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}

	integration, err := m.repo.SaveConnectedIntegration(ctx, req.BusinessID, req.Provider, storeID, sealed)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to save integration: %w", err)
	}

	util.IntegrationChangesTotal.WithLabelValues(string(req.Provider), "connect").Inc()
	m.logger.Info("Integration connected",
		zap.String("business_id", req.BusinessID),
		zap.String("provider", string(req.Provider)),
		zap.String("external_store_id", storeID),
		zap.String("user_id", callerID))
	m.audit.Record(ctx, AuditEntry{
		BusinessID: req.BusinessID,
		EventType:  models.EventTypeIntegrationLinked,
		Provider:   req.Provider,
		Payload: map[string]interface{}{
			"integration_id":    integration.ID,
			"external_store_id": storeID,
			"by":                callerID,
		},
	})
	return integration, nil
}

// Disconnect erases the stored credentials and marks the integration
// disconnected. The row is kept for history.
func (m *IntegrationLifecycleManager) Disconnect(ctx context.Context, callerID string, req *DisconnectRequest) (*models.Integration, error) {
	ctx, span := util.StartSpan(ctx, "IntegrationLifecycleManager.Disconnect")
	defer span.End()

	if err := m.authz.Require(ctx, callerID, req.BusinessID, ManagerRoles...); err != nil {
		return nil, err
	}
	if err := validateProvider(req.Provider); err != nil {
		return nil, err
	}

	integration, err := m.repo.DisconnectIntegration(ctx, req.BusinessID, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect integration: %w", err)
	}

	util.IntegrationChangesTotal.WithLabelValues(string(req.Provider), "disconnect").Inc()
	m.logger.Info("Integration disconnected",
		zap.String("business_id", req.BusinessID),
		zap.String("provider", string(req.Provider)),
		zap.String("user_id", callerID))
	m.audit.Record(ctx, AuditEntry{
		BusinessID: req.BusinessID,
		EventType:  models.EventTypeIntegrationRemoved,
		Provider:   req.Provider,
		Payload: map[string]interface{}{
			"integration_id": integration.ID,
			"by":             callerID,
		},
	})
	return integration, nil
}

// List returns a business's integrations without credentials
func (m *IntegrationLifecycleManager) List(ctx context.Context, callerID, businessID string) ([]models.Integration, error) {
	if err := m.authz.Require(ctx, callerID, businessID, MemberRoles...); err != nil {
		return nil, err
	}
	return m.repo.ListIntegrations(ctx, businessID)
}
