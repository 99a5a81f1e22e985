package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
)

func connectRequest() *ConnectRequest {
	return &ConnectRequest{
		BusinessID:      testBusiness,
		Provider:        models.ProviderUberEats,
		ExternalStoreID: testStore,
		APIKey:          "client-id",
		APISecret:       "client-secret",
	}
}

func TestConnectRequiresOwnerOrAdmin(t *testing.T) {
	h := newHarness(t)
	h.store.AddMember(testBusiness, "staff-1", models.RoleStaff)
	h.store.AddMember(testBusiness, "admin-1", models.RoleAdmin)

	for _, caller := range []string{"staff-1", "stranger"} {
		_, err := h.lifecycle.Connect(context.Background(), caller, connectRequest())
		var authErr *models.AuthorizationError
		require.True(t, errors.As(err, &authErr), caller)
	}

	integrations, err := h.store.ListIntegrations(context.Background(), testBusiness)
	require.NoError(t, err)
	assert.Empty(t, integrations)
	assert.Empty(t, h.store.Events())

	integration, err := h.lifecycle.Connect(context.Background(), "admin-1", connectRequest())
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationStatusConnected, integration.Status)
}

func TestConnectAllowsOwnerWithoutMembershipRow(t *testing.T) {
	h := newHarness(t)

	_, err := h.lifecycle.Connect(context.Background(), testOwner, connectRequest())
	require.NoError(t, err)
}

func TestConnectSealsCredentials(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)

	sealed := h.store.SealedCredentials(testBusiness, models.ProviderUberEats)
	require.NotEmpty(t, sealed)
	assert.True(t, strings.HasPrefix(string(sealed), "v1:"))
	assert.NotContains(t, string(sealed), "client-secret")

	creds, err := h.registry.Credentials(context.Background(), testBusiness, models.ProviderUberEats)
	require.NoError(t, err)
	assert.Equal(t, provider.Credentials{ClientID: "client-id", ClientSecret: "client-secret"}, creds)

	assert.Equal(t, 1, countEvents(h.store.Events(), models.EventTypeIntegrationLinked))
}

func TestConnectRejectsUnknownProvider(t *testing.T) {
	h := newHarness(t)
	req := connectRequest()
	req.Provider = "grubhub"

	_, err := h.lifecycle.Connect(context.Background(), testOwner, req)
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestConnectAuthorizesBeforeValidating(t *testing.T) {
	h := newHarness(t)
	h.store.AddMember(testBusiness, "staff-1", models.RoleStaff)
	req := connectRequest()
	req.Provider = "grubhub"
	req.ExternalStoreID = ""

	for _, caller := range []string{"staff-1", "stranger"} {
		_, err := h.lifecycle.Connect(context.Background(), caller, req)
		var authErr *models.AuthorizationError
		assert.True(t, errors.As(err, &authErr), caller)
	}

	_, err := h.lifecycle.Disconnect(context.Background(), "stranger", &DisconnectRequest{
		BusinessID: testBusiness,
		Provider:   "grubhub",
	})
	var authErr *models.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}

func TestReconnectReplacesStoreAndClearsError(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	msg := "token rejected"
	require.NoError(t, h.store.RecordIntegrationSync(context.Background(), testBusiness, models.ProviderUberEats, h.store.Now(), &msg))

	req := connectRequest()
	req.ExternalStoreID = "S2"
	integration, err := h.lifecycle.Connect(context.Background(), testOwner, req)
	require.NoError(t, err)
	assert.Equal(t, "S2", integration.ExternalStoreID)
	assert.Nil(t, integration.LastError)

	integrations, err := h.store.ListIntegrations(context.Background(), testBusiness)
	require.NoError(t, err)
	assert.Len(t, integrations, 1)
}

func TestDisconnectErasesCredentials(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	created := h.deliver(t, scenarioPayload)

	integration, err := h.lifecycle.Disconnect(context.Background(), testOwner, &DisconnectRequest{
		BusinessID: testBusiness,
		Provider:   models.ProviderUberEats,
	})
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationStatusDisconnected, integration.Status)
	assert.Nil(t, h.store.SealedCredentials(testBusiness, models.ProviderUberEats))

	// history is kept, webhooks for the store are no longer accepted
	_, err = h.store.GetIntegration(context.Background(), testBusiness, models.ProviderUberEats)
	require.NoError(t, err)
	body := []byte(scenarioPayload)
	_, err = h.webhooks.Handle(context.Background(), models.ProviderUberEats, body, provider.Sign(uberSecret, body))
	var nf *models.IntegrationNotFoundError
	assert.True(t, errors.As(err, &nf))

	// syncs fail and are recorded on the order
	resp, err := h.orders.UpdateStatus(context.Background(), testOwner, &UpdateStatusRequest{
		OrderID: created.OrderID,
		Status:  models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateError, resp.Order.SyncState)
	assert.Equal(t, ErrMissingCredentials.Error(), resp.Sync.Error)
}

func TestDisconnectRequiresManagerRole(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	h.store.AddMember(testBusiness, "staff-1", models.RoleStaff)

	_, err := h.lifecycle.Disconnect(context.Background(), "staff-1", &DisconnectRequest{
		BusinessID: testBusiness,
		Provider:   models.ProviderUberEats,
	})
	var authErr *models.AuthorizationError
	require.True(t, errors.As(err, &authErr))
	assert.NotNil(t, h.store.SealedCredentials(testBusiness, models.ProviderUberEats))
}

func TestListIntegrationsForMembers(t *testing.T) {
	h := newHarness(t)
	h.connect(t, models.ProviderUberEats)
	h.store.AddMember(testBusiness, "staff-1", models.RoleStaff)

	integrations, err := h.lifecycle.List(context.Background(), "staff-1", testBusiness)
	require.NoError(t, err)
	require.Len(t, integrations, 1)
	assert.Equal(t, testStore, integrations[0].ExternalStoreID)

	_, err = h.lifecycle.List(context.Background(), "stranger", testBusiness)
	var authErr *models.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}
