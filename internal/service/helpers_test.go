package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/secrets"
	"provider-sync/internal/store/memstore"
	"provider-sync/internal/util"
)

const (
	testBusiness   = "B1"
	testOwner      = "owner-1"
	testStore      = "S1"
	uberSecret     = "uber-secret"
	doordashSecret = "doordash-secret"
)

const scenarioPayload = `{
	"store_id": "S1",
	"order_id": "O1",
	"eater": {"first_name": "Ada", "last_name": "Lovelace", "phone": "+15550100"},
	"cart": {"items": [{"title": "Burger", "quantity": 2, "price": 1599}]},
	"payment": {"charges": {
		"subtotal": {"amount": 3198},
		"tax": {"amount": 320},
		"total": {"amount": 3518, "currency_code": "CAD"}
	}}
}`

const cancelledPayload = `{
	"store_id": "S1",
	"order_id": "O1",
	"current_state": "CANCELED",
	"eater": {"first_name": "Ada", "last_name": "Lovelace", "phone": "+15550100"},
	"cart": {"items": [{"title": "Burger", "quantity": 2, "price": 1599}]},
	"payment": {"charges": {
		"subtotal": {"amount": 3198},
		"tax": {"amount": 320},
		"total": {"amount": 3518, "currency_code": "CAD"}
	}}
}`

// fakeClient records provider calls
type fakeClient struct {
	mu        sync.Mutex
	tokenErr  error
	callErr   error
	tokens    []provider.Credentials
	accepted  []string
	cancelled map[string]string
	// onCall runs inside the provider call, before it returns
	onCall func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{cancelled: make(map[string]string)}
}

func (f *fakeClient) AccessToken(_ context.Context, creds provider.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, creds)
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token-" + creds.ClientID, nil
}

func (f *fakeClient) AcceptOrder(_ context.Context, _, externalOrderID string) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return f.callErr
	}
	f.accepted = append(f.accepted, externalOrderID)
	return nil
}

func (f *fakeClient) CancelOrder(_ context.Context, _, externalOrderID, reason string) error {
	f.hook()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return f.callErr
	}
	f.cancelled[externalOrderID] = reason
	return nil
}

func (f *fakeClient) hook() {
	if f.onCall != nil {
		f.onCall()
	}
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted) + len(f.cancelled)
}

// fakePublisher captures stream messages
type fakePublisher struct {
	mu     sync.Mutex
	audits []*models.OrderEvent
	jobs   []*models.SyncJob
	jobErr error
}

func (p *fakePublisher) PublishAuditEvent(_ context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, event)
	return nil
}

func (p *fakePublisher) PublishSyncJob(_ context.Context, job *models.SyncJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobErr != nil {
		return p.jobErr
	}
	p.jobs = append(p.jobs, job)
	return nil
}

// fakeLocker grants the lock unless held
type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) AcquireLock(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _, token string) error {
	if token != "token" {
		return errors.New("wrong token")
	}
	l.held = false
	l.released++
	return nil
}

type harness struct {
	store      *memstore.Store
	client     *fakeClient
	publisher  *fakePublisher
	locker     *fakeLocker
	sealer     *secrets.Sealer
	registry   *IntegrationRegistry
	dispatcher *StatusSyncDispatcher
	webhooks   *WebhookService
	orders     *OrderService
	lifecycle  *IntegrationLifecycleManager
	retry      *RetryScheduler
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	async   bool
	secrets map[models.Provider]string
}

func withAsync() harnessOption {
	return func(c *harnessConfig) { c.async = true }
}

func withWebhookSecrets(s map[models.Provider]string) harnessOption {
	return func(c *harnessConfig) { c.secrets = s }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	util.SetLogger(zap.NewNop())

	cfg := harnessConfig{secrets: map[models.Provider]string{
		models.ProviderUberEats: uberSecret,
		models.ProviderDoorDash: doordashSecret,
	}}
	for _, o := range opts {
		o(&cfg)
	}

	h := &harness{
		store:     memstore.New(),
		client:    newFakeClient(),
		publisher: &fakePublisher{},
		locker:    &fakeLocker{},
		sealer:    secrets.NewDevelopmentSealer("test-passphrase"),
	}
	h.store.AddBusiness(testBusiness, testOwner)

	normalizer, err := provider.NewNormalizer()
	require.NoError(t, err)

	audit := NewEventAuditLog(h.store, h.publisher)
	authz := NewAuthorizer(h.store)
	clients := ProviderClients{
		models.ProviderUberEats: h.client,
		models.ProviderDoorDash: h.client,
	}

	h.registry = NewIntegrationRegistry(h.store, h.sealer)
	h.dispatcher = NewStatusSyncDispatcher(h.store, h.registry, clients, audit, h.publisher, cfg.async)
	h.webhooks = NewWebhookService(
		provider.NewSignatureVerifier(cfg.secrets, false),
		normalizer,
		h.registry,
		NewOrderUpsertEngine(h.store, audit),
		audit,
	)
	h.orders = NewOrderService(h.store, authz, audit, h.dispatcher)
	h.lifecycle = NewIntegrationLifecycleManager(h.store, authz, h.sealer, audit)
	h.retry = NewRetryScheduler(h.store, h.dispatcher, h.locker, DefaultRetryPolicy())
	return h
}

// connect links testStore to testBusiness as the owner
func (h *harness) connect(t *testing.T, p models.Provider) {
	t.Helper()
	_, err := h.lifecycle.Connect(context.Background(), testOwner, &ConnectRequest{
		BusinessID:      testBusiness,
		Provider:        p,
		ExternalStoreID: testStore,
		APIKey:          "client-id",
		APISecret:       "client-secret",
	})
	require.NoError(t, err)
}

// deliver sends a correctly signed Uber Eats webhook
func (h *harness) deliver(t *testing.T, body string) *WebhookResult {
	t.Helper()
	res, err := h.webhooks.Handle(context.Background(), models.ProviderUberEats, []byte(body), provider.Sign(uberSecret, []byte(body)))
	require.NoError(t, err)
	return res
}

func (h *harness) order(t *testing.T, id string) *models.Order {
	t.Helper()
	o, err := h.store.GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func countEvents(events []models.OrderEvent, eventType string) int {
	n := 0
	for _, e := range events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// putExternalOrder stores an Uber Eats order for testBusiness
func (h *harness) putExternalOrder(o models.Order) models.Order {
	o.BusinessID = testBusiness
	if o.Source == "" {
		o.Source = models.ProviderUberEats.Source()
	}
	if o.ExternalOrderID == "" {
		o.ExternalOrderID = "ext-" + uuid.New().String()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusCancelled
	}
	return h.store.PutOrder(o)
}
