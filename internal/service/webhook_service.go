package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/util"
)

// Webhook outcomes used for metrics
const (
	webhookRejected  = "rejected"
	webhookIgnored   = "ignored"
	webhookUnlinked  = "unlinked"
	webhookFailed    = "error"
	webhookProcessed = "processed"
)

// WebhookResult describes how an accepted webhook was handled
type WebhookResult struct {
	OrderID  string
	Inserted bool
	// Ignored is set for payloads that can never be processed; the provider
	// must not redeliver them
	Ignored bool
	Reason  string
}

// WebhookService runs inbound provider webhooks through verification,
// normalization, store lookup and upsert
type WebhookService struct {
	verifier   *provider.SignatureVerifier
	normalizer *provider.Normalizer
	registry   *IntegrationRegistry
	upserter   *OrderUpsertEngine
	audit      *EventAuditLog
	logger     *zap.Logger
}

func NewWebhookService(
	verifier *provider.SignatureVerifier,
	normalizer *provider.Normalizer,
	registry *IntegrationRegistry,
	upserter *OrderUpsertEngine,
	audit *EventAuditLog,
) *WebhookService {
	return &WebhookService{
		verifier:   verifier,
		normalizer: normalizer,
		registry:   registry,
		upserter:   upserter,
		audit:      audit,
		logger:     util.GetLogger(),
	}
}

// Handle processes one webhook. body must be the raw request bytes.
// Signature failures return *models.SignatureVerificationError before
// anything is written; unknown stores return *models.IntegrationNotFoundError.
func (s *WebhookService) Handle(ctx context.Context, p models.Provider, body []byte, signature string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.Handle", attribute.String("provider", string(p)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
	}()

	if err := s.verifier.Verify(p, body, signature); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookRejected).Inc()
		s.logger.Warn("Rejected webhook", zap.String("provider", string(p)), zap.Error(err))
		return nil, err
	}

	draft, err := s.normalizer.Normalize(p, body)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookIgnored).Inc()
			s.logger.Info("Ignoring unprocessable webhook", zap.String("provider", string(p)), zap.Error(err))
			return &WebhookResult{Ignored: true, Reason: verr.Error()}, nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("external_order_id", draft.ExternalOrderID))

	integration, err := s.registry.Resolve(ctx, p, draft.ExternalStoreID)
	if err != nil {
		var nf *models.IntegrationNotFoundError
		if errors.As(err, &nf) {
			util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookUnlinked).Inc()
			s.logger.Warn("Webhook for unlinked store",
				zap.String("provider", string(p)),
				zap.String("external_store_id", draft.ExternalStoreID))
		} else {
			util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookFailed).Inc()
		}
		return nil, err
	}
	s.registry.TouchWebhook(ctx, integration)

	received := map[string]interface{}{
		"external_store_id": draft.ExternalStoreID,
		"external_order_id": draft.ExternalOrderID,
	}
	if draft.Terminal != provider.TerminalNone {
		received["terminal"] = draft.Terminal
	}

	result, err := s.upserter.Upsert(ctx, integration, draft, body)
	if err != nil {
		util.RecordError(span, err)
		util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookFailed).Inc()
		received["outcome"] = webhookFailed
		received["error"] = err.Error()
		s.audit.Record(ctx, AuditEntry{
			BusinessID: integration.BusinessID,
			EventType:  models.EventTypeWebhookReceived,
			Provider:   p,
			Payload:    received,
		})
		return nil, err
	}

	util.WebhooksReceivedTotal.WithLabelValues(string(p), webhookProcessed).Inc()
	received["outcome"] = webhookProcessed
	received["inserted"] = result.Inserted
	received["status"] = result.Order.Status
	s.audit.Record(ctx, AuditEntry{
		OrderID:    result.Order.ID,
		BusinessID: integration.BusinessID,
		EventType:  models.EventTypeWebhookReceived,
		Provider:   p,
		Payload:    received,
	})

	return &WebhookResult{OrderID: result.Order.ID, Inserted: result.Inserted}, nil
}
