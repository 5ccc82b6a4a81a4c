package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// GatewayConfig holds tunables for the inbound webhook gateway
type GatewayConfig struct {
	// IdempotencyTTL is how long processed event ids live in the
	// fast-path dedup store
	IdempotencyTTL time.Duration
}

// DefaultGatewayConfig returns the default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		IdempotencyTTL: 24 * time.Hour,
	}
}

// ---------------------------------------------------------------------------
// Gateway
// ---------------------------------------------------------------------------

// Gateway handles inbound provider webhooks: signature verification,
// duplicate suppression, event processing and the per-delivery audit row.
// Signature and parse failures never reach a processor; they are recorded
// as failed deliveries with no mutation applied.
type Gateway struct {
	connectors  connector.Repository
	deliveries  webhook.DeliveryRepository
	verifiers   webhook.VerifierRegistry
	processors  webhook.ProcessorRegistry
	idempotency shared.IdempotencyStore
	config      GatewayConfig
	logger      *zap.Logger
}

// NewGateway creates a new webhook Gateway
func NewGateway(
	connectors connector.Repository,
	deliveries webhook.DeliveryRepository,
	verifiers webhook.VerifierRegistry,
	processors webhook.ProcessorRegistry,
	idempotency shared.IdempotencyStore,
	config GatewayConfig,
	logger *zap.Logger,
) *Gateway {
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = DefaultGatewayConfig().IdempotencyTTL
	}
	return &Gateway{
		connectors:  connectors,
		deliveries:  deliveries,
		verifiers:   verifiers,
		processors:  processors,
		idempotency: idempotency,
		config:      config,
		logger:      logger,
	}
}

// Receive handles one inbound provider delivery. Rejections before
// parsing record a failed delivery row and return a nil outcome with an
// error; a processing failure returns both the failed outcome and an
// error so the transport can answer non-2xx and let the provider retry.
func (g *Gateway) Receive(
	ctx context.Context,
	provider connector.ProviderType,
	connectorID uuid.UUID,
	body []byte,
	headers http.Header,
) (*webhook.DeliveryOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "receive")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrProvider, provider.String(),
		telemetry.SpanAttrConnectorID, connectorID.String(),
	)

	conn, err := g.connectors.FindByID(ctx, connectorID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if conn.IsDeleted() || conn.Provider != provider {
		return nil, connector.ErrConnectorNotFound
	}
	if !conn.Enabled {
		return nil, connector.ErrConnectorDisabled
	}
	if conn.Credentials.WebhookSecret == "" {
		return nil, connector.ErrMissingCredentials
	}

	verifier, err := g.verifiers.Verifier(provider)
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(body, headers, conn.Credentials.WebhookSecret); err != nil {
		g.logger.Warn("webhook signature rejected",
			zap.String("connector_id", conn.ID.String()),
			zap.String("provider", provider.String()),
			zap.Error(err),
		)
		g.recordRejected(ctx, conn, body, "signature verification failed: "+err.Error())
		return nil, err
	}

	processor, err := g.processors.Processor(provider)
	if err != nil {
		return nil, err
	}
	event, err := processor.Parse(body, headers)
	if err != nil {
		err = fmt.Errorf("%w: %v", webhook.ErrParseFailed, err)
		telemetry.RecordError(span, err)
		g.recordRejected(ctx, conn, body, err.Error())
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEventType, event.Type,
		telemetry.SpanAttrExternalEventID, event.ExternalEventID,
	)

	log := g.logger.With(
		zap.String("connector_id", conn.ID.String()),
		zap.String("provider", provider.String()),
		zap.String("event_type", event.Type),
		zap.String("external_event_id", event.ExternalEventID),
	)

	if event.ExternalEventID != "" {
		if duplicate, outcome, err := g.checkDuplicate(ctx, conn, event, body, log); duplicate || err != nil {
			return outcome, err
		}
	}

	delivery, err := g.openDelivery(ctx, conn, event, body)
	if err != nil {
		return nil, err
	}

	if !supportsEvent(processor, event.Type) {
		delivery.MarkSuccess()
		if err := g.deliveries.Save(ctx, delivery); err != nil {
			return nil, fmt.Errorf("webhook: failed to save delivery: %w", err)
		}
		log.Info("webhook event type not handled, recorded as no-op")
		return &webhook.DeliveryOutcome{
			DeliveryID: delivery.ID,
			Status:     webhook.DeliveryStatusSuccess,
			NoOp:       true,
		}, nil
	}

	claimed, lost := g.claimEvent(ctx, conn.ID, event.ExternalEventID, log)
	if lost {
		delivery.MarkSuccess()
		if err := g.deliveries.Save(ctx, delivery); err != nil {
			return nil, fmt.Errorf("webhook: failed to save delivery: %w", err)
		}
		log.Info("concurrent duplicate webhook delivery suppressed",
			zap.Int("attempt_count", delivery.AttemptCount),
		)
		return &webhook.DeliveryOutcome{
			DeliveryID: delivery.ID,
			Status:     webhook.DeliveryStatusSuccess,
			Duplicate:  true,
		}, nil
	}

	var processErr error
	telemetry.WithProfilingLabels(ctx, telemetry.SyncOperationLabels(telemetry.OperationProcessWebhook, provider.String()), func(c context.Context) {
		processErr = processor.Process(c, conn, event)
	})
	if err := processErr; err != nil {
		telemetry.RecordError(span, err)
		if claimed {
			g.releaseClaim(ctx, conn.ID, event.ExternalEventID, log)
		}
		delivery.MarkFailed(err.Error())
		if saveErr := g.deliveries.Save(ctx, delivery); saveErr != nil {
			log.Error("failed to save failed delivery", zap.Error(saveErr))
		}
		log.Warn("webhook event processing failed", zap.Error(err))
		return &webhook.DeliveryOutcome{
			DeliveryID: delivery.ID,
			Status:     webhook.DeliveryStatusFailed,
			Message:    err.Error(),
		}, fmt.Errorf("%w: %v", webhook.ErrProcessingFailed, err)
	}

	delivery.MarkSuccess()
	if err := g.deliveries.Save(ctx, delivery); err != nil {
		return nil, fmt.Errorf("webhook: failed to save delivery: %w", err)
	}

	log.Info("webhook event processed",
		zap.String("delivery_id", delivery.ID.String()),
		zap.Int("attempt_count", delivery.AttemptCount),
	)
	telemetry.SetOK(span)
	return &webhook.DeliveryOutcome{
		DeliveryID: delivery.ID,
		Status:     webhook.DeliveryStatusSuccess,
	}, nil
}

// checkDuplicate answers whether this event id was already processed
// successfully. The in-memory/Redis mark is only a fast path; the
// durable delivery log is authoritative, so dedup state expiring or
// being lost degrades to an extra query, never to a replayed mutation
// being missed on a real duplicate.
func (g *Gateway) checkDuplicate(
	ctx context.Context,
	conn *connector.Connector,
	event *webhook.ParsedEvent,
	body []byte,
	log *zap.Logger,
) (bool, *webhook.DeliveryOutcome, error) {
	key := dedupKey(conn.ID, event.ExternalEventID)

	marked, err := g.idempotency.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("idempotency store unavailable, falling back to delivery log", zap.Error(err))
		marked = false
	}
	if !marked {
		_, err := g.deliveries.FindSuccessful(ctx, conn.ID, event.ExternalEventID)
		if errors.Is(err, webhook.ErrDeliveryNotFound) {
			return false, nil, nil
		}
		if err != nil {
			return false, nil, fmt.Errorf("webhook: failed to check delivery log: %w", err)
		}
	}

	// Re-delivery of an already processed event. Record the attempt so
	// the audit trail shows the provider retried, but apply nothing.
	delivery, err := g.openDelivery(ctx, conn, event, body)
	if err != nil {
		return true, nil, err
	}
	delivery.MarkSuccess()
	if err := g.deliveries.Save(ctx, delivery); err != nil {
		return true, nil, fmt.Errorf("webhook: failed to save delivery: %w", err)
	}
	log.Info("duplicate webhook delivery suppressed",
		zap.Int("attempt_count", delivery.AttemptCount),
	)
	return true, &webhook.DeliveryOutcome{
		DeliveryID: delivery.ID,
		Status:     webhook.DeliveryStatusSuccess,
		Duplicate:  true,
	}, nil
}

// openDelivery creates the audit row for this attempt with the attempt
// count continued from earlier deliveries of the same event.
func (g *Gateway) openDelivery(
	ctx context.Context,
	conn *connector.Connector,
	event *webhook.ParsedEvent,
	body []byte,
) (*webhook.Delivery, error) {
	delivery := webhook.NewDelivery(conn.ID, conn.TenantID, event.Type, event.ExternalEventID, body)
	if event.ExternalEventID != "" {
		prior, err := g.deliveries.CountByEvent(ctx, conn.ID, event.ExternalEventID)
		if err != nil {
			return nil, fmt.Errorf("webhook: failed to count prior deliveries: %w", err)
		}
		delivery.AttemptCount = int(prior) + 1
	}
	return delivery, nil
}

// recordRejected writes a failed delivery row for a request rejected
// before parsing. The event type and external id are unknown at that
// point, so the row carries only the raw payload and the reason.
func (g *Gateway) recordRejected(ctx context.Context, conn *connector.Connector, body []byte, reason string) {
	delivery := webhook.NewDelivery(conn.ID, conn.TenantID, "", "", body)
	delivery.MarkFailed(reason)
	if err := g.deliveries.Save(ctx, delivery); err != nil {
		g.logger.Error("failed to save rejected delivery", zap.Error(err))
	}
}

// claimEvent atomically marks the event id before processing, so two
// concurrent deliveries of the same event cannot both reach a processor.
// A store error degrades to processing without the claim; the durable
// delivery log still suppresses later retries.
func (g *Gateway) claimEvent(ctx context.Context, connectorID uuid.UUID, externalEventID string, log *zap.Logger) (claimed, lost bool) {
	if externalEventID == "" {
		return false, false
	}
	ok, err := g.idempotency.MarkProcessed(ctx, dedupKey(connectorID, externalEventID), g.config.IdempotencyTTL)
	if err != nil {
		log.Warn("idempotency store unavailable, processing without claim", zap.Error(err))
		return false, false
	}
	return ok, !ok
}

// releaseClaim drops the dedup mark after a processing failure so the
// provider's retry of the same event is processed again.
func (g *Gateway) releaseClaim(ctx context.Context, connectorID uuid.UUID, externalEventID string, log *zap.Logger) {
	if err := g.idempotency.Forget(ctx, dedupKey(connectorID, externalEventID)); err != nil {
		log.Warn("failed to release idempotency claim", zap.Error(err))
	}
}

func dedupKey(connectorID uuid.UUID, externalEventID string) string {
	return connectorID.String() + ":" + externalEventID
}

func supportsEvent(processor webhook.Processor, eventType string) bool {
	for _, supported := range processor.SupportedEvents() {
		if supported == eventType {
			return true
		}
	}
	return false
}
