package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/provider/sign"
)

// ErrNoOutboundURL is returned when a test delivery is requested for a
// connector that has no outbound URL configured.
var ErrNoOutboundURL = errors.New("webhook: connector has no outbound url configured")

// TestEventType is the event type used for synthetic test deliveries
const TestEventType = "pulseboard.test"

const (
	testDeliveryUserAgent = "Pulseboard-Webhooks/1.0"
	// maxResponseSnippet caps how much of the target's response body is
	// stored on the delivery row
	maxResponseSnippet = 1024
)

// TestDeliveryConfig holds tunables for outbound test deliveries
type TestDeliveryConfig struct {
	// Timeout bounds the outbound HTTP call
	Timeout time.Duration
}

// DefaultTestDeliveryConfig returns the default test delivery configuration
func DefaultTestDeliveryConfig() TestDeliveryConfig {
	return TestDeliveryConfig{
		Timeout: 10 * time.Second,
	}
}

// TestDeliverySender posts a signed synthetic event to a connector's
// outbound URL so tenants can verify their endpoint before relying on it.
// Every attempt leaves exactly one delivery row, reachable or not.
type TestDeliverySender struct {
	connectors connector.Repository
	deliveries webhook.DeliveryRepository
	httpClient *http.Client
	config     TestDeliveryConfig
	logger     *zap.Logger
}

// NewTestDeliverySender creates a new TestDeliverySender. A nil httpClient
// falls back to a client bounded by the configured timeout.
func NewTestDeliverySender(
	connectors connector.Repository,
	deliveries webhook.DeliveryRepository,
	httpClient *http.Client,
	config TestDeliveryConfig,
	logger *zap.Logger,
) *TestDeliverySender {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTestDeliveryConfig().Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &TestDeliverySender{
		connectors: connectors,
		deliveries: deliveries,
		httpClient: httpClient,
		config:     config,
		logger:     logger,
	}
}

// Send posts one signed test event to the connector's outbound URL and
// records the observed status and latency. The returned delivery is
// finalized; an unreachable target yields a failed delivery with
// response status 0, not an error.
func (s *TestDeliverySender) Send(ctx context.Context, tenantID, connectorID uuid.UUID) (*webhook.Delivery, error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	if conn.Settings.OutboundURL == "" {
		return nil, ErrNoOutboundURL
	}
	if conn.Credentials.WebhookSecret == "" {
		return nil, connector.ErrMissingCredentials
	}

	externalEventID := "evt_test_" + uuid.NewString()
	now := time.Now()
	body, err := json.Marshal(testPayload{
		Event:       TestEventType,
		Timestamp:   now.Unix(),
		WorkspaceID: tenantID,
		Test:        true,
		Data: testPayloadData{
			Message:   "This is a test delivery from Pulseboard.",
			WebhookID: externalEventID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to build test payload: %w", err)
	}

	delivery := webhook.NewTestDelivery(conn.ID, conn.TenantID, TestEventType, externalEventID, body)
	s.post(ctx, conn, delivery, body, now)

	if err := s.deliveries.Save(ctx, delivery); err != nil {
		return nil, fmt.Errorf("webhook: failed to save test delivery: %w", err)
	}

	s.logger.Info("test delivery sent",
		zap.String("connector_id", conn.ID.String()),
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("url", conn.Settings.OutboundURL),
		zap.String("status", string(delivery.Status)),
		zap.Int("response_status", delivery.ResponseStatus),
		zap.Int64("duration_ms", delivery.DurationMs),
	)
	return delivery, nil
}

// post performs the outbound call and finalizes the delivery in place
func (s *TestDeliverySender) post(ctx context.Context, conn *connector.Connector, delivery *webhook.Delivery, body []byte, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.Settings.OutboundURL, bytes.NewReader(body))
	if err != nil {
		delivery.RecordResponse(0, "", 0)
		delivery.MarkFailed(fmt.Sprintf("invalid outbound url: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testDeliveryUserAgent)
	req.Header.Set("X-Webhook-ID", delivery.ID.String())
	req.Header.Set("X-Webhook-Signature", sign.Header(now.Unix(), body, conn.Credentials.WebhookSecret))

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		delivery.RecordResponse(0, "", elapsed)
		delivery.MarkFailed(fmt.Sprintf("endpoint unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	delivery.RecordResponse(resp.StatusCode, string(snippet), elapsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.MarkSuccess()
	} else {
		delivery.MarkFailed(fmt.Sprintf("endpoint returned status %d", resp.StatusCode))
	}
}

// DTOs

type testPayload struct {
	Event       string          `json:"event"`
	Timestamp   int64           `json:"timestamp"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	Test        bool            `json:"test"`
	Data        testPayloadData `json:"data"`
}

type testPayloadData struct {
	Message   string `json:"message"`
	WebhookID string `json:"webhook_id"`
}
