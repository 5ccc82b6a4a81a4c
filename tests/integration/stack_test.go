package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	connectorapp "github.com/pulseboard/backend/internal/application/connector"
	syncapp "github.com/pulseboard/backend/internal/application/sync"
	webhookapp "github.com/pulseboard/backend/internal/application/webhook"
	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/cache"
	"github.com/pulseboard/backend/internal/infrastructure/persistence"
	"github.com/pulseboard/backend/internal/infrastructure/provider"
	"github.com/pulseboard/backend/internal/interfaces/http/handler"
	"github.com/pulseboard/backend/internal/interfaces/http/middleware"
	"github.com/pulseboard/backend/internal/interfaces/http/router"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSignatureHeader carries the shared secret directly. The fake
// verifier compares it against the connector's webhook secret, standing
// in for the provider HMAC schemes exercised in the provider package
// tests.
const fakeSignatureHeader = "X-Webhook-Signature"

// fakeClient serves canned entity pages for the configured provider.
type fakeClient struct {
	provider connector.ProviderType

	mu       sync.Mutex
	entities map[connector.EntityType][]connector.ExternalEntity
}

func newFakeClient(p connector.ProviderType) *fakeClient {
	return &fakeClient{
		provider: p,
		entities: make(map[connector.EntityType][]connector.ExternalEntity),
	}
}

func (c *fakeClient) addEntities(entityType connector.EntityType, entities ...connector.ExternalEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[entityType] = append(c.entities[entityType], entities...)
}

func (c *fakeClient) Provider() connector.ProviderType { return c.provider }

func (c *fakeClient) SupportedEntities() []connector.EntityType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]connector.EntityType, 0, len(c.entities))
	for t := range c.entities {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (c *fakeClient) VerifyCredentials(_ context.Context, creds connector.Credentials) error {
	if creds.APIKey == "sk_rejected" {
		return connector.ErrProviderAuth
	}
	return nil
}

func (c *fakeClient) ListEntities(_ context.Context, req *connector.ListRequest) (*connector.EntityPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.entities[req.EntityType]
	if req.UpdatedSince != nil {
		filtered := make([]connector.ExternalEntity, 0, len(all))
		for _, e := range all {
			if e.UpdatedAt.After(*req.UpdatedSince) {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}

	offset := 0
	if req.Cursor != "" {
		var err error
		offset, err = parseCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
	}
	end := offset + req.PageSize
	if end > len(all) {
		end = len(all)
	}

	page := &connector.EntityPage{Entities: all[offset:end]}
	if end < len(all) {
		page.HasMore = true
		page.NextCursor = formatCursor(end)
	}
	return page, nil
}

func parseCursor(cursor string) (int, error) {
	var n int
	err := json.Unmarshal([]byte(cursor), &n)
	return n, err
}

func formatCursor(offset int) string {
	b, _ := json.Marshal(offset)
	return string(b)
}

// fakeVerifier accepts a request when the signature header equals the
// connector's webhook secret.
type fakeVerifier struct {
	provider connector.ProviderType
}

func (v *fakeVerifier) Provider() connector.ProviderType { return v.provider }

func (v *fakeVerifier) Verify(_ []byte, headers http.Header, secret string) error {
	if headers.Get(fakeSignatureHeader) != secret {
		return webhook.ErrVerificationFailed
	}
	return nil
}

// fakeEvent is the wire shape the fake processor parses.
type fakeEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	Data       map[string]any `json:"data"`
}

// fakeProcessor routes entity-shaped events through the real mutator.
type fakeProcessor struct {
	provider connector.ProviderType
	mutator  webhook.Mutator
}

func (p *fakeProcessor) Provider() connector.ProviderType { return p.provider }

func (p *fakeProcessor) SupportedEvents() []string {
	return []string{"customer.updated", "invoice.paid"}
}

func (p *fakeProcessor) Parse(body []byte, _ http.Header) (*webhook.ParsedEvent, error) {
	var ev fakeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, webhook.ErrParseFailed
	}
	parsed := &webhook.ParsedEvent{
		Provider:        p.provider,
		Type:            ev.Type,
		ExternalEventID: ev.ID,
		OccurredAt:      time.Now().UTC(),
	}
	if ev.EntityID != "" {
		parsed.Entity = &connector.ExternalEntity{
			Type:       connector.EntityType(ev.EntityType),
			ExternalID: ev.EntityID,
			UpdatedAt:  time.Now().UTC(),
			Data:       ev.Data,
		}
	}
	return parsed, nil
}

func (p *fakeProcessor) Process(ctx context.Context, conn *connector.Connector, event *webhook.ParsedEvent) error {
	if event.Entity == nil {
		return nil
	}
	_, _, err := p.mutator.UpsertEntity(ctx, conn.TenantID, p.provider, event.Entity)
	return err
}

// integrationStack wires the full application over a real database, with
// fake provider adapters in place of the outbound Stripe/Shopify HTTP
// clients.
type integrationStack struct {
	engine *gin.Engine

	connectors connector.Repository
	syncLogs   connector.SyncLogRepository
	deliveries webhook.DeliveryRepository

	client *fakeClient
	mapper *syncapp.Mapper
}

func newIntegrationStack(t *testing.T, tdb *TestDB) *integrationStack {
	t.Helper()

	log := zap.NewNop()

	connectors := persistence.NewGormConnectorRepository(tdb.DB)
	syncLogs := persistence.NewGormSyncLogRepository(tdb.DB)
	deliveries := persistence.NewGormWebhookDeliveryRepository(tdb.DB)
	mappings := persistence.NewGormIdentityMappingRepository(tdb.DB)
	records := persistence.NewGormIntegrationRecordStore(tdb.DB)

	mapper := syncapp.NewMapper(mappings, records, log)

	client := newFakeClient(connector.ProviderStripe)
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(provider.Bundle{
		Client:    client,
		Verifier:  &fakeVerifier{provider: connector.ProviderStripe},
		Processor: &fakeProcessor{provider: connector.ProviderStripe, mutator: mapper},
	}))

	connectorService := connectorapp.NewService(connectors, syncLogs, deliveries, registry, log)
	syncService := syncapp.NewService(connectors, syncLogs, registry, mapper, syncapp.DefaultConfig(), log)
	gateway := webhookapp.NewGateway(connectors, deliveries, registry, registry,
		cache.NewInMemoryIdempotencyStore(), webhookapp.DefaultGatewayConfig(), log)
	testSender := webhookapp.NewTestDeliverySender(connectors, deliveries, nil,
		webhookapp.DefaultTestDeliveryConfig(), log)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	tenantCfg := middleware.DefaultTenantConfig()
	tenantCfg.Logger = log
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantCfg))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewConnectorHandler(connectorService, syncService, testSender)).
		Register(handler.NewWebhookHandler(gateway, log))
	r.Setup()

	return &integrationStack{
		engine:     engine,
		connectors: connectors,
		syncLogs:   syncLogs,
		deliveries: deliveries,
		client:     client,
		mapper:     mapper,
	}
}

// do performs one request against the stack with the tenant header set.
func (s *integrationStack) do(t *testing.T, tenantID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// postWebhook performs one inbound webhook delivery. No tenant header;
// the connector in the path resolves the tenant.
func (s *integrationStack) postWebhook(t *testing.T, connectorID, signature string, event fakeEvent) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe/"+connectorID, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(fakeSignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// decodeResponse unmarshals the standard response envelope.
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// createConnector provisions a connector over the API and returns its id.
func (s *integrationStack) createConnector(t *testing.T, tenantID string) string {
	t.Helper()

	w := s.do(t, tenantID, http.MethodPost, "/api/v1/connectors", map[string]any{
		"provider":       "stripe",
		"api_key":        "sk_test_integration",
		"webhook_secret": "whsec_integration",
		"account_id":     "acct_123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	return data["id"].(string)
}
