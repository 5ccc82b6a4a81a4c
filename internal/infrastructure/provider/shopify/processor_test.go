package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// MockMutator is a mock implementation of webhook.Mutator
type MockMutator struct {
	mock.Mock
}

func (m *MockMutator) UpsertEntity(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType, entity *connector.ExternalEntity) (uuid.UUID, bool, error) {
	args := m.Called(ctx, tenantID, provider, entity)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *MockMutator) UpdateRecordStatus(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType, entityType connector.EntityType, externalID, status string) error {
	args := m.Called(ctx, tenantID, provider, entityType, externalID, status)
	return args.Error(0)
}

func eventHeaders(topic, webhookID string) http.Header {
	h := http.Header{}
	h.Set("X-Shopify-Topic", topic)
	h.Set("X-Shopify-Webhook-Id", webhookID)
	return h
}

func shopifyConnector(t *testing.T) *connector.Connector {
	t.Helper()
	conn, err := connector.NewConnector(uuid.New(), connector.ProviderShopify, connector.Credentials{
		APIKey:        "shpat_token",
		WebhookSecret: "secret",
		ShopDomain:    "acme.myshopify.com",
	}, connector.Settings{})
	require.NoError(t, err)
	return conn
}

func TestProcessor_Parse(t *testing.T) {
	p := NewProcessor(nil, zap.NewNop())

	t.Run("order create carries entity", func(t *testing.T) {
		body := []byte(`{"id": 1001, "total_price": "42.50", "currency": "usd", "financial_status": "paid", "updated_at": "2024-02-01T10:00:00Z"}`)

		event, err := p.Parse(body, eventHeaders(TopicOrdersCreate, "wh_1"))
		require.NoError(t, err)

		assert.Equal(t, "wh_1", event.ExternalEventID)
		assert.Equal(t, TopicOrdersCreate, event.Type)
		require.NotNil(t, event.Entity)
		assert.Equal(t, connector.EntityTypeOrders, event.Entity.Type)
		assert.Equal(t, "1001", event.Entity.ExternalID)
		assert.Equal(t, "42.50", event.Entity.Data["amount"])
	})

	t.Run("cancellation is status only", func(t *testing.T) {
		body := []byte(`{"id": 1001, "financial_status": "voided"}`)

		event, err := p.Parse(body, eventHeaders(TopicOrdersCancelled, "wh_2"))
		require.NoError(t, err)

		assert.Nil(t, event.Entity)
		assert.NotNil(t, event.Data)
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		_, err := p.Parse([]byte(`{"id": 1}`), http.Header{})
		assert.ErrorIs(t, err, webhook.ErrParseFailed)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		_, err := p.Parse([]byte(`nope`), eventHeaders(TopicOrdersCreate, "wh_3"))
		assert.ErrorIs(t, err, webhook.ErrParseFailed)
	})

	t.Run("rejects entity without id", func(t *testing.T) {
		_, err := p.Parse([]byte(`{"total_price": "1.00"}`), eventHeaders(TopicOrdersCreate, "wh_4"))
		assert.ErrorIs(t, err, webhook.ErrParseFailed)
	})
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()
	conn := shopifyConnector(t)

	t.Run("entity topic goes through the mapper", func(t *testing.T) {
		mutator := new(MockMutator)
		p := NewProcessor(mutator, zap.NewNop())

		entity := &connector.ExternalEntity{
			Type:       connector.EntityTypeCustomers,
			ExternalID: "5",
		}
		mutator.On("UpsertEntity", ctx, conn.TenantID, connector.ProviderShopify, entity).
			Return(uuid.New(), false, nil)

		err := p.Process(ctx, conn, &webhook.ParsedEvent{
			Type:   TopicCustomersUpdate,
			Entity: entity,
		})
		require.NoError(t, err)
		mutator.AssertExpectations(t)
	})

	t.Run("cancellation updates order status", func(t *testing.T) {
		mutator := new(MockMutator)
		p := NewProcessor(mutator, zap.NewNop())

		mutator.On("UpdateRecordStatus", ctx, conn.TenantID, connector.ProviderShopify,
			connector.EntityTypeOrders, "1001", "cancelled").Return(nil)

		err := p.Process(ctx, conn, &webhook.ParsedEvent{
			Type: TopicOrdersCancelled,
			Data: map[string]any{"id": float64(1001)},
		})
		require.NoError(t, err)
		mutator.AssertExpectations(t)
	})

	t.Run("unsupported topic fails", func(t *testing.T) {
		p := NewProcessor(new(MockMutator), zap.NewNop())

		err := p.Process(ctx, conn, &webhook.ParsedEvent{Type: "carts/update"})
		assert.ErrorIs(t, err, webhook.ErrProcessingFailed)
	})
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier()
	body := []byte(`{"id": 1001}`)
	secret := "shpss_secret"

	signFor := func(body []byte, secret string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		return base64.StdEncoding.EncodeToString(mac.Sum(nil))
	}

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Shopify-Hmac-Sha256", signFor(body, secret))
		assert.NoError(t, v.Verify(body, h, secret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Shopify-Hmac-Sha256", signFor(body, "other"))
		assert.ErrorIs(t, v.Verify(body, h, secret), webhook.ErrVerificationFailed)
	})

	t.Run("tampered body", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Shopify-Hmac-Sha256", signFor(body, secret))
		assert.ErrorIs(t, v.Verify([]byte(`{"id": 9999}`), h, secret), webhook.ErrVerificationFailed)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify(body, http.Header{}, secret), webhook.ErrVerificationFailed)
	})
}
