package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
)

// newTestClient points the Stripe SDK at a local test server
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
	}
	return &Client{
		backends: &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
		},
		logger: zap.NewNop(),
	}
}

func TestClient_ListEntities_Customers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "cus_0", r.URL.Query().Get("starting_after"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"has_more": true,
			"data": [
				{"id": "cus_1", "object": "customer", "email": "anna@example.com", "name": "Anna", "created": 1700000000},
				{"id": "cus_2", "object": "customer", "email": "ben@example.com", "name": "Ben", "created": 1700000100, "currency": "usd"}
			]
		}`))
	}))

	page, err := client.ListEntities(context.Background(), &connector.ListRequest{
		TenantID:    uuid.New(),
		Credentials: connector.Credentials{APIKey: "sk_test_123"},
		EntityType:  connector.EntityTypeCustomers,
		Cursor:      "cus_0",
	})
	require.NoError(t, err)

	require.Len(t, page.Entities, 2)
	assert.Equal(t, "cus_1", page.Entities[0].ExternalID)
	assert.Equal(t, "anna@example.com", page.Entities[0].Data["email"])
	assert.Equal(t, "USD", page.Entities[1].Data["currency"])
	assert.True(t, page.HasMore)
	assert.Equal(t, "cus_2", page.NextCursor)
}

func TestClient_ListEntities_InvoiceAmounts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"has_more": false,
			"data": [
				{"id": "in_1", "object": "invoice", "total": 1999, "currency": "usd", "status": "paid", "created": 1700000000},
				{"id": "in_2", "object": "invoice", "total": 500, "currency": "jpy", "status": "open", "created": 1700000100}
			]
		}`))
	}))

	page, err := client.ListEntities(context.Background(), &connector.ListRequest{
		Credentials: connector.Credentials{APIKey: "sk_test_123"},
		EntityType:  connector.EntityTypeInvoices,
	})
	require.NoError(t, err)

	require.Len(t, page.Entities, 2)
	assert.Equal(t, "19.99", page.Entities[0].Data["amount"])
	assert.Equal(t, "USD", page.Entities[0].Data["currency"])
	assert.Equal(t, "500", page.Entities[1].Data["amount"])
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestClient_ListEntities_AuthError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "Invalid API Key"}}`))
	}))

	_, err := client.ListEntities(context.Background(), &connector.ListRequest{
		Credentials: connector.Credentials{APIKey: "sk_bad"},
		EntityType:  connector.EntityTypeCustomers,
	})
	assert.ErrorIs(t, err, connector.ErrProviderAuth)
}

func TestClient_VerifyCredentials(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		client := NewClient(zap.NewNop())
		err := client.VerifyCredentials(context.Background(), connector.Credentials{})
		assert.ErrorIs(t, err, connector.ErrMissingCredentials)
	})

	t.Run("balance read succeeds", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/balance", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object": "balance", "available": [], "pending": []}`))
		}))

		err := client.VerifyCredentials(context.Background(), connector.Credentials{APIKey: "sk_test_123"})
		assert.NoError(t, err)
	})
}

func TestMapStripeError(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		expect error
	}{
		{"unauthorized", http.StatusUnauthorized, connector.ErrProviderAuth},
		{"forbidden", http.StatusForbidden, connector.ErrProviderAuth},
		{"rate limited", http.StatusTooManyRequests, connector.ErrProviderRateLimited},
		{"server error", http.StatusBadGateway, connector.ErrProviderUnavailable},
		{"bad request", http.StatusBadRequest, connector.ErrProviderRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapStripeError(&stripe.Error{HTTPStatusCode: tt.code, Msg: "boom"})
			assert.ErrorIs(t, mapped, tt.expect)
		})
	}

	t.Run("transport error is unavailable", func(t *testing.T) {
		mapped := mapStripeError(errors.New("connection refused"))
		assert.ErrorIs(t, mapped, connector.ErrProviderUnavailable)
	})
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, "19.99", majorUnits(1999, "USD"))
	assert.Equal(t, "500", majorUnits(500, "JPY"))
	assert.Equal(t, "1.234", majorUnits(1234, "BHD"))
	assert.Equal(t, "0", majorUnits(0, "EUR"))
}
