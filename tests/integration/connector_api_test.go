package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/tests/testutil"
)

func TestConnectorLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	stack := newIntegrationStack(t, tdb)
	tenantID := testutil.TestTenantID().String()

	t.Run("creates a connector", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors", map[string]any{
			"provider":              "stripe",
			"api_key":               "sk_test_123",
			"webhook_secret":        "whsec_abc",
			"sync_interval_minutes": 30,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decodeResponse(t, w)
		data := resp["data"].(map[string]any)
		assert.Equal(t, "STRIPE", data["provider"])
		assert.Equal(t, "connected", data["status"])
		assert.Equal(t, true, data["enabled"])
		// Credential material never leaves the API
		assert.NotContains(t, data, "api_key")
		assert.NotContains(t, data, "webhook_secret")
	})

	t.Run("rejects a second connector for the same provider", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors", map[string]any{
			"provider": "stripe",
			"api_key":  "sk_test_other",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("rejects credentials the provider refuses", func(t *testing.T) {
		otherTenant := testutil.NewTestUUID("other-tenant").String()
		w := stack.do(t, otherTenant, http.MethodPost, "/api/v1/connectors", map[string]any{
			"provider": "stripe",
			"api_key":  "sk_rejected",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		resp := decodeResponse(t, w)
		errInfo := resp["error"].(map[string]any)
		assert.Equal(t, "ERR_PROVIDER_AUTH", errInfo["code"])
	})

	t.Run("lists and fetches the connector", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodGet, "/api/v1/connectors", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		meta := resp["meta"].(map[string]any)
		assert.Equal(t, float64(1), meta["total"])

		items := resp["data"].([]any)
		id := items[0].(map[string]any)["id"].(string)

		w = stack.do(t, tenantID, http.MethodGet, "/api/v1/connectors/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("updates settings via PATCH", func(t *testing.T) {
		id := connectorID(t, stack, tenantID)

		w := stack.do(t, tenantID, http.MethodPatch, "/api/v1/connectors/"+id, map[string]any{
			"sync_interval_minutes": 120,
			"outbound_url":          "https://tenant.example.com/hooks",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeResponse(t, w)
		data := resp["data"].(map[string]any)
		assert.Equal(t, float64(120), data["sync_interval_minutes"])
		assert.Equal(t, "https://tenant.example.com/hooks", data["outbound_url"])
	})

	t.Run("disable and enable round trip", func(t *testing.T) {
		id := connectorID(t, stack, tenantID)

		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors/"+id+"/disable", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeResponse(t, w)["data"].(map[string]any)["enabled"])

		w = stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors/"+id+"/enable", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeResponse(t, w)["data"].(map[string]any)["enabled"])
	})

	t.Run("soft delete hides the connector", func(t *testing.T) {
		id := connectorID(t, stack, tenantID)

		w := stack.do(t, tenantID, http.MethodDelete, "/api/v1/connectors/"+id, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = stack.do(t, tenantID, http.MethodGet, "/api/v1/connectors/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		// The row survives for audit even though the API hides it
		var count int64
		require.NoError(t, tdb.DB.Raw(
			"SELECT COUNT(*) FROM connectors WHERE id = ? AND deleted_at IS NOT NULL", id,
		).Scan(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestSyncEngineAgainstDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	stack := newIntegrationStack(t, tdb)
	tenantID := testutil.TestTenantID().String()
	id := stack.createConnector(t, tenantID)

	now := time.Now().UTC()
	for i := 0; i < 7; i++ {
		stack.client.addEntities(connector.EntityTypeCustomers, connector.ExternalEntity{
			Type:       connector.EntityTypeCustomers,
			ExternalID: fmt.Sprintf("cus_%03d", i),
			UpdatedAt:  now.Add(-time.Duration(i) * time.Hour),
			Data: map[string]any{
				"email": fmt.Sprintf("customer%d@example.com", i),
				"name":  fmt.Sprintf("Customer %d", i),
			},
		})
	}
	stack.client.addEntities(connector.EntityTypeInvoices, connector.ExternalEntity{
		Type:       connector.EntityTypeInvoices,
		ExternalID: "in_001",
		UpdatedAt:  now,
		Data: map[string]any{
			"amount_minor": int64(4200),
			"currency":     "USD",
			"status":       "paid",
		},
	})

	t.Run("full sync pages through every entity type", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors/"+id+"/sync", map[string]any{
			"full_sync": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeResponse(t, w)
		data := resp["data"].(map[string]any)
		assert.Equal(t, "full", data["sync_type"])
		assert.Equal(t, true, data["success"])
		assert.Equal(t, float64(8), data["records_processed"])

		var mappings int64
		require.NoError(t, tdb.DB.Raw(
			"SELECT COUNT(*) FROM identity_mappings WHERE tenant_id = ?", tenantID,
		).Scan(&mappings).Error)
		assert.Equal(t, int64(8), mappings)

		var records int64
		require.NoError(t, tdb.DB.Raw(
			"SELECT COUNT(*) FROM integration_records WHERE tenant_id = ?", tenantID,
		).Scan(&records).Error)
		assert.Equal(t, int64(8), records)
	})

	t.Run("resync reuses mappings instead of duplicating records", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors/"+id+"/sync", map[string]any{
			"full_sync": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var mappings int64
		require.NoError(t, tdb.DB.Raw(
			"SELECT COUNT(*) FROM identity_mappings WHERE tenant_id = ?", tenantID,
		).Scan(&mappings).Error)
		assert.Equal(t, int64(8), mappings)
	})

	t.Run("incremental sync only lists the recent window", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodPost, "/api/v1/connectors/"+id+"/sync", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeResponse(t, w)
		data := resp["data"].(map[string]any)
		assert.Equal(t, "incremental", data["sync_type"])
		assert.Equal(t, true, data["success"])
		// Only entities updated after the previous run minus the overlap
		// window come back from the provider
		assert.Less(t, data["records_processed"], float64(8))
	})

	t.Run("sync log history is recorded", func(t *testing.T) {
		w := stack.do(t, tenantID, http.MethodGet, "/api/v1/connectors/"+id+"/sync-logs", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decodeResponse(t, w)
		meta := resp["meta"].(map[string]any)
		assert.Equal(t, float64(3), meta["total"])

		items := resp["data"].([]any)
		latest := items[0].(map[string]any)
		assert.Equal(t, "success", latest["status"])
	})
}

// connectorID returns the tenant's single connector id via the list API.
func connectorID(t *testing.T, stack *integrationStack, tenantID string) string {
	t.Helper()

	w := stack.do(t, tenantID, http.MethodGet, "/api/v1/connectors", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)
	return resp.Data[0].ID
}
