package connector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Mock implementations

type mockConnectorRepository struct {
	mock.Mock
}

func (m *mockConnectorRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.Connector, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Connector), args.Error(1)
}

func (m *mockConnectorRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*connector.Connector, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Connector), args.Error(1)
}

func (m *mockConnectorRepository) FindByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType) (*connector.Connector, error) {
	args := m.Called(ctx, tenantID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Connector), args.Error(1)
}

func (m *mockConnectorRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]connector.Connector, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]connector.Connector), args.Get(1).(int64), args.Error(2)
}

func (m *mockConnectorRepository) FindEnabled(ctx context.Context) ([]connector.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]connector.Connector), args.Error(1)
}

func (m *mockConnectorRepository) Save(ctx context.Context, c *connector.Connector) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockConnectorRepository) BeginSync(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockConnectorRepository) ResetStaleSyncing(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockSyncLogRepository struct {
	mock.Mock
}

func (m *mockSyncLogRepository) Create(ctx context.Context, log *connector.SyncLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *mockSyncLogRepository) Update(ctx context.Context, log *connector.SyncLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *mockSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.SyncLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.SyncLog), args.Error(1)
}

func (m *mockSyncLogRepository) FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]connector.SyncLog, int64, error) {
	args := m.Called(ctx, connectorID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]connector.SyncLog), args.Get(1).(int64), args.Error(2)
}

func (m *mockSyncLogRepository) FindLatestByConnector(ctx context.Context, connectorID uuid.UUID) (*connector.SyncLog, error) {
	args := m.Called(ctx, connectorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.SyncLog), args.Error(1)
}

func (m *mockSyncLogRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockDeliveryRepository struct {
	mock.Mock
}

func (m *mockDeliveryRepository) Save(ctx context.Context, d *webhook.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDeliveryRepository) FindSuccessful(ctx context.Context, connectorID uuid.UUID, externalEventID string) (*webhook.Delivery, error) {
	args := m.Called(ctx, connectorID, externalEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Delivery), args.Error(1)
}

func (m *mockDeliveryRepository) CountByEvent(ctx context.Context, connectorID uuid.UUID, externalEventID string) (int64, error) {
	args := m.Called(ctx, connectorID, externalEventID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDeliveryRepository) FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]webhook.Delivery, int64, error) {
	args := m.Called(ctx, connectorID, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]webhook.Delivery), args.Get(1).(int64), args.Error(2)
}

type mockClientRegistry struct {
	mock.Mock
}

func (m *mockClientRegistry) Client(provider connector.ProviderType) (connector.Client, error) {
	args := m.Called(provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(connector.Client), args.Error(1)
}

type mockProviderClient struct {
	mock.Mock
}

func (m *mockProviderClient) Provider() connector.ProviderType {
	args := m.Called()
	return args.Get(0).(connector.ProviderType)
}

func (m *mockProviderClient) SupportedEntities() []connector.EntityType {
	args := m.Called()
	return args.Get(0).([]connector.EntityType)
}

func (m *mockProviderClient) VerifyCredentials(ctx context.Context, creds connector.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *mockProviderClient) ListEntities(ctx context.Context, req *connector.ListRequest) (*connector.EntityPage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.EntityPage), args.Error(1)
}

// Helper functions

type serviceTestEnv struct {
	connectors *mockConnectorRepository
	syncLogs   *mockSyncLogRepository
	deliveries *mockDeliveryRepository
	registry   *mockClientRegistry
	client     *mockProviderClient
	service    *Service
}

func newServiceTestEnv(t *testing.T) *serviceTestEnv {
	t.Helper()
	env := &serviceTestEnv{
		connectors: new(mockConnectorRepository),
		syncLogs:   new(mockSyncLogRepository),
		deliveries: new(mockDeliveryRepository),
		registry:   new(mockClientRegistry),
		client:     new(mockProviderClient),
	}
	env.service = NewService(env.connectors, env.syncLogs, env.deliveries, env.registry, zap.NewNop())
	return env
}

func createTestConnector(tenantID uuid.UUID) *connector.Connector {
	conn, err := connector.NewConnector(tenantID, connector.ProviderStripe, connector.Credentials{
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_test",
	}, connector.Settings{SyncIntervalMinutes: 60})
	if err != nil {
		panic(err)
	}
	return conn
}

// Tests for Create

func TestService_Create(t *testing.T) {
	tenantID := uuid.New()

	t.Run("verifies credentials before persisting", func(t *testing.T) {
		env := newServiceTestEnv(t)

		env.registry.On("Client", connector.ProviderStripe).Return(env.client, nil)
		env.client.On("VerifyCredentials", mock.Anything, mock.MatchedBy(func(c connector.Credentials) bool {
			return c.APIKey == "sk_live_abc"
		})).Return(nil)
		env.connectors.On("Save", mock.Anything, mock.AnythingOfType("*connector.Connector")).Return(nil)

		resp, err := env.service.Create(context.Background(), tenantID, CreateConnectorRequest{
			Provider:            "stripe",
			APIKey:              "sk_live_abc",
			WebhookSecret:       "whsec_abc",
			SyncIntervalMinutes: 30,
		})

		require.NoError(t, err)
		assert.Equal(t, "STRIPE", resp.Provider)
		assert.Equal(t, string(connector.StatusConnected), resp.Status)
		assert.True(t, resp.Enabled)
		assert.True(t, resp.HasWebhookSecret)
		assert.Equal(t, 30, resp.SyncIntervalMinutes)
		env.client.AssertExpectations(t)
	})

	t.Run("does not persist when credentials fail verification", func(t *testing.T) {
		env := newServiceTestEnv(t)

		env.registry.On("Client", connector.ProviderStripe).Return(env.client, nil)
		env.client.On("VerifyCredentials", mock.Anything, mock.Anything).Return(connector.ErrProviderAuth)

		_, err := env.service.Create(context.Background(), tenantID, CreateConnectorRequest{
			Provider: "STRIPE",
			APIKey:   "sk_bad",
		})

		assert.ErrorIs(t, err, connector.ErrProviderAuth)
		env.connectors.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		env := newServiceTestEnv(t)

		_, err := env.service.Create(context.Background(), tenantID, CreateConnectorRequest{
			Provider: "quickbooks",
			APIKey:   "key",
		})

		assert.ErrorIs(t, err, connector.ErrInvalidProvider)
	})

	t.Run("surfaces duplicate connector conflict", func(t *testing.T) {
		env := newServiceTestEnv(t)

		env.registry.On("Client", connector.ProviderStripe).Return(env.client, nil)
		env.client.On("VerifyCredentials", mock.Anything, mock.Anything).Return(nil)
		env.connectors.On("Save", mock.Anything, mock.Anything).Return(connector.ErrConnectorExists)

		_, err := env.service.Create(context.Background(), tenantID, CreateConnectorRequest{
			Provider: "stripe",
			APIKey:   "sk_live_abc",
		})

		assert.ErrorIs(t, err, connector.ErrConnectorExists)
	})
}

// Tests for Get / List

func TestService_Get(t *testing.T) {
	tenantID := uuid.New()

	t.Run("includes the latest sync run", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		log := connector.NewSyncLog(conn.ID, tenantID, connector.SyncTypeFull)
		require.NoError(t, log.Finish(map[connector.EntityType]int{connector.EntityTypeInvoices: 7}, nil))

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.syncLogs.On("FindLatestByConnector", mock.Anything, conn.ID).Return(log, nil)

		detail, err := env.service.Get(context.Background(), tenantID, conn.ID)

		require.NoError(t, err)
		require.NotNil(t, detail.LastSync)
		assert.Equal(t, 7, detail.LastSync.RecordsProcessed)
		assert.Equal(t, string(connector.SyncLogStatusCompleted), detail.LastSync.Status)
	})

	t.Run("tolerates a connector that never synced", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.syncLogs.On("FindLatestByConnector", mock.Anything, conn.ID).Return(nil, connector.ErrSyncLogNotFound)

		detail, err := env.service.Get(context.Background(), tenantID, conn.ID)

		require.NoError(t, err)
		assert.Nil(t, detail.LastSync)
	})

	t.Run("propagates not found", func(t *testing.T) {
		env := newServiceTestEnv(t)
		id := uuid.New()

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, id).Return(nil, connector.ErrConnectorNotFound)

		_, err := env.service.Get(context.Background(), tenantID, id)

		assert.ErrorIs(t, err, connector.ErrConnectorNotFound)
	})
}

func TestService_List(t *testing.T) {
	tenantID := uuid.New()

	t.Run("normalizes the filter and paginates", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conns := []connector.Connector{*createTestConnector(tenantID), *createTestConnector(tenantID)}

		env.connectors.On("FindAllForTenant", mock.Anything, tenantID, mock.MatchedBy(func(f shared.Filter) bool {
			return f.Page == 1 && f.PageSize == 20
		})).Return(conns, int64(2), nil)

		result, err := env.service.List(context.Background(), tenantID, shared.Filter{Page: -3})

		require.NoError(t, err)
		assert.Len(t, result.Items, 2)
		assert.Equal(t, int64(2), result.Total)
		assert.Equal(t, 1, result.Page)
	})
}

// Tests for Update

func TestService_Update(t *testing.T) {
	tenantID := uuid.New()

	t.Run("settings-only update skips credential verification", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		interval := 15
		url := "https://example.com/hooks"

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.connectors.On("Save", mock.Anything, conn).Return(nil)

		resp, err := env.service.Update(context.Background(), tenantID, conn.ID, UpdateConnectorRequest{
			SyncIntervalMinutes: &interval,
			OutboundURL:         &url,
		})

		require.NoError(t, err)
		assert.Equal(t, 15, resp.SyncIntervalMinutes)
		assert.Equal(t, url, resp.OutboundURL)
		env.registry.AssertNotCalled(t, "Client", mock.Anything)
	})

	t.Run("credential rotation is re-verified", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		newKey := "sk_live_rotated"

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.registry.On("Client", connector.ProviderStripe).Return(env.client, nil)
		env.client.On("VerifyCredentials", mock.Anything, mock.MatchedBy(func(c connector.Credentials) bool {
			// Untouched fields carry over.
			return c.APIKey == newKey && c.WebhookSecret == "whsec_test"
		})).Return(nil)
		env.connectors.On("Save", mock.Anything, conn).Return(nil)

		_, err := env.service.Update(context.Background(), tenantID, conn.ID, UpdateConnectorRequest{
			APIKey: &newKey,
		})

		require.NoError(t, err)
		assert.Equal(t, newKey, conn.Credentials.APIKey)
	})

	t.Run("rejected rotation leaves the connector untouched", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		badKey := "sk_bad"

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.registry.On("Client", connector.ProviderStripe).Return(env.client, nil)
		env.client.On("VerifyCredentials", mock.Anything, mock.Anything).Return(connector.ErrProviderAuth)

		_, err := env.service.Update(context.Background(), tenantID, conn.ID, UpdateConnectorRequest{
			APIKey: &badKey,
		})

		assert.ErrorIs(t, err, connector.ErrProviderAuth)
		assert.Equal(t, "sk_test_123", conn.Credentials.APIKey)
		env.connectors.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

// Tests for Enable / Disable / Delete

func TestService_Toggle(t *testing.T) {
	tenantID := uuid.New()

	t.Run("disable pauses the connector", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.connectors.On("Save", mock.Anything, conn).Return(nil)

		resp, err := env.service.Disable(context.Background(), tenantID, conn.ID)

		require.NoError(t, err)
		assert.False(t, resp.Enabled)
		assert.False(t, conn.Enabled)
	})

	t.Run("enable resumes the connector", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		conn.Disable()

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.connectors.On("Save", mock.Anything, conn).Return(nil)

		resp, err := env.service.Enable(context.Background(), tenantID, conn.ID)

		require.NoError(t, err)
		assert.True(t, resp.Enabled)
	})
}

func TestService_Delete(t *testing.T) {
	tenantID := uuid.New()

	t.Run("soft delete wipes credentials", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.connectors.On("Save", mock.Anything, mock.MatchedBy(func(c *connector.Connector) bool {
			return c.DeletedAt != nil && c.Credentials.IsZero() && !c.Enabled
		})).Return(nil)

		err := env.service.Delete(context.Background(), tenantID, conn.ID)

		require.NoError(t, err)
		env.connectors.AssertExpectations(t)
	})
}

// Tests for history listings

func TestService_ListSyncLogs(t *testing.T) {
	tenantID := uuid.New()

	t.Run("checks connector ownership before listing", func(t *testing.T) {
		env := newServiceTestEnv(t)
		id := uuid.New()

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, id).Return(nil, connector.ErrConnectorNotFound)

		_, err := env.service.ListSyncLogs(context.Background(), tenantID, id, shared.Filter{})

		assert.ErrorIs(t, err, connector.ErrConnectorNotFound)
		env.syncLogs.AssertNotCalled(t, "FindByConnector", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns paginated sync history", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		logs := []connector.SyncLog{*connector.NewSyncLog(conn.ID, tenantID, connector.SyncTypeIncremental)}

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.syncLogs.On("FindByConnector", mock.Anything, conn.ID, mock.Anything).Return(logs, int64(1), nil)

		result, err := env.service.ListSyncLogs(context.Background(), tenantID, conn.ID, shared.Filter{})

		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, string(connector.SyncTypeIncremental), result.Items[0].Type)
	})
}

func TestService_ListDeliveries(t *testing.T) {
	tenantID := uuid.New()

	t.Run("payload snapshot is not exposed", func(t *testing.T) {
		env := newServiceTestEnv(t)
		conn := createTestConnector(tenantID)
		delivery := webhook.NewDelivery(conn.ID, tenantID, "invoice.paid", "evt_1", []byte(`{"secret":"stuff"}`))
		delivery.MarkSuccess()

		env.connectors.On("FindByIDForTenant", mock.Anything, tenantID, conn.ID).Return(conn, nil)
		env.deliveries.On("FindByConnector", mock.Anything, conn.ID, mock.Anything).Return([]webhook.Delivery{*delivery}, int64(1), nil)

		result, err := env.service.ListDeliveries(context.Background(), tenantID, conn.ID, shared.Filter{})

		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "invoice.paid", result.Items[0].EventType)
		assert.Equal(t, string(webhook.DeliveryStatusSuccess), result.Items[0].Status)
	})
}
