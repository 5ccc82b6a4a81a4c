package connector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Service handles connector lifecycle operations
type Service struct {
	connectors connector.Repository
	syncLogs   connector.SyncLogRepository
	deliveries webhook.DeliveryRepository
	clients    connector.ClientRegistry
	logger     *zap.Logger
}

// NewService creates a new connector Service
func NewService(
	connectors connector.Repository,
	syncLogs connector.SyncLogRepository,
	deliveries webhook.DeliveryRepository,
	clients connector.ClientRegistry,
	logger *zap.Logger,
) *Service {
	return &Service{
		connectors: connectors,
		syncLogs:   syncLogs,
		deliveries: deliveries,
		clients:    clients,
		logger:     logger,
	}
}

// Create connects a provider for a tenant. The credentials are verified
// against the provider before anything is persisted, so a connector row
// always starts from a working credential set.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateConnectorRequest) (*ConnectorResponse, error) {
	provider := connector.ProviderType(strings.ToUpper(req.Provider))
	if !provider.IsValid() {
		return nil, connector.ErrInvalidProvider
	}

	client, err := s.clients.Client(provider)
	if err != nil {
		return nil, err
	}

	creds := connector.Credentials{
		APIKey:        req.APIKey,
		WebhookSecret: req.WebhookSecret,
		AccountID:     req.AccountID,
		ShopDomain:    req.ShopDomain,
	}
	if err := client.VerifyCredentials(ctx, creds); err != nil {
		return nil, err
	}

	conn, err := connector.NewConnector(tenantID, provider, creds, connector.Settings{
		SyncIntervalMinutes: req.SyncIntervalMinutes,
		OutboundURL:         req.OutboundURL,
	})
	if err != nil {
		return nil, err
	}

	if err := s.connectors.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("connector created",
		zap.String("connector_id", conn.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("provider", provider.String()),
	)

	response := ToConnectorResponse(conn)
	return &response, nil
}

// Get returns a connector with its most recent sync run
func (s *Service) Get(ctx context.Context, tenantID, connectorID uuid.UUID) (*ConnectorDetailResponse, error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}

	detail := &ConnectorDetailResponse{
		ConnectorResponse: ToConnectorResponse(conn),
	}

	latest, err := s.syncLogs.FindLatestByConnector(ctx, conn.ID)
	switch {
	case err == nil:
		log := ToSyncLogResponse(latest)
		detail.LastSync = &log
	case errors.Is(err, connector.ErrSyncLogNotFound):
		// Never synced yet.
	default:
		return nil, err
	}

	return detail, nil
}

// List returns a tenant's connectors
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[ConnectorResponse], error) {
	filter.Normalize()

	connectors, total, err := s.connectors.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	result := shared.NewPaginated(ToConnectorResponses(connectors), total, filter.Page, filter.PageSize)
	return &result, nil
}

// Update applies a partial update. Credential changes are re-verified
// against the provider before replacing the stored blob.
func (s *Service) Update(ctx context.Context, tenantID, connectorID uuid.UUID, req UpdateConnectorRequest) (*ConnectorResponse, error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}

	if req.hasCredentials() {
		creds := conn.Credentials
		if req.APIKey != nil {
			creds.APIKey = *req.APIKey
		}
		if req.WebhookSecret != nil {
			creds.WebhookSecret = *req.WebhookSecret
		}
		if req.AccountID != nil {
			creds.AccountID = *req.AccountID
		}
		if req.ShopDomain != nil {
			creds.ShopDomain = *req.ShopDomain
		}
		if creds.IsZero() {
			return nil, connector.ErrMissingCredentials
		}

		client, err := s.clients.Client(conn.Provider)
		if err != nil {
			return nil, err
		}
		if err := client.VerifyCredentials(ctx, creds); err != nil {
			return nil, err
		}
		conn.Credentials = creds
	}

	if req.SyncIntervalMinutes != nil {
		conn.Settings.SyncIntervalMinutes = *req.SyncIntervalMinutes
	}
	if req.OutboundURL != nil {
		conn.Settings.OutboundURL = *req.OutboundURL
	}
	conn.Touch()

	if err := s.connectors.Save(ctx, conn); err != nil {
		return nil, err
	}

	response := ToConnectorResponse(conn)
	return &response, nil
}

// Enable re-enables a connector for syncs and webhooks
func (s *Service) Enable(ctx context.Context, tenantID, connectorID uuid.UUID) (*ConnectorResponse, error) {
	return s.setEnabled(ctx, tenantID, connectorID, true)
}

// Disable pauses a connector. Scheduled syncs skip it and inbound
// webhooks are rejected until it is enabled again.
func (s *Service) Disable(ctx context.Context, tenantID, connectorID uuid.UUID) (*ConnectorResponse, error) {
	return s.setEnabled(ctx, tenantID, connectorID, false)
}

func (s *Service) setEnabled(ctx context.Context, tenantID, connectorID uuid.UUID, enabled bool) (*ConnectorResponse, error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}

	if enabled {
		conn.Enable()
	} else {
		conn.Disable()
	}

	if err := s.connectors.Save(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("connector toggled",
		zap.String("connector_id", conn.ID.String()),
		zap.Bool("enabled", enabled),
	)

	response := ToConnectorResponse(conn)
	return &response, nil
}

// Delete soft-deletes a connector and wipes its credentials. Sync logs,
// identity mappings and delivery rows are kept for the audit trail.
func (s *Service) Delete(ctx context.Context, tenantID, connectorID uuid.UUID) error {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return err
	}

	conn.SoftDelete(time.Now())
	if err := s.connectors.Save(ctx, conn); err != nil {
		return err
	}

	s.logger.Info("connector deleted",
		zap.String("connector_id", conn.ID.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return nil
}

// ListSyncLogs returns a connector's sync history, newest first
func (s *Service) ListSyncLogs(ctx context.Context, tenantID, connectorID uuid.UUID, filter shared.Filter) (*shared.Paginated[SyncLogResponse], error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	filter.Normalize()

	logs, total, err := s.syncLogs.FindByConnector(ctx, conn.ID, filter)
	if err != nil {
		return nil, err
	}

	result := shared.NewPaginated(ToSyncLogResponses(logs), total, filter.Page, filter.PageSize)
	return &result, nil
}

// ListDeliveries returns a connector's webhook delivery log, newest first
func (s *Service) ListDeliveries(ctx context.Context, tenantID, connectorID uuid.UUID, filter shared.Filter) (*shared.Paginated[DeliveryResponse], error) {
	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	filter.Normalize()

	deliveries, total, err := s.deliveries.FindByConnector(ctx, conn.ID, filter)
	if err != nil {
		return nil, err
	}

	result := shared.NewPaginated(ToDeliveryResponses(deliveries), total, filter.Page, filter.PageSize)
	return &result, nil
}
