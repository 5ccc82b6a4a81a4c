package connector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/shared"
)

// Repository is the persistence port for connectors
type Repository interface {
	// FindByID finds a connector by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Connector, error)

	// FindByIDForTenant finds a connector by ID within a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Connector, error)

	// FindByTenantAndProvider finds the live connector for a (tenant, provider) pair
	FindByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider ProviderType) (*Connector, error)

	// FindAllForTenant lists a tenant's live connectors
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Connector, int64, error)

	// FindEnabled lists all enabled, non-deleted connectors across tenants
	// for the scheduler
	FindEnabled(ctx context.Context) ([]Connector, error)

	// Save creates or updates a connector. Creating a second live
	// connector for a (tenant, provider) pair fails with ErrConnectorExists.
	Save(ctx context.Context, c *Connector) error

	// BeginSync atomically transitions the connector to syncing status.
	// Returns false when another sync already holds the connector.
	BeginSync(ctx context.Context, id uuid.UUID) (bool, error)

	// ResetStaleSyncing flips connectors stuck in syncing status whose
	// last update is older than the threshold back to error status.
	ResetStaleSyncing(ctx context.Context, olderThan time.Time) (int64, error)
}

// SyncLogRepository is the persistence port for the sync audit trail.
// Rows are created at sync start, updated exactly once at sync end, and
// never deleted.
type SyncLogRepository interface {
	// Create opens a new sync log row
	Create(ctx context.Context, log *SyncLog) error

	// Update finalizes a sync log row
	Update(ctx context.Context, log *SyncLog) error

	// FindByID finds a sync log by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)

	// FindByConnector lists sync logs for a connector, newest first
	FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]SyncLog, int64, error)

	// FindLatestByConnector returns the most recent sync log for a connector
	FindLatestByConnector(ctx context.Context, connectorID uuid.UUID) (*SyncLog, error)

	// ReclaimStale reclassifies running rows started before the threshold
	// as failed. Abandoned runs (process restart mid-sync) are recovered
	// this way rather than by cancellation.
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
}
