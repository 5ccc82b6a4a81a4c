package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Provider Client Port
// ---------------------------------------------------------------------------

// ExternalEntity is one entity as delivered by a provider, normalized to
// the shape the entity mapper consumes. Data holds the provider fields
// already flattened to internal names; Raw preserves the original payload.
type ExternalEntity struct {
	Type       EntityType
	ExternalID string
	UpdatedAt  time.Time
	Data       map[string]any
	Raw        json.RawMessage
}

// EntityPage is one page of a provider listing
type EntityPage struct {
	Entities   []ExternalEntity
	NextCursor string
	HasMore    bool
}

// ListRequest asks a provider client for one page of entities
type ListRequest struct {
	TenantID    uuid.UUID
	Credentials Credentials
	EntityType  EntityType
	// UpdatedSince bounds incremental listings. Nil means list everything.
	UpdatedSince *time.Time
	// Cursor is the provider pagination cursor from the previous page,
	// empty for the first page
	Cursor   string
	PageSize int
}

// Client is the port interface one provider-specific HTTP client
// implements. Implementations are stateless beyond construction-time
// configuration; credentials travel with each request so one adapter
// instance serves all tenants. Transient provider failures are retried
// with backoff inside the client, bounded by a maximum attempt count.
type Client interface {
	// Provider returns the provider type this client handles
	Provider() ProviderType

	// SupportedEntities returns the entity types this provider exposes,
	// in the order sync passes should run
	SupportedEntities() []EntityType

	// VerifyCredentials performs a cheap authenticated call to confirm
	// the credentials are usable
	VerifyCredentials(ctx context.Context, creds Credentials) error

	// ListEntities fetches one page of entities
	ListEntities(ctx context.Context, req *ListRequest) (*EntityPage, error)
}

// ClientRegistry resolves the provider client for a provider type
type ClientRegistry interface {
	// Client returns the client for the provider, or ErrUnsupportedProvider
	Client(provider ProviderType) (Client, error)
}
