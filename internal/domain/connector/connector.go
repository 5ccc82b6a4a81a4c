package connector

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// ProviderType
// ---------------------------------------------------------------------------

// ProviderType identifies an external data provider
type ProviderType string

const (
	// ProviderStripe is the payments provider (customers, invoices, subscriptions)
	ProviderStripe ProviderType = "STRIPE"
	// ProviderShopify is the commerce provider (customers, orders, products)
	ProviderShopify ProviderType = "SHOPIFY"
)

// IsValid returns true if the provider type is part of the closed set
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderStripe, ProviderShopify:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status represents the connector lifecycle status
type Status string

const (
	// StatusPending indicates the connector was created but not yet authorized
	StatusPending Status = "pending"
	// StatusConnected indicates credentials were validated but no sync has run
	StatusConnected Status = "connected"
	// StatusActive indicates the last sync completed without errors
	StatusActive Status = "active"
	// StatusSyncing indicates a sync run is currently in flight
	StatusSyncing Status = "syncing"
	// StatusError indicates the last sync failed
	StatusError Status = "error"
)

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConnected, StatusActive, StatusSyncing, StatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Credentials / Settings
// ---------------------------------------------------------------------------

// Credentials is the opaque credential blob for one connector. Which fields
// are populated depends on the provider; the blob is persisted as a single
// JSON column and wiped on deletion.
type Credentials struct {
	// APIKey is the provider API key or access token
	APIKey string `json:"api_key,omitempty"`
	// WebhookSecret is the per-connector secret used to verify inbound
	// webhook signatures and to sign outbound test deliveries
	WebhookSecret string `json:"webhook_secret,omitempty"`
	// AccountID is the provider-side account identifier, when known
	AccountID string `json:"account_id,omitempty"`
	// ShopDomain is the shop subdomain for commerce providers
	ShopDomain string `json:"shop_domain,omitempty"`
}

// IsZero reports whether no credential material is present
func (c Credentials) IsZero() bool {
	return c.APIKey == "" && c.WebhookSecret == "" && c.AccountID == "" && c.ShopDomain == ""
}

// Settings holds per-connector configuration
type Settings struct {
	// SyncIntervalMinutes is how often the scheduler triggers an
	// incremental sync. Zero means scheduled sync is disabled.
	SyncIntervalMinutes int `json:"sync_interval_minutes,omitempty"`
	// OutboundURL is the tenant-configured endpoint that test deliveries
	// and re-broadcast events are posted to
	OutboundURL string `json:"outbound_url,omitempty"`
}

// SyncInterval returns the scheduled sync interval as a duration
func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}

// ---------------------------------------------------------------------------
// Connector
// ---------------------------------------------------------------------------

// Connector is one tenant's configured link to one external provider.
// At most one live connector exists per (tenant, provider) pair.
type Connector struct {
	shared.BaseEntity
	TenantID    uuid.UUID
	Provider    ProviderType
	Status      Status
	Enabled     bool
	Credentials Credentials
	Settings    Settings
	LastSyncAt  *time.Time
	DeletedAt   *time.Time
}

// NewConnector creates a connector in connected state. Callers are expected
// to have validated the credentials against the provider first.
func NewConnector(tenantID uuid.UUID, provider ProviderType, creds Credentials, settings Settings) (*Connector, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrInvalidInput
	}
	if !provider.IsValid() {
		return nil, ErrInvalidProvider
	}
	if creds.IsZero() {
		return nil, ErrMissingCredentials
	}
	return &Connector{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		Provider:    provider,
		Status:      StatusConnected,
		Enabled:     true,
		Credentials: creds,
		Settings:    settings,
	}, nil
}

// IsDeleted reports whether the connector was soft-deleted
func (c *Connector) IsDeleted() bool {
	return c.DeletedAt != nil
}

// CanSync returns nil when the connector is in a state where a sync run
// may start. Missing credentials are a configuration error and are never
// retried.
func (c *Connector) CanSync() error {
	if c.IsDeleted() {
		return ErrConnectorDeleted
	}
	if !c.Enabled {
		return ErrConnectorDisabled
	}
	if c.Credentials.IsZero() {
		return ErrMissingCredentials
	}
	return nil
}

// FinishSync records the outcome of a sync run on the connector. The
// last-sync timestamp advances regardless of success so partial failures
// do not cause the incremental window to re-scan the same range forever.
func (c *Connector) FinishSync(success bool, at time.Time) {
	if success {
		c.Status = StatusActive
	} else {
		c.Status = StatusError
	}
	c.LastSyncAt = &at
	c.Touch()
}

// MarkError flags the connector after a fatal failure without advancing
// the last-sync timestamp.
func (c *Connector) MarkError() {
	c.Status = StatusError
	c.Touch()
}

// Enable re-enables the connector
func (c *Connector) Enable() {
	c.Enabled = true
	c.Touch()
}

// Disable disables scheduled and manual syncs for the connector
func (c *Connector) Disable() {
	c.Enabled = false
	c.Touch()
}

// SoftDelete marks the connector gone and wipes its credential material.
// The row survives because sync logs and deliveries reference it.
func (c *Connector) SoftDelete(at time.Time) {
	c.Credentials = Credentials{}
	c.Enabled = false
	c.DeletedAt = &at
	c.Touch()
}

// DueForScheduledSync reports whether the scheduler should trigger an
// incremental sync now.
func (c *Connector) DueForScheduledSync(now time.Time) bool {
	if c.CanSync() != nil || c.Settings.SyncIntervalMinutes <= 0 {
		return false
	}
	if c.Status == StatusSyncing {
		return false
	}
	if c.LastSyncAt == nil {
		return true
	}
	return now.Sub(*c.LastSyncAt) >= c.Settings.SyncInterval()
}
