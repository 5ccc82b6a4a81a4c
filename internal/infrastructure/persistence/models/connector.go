package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
)

// ConnectorModel is the persistence model for the Connector domain entity.
// Uniqueness of the live (tenant, provider) pair is enforced in the
// repository because soft-deleted rows stay in the table.
type ConnectorModel struct {
	ID              uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID              `gorm:"type:uuid;not null;index:idx_connectors_tenant_provider,priority:1"`
	Provider        connector.ProviderType `gorm:"type:varchar(20);not null;index:idx_connectors_tenant_provider,priority:2"`
	Status          connector.Status       `gorm:"type:varchar(20);not null;default:'pending'"`
	Enabled         bool                   `gorm:"not null;default:true"`
	CredentialsJSON string                 `gorm:"type:jsonb;column:credentials"`
	SettingsJSON    string                 `gorm:"type:jsonb;column:settings"`
	LastSyncAt      *time.Time
	DeletedAt       *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConnectorModel) TableName() string {
	return "connectors"
}

// ToDomain converts the persistence model to a domain Connector entity.
func (m *ConnectorModel) ToDomain() *connector.Connector {
	c := &connector.Connector{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:   m.TenantID,
		Provider:   m.Provider,
		Status:     m.Status,
		Enabled:    m.Enabled,
		LastSyncAt: m.LastSyncAt,
		DeletedAt:  m.DeletedAt,
	}

	if m.CredentialsJSON != "" {
		_ = json.Unmarshal([]byte(m.CredentialsJSON), &c.Credentials)
	}
	if m.SettingsJSON != "" {
		_ = json.Unmarshal([]byte(m.SettingsJSON), &c.Settings)
	}
	return c
}

// FromDomain populates the persistence model from a domain Connector entity.
func (m *ConnectorModel) FromDomain(c *connector.Connector) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.Provider = c.Provider
	m.Status = c.Status
	m.Enabled = c.Enabled
	m.LastSyncAt = c.LastSyncAt
	m.DeletedAt = c.DeletedAt
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt

	if creds, err := json.Marshal(c.Credentials); err == nil {
		m.CredentialsJSON = string(creds)
	}
	if settings, err := json.Marshal(c.Settings); err == nil {
		m.SettingsJSON = string(settings)
	}
}

// ConnectorModelFromDomain creates a new persistence model from a domain Connector entity.
func ConnectorModelFromDomain(c *connector.Connector) *ConnectorModel {
	m := &ConnectorModel{}
	m.FromDomain(c)
	return m
}
