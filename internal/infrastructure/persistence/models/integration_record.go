package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/mapping"
)

// IntegrationRecordModel is the persistence model for the Record shape
// the integration layer writes. Monetary amounts are stored as integer
// minor units next to their currency code.
type IntegrationRecordModel struct {
	InternalID        uuid.UUID            `gorm:"type:uuid;primary_key;column:internal_id"`
	TenantID          uuid.UUID            `gorm:"type:uuid;not null;index:idx_integration_records_tenant"`
	EntityType        connector.EntityType `gorm:"type:varchar(30);not null"`
	AttributesJSON    string               `gorm:"type:jsonb;column:attributes"`
	AmountMinor       *int64
	Currency          string `gorm:"type:varchar(3)"`
	Status            string `gorm:"type:varchar(50)"`
	ExternalUpdatedAt *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationRecordModel) TableName() string {
	return "integration_records"
}

// ToDomain converts the persistence model to a domain Record.
func (m *IntegrationRecordModel) ToDomain() *mapping.Record {
	rec := &mapping.Record{
		InternalID:        m.InternalID,
		TenantID:          m.TenantID,
		EntityType:        m.EntityType,
		Attributes:        make(map[string]any),
		AmountMinor:       m.AmountMinor,
		Currency:          m.Currency,
		Status:            m.Status,
		ExternalUpdatedAt: m.ExternalUpdatedAt,
	}
	if m.AttributesJSON != "" {
		_ = json.Unmarshal([]byte(m.AttributesJSON), &rec.Attributes)
	}
	return rec
}

// FromDomain populates the persistence model from a domain Record.
func (m *IntegrationRecordModel) FromDomain(rec *mapping.Record) {
	m.InternalID = rec.InternalID
	m.TenantID = rec.TenantID
	m.EntityType = rec.EntityType
	m.AmountMinor = rec.AmountMinor
	m.Currency = rec.Currency
	m.Status = rec.Status
	m.ExternalUpdatedAt = rec.ExternalUpdatedAt

	if len(rec.Attributes) > 0 {
		if attrs, err := json.Marshal(rec.Attributes); err == nil {
			m.AttributesJSON = string(attrs)
		}
	} else {
		m.AttributesJSON = "{}"
	}
}

// IntegrationRecordModelFromDomain creates a new persistence model from a domain Record.
func IntegrationRecordModelFromDomain(rec *mapping.Record) *IntegrationRecordModel {
	m := &IntegrationRecordModel{}
	m.FromDomain(rec)
	return m
}
