package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/mapping"
	"github.com/pulseboard/backend/internal/domain/shared"
)

// IdentityMappingModel is the persistence model for the IdentityMapping
// domain entity. The composite unique index backs the one-mapping-per-
// external-reference guarantee; concurrent inserts lose with a duplicate
// key violation the repository surfaces as ErrMappingConflict.
type IdentityMappingModel struct {
	ID         uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID   uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_identity_mappings_ref,priority:1"`
	Provider   connector.ProviderType `gorm:"type:varchar(20);not null;uniqueIndex:idx_identity_mappings_ref,priority:2"`
	EntityType connector.EntityType   `gorm:"type:varchar(30);not null;uniqueIndex:idx_identity_mappings_ref,priority:3"`
	ExternalID string                 `gorm:"type:varchar(100);not null;uniqueIndex:idx_identity_mappings_ref,priority:4"`
	InternalID uuid.UUID              `gorm:"type:uuid;not null;index:idx_identity_mappings_internal"`
	CreatedAt  time.Time              `gorm:"not null"`
	UpdatedAt  time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdentityMappingModel) TableName() string {
	return "identity_mappings"
}

// ToDomain converts the persistence model to a domain IdentityMapping entity.
func (m *IdentityMappingModel) ToDomain() *mapping.IdentityMapping {
	return &mapping.IdentityMapping{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID: m.TenantID,
		Ref: mapping.ExternalRef{
			Provider:   m.Provider,
			EntityType: m.EntityType,
			ExternalID: m.ExternalID,
		},
		InternalID: m.InternalID,
	}
}

// FromDomain populates the persistence model from a domain IdentityMapping entity.
func (m *IdentityMappingModel) FromDomain(im *mapping.IdentityMapping) {
	m.ID = im.ID
	m.TenantID = im.TenantID
	m.Provider = im.Ref.Provider
	m.EntityType = im.Ref.EntityType
	m.ExternalID = im.Ref.ExternalID
	m.InternalID = im.InternalID
	m.CreatedAt = im.CreatedAt
	m.UpdatedAt = im.UpdatedAt
}

// IdentityMappingModelFromDomain creates a new persistence model from a domain IdentityMapping entity.
func IdentityMappingModelFromDomain(im *mapping.IdentityMapping) *IdentityMappingModel {
	m := &IdentityMappingModel{}
	m.FromDomain(im)
	return m
}
