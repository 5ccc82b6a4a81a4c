package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
)

var (
	ErrMappingNotFound = errors.New("mapping: identity mapping not found")
	// ErrMappingConflict is returned when a mapping for the same external
	// reference was created concurrently. Callers fall back to the
	// surviving mapping.
	ErrMappingConflict = errors.New("mapping: identity mapping already exists")
	ErrRecordNotFound  = errors.New("mapping: internal record not found")
)

// ---------------------------------------------------------------------------
// ExternalRef
// ---------------------------------------------------------------------------

// ExternalRef is the composite key identifying one external entity:
// (provider, entity type, external id). It is unique within a tenant and
// resolves to exactly one internal record id at any time.
type ExternalRef struct {
	Provider   connector.ProviderType
	EntityType connector.EntityType
	ExternalID string
}

// Validate checks the reference is well-formed
func (r ExternalRef) Validate() error {
	if !r.Provider.IsValid() {
		return connector.ErrInvalidProvider
	}
	if r.EntityType == "" || r.ExternalID == "" {
		return shared.ErrInvalidInput
	}
	return nil
}

// String renders the reference for logs and dedup keys
func (r ExternalRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Provider, r.EntityType, r.ExternalID)
}

// ---------------------------------------------------------------------------
// IdentityMapping
// ---------------------------------------------------------------------------

// IdentityMapping is the durable correspondence between one external
// entity id and one internal record id. It is created on first
// observation of an external entity and consulted on every subsequent
// one to decide update-vs-insert.
type IdentityMapping struct {
	shared.BaseEntity
	TenantID   uuid.UUID
	Ref        ExternalRef
	InternalID uuid.UUID
}

// NewIdentityMapping creates a mapping for a freshly created internal record
func NewIdentityMapping(tenantID uuid.UUID, ref ExternalRef, internalID uuid.UUID) (*IdentityMapping, error) {
	if tenantID == uuid.Nil || internalID == uuid.Nil {
		return nil, shared.ErrInvalidInput
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return &IdentityMapping{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Ref:        ref,
		InternalID: internalID,
	}, nil
}

// Remap points the mapping at a different internal record. This is the
// only sanctioned way to change the internal side, used when records are
// merged.
func (m *IdentityMapping) Remap(internalID uuid.UUID) error {
	if internalID == uuid.Nil {
		return shared.ErrInvalidInput
	}
	m.InternalID = internalID
	m.Touch()
	return nil
}

// ---------------------------------------------------------------------------
// Repository port
// ---------------------------------------------------------------------------

// Repository is the persistence port for identity mappings. The
// (tenant, provider, entity type, external id) tuple carries a unique
// constraint; Create surfaces a duplicate-key violation as
// ErrMappingConflict so concurrent first observations can fall back to
// the mapping that won the race.
type Repository interface {
	// Find looks up the mapping for an external reference
	Find(ctx context.Context, tenantID uuid.UUID, ref ExternalRef) (*IdentityMapping, error)

	// Create inserts a new mapping, returning ErrMappingConflict when the
	// reference is already mapped
	Create(ctx context.Context, m *IdentityMapping) error

	// Remap updates the internal id a reference resolves to
	Remap(ctx context.Context, tenantID uuid.UUID, ref ExternalRef, internalID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// MappingError
// ---------------------------------------------------------------------------

// MappingError reports one entity that could not be translated or
// persisted. A mapping error is isolated: the sync records it and moves
// on to the next entity.
type MappingError struct {
	EntityType connector.EntityType
	ExternalID string
	Reason     string
}

// Error implements the error interface
func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping: %s %s: %s", e.EntityType, e.ExternalID, e.Reason)
}

// NewMappingError creates a mapping error for one entity
func NewMappingError(entityType connector.EntityType, externalID, reason string) *MappingError {
	return &MappingError{EntityType: entityType, ExternalID: externalID, Reason: reason}
}
