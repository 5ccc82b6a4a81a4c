package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/mapping"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Mapper translates external entities into internal records. It owns the
// identity-mapping decision: the first observation of an external id
// creates a record and a mapping, every later one updates the record the
// mapping points at. Both the sync engine and the webhook processors
// mutate records exclusively through it.
type Mapper struct {
	mappings mapping.Repository
	records  mapping.RecordStore
	logger   *zap.Logger
}

// NewMapper creates a new Mapper
func NewMapper(mappings mapping.Repository, records mapping.RecordStore, logger *zap.Logger) *Mapper {
	return &Mapper{
		mappings: mappings,
		records:  records,
		logger:   logger,
	}
}

// UpsertEntity resolves the external reference and writes the record.
// Returns the internal id and whether a new record was created.
func (m *Mapper) UpsertEntity(
	ctx context.Context,
	tenantID uuid.UUID,
	provider connector.ProviderType,
	entity *connector.ExternalEntity,
) (uuid.UUID, bool, error) {
	ref := mapping.ExternalRef{
		Provider:   provider,
		EntityType: entity.Type,
		ExternalID: entity.ExternalID,
	}
	if err := ref.Validate(); err != nil {
		return uuid.Nil, false, mapping.NewMappingError(entity.Type, entity.ExternalID, "malformed external reference")
	}

	existing, err := m.mappings.Find(ctx, tenantID, ref)
	switch {
	case err == nil:
		rec, buildErr := m.buildRecord(tenantID, existing.InternalID, entity)
		if buildErr != nil {
			return uuid.Nil, false, buildErr
		}
		if err := m.records.Upsert(ctx, rec); err != nil {
			return uuid.Nil, false, fmt.Errorf("mapper: failed to update record: %w", err)
		}
		return existing.InternalID, false, nil

	case errors.Is(err, mapping.ErrMappingNotFound):
		return m.createRecord(ctx, tenantID, ref, entity)

	default:
		return uuid.Nil, false, fmt.Errorf("mapper: failed to resolve mapping: %w", err)
	}
}

// createRecord handles the first observation of an external reference.
// The mapping is inserted before the record so a lost insert race leaves
// no orphan rows: the loser re-reads the surviving mapping and updates
// the record it points at.
func (m *Mapper) createRecord(
	ctx context.Context,
	tenantID uuid.UUID,
	ref mapping.ExternalRef,
	entity *connector.ExternalEntity,
) (uuid.UUID, bool, error) {
	internalID := uuid.New()

	ident, err := mapping.NewIdentityMapping(tenantID, ref, internalID)
	if err != nil {
		return uuid.Nil, false, mapping.NewMappingError(entity.Type, entity.ExternalID, "malformed external reference")
	}

	err = m.mappings.Create(ctx, ident)
	if errors.Is(err, mapping.ErrMappingConflict) {
		// Another worker or a webhook mapped this reference first.
		survivor, findErr := m.mappings.Find(ctx, tenantID, ref)
		if findErr != nil {
			return uuid.Nil, false, fmt.Errorf("mapper: failed to resolve mapping after conflict: %w", findErr)
		}
		m.logger.Debug("identity mapping race lost, reusing surviving mapping",
			zap.String("tenant_id", tenantID.String()),
			zap.String("ref", ref.String()),
		)
		rec, buildErr := m.buildRecord(tenantID, survivor.InternalID, entity)
		if buildErr != nil {
			return uuid.Nil, false, buildErr
		}
		if err := m.records.Upsert(ctx, rec); err != nil {
			return uuid.Nil, false, fmt.Errorf("mapper: failed to update record: %w", err)
		}
		return survivor.InternalID, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("mapper: failed to create mapping: %w", err)
	}

	rec, buildErr := m.buildRecord(tenantID, internalID, entity)
	if buildErr != nil {
		return uuid.Nil, false, buildErr
	}
	if err := m.records.Upsert(ctx, rec); err != nil {
		return uuid.Nil, false, fmt.Errorf("mapper: failed to create record: %w", err)
	}
	return internalID, true, nil
}

// UpdateRecordStatus applies a status-only mutation to the record an
// external reference resolves to.
func (m *Mapper) UpdateRecordStatus(
	ctx context.Context,
	tenantID uuid.UUID,
	provider connector.ProviderType,
	entityType connector.EntityType,
	externalID, status string,
) error {
	ref := mapping.ExternalRef{
		Provider:   provider,
		EntityType: entityType,
		ExternalID: externalID,
	}
	if err := ref.Validate(); err != nil {
		return mapping.NewMappingError(entityType, externalID, "malformed external reference")
	}

	ident, err := m.mappings.Find(ctx, tenantID, ref)
	if err != nil {
		return fmt.Errorf("mapper: failed to resolve mapping for status update: %w", err)
	}

	if err := m.records.UpdateStatus(ctx, tenantID, ident.InternalID, status); err != nil {
		return fmt.Errorf("mapper: failed to update record status: %w", err)
	}
	return nil
}

// buildRecord translates an external entity into the internal record
// shape. The amount field, when present, is converted to integer minor
// units at the currency's declared precision; a malformed amount fails
// the entity with a MappingError rather than writing a partial record.
func (m *Mapper) buildRecord(tenantID, internalID uuid.UUID, entity *connector.ExternalEntity) (*mapping.Record, error) {
	rec := &mapping.Record{
		InternalID: internalID,
		TenantID:   tenantID,
		EntityType: entity.Type,
		Attributes: make(map[string]any, len(entity.Data)),
	}

	currency, _ := entity.Data["currency"].(string)
	rec.Currency = currency

	if status, ok := entity.Data["status"].(string); ok {
		rec.Status = status
	}

	for k, v := range entity.Data {
		switch k {
		case "amount", "currency", "status":
			// lifted into dedicated columns
		default:
			rec.Attributes[k] = v
		}
	}

	if raw, ok := entity.Data["amount"]; ok {
		if currency == "" {
			return nil, mapping.NewMappingError(entity.Type, entity.ExternalID, "amount present without currency")
		}
		minor, err := mapping.ParseAmount(raw, currency)
		if err != nil {
			return nil, mapping.NewMappingError(entity.Type, entity.ExternalID, fmt.Sprintf("unparseable amount: %v", raw))
		}
		rec.AmountMinor = &minor
	}

	if !entity.UpdatedAt.IsZero() {
		at := entity.UpdatedAt.UTC().Truncate(time.Microsecond)
		rec.ExternalUpdatedAt = &at
	}

	return rec, nil
}

// Ensure Mapper implements the mutator port used by webhook processors
var _ webhook.Mutator = (*Mapper)(nil)
