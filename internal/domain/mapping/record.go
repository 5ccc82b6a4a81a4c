package mapping

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
)

// Record is the narrow internal-record shape the integration layer writes.
// The wider application consumes these rows through its own query layer;
// the integration layer only ever touches them through the RecordStore port.
type Record struct {
	InternalID uuid.UUID
	TenantID   uuid.UUID
	EntityType connector.EntityType
	// Attributes holds the translated provider fields
	Attributes map[string]any
	// AmountMinor is the monetary amount in integer minor units, when the
	// entity carries one
	AmountMinor *int64
	Currency    string
	Status      string
	ExternalUpdatedAt *time.Time
}

// RecordStore is the write contract against the relational store. Upsert
// must be idempotent: applying the same record twice yields the same
// internal state.
type RecordStore interface {
	// Upsert writes the record under its internal id
	Upsert(ctx context.Context, rec *Record) error

	// Get reads a record back
	Get(ctx context.Context, tenantID, internalID uuid.UUID) (*Record, error)

	// UpdateStatus updates only the status field, for status-only webhook
	// events that do not carry a full entity payload
	UpdateStatus(ctx context.Context, tenantID, internalID uuid.UUID, status string) error
}
