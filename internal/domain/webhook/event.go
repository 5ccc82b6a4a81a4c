package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
)

var (
	ErrUnsupportedProvider = errors.New("webhook: no verifier registered for provider")
	ErrVerificationFailed  = errors.New("webhook: signature verification failed")
	ErrTimestampOutOfRange = errors.New("webhook: signature timestamp outside accepted window")
	ErrParseFailed         = errors.New("webhook: event payload could not be parsed")
	ErrProcessingFailed    = errors.New("webhook: event processing failed")
	ErrDeliveryNotFound    = errors.New("webhook: delivery not found")
)

// ParsedEvent is the normalized shape of one inbound provider event
type ParsedEvent struct {
	Provider connector.ProviderType
	// Type is the provider's event type string, e.g. "invoice.paid"
	Type string
	// ExternalEventID is the provider-assigned delivery/event id used for
	// idempotent processing
	ExternalEventID string
	OccurredAt      time.Time
	// Entity is set when the event carries a full entity payload that can
	// go through the entity mapper
	Entity *connector.ExternalEntity
	// Data holds any remaining event fields for status-only events
	Data map[string]any
}

// Verifier is the per-provider cryptographic check that an inbound body
// genuinely originated from that provider. Verification failures must
// never reach the event processor.
type Verifier interface {
	// Provider returns the provider this verifier handles
	Provider() connector.ProviderType

	// Verify checks the request signature against the per-connector
	// secret. It returns ErrVerificationFailed or
	// ErrTimestampOutOfRange on rejection.
	Verify(body []byte, headers http.Header, secret string) error
}

// Mutator is the narrow surface processors use to apply mutations. The
// entity mapper implements it; processors never touch storage directly.
type Mutator interface {
	// UpsertEntity routes an entity-shaped event through identity
	// resolution and upsert. Returns the internal id and whether a new
	// record was created.
	UpsertEntity(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType, entity *connector.ExternalEntity) (uuid.UUID, bool, error)

	// UpdateRecordStatus applies a status-only mutation to the record an
	// external reference resolves to
	UpdateRecordStatus(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType, entityType connector.EntityType, externalID, status string) error
}

// Processor maps a parsed provider event to the internal mutation it
// causes. One implementation per provider; unknown event types are not
// errors, the gateway records them as no-ops.
type Processor interface {
	// Provider returns the provider this processor handles
	Provider() connector.ProviderType

	// SupportedEvents returns the event types this processor knows how
	// to apply
	SupportedEvents() []string

	// Parse turns the raw body and headers into a normalized event
	Parse(body []byte, headers http.Header) (*ParsedEvent, error)

	// Process applies the event's mutation for the given connector
	Process(ctx context.Context, conn *connector.Connector, event *ParsedEvent) error
}

// VerifierRegistry resolves the signature verifier for a provider
type VerifierRegistry interface {
	Verifier(provider connector.ProviderType) (Verifier, error)
}

// ProcessorRegistry resolves the event processor for a provider
type ProcessorRegistry interface {
	Processor(provider connector.ProviderType) (Processor, error)
}

// ---------------------------------------------------------------------------
// DeliveryOutcome
// ---------------------------------------------------------------------------

// DeliveryOutcome is what the gateway reports for one inbound delivery
type DeliveryOutcome struct {
	DeliveryID uuid.UUID      `json:"delivery_id"`
	Status     DeliveryStatus `json:"status"`
	// Duplicate is true when the event was already processed and the
	// mutation was not reapplied
	Duplicate bool `json:"duplicate,omitempty"`
	// NoOp is true when the event type is not recognized and was
	// recorded without a mutation
	NoOp    bool   `json:"no_op,omitempty"`
	Message string `json:"message,omitempty"`
}
