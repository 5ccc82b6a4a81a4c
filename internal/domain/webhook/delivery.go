package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/shared"
)

// DeliveryStatus is the final status of one webhook delivery attempt
type DeliveryStatus string

const (
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// IsValid returns true if the status is valid
func (s DeliveryStatus) IsValid() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

// Delivery is one record per inbound or outbound (test) webhook attempt.
// Rows are never deleted; retried deliveries from the provider create new
// rows with an incremented attempt count.
type Delivery struct {
	shared.BaseEntity
	ConnectorID     uuid.UUID
	TenantID        uuid.UUID
	EventType       string
	ExternalEventID string
	// Payload is a snapshot of the raw body as received or sent
	Payload string
	Status  DeliveryStatus
	// AttemptCount is how many deliveries have been seen for this event,
	// this row included
	AttemptCount int
	// ResponseStatus, ResponseBody and DurationMs describe the outbound
	// call when the delivery is a test/replay delivery. ResponseStatus 0
	// means the target was unreachable.
	ResponseStatus int
	ResponseBody   string
	DurationMs     int64
	ErrorMessage   string
	// Test marks synthetic deliveries sent to a tenant-configured URL
	Test          bool
	LastAttemptAt time.Time
}

// NewDelivery opens a delivery record for an inbound event
func NewDelivery(connectorID, tenantID uuid.UUID, eventType, externalEventID string, payload []byte) *Delivery {
	return &Delivery{
		BaseEntity:      shared.NewBaseEntity(),
		ConnectorID:     connectorID,
		TenantID:        tenantID,
		EventType:       eventType,
		ExternalEventID: externalEventID,
		Payload:         string(payload),
		AttemptCount:    1,
		LastAttemptAt:   time.Now(),
	}
}

// NewTestDelivery opens a delivery record for an outbound test delivery
func NewTestDelivery(connectorID, tenantID uuid.UUID, eventType, externalEventID string, payload []byte) *Delivery {
	d := NewDelivery(connectorID, tenantID, eventType, externalEventID, payload)
	d.Test = true
	return d
}

// MarkSuccess finalizes the delivery as successfully processed
func (d *Delivery) MarkSuccess() {
	d.Status = DeliveryStatusSuccess
	d.LastAttemptAt = time.Now()
	d.Touch()
}

// MarkFailed finalizes the delivery with an error message
func (d *Delivery) MarkFailed(message string) {
	d.Status = DeliveryStatusFailed
	d.ErrorMessage = message
	d.LastAttemptAt = time.Now()
	d.Touch()
}

// RecordResponse captures the outbound call outcome for test deliveries
func (d *Delivery) RecordResponse(status int, body string, duration time.Duration) {
	d.ResponseStatus = status
	d.ResponseBody = body
	d.DurationMs = duration.Milliseconds()
}

// DeliveryRepository is the persistence port for the delivery log
type DeliveryRepository interface {
	// Save persists a delivery record
	Save(ctx context.Context, d *Delivery) error

	// FindSuccessful returns the successfully processed delivery for a
	// (connector, external event id) pair, or ErrDeliveryNotFound. This
	// backs the at-most-once processing guarantee.
	FindSuccessful(ctx context.Context, connectorID uuid.UUID, externalEventID string) (*Delivery, error)

	// CountByEvent counts deliveries already recorded for an event id
	CountByEvent(ctx context.Context, connectorID uuid.UUID, externalEventID string) (int64, error)

	// FindByConnector lists deliveries for a connector, newest first
	FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]Delivery, int64, error)
}
