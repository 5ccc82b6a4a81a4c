package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Event type constants for the Stripe events the processor applies
const (
	EventCustomerCreated     = "customer.created"
	EventCustomerUpdated     = "customer.updated"
	EventInvoicePaid         = "invoice.paid"
	EventInvoicePaymentFail  = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Processor maps Stripe webhook events to internal mutations. Entity
// shaped events go through the entity mapper; payment state changes
// are status-only updates against the already-synced record.
type Processor struct {
	mutator webhook.Mutator
	logger  *zap.Logger
}

// NewProcessor creates a Stripe event processor
func NewProcessor(mutator webhook.Mutator, logger *zap.Logger) *Processor {
	return &Processor{
		mutator: mutator,
		logger:  logger,
	}
}

var _ webhook.Processor = (*Processor)(nil)

// Provider returns the provider this processor handles
func (p *Processor) Provider() connector.ProviderType {
	return connector.ProviderStripe
}

// SupportedEvents returns the Stripe event types the processor applies
func (p *Processor) SupportedEvents() []string {
	return []string{
		EventCustomerCreated,
		EventCustomerUpdated,
		EventInvoicePaid,
		EventInvoicePaymentFail,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
	}
}

// stripeEvent is the envelope Stripe posts to webhook endpoints
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Parse turns a raw Stripe webhook body into a normalized event
func (p *Processor) Parse(body []byte, _ http.Header) (*webhook.ParsedEvent, error) {
	var evt stripeEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrParseFailed, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", webhook.ErrParseFailed)
	}

	parsed := &webhook.ParsedEvent{
		Provider:        connector.ProviderStripe,
		Type:            evt.Type,
		ExternalEventID: evt.ID,
		OccurredAt:      time.Unix(evt.Created, 0).UTC(),
	}

	var obj map[string]any
	if len(evt.Data.Object) > 0 {
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: event object: %v", webhook.ErrParseFailed, err)
		}
	}

	switch evt.Type {
	case EventCustomerCreated, EventCustomerUpdated:
		entity, err := objectEntity(connector.EntityTypeCustomers, evt.Data.Object, obj, parsed.OccurredAt)
		if err != nil {
			return nil, err
		}
		parsed.Entity = entity
	case EventSubscriptionUpdated:
		entity, err := objectEntity(connector.EntityTypeSubscriptions, evt.Data.Object, obj, parsed.OccurredAt)
		if err != nil {
			return nil, err
		}
		parsed.Entity = entity
	default:
		parsed.Data = obj
	}
	return parsed, nil
}

// Process applies the event's mutation for the given connector
func (p *Processor) Process(ctx context.Context, conn *connector.Connector, event *webhook.ParsedEvent) error {
	switch event.Type {
	case EventCustomerCreated, EventCustomerUpdated, EventSubscriptionUpdated:
		_, created, err := p.mutator.UpsertEntity(ctx, conn.TenantID, connector.ProviderStripe, event.Entity)
		if err != nil {
			return fmt.Errorf("stripe: failed to upsert %s %s: %w", event.Entity.Type, event.Entity.ExternalID, err)
		}
		p.logger.Debug("Applied Stripe entity event",
			zap.String("event_type", event.Type),
			zap.String("external_id", event.Entity.ExternalID),
			zap.Bool("created", created))
		return nil

	case EventInvoicePaid:
		return p.updateStatus(ctx, conn, event, connector.EntityTypeInvoices, "paid")
	case EventInvoicePaymentFail:
		return p.updateStatus(ctx, conn, event, connector.EntityTypeInvoices, "payment_failed")
	case EventSubscriptionDeleted:
		return p.updateStatus(ctx, conn, event, connector.EntityTypeSubscriptions, "canceled")

	default:
		return fmt.Errorf("%w: unsupported event type %s", webhook.ErrProcessingFailed, event.Type)
	}
}

func (p *Processor) updateStatus(ctx context.Context, conn *connector.Connector, event *webhook.ParsedEvent, entityType connector.EntityType, status string) error {
	externalID, _ := event.Data["id"].(string)
	if externalID == "" {
		return fmt.Errorf("%w: %s event without object id", webhook.ErrProcessingFailed, event.Type)
	}
	if err := p.mutator.UpdateRecordStatus(ctx, conn.TenantID, connector.ProviderStripe, entityType, externalID, status); err != nil {
		return fmt.Errorf("stripe: failed to update %s %s status: %w", entityType, externalID, err)
	}
	p.logger.Debug("Applied Stripe status event",
		zap.String("event_type", event.Type),
		zap.String("external_id", externalID),
		zap.String("status", status))
	return nil
}

// objectEntity builds an external entity from the event's embedded object.
// Unlike the list path the webhook object arrives as raw JSON, so fields
// are pulled from the decoded map.
func objectEntity(entityType connector.EntityType, raw json.RawMessage, obj map[string]any, occurredAt time.Time) (*connector.ExternalEntity, error) {
	id, _ := obj["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: event object without id", webhook.ErrParseFailed)
	}

	data := map[string]any{}
	switch entityType {
	case connector.EntityTypeCustomers:
		copyField(obj, data, "email")
		copyField(obj, data, "name")
		if cur, ok := obj["currency"].(string); ok && cur != "" {
			data["currency"] = strings.ToUpper(cur)
		}
	case connector.EntityTypeSubscriptions:
		copyField(obj, data, "status")
		if cur, ok := obj["currency"].(string); ok && cur != "" {
			data["currency"] = strings.ToUpper(cur)
		}
		if cust, ok := obj["customer"].(string); ok {
			data["customer_external_id"] = cust
		}
		if end, ok := obj["current_period_end"].(float64); ok {
			data["current_period_end"] = time.Unix(int64(end), 0).UTC().Format(time.RFC3339)
		}
	}

	return &connector.ExternalEntity{
		Type:       entityType,
		ExternalID: id,
		UpdatedAt:  occurredAt,
		Data:       data,
		Raw:        raw,
	}, nil
}

func copyField(src, dst map[string]any, key string) {
	if v, ok := src[key]; ok && v != nil {
		dst[key] = v
	}
}
