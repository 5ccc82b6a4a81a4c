package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Shopify webhook headers carrying the event metadata
const (
	topicHeader     = "X-Shopify-Topic"
	webhookIDHeader = "X-Shopify-Webhook-Id"
)

// Topic constants for the Shopify webhooks the processor applies
const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersUpdated   = "orders/updated"
	TopicOrdersCancelled = "orders/cancelled"
	TopicCustomersCreate = "customers/create"
	TopicCustomersUpdate = "customers/update"
	TopicProductsUpdate  = "products/update"
)

// Processor maps Shopify webhooks to internal mutations. Shopify posts
// the bare resource as the body and carries the topic and delivery id
// in headers.
type Processor struct {
	mutator webhook.Mutator
	logger  *zap.Logger
}

// NewProcessor creates a Shopify event processor
func NewProcessor(mutator webhook.Mutator, logger *zap.Logger) *Processor {
	return &Processor{
		mutator: mutator,
		logger:  logger,
	}
}

var _ webhook.Processor = (*Processor)(nil)

// Provider returns the provider this processor handles
func (p *Processor) Provider() connector.ProviderType {
	return connector.ProviderShopify
}

// SupportedEvents returns the Shopify topics the processor applies
func (p *Processor) SupportedEvents() []string {
	return []string{
		TopicOrdersCreate,
		TopicOrdersUpdated,
		TopicOrdersCancelled,
		TopicCustomersCreate,
		TopicCustomersUpdate,
		TopicProductsUpdate,
	}
}

// Parse turns a raw Shopify webhook into a normalized event
func (p *Processor) Parse(body []byte, headers http.Header) (*webhook.ParsedEvent, error) {
	topic := headers.Get(topicHeader)
	eventID := headers.Get(webhookIDHeader)
	if topic == "" || eventID == "" {
		return nil, fmt.Errorf("%w: missing topic or webhook id header", webhook.ErrParseFailed)
	}

	var item map[string]any
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrParseFailed, err)
	}

	parsed := &webhook.ParsedEvent{
		Provider:        connector.ProviderShopify,
		Type:            topic,
		ExternalEventID: eventID,
		OccurredAt:      itemUpdatedAt(item),
	}

	switch topic {
	case TopicOrdersCreate, TopicOrdersUpdated:
		entity, err := parseEntity(connector.EntityTypeOrders, item)
		if err != nil {
			return nil, err
		}
		parsed.Entity = entity
	case TopicCustomersCreate, TopicCustomersUpdate:
		entity, err := parseEntity(connector.EntityTypeCustomers, item)
		if err != nil {
			return nil, err
		}
		parsed.Entity = entity
	case TopicProductsUpdate:
		entity, err := parseEntity(connector.EntityTypeProducts, item)
		if err != nil {
			return nil, err
		}
		parsed.Entity = entity
	default:
		parsed.Data = item
	}
	return parsed, nil
}

// Process applies the event's mutation for the given connector
func (p *Processor) Process(ctx context.Context, conn *connector.Connector, event *webhook.ParsedEvent) error {
	switch event.Type {
	case TopicOrdersCreate, TopicOrdersUpdated, TopicCustomersCreate, TopicCustomersUpdate, TopicProductsUpdate:
		_, created, err := p.mutator.UpsertEntity(ctx, conn.TenantID, connector.ProviderShopify, event.Entity)
		if err != nil {
			return fmt.Errorf("shopify: failed to upsert %s %s: %w", event.Entity.Type, event.Entity.ExternalID, err)
		}
		p.logger.Debug("Applied Shopify entity event",
			zap.String("topic", event.Type),
			zap.String("external_id", event.Entity.ExternalID),
			zap.Bool("created", created))
		return nil

	case TopicOrdersCancelled:
		externalID := itemID(event.Data)
		if externalID == "" {
			return fmt.Errorf("%w: %s event without order id", webhook.ErrProcessingFailed, event.Type)
		}
		if err := p.mutator.UpdateRecordStatus(ctx, conn.TenantID, connector.ProviderShopify,
			connector.EntityTypeOrders, externalID, "cancelled"); err != nil {
			return fmt.Errorf("shopify: failed to cancel order %s: %w", externalID, err)
		}
		p.logger.Debug("Applied Shopify order cancellation",
			zap.String("external_id", externalID))
		return nil

	default:
		return fmt.Errorf("%w: unsupported topic %s", webhook.ErrProcessingFailed, event.Type)
	}
}

func parseEntity(entityType connector.EntityType, item map[string]any) (*connector.ExternalEntity, error) {
	entity, err := itemEntity(entityType, item)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrParseFailed, err)
	}
	return entity, nil
}
