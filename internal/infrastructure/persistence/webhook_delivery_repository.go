package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/persistence/models"
)

// GormWebhookDeliveryRepository implements webhook.DeliveryRepository using GORM
type GormWebhookDeliveryRepository struct {
	db *gorm.DB
}

// NewGormWebhookDeliveryRepository creates a new GormWebhookDeliveryRepository
func NewGormWebhookDeliveryRepository(db *gorm.DB) *GormWebhookDeliveryRepository {
	return &GormWebhookDeliveryRepository{db: db}
}

// Save persists a delivery record
func (r *GormWebhookDeliveryRepository) Save(ctx context.Context, d *webhook.Delivery) error {
	model := models.WebhookDeliveryModelFromDomain(d)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindSuccessful returns the successfully processed delivery for a
// (connector, external event id) pair
func (r *GormWebhookDeliveryRepository) FindSuccessful(ctx context.Context, connectorID uuid.UUID, externalEventID string) (*webhook.Delivery, error) {
	var model models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Where("connector_id = ? AND external_event_id = ? AND status = ?",
			connectorID, externalEventID, webhook.DeliveryStatusSuccess).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrDeliveryNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CountByEvent counts deliveries already recorded for an event id
func (r *GormWebhookDeliveryRepository) CountByEvent(ctx context.Context, connectorID uuid.UUID, externalEventID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.WebhookDeliveryModel{}).
		Where("connector_id = ? AND external_event_id = ?", connectorID, externalEventID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindByConnector lists deliveries for a connector, newest first
func (r *GormWebhookDeliveryRepository) FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]webhook.Delivery, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.WebhookDeliveryModel{}).
		Where("connector_id = ?", connectorID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, WebhookDeliverySortFields, "last_attempt_at")
	orderDir := "DESC"
	if filter.OrderDir != "" {
		orderDir = ValidateSortOrder(filter.OrderDir)
	}

	var rows []models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order(orderBy+" "+orderDir).
		Offset(filter.Offset()).Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]webhook.Delivery, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

// Ensure GormWebhookDeliveryRepository implements webhook.DeliveryRepository
var _ webhook.DeliveryRepository = (*GormWebhookDeliveryRepository)(nil)
