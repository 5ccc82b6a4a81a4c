package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// WebhookDeliveryModel is the persistence model for the Delivery domain
// entity. One row per inbound or outbound attempt; rows are append-only.
type WebhookDeliveryModel struct {
	ID              uuid.UUID              `gorm:"type:uuid;primary_key"`
	ConnectorID     uuid.UUID              `gorm:"type:uuid;not null;index:idx_webhook_deliveries_event,priority:1"`
	TenantID        uuid.UUID              `gorm:"type:uuid;not null;index:idx_webhook_deliveries_tenant"`
	EventType       string                 `gorm:"type:varchar(100);not null"`
	ExternalEventID string                 `gorm:"type:varchar(100);not null;index:idx_webhook_deliveries_event,priority:2"`
	Payload         string                 `gorm:"type:text"`
	Status          webhook.DeliveryStatus `gorm:"type:varchar(20);not null"`
	AttemptCount    int                    `gorm:"not null;default:1"`
	ResponseStatus  int
	ResponseBody    string `gorm:"type:text"`
	DurationMs      int64
	ErrorMessage    string    `gorm:"type:text"`
	Test            bool      `gorm:"not null;default:false"`
	LastAttemptAt   time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// ToDomain converts the persistence model to a domain Delivery entity.
func (m *WebhookDeliveryModel) ToDomain() *webhook.Delivery {
	return &webhook.Delivery{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ConnectorID:     m.ConnectorID,
		TenantID:        m.TenantID,
		EventType:       m.EventType,
		ExternalEventID: m.ExternalEventID,
		Payload:         m.Payload,
		Status:          m.Status,
		AttemptCount:    m.AttemptCount,
		ResponseStatus:  m.ResponseStatus,
		ResponseBody:    m.ResponseBody,
		DurationMs:      m.DurationMs,
		ErrorMessage:    m.ErrorMessage,
		Test:            m.Test,
		LastAttemptAt:   m.LastAttemptAt,
	}
}

// FromDomain populates the persistence model from a domain Delivery entity.
func (m *WebhookDeliveryModel) FromDomain(d *webhook.Delivery) {
	m.ID = d.ID
	m.ConnectorID = d.ConnectorID
	m.TenantID = d.TenantID
	m.EventType = d.EventType
	m.ExternalEventID = d.ExternalEventID
	m.Payload = d.Payload
	m.Status = d.Status
	m.AttemptCount = d.AttemptCount
	m.ResponseStatus = d.ResponseStatus
	m.ResponseBody = d.ResponseBody
	m.DurationMs = d.DurationMs
	m.ErrorMessage = d.ErrorMessage
	m.Test = d.Test
	m.LastAttemptAt = d.LastAttemptAt
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt
}

// WebhookDeliveryModelFromDomain creates a new persistence model from a domain Delivery entity.
func WebhookDeliveryModelFromDomain(d *webhook.Delivery) *WebhookDeliveryModel {
	m := &WebhookDeliveryModel{}
	m.FromDomain(d)
	return m
}
