package connector

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// CreateConnectorRequest represents a request to connect a provider
type CreateConnectorRequest struct {
	Provider            string `json:"provider" binding:"required"`
	APIKey              string `json:"api_key" binding:"required"`
	WebhookSecret       string `json:"webhook_secret"`
	AccountID           string `json:"account_id"`
	ShopDomain          string `json:"shop_domain"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
	OutboundURL         string `json:"outbound_url"`
}

// UpdateConnectorRequest represents a partial connector update. Nil fields
// are left unchanged; supplying any credential field replaces the whole
// credential blob after re-verification.
type UpdateConnectorRequest struct {
	APIKey              *string `json:"api_key"`
	WebhookSecret       *string `json:"webhook_secret"`
	AccountID           *string `json:"account_id"`
	ShopDomain          *string `json:"shop_domain"`
	SyncIntervalMinutes *int    `json:"sync_interval_minutes"`
	OutboundURL         *string `json:"outbound_url"`
}

func (r UpdateConnectorRequest) hasCredentials() bool {
	return r.APIKey != nil || r.WebhookSecret != nil || r.AccountID != nil || r.ShopDomain != nil
}

// ConnectorResponse represents a connector in API responses. Credential
// material is never echoed back.
type ConnectorResponse struct {
	ID                  uuid.UUID  `json:"id"`
	TenantID            uuid.UUID  `json:"tenant_id"`
	Provider            string     `json:"provider"`
	Status              string     `json:"status"`
	Enabled             bool       `json:"enabled"`
	AccountID           string     `json:"account_id,omitempty"`
	ShopDomain          string     `json:"shop_domain,omitempty"`
	HasWebhookSecret    bool       `json:"has_webhook_secret"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	OutboundURL         string     `json:"outbound_url,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ConnectorDetailResponse is a connector with its most recent sync run
type ConnectorDetailResponse struct {
	ConnectorResponse
	LastSync *SyncLogResponse `json:"last_sync,omitempty"`
}

// SyncLogResponse represents one sync run in API responses
type SyncLogResponse struct {
	ID               uuid.UUID                    `json:"id"`
	ConnectorID      uuid.UUID                    `json:"connector_id"`
	Status           string                       `json:"status"`
	Type             string                       `json:"type"`
	StartedAt        time.Time                    `json:"started_at"`
	CompletedAt      *time.Time                   `json:"completed_at,omitempty"`
	Processed        map[connector.EntityType]int `json:"processed"`
	RecordsProcessed int                          `json:"records_processed"`
	Errors           []connector.SyncError        `json:"errors,omitempty"`
}

// DeliveryResponse represents one webhook delivery in API responses
type DeliveryResponse struct {
	ID              uuid.UUID  `json:"id"`
	ConnectorID     uuid.UUID  `json:"connector_id"`
	EventType       string     `json:"event_type"`
	ExternalEventID string     `json:"external_event_id,omitempty"`
	Status          string     `json:"status"`
	AttemptCount    int        `json:"attempt_count"`
	ResponseStatus  int        `json:"response_status,omitempty"`
	DurationMs      int64      `json:"duration_ms,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Test            bool       `json:"test,omitempty"`
	LastAttemptAt   time.Time  `json:"last_attempt_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToConnectorResponse converts a domain Connector to ConnectorResponse
func ToConnectorResponse(c *connector.Connector) ConnectorResponse {
	return ConnectorResponse{
		ID:                  c.ID,
		TenantID:            c.TenantID,
		Provider:            string(c.Provider),
		Status:              string(c.Status),
		Enabled:             c.Enabled,
		AccountID:           c.Credentials.AccountID,
		ShopDomain:          c.Credentials.ShopDomain,
		HasWebhookSecret:    c.Credentials.WebhookSecret != "",
		SyncIntervalMinutes: c.Settings.SyncIntervalMinutes,
		OutboundURL:         c.Settings.OutboundURL,
		LastSyncAt:          c.LastSyncAt,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

// ToConnectorResponses converts a slice of connectors
func ToConnectorResponses(connectors []connector.Connector) []ConnectorResponse {
	responses := make([]ConnectorResponse, 0, len(connectors))
	for i := range connectors {
		responses = append(responses, ToConnectorResponse(&connectors[i]))
	}
	return responses
}

// ToSyncLogResponse converts a domain SyncLog to SyncLogResponse
func ToSyncLogResponse(l *connector.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:               l.ID,
		ConnectorID:      l.ConnectorID,
		Status:           string(l.Status),
		Type:             string(l.Type),
		StartedAt:        l.StartedAt,
		CompletedAt:      l.CompletedAt,
		Processed:        l.Processed,
		RecordsProcessed: l.TotalProcessed(),
		Errors:           l.Errors,
	}
}

// ToSyncLogResponses converts a slice of sync logs
func ToSyncLogResponses(logs []connector.SyncLog) []SyncLogResponse {
	responses := make([]SyncLogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, ToSyncLogResponse(&logs[i]))
	}
	return responses
}

// ToDeliveryResponse converts a domain Delivery to DeliveryResponse. The
// payload snapshot stays server-side.
func ToDeliveryResponse(d *webhook.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:              d.ID,
		ConnectorID:     d.ConnectorID,
		EventType:       d.EventType,
		ExternalEventID: d.ExternalEventID,
		Status:          string(d.Status),
		AttemptCount:    d.AttemptCount,
		ResponseStatus:  d.ResponseStatus,
		DurationMs:      d.DurationMs,
		ErrorMessage:    d.ErrorMessage,
		Test:            d.Test,
		LastAttemptAt:   d.LastAttemptAt,
		CreatedAt:       d.CreatedAt,
	}
}

// ToDeliveryResponses converts a slice of deliveries
func ToDeliveryResponses(deliveries []webhook.Delivery) []DeliveryResponse {
	responses := make([]DeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		responses = append(responses, ToDeliveryResponse(&deliveries[i]))
	}
	return responses
}
