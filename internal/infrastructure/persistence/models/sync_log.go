package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
)

// SyncLogModel is the persistence model for the SyncLog domain entity.
type SyncLogModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primary_key"`
	ConnectorID   uuid.UUID               `gorm:"type:uuid;not null;index:idx_sync_logs_connector"`
	TenantID      uuid.UUID               `gorm:"type:uuid;not null;index:idx_sync_logs_tenant"`
	Status        connector.SyncLogStatus `gorm:"type:varchar(20);not null;index"`
	Type          connector.SyncType      `gorm:"type:varchar(20);not null"`
	StartedAt     time.Time               `gorm:"not null"`
	CompletedAt   *time.Time
	ProcessedJSON string    `gorm:"type:jsonb;column:processed"`
	ErrorsJSON    string    `gorm:"type:jsonb;column:errors"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog entity.
func (m *SyncLogModel) ToDomain() *connector.SyncLog {
	log := &connector.SyncLog{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ConnectorID: m.ConnectorID,
		TenantID:    m.TenantID,
		Status:      m.Status,
		Type:        m.Type,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Processed:   make(map[connector.EntityType]int),
	}

	if m.ProcessedJSON != "" {
		_ = json.Unmarshal([]byte(m.ProcessedJSON), &log.Processed)
	}
	if m.ErrorsJSON != "" {
		_ = json.Unmarshal([]byte(m.ErrorsJSON), &log.Errors)
	}
	return log
}

// FromDomain populates the persistence model from a domain SyncLog entity.
func (m *SyncLogModel) FromDomain(log *connector.SyncLog) {
	m.ID = log.ID
	m.ConnectorID = log.ConnectorID
	m.TenantID = log.TenantID
	m.Status = log.Status
	m.Type = log.Type
	m.StartedAt = log.StartedAt
	m.CompletedAt = log.CompletedAt
	m.CreatedAt = log.CreatedAt
	m.UpdatedAt = log.UpdatedAt

	if processed, err := json.Marshal(log.Processed); err == nil {
		m.ProcessedJSON = string(processed)
	}
	if len(log.Errors) > 0 {
		if errs, err := json.Marshal(log.Errors); err == nil {
			m.ErrorsJSON = string(errs)
		}
	} else {
		m.ErrorsJSON = "[]"
	}
}

// SyncLogModelFromDomain creates a new persistence model from a domain SyncLog entity.
func SyncLogModelFromDomain(log *connector.SyncLog) *SyncLogModel {
	m := &SyncLogModel{}
	m.FromDomain(log)
	return m
}
