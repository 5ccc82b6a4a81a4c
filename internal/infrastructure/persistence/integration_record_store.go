package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulseboard/backend/internal/domain/mapping"
	"github.com/pulseboard/backend/internal/infrastructure/persistence/models"
)

// GormIntegrationRecordStore implements mapping.RecordStore using GORM
type GormIntegrationRecordStore struct {
	db *gorm.DB
}

// NewGormIntegrationRecordStore creates a new GormIntegrationRecordStore
func NewGormIntegrationRecordStore(db *gorm.DB) *GormIntegrationRecordStore {
	return &GormIntegrationRecordStore{db: db}
}

// Upsert writes the record under its internal id. Applying the same
// record twice converges on the same row.
func (s *GormIntegrationRecordStore) Upsert(ctx context.Context, rec *mapping.Record) error {
	model := models.IntegrationRecordModelFromDomain(rec)
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "internal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"attributes", "amount_minor", "currency", "status",
				"external_updated_at", "updated_at",
			}),
		}).
		Create(model).Error
}

// Get reads a record back
func (s *GormIntegrationRecordStore) Get(ctx context.Context, tenantID, internalID uuid.UUID) (*mapping.Record, error) {
	var model models.IntegrationRecordModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND internal_id = ?", tenantID, internalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateStatus updates only the status field
func (s *GormIntegrationRecordStore) UpdateStatus(ctx context.Context, tenantID, internalID uuid.UUID, status string) error {
	result := s.db.WithContext(ctx).Model(&models.IntegrationRecordModel{}).
		Where("tenant_id = ? AND internal_id = ?", tenantID, internalID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapping.ErrRecordNotFound
	}
	return nil
}

// Ensure GormIntegrationRecordStore implements mapping.RecordStore
var _ mapping.RecordStore = (*GormIntegrationRecordStore)(nil)
