package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/pulseboard/backend/internal/domain/mapping"
	"github.com/pulseboard/backend/internal/infrastructure/persistence/models"
)

// uniqueViolation is the Postgres error code for duplicate key violations
const uniqueViolation = "23505"

// GormIdentityMappingRepository implements mapping.Repository using GORM
type GormIdentityMappingRepository struct {
	db *gorm.DB
}

// NewGormIdentityMappingRepository creates a new GormIdentityMappingRepository
func NewGormIdentityMappingRepository(db *gorm.DB) *GormIdentityMappingRepository {
	return &GormIdentityMappingRepository{db: db}
}

// Find looks up the mapping for an external reference
func (r *GormIdentityMappingRepository) Find(ctx context.Context, tenantID uuid.UUID, ref mapping.ExternalRef) (*mapping.IdentityMapping, error) {
	var model models.IdentityMappingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND entity_type = ? AND external_id = ?",
			tenantID, ref.Provider, ref.EntityType, ref.ExternalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new mapping. The unique index on the external
// reference decides races between concurrent first observations; the
// loser gets ErrMappingConflict and falls back to the surviving row.
func (r *GormIdentityMappingRepository) Create(ctx context.Context, im *mapping.IdentityMapping) error {
	model := models.IdentityMappingModelFromDomain(im)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return mapping.ErrMappingConflict
		}
		return err
	}
	return nil
}

// Remap updates the internal id a reference resolves to
func (r *GormIdentityMappingRepository) Remap(ctx context.Context, tenantID uuid.UUID, ref mapping.ExternalRef, internalID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.IdentityMappingModel{}).
		Where("tenant_id = ? AND provider = ? AND entity_type = ? AND external_id = ?",
			tenantID, ref.Provider, ref.EntityType, ref.ExternalID).
		Updates(map[string]any{
			"internal_id": internalID,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mapping.ErrMappingNotFound
	}
	return nil
}

// isUniqueViolation recognizes duplicate key errors from both the GORM
// error translator and the raw pq driver
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Ensure GormIdentityMappingRepository implements mapping.Repository
var _ mapping.Repository = (*GormIdentityMappingRepository)(nil)
