package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/infrastructure/persistence/models"
)

// GormConnectorRepository implements connector.Repository using GORM
type GormConnectorRepository struct {
	db *gorm.DB
}

// NewGormConnectorRepository creates a new GormConnectorRepository
func NewGormConnectorRepository(db *gorm.DB) *GormConnectorRepository {
	return &GormConnectorRepository{db: db}
}

// FindByID finds a connector by its ID
func (r *GormConnectorRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.Connector, error) {
	var model models.ConnectorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrConnectorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForTenant finds a connector by ID within a tenant
func (r *GormConnectorRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*connector.Connector, error) {
	var model models.ConnectorModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrConnectorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenantAndProvider finds the live connector for a (tenant, provider) pair
func (r *GormConnectorRepository) FindByTenantAndProvider(ctx context.Context, tenantID uuid.UUID, provider connector.ProviderType) (*connector.Connector, error) {
	var model models.ConnectorModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND deleted_at IS NULL", tenantID, provider).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrConnectorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists a tenant's live connectors
func (r *GormConnectorRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]connector.Connector, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ConnectorModel{}).
		Where("tenant_id = ? AND deleted_at IS NULL", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ConnectorModel
	query := r.db.WithContext(ctx).Model(&models.ConnectorModel{}).
		Where("tenant_id = ? AND deleted_at IS NULL", tenantID)
	if err := r.applyFilter(query, filter).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]connector.Connector, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

// FindEnabled lists all enabled, non-deleted connectors across tenants
func (r *GormConnectorRepository) FindEnabled(ctx context.Context) ([]connector.Connector, error) {
	var rows []models.ConnectorModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND deleted_at IS NULL", true).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]connector.Connector, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// Save creates or updates a connector. At most one live connector may
// exist per (tenant, provider) pair; a second create fails with
// ErrConnectorExists.
func (r *GormConnectorRepository) Save(ctx context.Context, c *connector.Connector) error {
	if !c.IsDeleted() {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ConnectorModel{}).
			Where("tenant_id = ? AND provider = ? AND deleted_at IS NULL AND id <> ?",
				c.TenantID, c.Provider, c.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return connector.ErrConnectorExists
		}
	}

	model := models.ConnectorModelFromDomain(c)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return connector.ErrConnectorExists
		}
		return err
	}
	return nil
}

// BeginSync atomically transitions the connector to syncing status. The
// conditional update is the advisory lock for the whole sync run: only
// one caller observes RowsAffected == 1.
func (r *GormConnectorRepository) BeginSync(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ConnectorModel{}).
		Where("id = ? AND status <> ? AND enabled = ? AND deleted_at IS NULL",
			id, connector.StatusSyncing, true).
		Updates(map[string]any{
			"status":     connector.StatusSyncing,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ResetStaleSyncing flips connectors stuck in syncing status whose last
// update predates the threshold back to error status
func (r *GormConnectorRepository) ResetStaleSyncing(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ConnectorModel{}).
		Where("status = ? AND updated_at < ?", connector.StatusSyncing, olderThan).
		Updates(map[string]any{
			"status":     connector.StatusError,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// applyFilter applies pagination and whitelisted ordering to the query
func (r *GormConnectorRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = query.Offset(filter.Offset()).Limit(filter.PageSize)

	orderBy := ValidateSortField(filter.OrderBy, ConnectorSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormConnectorRepository implements connector.Repository
var _ connector.Repository = (*GormConnectorRepository)(nil)
