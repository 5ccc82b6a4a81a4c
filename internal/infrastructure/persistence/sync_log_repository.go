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

// GormSyncLogRepository implements connector.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create opens a new sync log row
func (r *GormSyncLogRepository) Create(ctx context.Context, log *connector.SyncLog) error {
	model := models.SyncLogModelFromDomain(log)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update finalizes a sync log row
func (r *GormSyncLogRepository) Update(ctx context.Context, log *connector.SyncLog) error {
	model := models.SyncLogModelFromDomain(log)
	result := r.db.WithContext(ctx).Model(&models.SyncLogModel{}).
		Where("id = ?", log.ID).
		Updates(map[string]any{
			"status":       model.Status,
			"completed_at": model.CompletedAt,
			"processed":    model.ProcessedJSON,
			"errors":       model.ErrorsJSON,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return connector.ErrSyncLogNotFound
	}
	return nil
}

// FindByID finds a sync log by ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByConnector lists sync logs for a connector, newest first
func (r *GormSyncLogRepository) FindByConnector(ctx context.Context, connectorID uuid.UUID, filter shared.Filter) ([]connector.SyncLog, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.SyncLogModel{}).
		Where("connector_id = ?", connectorID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, SyncLogSortFields, "started_at")
	orderDir := "DESC"
	if filter.OrderDir != "" {
		orderDir = ValidateSortOrder(filter.OrderDir)
	}

	var rows []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order(orderBy+" "+orderDir).
		Offset(filter.Offset()).Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]connector.SyncLog, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

// FindLatestByConnector returns the most recent sync log for a connector
func (r *GormSyncLogRepository) FindLatestByConnector(ctx context.Context, connectorID uuid.UUID) (*connector.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ReclaimStale reclassifies running rows started before the threshold as
// failed. Runs abandoned by a process restart are recovered this way.
func (r *GormSyncLogRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SyncLogModel{}).
		Where("status = ? AND started_at < ?", connector.SyncLogStatusRunning, olderThan).
		Updates(map[string]any{
			"status":       connector.SyncLogStatusFailed,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormSyncLogRepository implements connector.SyncLogRepository
var _ connector.SyncLogRepository = (*GormSyncLogRepository)(nil)
