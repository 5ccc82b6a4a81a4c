package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Config / Result
// ---------------------------------------------------------------------------

// Config holds tunables for the sync engine
type Config struct {
	// WorkerCount is how many entity-type passes run concurrently within
	// one sync run
	WorkerCount int
	// PageSize is the page size requested from provider clients
	PageSize int
	// IncrementalOverlap is subtracted from the last sync timestamp when
	// computing the incremental window, absorbing clock skew between us
	// and the provider
	IncrementalOverlap time.Duration
	// StaleRunThreshold is the age after which a running sync is
	// considered abandoned
	StaleRunThreshold time.Duration
}

// DefaultConfig returns the default sync engine configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:        3,
		PageSize:           100,
		IncrementalOverlap: 5 * time.Minute,
		StaleRunThreshold:  30 * time.Minute,
	}
}

// Result summarizes one finished sync run
type Result struct {
	SyncLogID uuid.UUID                 `json:"sync_log_id"`
	SyncType  connector.SyncType        `json:"sync_type"`
	Success   bool                      `json:"success"`
	Processed map[connector.EntityType]int `json:"processed"`
	// RecordsProcessed is the sum of processed counts across entity types
	RecordsProcessed int                   `json:"records_processed"`
	Errors           []connector.SyncError `json:"errors,omitempty"`
	DurationMs       int64                 `json:"duration_ms"`
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service is the connector sync engine. One run lists every supported
// entity type from the provider and routes each entity through the
// entity mapper, recording the outcome in an append-only sync log.
type Service struct {
	connectors connector.Repository
	logs       connector.SyncLogRepository
	clients    connector.ClientRegistry
	mutator    webhook.Mutator
	config     Config
	logger     *zap.Logger
}

// NewService creates a new sync Service
func NewService(
	connectors connector.Repository,
	logs connector.SyncLogRepository,
	clients connector.ClientRegistry,
	mutator webhook.Mutator,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultConfig().PageSize
	}
	if config.IncrementalOverlap <= 0 {
		config.IncrementalOverlap = DefaultConfig().IncrementalOverlap
	}
	if config.StaleRunThreshold <= 0 {
		config.StaleRunThreshold = DefaultConfig().StaleRunThreshold
	}
	return &Service{
		connectors: connectors,
		logs:       logs,
		clients:    clients,
		mutator:    mutator,
		config:     config,
		logger:     logger,
	}
}

// RunSync executes one sync run for a connector. A second trigger while a
// run is in flight fails fast with ErrSyncInProgress. An incremental
// request against a connector that has never synced is promoted to a
// full run.
func (s *Service) RunSync(
	ctx context.Context,
	tenantID, connectorID uuid.UUID,
	syncType connector.SyncType,
) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "run_sync")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrConnectorID, connectorID.String(),
		telemetry.SpanAttrSyncType, string(syncType),
	)

	if !syncType.IsValid() {
		telemetry.RecordError(span, connector.ErrInvalidSyncType)
		return nil, connector.ErrInvalidSyncType
	}

	conn, err := s.connectors.FindByIDForTenant(ctx, tenantID, connectorID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := conn.CanSync(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrProvider, conn.Provider.String())

	client, err := s.clients.Client(conn.Provider)
	if err != nil {
		return nil, err
	}

	if syncType == connector.SyncTypeIncremental && conn.LastSyncAt == nil {
		syncType = connector.SyncTypeFull
	}

	acquired, err := s.connectors.BeginSync(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("sync: failed to acquire connector: %w", err)
	}
	if !acquired {
		return nil, connector.ErrSyncInProgress
	}

	log := connector.NewSyncLog(conn.ID, conn.TenantID, syncType)
	if err := s.logs.Create(ctx, log); err != nil {
		// Release the connector so the next trigger is not locked out.
		conn.MarkError()
		if saveErr := s.connectors.Save(ctx, conn); saveErr != nil {
			s.logger.Error("failed to release connector after sync log create failure",
				zap.String("connector_id", conn.ID.String()),
				zap.Error(saveErr),
			)
		}
		return nil, fmt.Errorf("sync: failed to open sync log: %w", err)
	}

	var updatedSince *time.Time
	if syncType == connector.SyncTypeIncremental {
		since := conn.LastSyncAt.Add(-s.config.IncrementalOverlap)
		updatedSince = &since
	}

	s.logger.Info("sync run started",
		zap.String("connector_id", conn.ID.String()),
		zap.String("tenant_id", conn.TenantID.String()),
		zap.String("provider", conn.Provider.String()),
		zap.String("sync_type", string(syncType)),
		zap.String("sync_log_id", log.ID.String()),
	)

	telemetry.SetAttribute(span, telemetry.SpanAttrSyncLogID, log.ID.String())

	var (
		processed map[connector.EntityType]int
		errs      []connector.SyncError
		fatal     *connector.SyncError
	)
	telemetry.WithProfilingLabels(ctx, telemetry.SyncOperationLabels(telemetry.OperationRunSync, conn.Provider.String()), func(c context.Context) {
		processed, errs, fatal = s.runPasses(c, conn, client, updatedSince)
	})

	if fatal != nil {
		telemetry.RecordError(span, fmt.Errorf("sync: %s", fatal.Message))
		if err := log.Abort(processed, errs, *fatal); err != nil {
			s.logger.Error("failed to abort sync log", zap.Error(err))
		}
		conn.MarkError()
	} else {
		if err := log.Finish(processed, errs); err != nil {
			s.logger.Error("failed to finish sync log", zap.Error(err))
		}
		// The window anchor is the run's start time, not its end, so
		// entities modified while the run was listing are re-covered.
		conn.FinishSync(log.Success(), log.StartedAt)
	}

	if err := s.logs.Update(ctx, log); err != nil {
		s.logger.Error("failed to finalize sync log",
			zap.String("sync_log_id", log.ID.String()),
			zap.Error(err),
		)
	}
	if err := s.connectors.Save(ctx, conn); err != nil {
		s.logger.Error("failed to save connector after sync",
			zap.String("connector_id", conn.ID.String()),
			zap.Error(err),
		)
	}

	result := &Result{
		SyncLogID:        log.ID,
		SyncType:         syncType,
		Success:          log.Success(),
		Processed:        log.Processed,
		RecordsProcessed: log.TotalProcessed(),
		Errors:           log.Errors,
		DurationMs:       time.Since(log.StartedAt).Milliseconds(),
	}

	s.logger.Info("sync run finished",
		zap.String("connector_id", conn.ID.String()),
		zap.String("sync_log_id", log.ID.String()),
		zap.Bool("success", result.Success),
		zap.Int("records_processed", result.RecordsProcessed),
		zap.Int("error_count", len(result.Errors)),
		zap.Int64("duration_ms", result.DurationMs),
	)
	if result.Success {
		telemetry.SetOK(span)
	}

	return result, nil
}

// runPasses fans the connector's supported entity types across a bounded
// worker pool. Counts and errors accumulate under one mutex; the first
// fatal error cancels the remaining passes.
func (s *Service) runPasses(
	ctx context.Context,
	conn *connector.Connector,
	client connector.Client,
	updatedSince *time.Time,
) (map[connector.EntityType]int, []connector.SyncError, *connector.SyncError) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entityTypes := client.SupportedEntities()
	jobs := make(chan connector.EntityType, len(entityTypes))
	for _, et := range entityTypes {
		jobs <- et
	}
	close(jobs)

	var (
		mu        gosync.Mutex
		processed = make(map[connector.EntityType]int, len(entityTypes))
		errs      []connector.SyncError
		fatal     *connector.SyncError
	)

	workers := s.config.WorkerCount
	if workers > len(entityTypes) {
		workers = len(entityTypes)
	}

	var wg gosync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entityType := range jobs {
				count, passErrs, passFatal := s.runEntityPass(ctx, conn, client, entityType, updatedSince)

				mu.Lock()
				processed[entityType] = count
				errs = append(errs, passErrs...)
				if passFatal != nil && fatal == nil {
					fatal = passFatal
					cancel()
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return processed, errs, fatal
}

// runEntityPass pages through one entity type. Entity-level mapping
// failures are recorded and skipped; a page-level provider failure ends
// the pass; an authentication failure is fatal for the whole run.
func (s *Service) runEntityPass(
	ctx context.Context,
	conn *connector.Connector,
	client connector.Client,
	entityType connector.EntityType,
	updatedSince *time.Time,
) (int, []connector.SyncError, *connector.SyncError) {
	var (
		count  int
		errs   []connector.SyncError
		cursor string
	)

	for {
		if ctx.Err() != nil {
			return count, errs, nil
		}

		page, err := client.ListEntities(ctx, &connector.ListRequest{
			TenantID:     conn.TenantID,
			Credentials:  conn.Credentials,
			EntityType:   entityType,
			UpdatedSince: updatedSince,
			Cursor:       cursor,
			PageSize:     s.config.PageSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				return count, errs, nil
			}
			syncErr := connector.SyncError{
				EntityType: entityType,
				Message:    err.Error(),
			}
			if connector.IsFatalProviderError(err) {
				return count, errs, &syncErr
			}
			s.logger.Warn("entity pass stopped on page failure",
				zap.String("connector_id", conn.ID.String()),
				zap.String("entity_type", string(entityType)),
				zap.String("cursor", cursor),
				zap.Error(err),
			)
			return count, append(errs, syncErr), nil
		}

		for i := range page.Entities {
			entity := &page.Entities[i]
			if _, _, err := s.mutator.UpsertEntity(ctx, conn.TenantID, conn.Provider, entity); err != nil {
				errs = append(errs, connector.SyncError{
					EntityType: entityType,
					ExternalID: entity.ExternalID,
					Message:    err.Error(),
				})
				continue
			}
			count++
		}

		if !page.HasMore {
			return count, errs, nil
		}
		cursor = page.NextCursor
	}
}

// ReclaimStaleRuns recovers connectors and sync logs abandoned by a
// crashed process: running logs older than the threshold become failed,
// and their connectors leave syncing status. Returns the number of sync
// logs reclaimed.
func (s *Service) ReclaimStaleRuns(ctx context.Context) (int64, error) {
	olderThan := time.Now().Add(-s.config.StaleRunThreshold)

	connectors, err := s.connectors.ResetStaleSyncing(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sync: failed to reset stale connectors: %w", err)
	}

	logs, err := s.logs.ReclaimStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sync: failed to reclaim stale sync logs: %w", err)
	}

	if connectors > 0 || logs > 0 {
		s.logger.Warn("reclaimed stale sync runs",
			zap.Int64("connectors_reset", connectors),
			zap.Int64("sync_logs_failed", logs),
		)
	}
	return logs, nil
}
