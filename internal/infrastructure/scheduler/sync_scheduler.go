package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/pulseboard/backend/internal/application/sync"
	"github.com/pulseboard/backend/internal/domain/connector"
)

// ---------------------------------------------------------------------------
// SyncEngine
// ---------------------------------------------------------------------------

// SyncEngine runs and reclaims sync runs. The application sync service
// implements it.
type SyncEngine interface {
	// RunSync executes one sync run for a connector
	RunSync(ctx context.Context, tenantID, connectorID uuid.UUID, syncType connector.SyncType) (*appsync.Result, error)

	// ReclaimStaleRuns recovers runs abandoned by a crashed process
	ReclaimStaleRuns(ctx context.Context) (int64, error)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// PollInterval is how often connectors are checked for due syncs
	PollInterval time.Duration

	// MaxConcurrentSyncs bounds how many scheduled syncs run at once
	// within this process
	MaxConcurrentSyncs int

	// StaleCheckInterval is how often abandoned runs are swept
	StaleCheckInterval time.Duration
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		PollInterval:       time.Minute,
		MaxConcurrentSyncs: 3,
		StaleCheckInterval: 5 * time.Minute,
	}
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler triggers incremental syncs for connectors whose configured
// interval has elapsed, and periodically sweeps runs abandoned by crashed
// processes. A connector already being synced (here or on another
// instance) is skipped and picked up on a later tick.
type SyncScheduler struct {
	config     SyncSchedulerConfig
	engine     SyncEngine
	connectors connector.Repository
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// sem bounds concurrent scheduled sync runs
	sem chan struct{}

	lastStaleSweep time.Time
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(
	config SyncSchedulerConfig,
	engine SyncEngine,
	connectors connector.Repository,
	logger *zap.Logger,
) *SyncScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncSchedulerConfig().PollInterval
	}
	if config.MaxConcurrentSyncs <= 0 {
		config.MaxConcurrentSyncs = DefaultSyncSchedulerConfig().MaxConcurrentSyncs
	}
	if config.StaleCheckInterval <= 0 {
		config.StaleCheckInterval = DefaultSyncSchedulerConfig().StaleCheckInterval
	}
	return &SyncScheduler{
		config:     config,
		engine:     engine,
		connectors: connectors,
		logger:     logger,
		sem:        make(chan struct{}, config.MaxConcurrentSyncs),
	}
}

// Start starts the scheduler loop
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("sync scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("max_concurrent_syncs", s.config.MaxConcurrentSyncs),
	)
	return nil
}

// Stop stops the scheduler and waits for in-flight syncs to finish
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop periodically checks connectors and sweeps stale runs
func (s *SyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Sweep first so connectors stuck from a previous process become
	// schedulable right away.
	s.sweepStaleRuns(ctx)
	s.checkAndTrigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(s.lastStaleSweep) >= s.config.StaleCheckInterval {
				s.sweepStaleRuns(ctx)
			}
			s.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger starts incremental syncs for all due connectors, bounded
// by the concurrency limit. Connectors that cannot get a slot are left
// for the next tick.
func (s *SyncScheduler) checkAndTrigger(ctx context.Context) {
	connectors, err := s.connectors.FindEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list enabled connectors", zap.Error(err))
		return
	}

	now := time.Now()
	for i := range connectors {
		conn := connectors[i]
		if !conn.DueForScheduledSync(now) {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Debug("sync slots exhausted, deferring connector",
				zap.String("connector_id", conn.ID.String()),
			)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.runScheduledSync(ctx, conn)
		}()
	}
}

func (s *SyncScheduler) runScheduledSync(ctx context.Context, conn connector.Connector) {
	s.logger.Info("scheduled sync triggered",
		zap.String("connector_id", conn.ID.String()),
		zap.String("tenant_id", conn.TenantID.String()),
		zap.String("provider", conn.Provider.String()),
	)

	result, err := s.engine.RunSync(ctx, conn.TenantID, conn.ID, connector.SyncTypeIncremental)
	switch {
	case errors.Is(err, connector.ErrSyncInProgress):
		// Lost the race to a manual trigger or another instance.
		s.logger.Debug("connector already syncing, skipped",
			zap.String("connector_id", conn.ID.String()),
		)
	case err != nil:
		s.logger.Error("scheduled sync failed to start",
			zap.String("connector_id", conn.ID.String()),
			zap.Error(err),
		)
	default:
		s.logger.Info("scheduled sync finished",
			zap.String("connector_id", conn.ID.String()),
			zap.String("sync_log_id", result.SyncLogID.String()),
			zap.Bool("success", result.Success),
			zap.Int("records_processed", result.RecordsProcessed),
		)
	}
}

func (s *SyncScheduler) sweepStaleRuns(ctx context.Context) {
	s.lastStaleSweep = time.Now()
	if _, err := s.engine.ReclaimStaleRuns(ctx); err != nil {
		s.logger.Error("stale run sweep failed", zap.Error(err))
	}
}
