// GORM query tracing: the otelgorm plugin plus timing callbacks that
// flag slow statements and record errors on the active span.
package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled          bool          // Enable database tracing
	LogFullSQL       bool          // Include full SQL statements in spans (dev only, security risk in prod)
	SlowQueryThresh  time.Duration // Threshold for marking queries as slow (default: 200ms)
	DBSystem         string        // Database system name (default: "postgresql")
	WithoutVariables bool          // Exclude query variables from SQL statement (for security)
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:          false,
		LogFullSQL:       false,
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}
}

// DBTracingPlugin wraps the otelgorm plugin with slow query detection.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin with the given configuration.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

// RegisterOtelGorm registers the otelgorm plugin with the given GORM DB
// instance, along with the timing callbacks that detect slow queries
// and mark span errors.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		// Keep query parameters out of spans
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := registerTimingCallbacks(db, "otel_timing", markQueryStart); err != nil {
		return err
	}
	if err := registerAfterCallbacks(db, "otel_slow_query", p.slowQueryCallback); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)

	return nil
}

// slowQueryCallback runs after each database operation.
func (p *DBTracingPlugin) slowQueryCallback(db *gorm.DB) {
	if db.Statement.Context == nil {
		return
	}
	annotateSpan(db, p.config.SlowQueryThresh)
}

// registerTimingCallbacks installs fn before every gorm operation.
func registerTimingCallbacks(db *gorm.DB, prefix string, fn func(*gorm.DB)) error {
	type entry struct {
		register func(string, func(*gorm.DB)) error
		op       string
	}
	cb := db.Callback()
	entries := []entry{
		{cb.Create().Before("gorm:create").Register, "create"},
		{cb.Query().Before("gorm:query").Register, "query"},
		{cb.Update().Before("gorm:update").Register, "update"},
		{cb.Delete().Before("gorm:delete").Register, "delete"},
		{cb.Row().Before("gorm:row").Register, "row"},
		{cb.Raw().Before("gorm:raw").Register, "raw"},
	}
	for _, e := range entries {
		if err := e.register(prefix+":before_"+e.op, fn); err != nil {
			return err
		}
	}
	return nil
}

// registerAfterCallbacks installs fn after every gorm operation.
func registerAfterCallbacks(db *gorm.DB, prefix string, fn func(*gorm.DB)) error {
	type entry struct {
		register func(string, func(*gorm.DB)) error
		op       string
	}
	cb := db.Callback()
	entries := []entry{
		{cb.Create().After("gorm:create").Register, "create"},
		{cb.Query().After("gorm:query").Register, "query"},
		{cb.Update().After("gorm:update").Register, "update"},
		{cb.Delete().After("gorm:delete").Register, "delete"},
		{cb.Row().After("gorm:row").Register, "row"},
		{cb.Raw().After("gorm:raw").Register, "raw"},
	}
	for _, e := range entries {
		if err := e.register(prefix+":"+e.op, fn); err != nil {
			return err
		}
	}
	return nil
}

// markQueryStart stamps the statement context with the query start time.
func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

// annotateSpan adds result attributes, error status and the slow-query
// event to the span recorded on the statement context.
func annotateSpan(db *gorm.DB, slowThresh time.Duration) {
	ctx := db.Statement.Context
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// ErrRecordNotFound is an expected outcome, not a span error
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed := time.Since(startTime)
		if elapsed > slowThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", slowThresh.Milliseconds()),
			))
		}
	}
}

// queryStartTimeKey is the context key for storing query start time.
type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// WithQueryStartTime returns a context with the query start time set.
// The slow query callback reads it to compute elapsed time.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStartTimeKey, time.Now())
}

// DBTracingCallback provides the timing/annotation callbacks as a
// standalone pair for callers that manage the otelgorm plugin
// themselves.
type DBTracingCallback struct {
	slowQueryThresh time.Duration
}

// NewDBTracingCallback creates a new callback for tracking query timing.
func NewDBTracingCallback(slowQueryThresh time.Duration) *DBTracingCallback {
	return &DBTracingCallback{
		slowQueryThresh: slowQueryThresh,
	}
}

// BeforeCallback sets the query start time in context.
func (c *DBTracingCallback) BeforeCallback(db *gorm.DB) {
	markQueryStart(db)
}

// AfterCallback checks for slow queries and adds attributes to the span.
func (c *DBTracingCallback) AfterCallback(db *gorm.DB) {
	if db.Statement.Context == nil {
		return
	}
	annotateSpan(db, c.slowQueryThresh)
}

// RegisterCallbacks registers the before and after callbacks on the GORM DB instance.
func (c *DBTracingCallback) RegisterCallbacks(db *gorm.DB) error {
	if err := registerTimingCallbacks(db, "otel_timing", c.BeforeCallback); err != nil {
		return err
	}
	return registerAfterCallbacks(db, "otel_timing:after", c.AfterCallback)
}
