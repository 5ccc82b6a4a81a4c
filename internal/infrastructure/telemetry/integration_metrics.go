// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// IntegrationMetrics provides metrics for the integration layer. It tracks
// sync run activity, mapped record throughput and webhook delivery outcomes.
type IntegrationMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	syncRunsTotal         *Counter
	syncRecordsTotal      *Counter
	syncErrorsTotal       *Counter
	webhookDeliveredTotal *Counter
	testDeliveriesTotal   *Counter

	// Distributions
	syncDuration    *Histogram
	webhookDuration *Histogram
}

// IntegrationMetricsConfig holds configuration for integration metrics.
type IntegrationMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewIntegrationMetrics creates a new IntegrationMetrics instance.
func NewIntegrationMetrics(cfg IntegrationMetricsConfig) (*IntegrationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	im := &IntegrationMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error

	im.syncRunsTotal, err = NewCounter(
		cfg.Meter,
		"pulseboard_sync_runs_total",
		"Total number of finished sync runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	im.syncRecordsTotal, err = NewCounter(
		cfg.Meter,
		"pulseboard_sync_records_total",
		"Total number of records processed by sync runs",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	im.syncErrorsTotal, err = NewCounter(
		cfg.Meter,
		"pulseboard_sync_errors_total",
		"Total number of entity-level sync errors",
		"{errors}",
	)
	if err != nil {
		return nil, err
	}

	im.webhookDeliveredTotal, err = NewCounter(
		cfg.Meter,
		"pulseboard_webhook_deliveries_total",
		"Total number of inbound webhook deliveries",
		"{deliveries}",
	)
	if err != nil {
		return nil, err
	}

	im.testDeliveriesTotal, err = NewCounter(
		cfg.Meter,
		"pulseboard_test_deliveries_total",
		"Total number of outbound test deliveries",
		"{deliveries}",
	)
	if err != nil {
		return nil, err
	}

	im.syncDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "pulseboard_sync_duration_seconds",
		Description: "Duration of sync runs",
		Unit:        "s",
		Boundaries:  []float64{1, 5, 15, 60, 300, 900, 1800},
	})
	if err != nil {
		return nil, err
	}

	im.webhookDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "pulseboard_webhook_duration_seconds",
		Description: "Time spent handling one inbound webhook delivery",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	if err != nil {
		return nil, err
	}

	return im, nil
}

// =============================================================================
// Sync Metrics
// =============================================================================

// SyncStatus represents the outcome of a sync run for metrics labeling.
type SyncStatus string

const (
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// RecordSyncRun records one finished sync run with its duration.
func (im *IntegrationMetrics) RecordSyncRun(ctx context.Context, tenantID uuid.UUID, provider, syncType string, status SyncStatus, duration time.Duration) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrProvider.String(provider),
		AttrSyncType.String(syncType),
		AttrSyncStatus.String(string(status)),
	}
	im.syncRunsTotal.Inc(ctx, attrs...)
	im.syncDuration.RecordDuration(ctx, duration,
		AttrProvider.String(provider),
		AttrSyncType.String(syncType),
	)
}

// RecordSyncedRecords records records processed for one entity type.
func (im *IntegrationMetrics) RecordSyncedRecords(ctx context.Context, tenantID uuid.UUID, provider, entityType string, count int64) {
	if count == 0 {
		return
	}
	im.syncRecordsTotal.Add(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrProvider.String(provider),
		AttrEntityType.String(entityType),
	)
}

// RecordSyncErrors records entity-level errors from one sync run.
func (im *IntegrationMetrics) RecordSyncErrors(ctx context.Context, tenantID uuid.UUID, provider string, count int64) {
	if count == 0 {
		return
	}
	im.syncErrorsTotal.Add(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrProvider.String(provider),
	)
}

// =============================================================================
// Webhook Metrics
// =============================================================================

// WebhookOutcome represents the outcome of an inbound delivery for labeling.
type WebhookOutcome string

const (
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	WebhookOutcomeNoOp      WebhookOutcome = "no_op"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
	WebhookOutcomeRejected  WebhookOutcome = "rejected"
)

// RecordWebhookDelivery records one inbound delivery with its handling time.
func (im *IntegrationMetrics) RecordWebhookDelivery(ctx context.Context, provider, eventType string, outcome WebhookOutcome, duration time.Duration) {
	im.webhookDeliveredTotal.Inc(ctx,
		AttrProvider.String(provider),
		AttrEventType.String(eventType),
		AttrWebhookOutcome.String(string(outcome)),
	)
	im.webhookDuration.RecordDuration(ctx, duration,
		AttrProvider.String(provider),
		AttrWebhookOutcome.String(string(outcome)),
	)
}

// RecordTestDelivery records one outbound test delivery.
func (im *IntegrationMetrics) RecordTestDelivery(ctx context.Context, tenantID uuid.UUID, provider string, success bool) {
	status := "failed"
	if success {
		status = "success"
	}
	im.testDeliveriesTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrProvider.String(provider),
		attribute.Key("status").String(status),
	)
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewIntegrationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// =============================================================================
// Attribute Key Constants
// =============================================================================

// Integration metrics attribute keys not already defined in metrics.go
var (
	AttrProvider       = attribute.Key("provider")
	AttrSyncType       = attribute.Key("sync_type")
	AttrSyncStatus     = attribute.Key("sync_status")
	AttrEntityType     = attribute.Key("entity_type")
	AttrEventType      = attribute.Key("event_type")
	AttrWebhookOutcome = attribute.Key("webhook_outcome")
)
