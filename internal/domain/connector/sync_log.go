package connector

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// EntityType
// ---------------------------------------------------------------------------

// EntityType names one kind of external entity a provider exposes
type EntityType string

const (
	EntityTypeCustomers     EntityType = "customers"
	EntityTypeInvoices      EntityType = "invoices"
	EntityTypeSubscriptions EntityType = "subscriptions"
	EntityTypeOrders        EntityType = "orders"
	EntityTypeProducts      EntityType = "products"
)

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// SyncType / SyncLogStatus
// ---------------------------------------------------------------------------

// SyncType distinguishes full re-lists from incremental windows
type SyncType string

const (
	// SyncTypeFull re-lists all entities of each supported type
	SyncTypeFull SyncType = "full"
	// SyncTypeIncremental lists entities changed since the last sync
	SyncTypeIncremental SyncType = "incremental"
)

// IsValid returns true if the sync type is valid
func (t SyncType) IsValid() bool {
	return t == SyncTypeFull || t == SyncTypeIncremental
}

// SyncLogStatus is the lifecycle status of one sync attempt
type SyncLogStatus string

const (
	SyncLogStatusRunning   SyncLogStatus = "running"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

// IsValid returns true if the status is valid
func (s SyncLogStatus) IsValid() bool {
	switch s {
	case SyncLogStatusRunning, SyncLogStatusCompleted, SyncLogStatusFailed:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the status is terminal
func (s SyncLogStatus) IsFinal() bool {
	return s == SyncLogStatusCompleted || s == SyncLogStatusFailed
}

// ---------------------------------------------------------------------------
// SyncLog
// ---------------------------------------------------------------------------

// SyncError is one structured entity-level or page-level error recorded
// during a sync run. Raw provider error bodies never appear here.
type SyncError struct {
	EntityType EntityType `json:"entity_type"`
	ExternalID string     `json:"external_id,omitempty"`
	Message    string     `json:"message"`
}

// SyncLog is the append-only audit record of one sync attempt. It is
// created when the run starts, finalized exactly once, and never deleted.
type SyncLog struct {
	shared.BaseEntity
	ConnectorID uuid.UUID
	TenantID    uuid.UUID
	Status      SyncLogStatus
	Type        SyncType
	StartedAt   time.Time
	CompletedAt *time.Time
	// Processed maps entity type to the number of successfully upserted
	// entities for that type
	Processed map[EntityType]int
	Errors    []SyncError
}

// NewSyncLog opens a sync log in running state
func NewSyncLog(connectorID, tenantID uuid.UUID, syncType SyncType) *SyncLog {
	return &SyncLog{
		BaseEntity:  shared.NewBaseEntity(),
		ConnectorID: connectorID,
		TenantID:    tenantID,
		Status:      SyncLogStatusRunning,
		Type:        syncType,
		StartedAt:   time.Now(),
		Processed:   make(map[EntityType]int),
		Errors:      make([]SyncError, 0),
	}
}

// Finish finalizes the log for a run that reached the end of all entity
// type passes. A run with any recorded errors is failed; only a clean
// run completes.
func (l *SyncLog) Finish(processed map[EntityType]int, errs []SyncError) error {
	if l.Status.IsFinal() {
		return ErrSyncAlreadyFinalized
	}
	now := time.Now()
	l.Processed = processed
	l.Errors = errs
	if len(errs) == 0 {
		l.Status = SyncLogStatusCompleted
	} else {
		l.Status = SyncLogStatusFailed
	}
	l.CompletedAt = &now
	l.Touch()
	return nil
}

// Abort finalizes the log after a fatal error that cut the run short.
// Counts accumulated before the abort are preserved.
func (l *SyncLog) Abort(processed map[EntityType]int, errs []SyncError, fatal SyncError) error {
	if l.Status.IsFinal() {
		return ErrSyncAlreadyFinalized
	}
	now := time.Now()
	l.Processed = processed
	l.Errors = append(errs, fatal)
	l.Status = SyncLogStatusFailed
	l.CompletedAt = &now
	l.Touch()
	return nil
}

// Success reports whether the run finished without any recorded errors
func (l *SyncLog) Success() bool {
	return l.Status == SyncLogStatusCompleted && len(l.Errors) == 0
}

// TotalProcessed sums processed counts across entity types
func (l *SyncLog) TotalProcessed() int {
	total := 0
	for _, n := range l.Processed {
		total += n
	}
	return total
}
