package shared

import (
	"context"
	"time"
)

// IdempotencyStore records processed external event IDs so that duplicate
// webhook deliveries are detected without hitting the durable delivery log.
type IdempotencyStore interface {
	// MarkProcessed marks an event as processed with a TTL.
	// Returns true if the event was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an event has already been processed
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Forget removes a previously marked event so that a provider retry
	// can be processed again after a failed attempt.
	Forget(ctx context.Context, eventID string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed event IDs. Providers retry
	// deliveries for at most a few days, so entries can expire after that.
	TTL time.Duration

	// Enabled determines whether the fast-path check is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}
