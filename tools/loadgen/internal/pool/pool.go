// Package pool stores parameter values harvested from API responses so
// later requests can reference identifiers the server actually issued.
package pool

import (
	"context"
	"time"
)

// EvictionPolicy defines how values are evicted when a type bucket is full.
type EvictionPolicy int

const (
	// EvictionFIFO evicts the oldest values first.
	EvictionFIFO EvictionPolicy = iota
	// EvictionLRU evicts the least recently used values first.
	EvictionLRU
	// EvictionRandom evicts values at random.
	EvictionRandom
)

func (e EvictionPolicy) String() string {
	switch e {
	case EvictionFIFO:
		return "FIFO"
	case EvictionLRU:
		return "LRU"
	case EvictionRandom:
		return "Random"
	default:
		return "Unknown"
	}
}

// ParseEvictionPolicy parses a string into an EvictionPolicy.
func ParseEvictionPolicy(s string) EvictionPolicy {
	switch s {
	case "LRU", "lru":
		return EvictionLRU
	case "Random", "random", "RANDOM":
		return EvictionRandom
	default:
		return EvictionFIFO
	}
}

// Stats represents statistics about a parameter pool.
type Stats struct {
	TotalValues   int64                  // values currently stored
	ValuesByType  map[SemanticType]int64 // count per semantic type
	HitCount      int64                  // Get calls that found a value
	MissCount     int64                  // Get calls that found nothing
	EvictionCount int64                  // values evicted to make room
	ExpiredCount  int64                  // values dropped after TTL
	AddCount      int64                  // values ever added
	Uptime        time.Duration
}

// HitRate returns the hit rate as a percentage (0-100).
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total) * 100
}

// ParameterPool stores and retrieves values keyed by semantic type.
type ParameterPool interface {
	// Add stores a value, returning how many values were evicted to make room.
	Add(ctx context.Context, value *ParameterValue) (evicted int, err error)

	// Get retrieves a value for the given semantic type, or nil if none exists.
	Get(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// GetRandom retrieves a random value for the given semantic type, or nil.
	GetRandom(ctx context.Context, semanticType SemanticType) (*ParameterValue, error)

	// GetAll retrieves every value stored for the given semantic type.
	GetAll(ctx context.Context, semanticType SemanticType) ([]*ParameterValue, error)

	// Count returns the number of values for the given semantic type.
	Count(ctx context.Context, semanticType SemanticType) (int, error)

	// Remove deletes a specific value, reporting whether it was present.
	Remove(ctx context.Context, value *ParameterValue) (bool, error)

	// Clear removes all values for the given semantic type and returns how many.
	Clear(ctx context.Context, semanticType SemanticType) (int, error)

	// ClearAll empties the pool.
	ClearAll(ctx context.Context) error

	// Cleanup removes expired values and returns how many were dropped.
	Cleanup(ctx context.Context) (int, error)

	// Stats returns statistics about the pool.
	Stats(ctx context.Context) (Stats, error)

	// Types returns all semantic types that currently hold values.
	Types(ctx context.Context) ([]SemanticType, error)

	// Close releases resources held by the pool.
	Close() error
}

// PoolConfig holds configuration options for parameter pools.
type PoolConfig struct {
	// DefaultTTL is the value time-to-live, 0 means no expiration.
	DefaultTTL time.Duration

	// MaxValuesPerType caps values per semantic type, 0 means unlimited.
	MaxValuesPerType int

	// EvictionPolicy picks which values go when a bucket is full.
	EvictionPolicy EvictionPolicy

	// CleanupInterval is how often expired values are swept, 0 disables it.
	CleanupInterval time.Duration

	// ShardCount is the shard count for ShardedParameterPool, a power of 2.
	ShardCount int
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		DefaultTTL:       5 * time.Minute,
		MaxValuesPerType: 1000,
		EvictionPolicy:   EvictionFIFO,
		CleanupInterval:  1 * time.Minute,
		ShardCount:       16,
	}
}
