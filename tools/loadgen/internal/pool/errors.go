package pool

import "errors"

var (
	// ErrPoolClosed is returned for operations on a closed pool.
	ErrPoolClosed = errors.New("parameter pool is closed")

	// ErrValueNotFound is returned when a requested value is absent.
	ErrValueNotFound = errors.New("value not found in pool")

	// ErrInvalidSemanticType is returned for an empty or malformed semantic type.
	ErrInvalidSemanticType = errors.New("invalid semantic type")
)
