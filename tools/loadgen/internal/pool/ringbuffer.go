package pool

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// RingBuffer is a thread-safe circular buffer of ParameterValues with
// FIFO, LRU or Random eviction once it reaches capacity.
type RingBuffer struct {
	mu       sync.RWMutex
	items    []*ParameterValue
	head     int // next write position
	tail     int // next read position for FIFO Get
	count    int
	capacity int

	evictionPolicy EvictionPolicy
	evictionCount  atomic.Int64

	accessOrder []int // LRU only, indices ordered oldest access first

	rng *rand.Rand
}

// NewRingBuffer creates a new RingBuffer with the given capacity and eviction policy.
func NewRingBuffer(capacity int, policy EvictionPolicy) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer{
		items:          make([]*ParameterValue, capacity),
		capacity:       capacity,
		evictionPolicy: policy,
		accessOrder:    make([]int, 0, capacity),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add adds a value to the buffer, evicting old values if necessary.
// Returns the number of values evicted.
func (rb *RingBuffer) Add(value *ParameterValue) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := 0
	if rb.count >= rb.capacity {
		evicted = rb.evictOne()
	}

	rb.items[rb.head] = value
	if rb.evictionPolicy == EvictionLRU {
		rb.accessOrder = append(rb.accessOrder, rb.head)
	}
	rb.head = (rb.head + 1) % rb.capacity
	rb.count++

	return evicted
}

// evictOne removes one value according to the eviction policy.
// Caller holds the lock.
func (rb *RingBuffer) evictOne() int {
	if rb.count == 0 {
		return 0
	}

	var evictIdx int
	switch rb.evictionPolicy {
	case EvictionFIFO:
		evictIdx = rb.tail
		rb.tail = (rb.tail + 1) % rb.capacity
	case EvictionLRU:
		if len(rb.accessOrder) > 0 {
			evictIdx = rb.accessOrder[0]
			rb.accessOrder = rb.accessOrder[1:]
			if evictIdx == rb.tail {
				rb.tail = (rb.tail + 1) % rb.capacity
			}
		} else {
			evictIdx = rb.tail
			rb.tail = (rb.tail + 1) % rb.capacity
		}
	case EvictionRandom:
		evictIdx = rb.findRandomOccupiedIndex()
		if evictIdx == rb.tail {
			rb.tail = (rb.tail + 1) % rb.capacity
		}
	}

	rb.items[evictIdx] = nil
	rb.count--
	rb.evictionCount.Add(1)

	return 1
}

// findRandomOccupiedIndex picks a random offset from the tail and scans
// forward to the first occupied slot. Caller holds the lock, count > 0.
func (rb *RingBuffer) findRandomOccupiedIndex() int {
	offset := rb.rng.Intn(rb.count)
	idx := (rb.tail + offset) % rb.capacity

	for i := 0; i < rb.capacity; i++ {
		checkIdx := (idx + i) % rb.capacity
		if rb.items[checkIdx] != nil {
			return checkIdx
		}
	}
	return rb.tail
}

// Get retrieves the next value in FIFO order without removing it.
// Returns nil if the buffer is empty.
func (rb *RingBuffer) Get() *ParameterValue {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return nil
	}
	return rb.scanFrom(rb.tail)
}

// GetRandom retrieves a random value from the buffer without removing it.
// Returns nil if the buffer is empty.
func (rb *RingBuffer) GetRandom() *ParameterValue {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return nil
	}
	return rb.scanFrom(rb.rng.Intn(rb.capacity))
}

// scanFrom returns the first occupied slot at or after start, touching it
// for TTL and LRU bookkeeping. Caller holds the lock.
func (rb *RingBuffer) scanFrom(start int) *ParameterValue {
	for i := 0; i < rb.capacity; i++ {
		idx := (start + i) % rb.capacity
		if rb.items[idx] != nil {
			value := rb.items[idx]
			value.Touch()
			rb.updateLRUAccess(idx)
			return value
		}
	}
	return nil
}

// updateLRUAccess moves the given index to the end of the access order.
// Caller holds the lock.
func (rb *RingBuffer) updateLRUAccess(idx int) {
	if rb.evictionPolicy != EvictionLRU {
		return
	}

	rb.dropAccessIndex(idx)
	rb.accessOrder = append(rb.accessOrder, idx)
}

// dropAccessIndex removes idx from the LRU access order if present.
func (rb *RingBuffer) dropAccessIndex(idx int) {
	for i, accessIdx := range rb.accessOrder {
		if accessIdx == idx {
			rb.accessOrder = append(rb.accessOrder[:i], rb.accessOrder[i+1:]...)
			return
		}
	}
}

// GetAll returns all non-nil values in the buffer.
func (rb *RingBuffer) GetAll() []*ParameterValue {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]*ParameterValue, 0, rb.count)
	for _, item := range rb.items {
		if item != nil {
			result = append(result, item)
		}
	}
	return result
}

// Count returns the number of values in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Capacity returns the maximum capacity of the buffer.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// EvictionCount returns the total number of values that have been evicted.
func (rb *RingBuffer) EvictionCount() int64 {
	return rb.evictionCount.Load()
}

// Remove removes a specific value from the buffer.
// Returns true if the value was found and removed.
func (rb *RingBuffer) Remove(value *ParameterValue) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i, item := range rb.items {
		if item == value {
			rb.items[i] = nil
			rb.count--
			if rb.evictionPolicy == EvictionLRU {
				rb.dropAccessIndex(i)
			}
			return true
		}
	}
	return false
}

// Clear removes all values from the buffer.
// Returns the number of values removed.
func (rb *RingBuffer) Clear() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	removed := rb.count
	for i := range rb.items {
		rb.items[i] = nil
	}
	rb.head = 0
	rb.tail = 0
	rb.count = 0
	rb.accessOrder = rb.accessOrder[:0]

	return removed
}

// RemoveExpired removes all expired values from the buffer.
// Returns the number of values removed.
func (rb *RingBuffer) RemoveExpired() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	removed := 0
	for i, item := range rb.items {
		if item != nil && item.IsExpired() {
			rb.items[i] = nil
			rb.count--
			removed++
			if rb.evictionPolicy == EvictionLRU {
				rb.dropAccessIndex(i)
			}
		}
	}
	return removed
}

// IsFull returns true if the buffer is at capacity.
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count >= rb.capacity
}

// IsEmpty returns true if the buffer has no values.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == 0
}
