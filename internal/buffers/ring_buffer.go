// ring_buffer.go - Generic bounded ring buffer for rolling sample history.
// Fixed capacity, oldest entries evicted first. Thread-safe: all access
// guarded by RWMutex.
package buffers

import "sync"

// ============================================
// RingBuffer
// ============================================

// RingBuffer is a generic fixed-capacity circular buffer.
// Entries are evicted in FIFO order when capacity is reached.
type RingBuffer[T any] struct {
	mu sync.RWMutex

	entries  []T
	capacity int
	head     int // Index where next write goes once the buffer is full

	totalAdded int64 // Monotonic counter of all entries ever added
}

// NewRingBuffer creates a ring buffer holding at most capacity entries.
// A capacity below 1 is raised to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// WriteOne appends a single entry, evicting the oldest when full.
func (rb *RingBuffer[T]) WriteOne(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
	} else {
		rb.entries[rb.head] = entry
	}
	rb.head = (rb.head + 1) % rb.capacity
	rb.totalAdded++
}

// ReadAll returns all entries currently in the buffer, oldest first.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.orderedLocked()
}

// ReadLast returns the last n entries, oldest first.
func (rb *RingBuffer[T]) ReadLast(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.entries) == 0 || n <= 0 {
		return nil
	}
	all := rb.orderedLocked()
	if n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:]
}

// TrimToLast drops everything except the newest n entries.
func (rb *RingBuffer[T]) TrimToLast(n int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n < 0 {
		n = 0
	}
	all := rb.orderedLocked()
	if n >= len(all) {
		return
	}
	kept := make([]T, n, rb.capacity)
	copy(kept, all[len(all)-n:])
	rb.entries = kept
	rb.head = n % rb.capacity
}

// Len returns the number of entries currently in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity // Immutable, no lock needed
}

// TotalAdded returns the number of entries ever written.
func (rb *RingBuffer[T]) TotalAdded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.totalAdded
}

// Clear removes all entries from the buffer.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = make([]T, 0, rb.capacity)
	rb.head = 0
}

// orderedLocked copies entries oldest-first. Caller holds at least RLock.
func (rb *RingBuffer[T]) orderedLocked() []T {
	if len(rb.entries) == 0 {
		return nil
	}
	result := make([]T, len(rb.entries))
	if len(rb.entries) < rb.capacity {
		copy(result, rb.entries)
		return result
	}
	// Buffer full, head points to oldest entry
	n := copy(result, rb.entries[rb.head:])
	copy(result[n:], rb.entries[:rb.head])
	return result
}
