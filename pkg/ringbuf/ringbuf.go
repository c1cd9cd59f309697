// Package ringbuf provides a bounded FIFO buffer with strict oldest-first
// eviction. It backs the metric, alert and result stores, whose capacity
// invariants require that overflow always drops the oldest entry.
package ringbuf

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned when a buffer is created with capacity <= 0.
var ErrInvalidCapacity = errors.New("ringbuf: capacity must be positive")

// Buffer is a fixed-capacity FIFO ring. Appending to a full buffer evicts
// the oldest entry. All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest entry
	size  int
}

// New creates a buffer holding at most capacity entries.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer[T]{items: make([]T, capacity)}, nil
}

// Append adds an item, evicting the oldest entry when full. It reports
// whether an eviction happened.
func (b *Buffer[T]) Append(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = item
		b.size++
		return false
	}
	// Full: overwrite the oldest slot and advance the head.
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Len returns the number of buffered entries.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the configured capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Snapshot returns a copy of the buffered entries, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last returns a copy of the newest n entries, oldest first. When fewer
// than n entries are buffered it returns all of them.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		n = b.size
	}
	out := make([]T, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+start+i)%len(b.items)]
	}
	return out
}

// Each calls fn for every buffered entry, oldest first, under the buffer
// lock. fn receives a pointer so callers can mutate entries in place
// (e.g. acknowledging an alert). Returning false stops the iteration.
func (b *Buffer[T]) Each(fn func(item *T) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < b.size; i++ {
		if !fn(&b.items[(b.head+i)%len(b.items)]) {
			return
		}
	}
}

// Clear drops all buffered entries.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.size = 0, 0
}
