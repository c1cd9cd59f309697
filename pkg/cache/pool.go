package cache

import (
	"sync/atomic"
)

// Pool is a bounded object pool. Get pops a pooled value or constructs a
// fresh one; Put returns a value, silently dropping it when the pool is
// at capacity. The channel is the capacity cap, the same shape the rest
// of the codebase uses for fixed-size resource pools.
type Pool[T any] struct {
	items chan T

	constructed atomic.Int64
	recycled    atomic.Int64
	dropped     atomic.Int64
}

// NewPool creates a pool capped at capacity items.
func NewPool[T any](capacity int) *Pool[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool[T]{items: make(chan T, capacity)}
}

// Get returns a pooled value when one is available, otherwise the result
// of factory.
func (p *Pool[T]) Get(factory func() T) T {
	select {
	case item := <-p.items:
		return item
	default:
		p.constructed.Add(1)
		return factory()
	}
}

// Put offers a value back to the pool. Past capacity the value is
// silently dropped; that is expected behavior, not an error.
func (p *Pool[T]) Put(item T) {
	select {
	case p.items <- item:
		p.recycled.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Drain empties the pool and returns how many values were discarded.
func (p *Pool[T]) Drain() int {
	n := 0
	for {
		select {
		case <-p.items:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of idle pooled values.
func (p *Pool[T]) Len() int {
	return len(p.items)
}

// Cap returns the pool capacity.
func (p *Pool[T]) Cap() int {
	return cap(p.items)
}

// PoolStats reports pool counters.
type PoolStats struct {
	Idle        int   `json:"idle"`
	Constructed int64 `json:"constructed"`
	Recycled    int64 `json:"recycled"`
	Dropped     int64 `json:"dropped"`
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Idle:        len(p.items),
		Constructed: p.constructed.Load(),
		Recycled:    p.recycled.Load(),
		Dropped:     p.dropped.Load(),
	}
}
