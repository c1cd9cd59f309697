package sampler

import (
	"sync/atomic"
	"time"
)

// BaseCollector provides the statistics every collector tracks. Embed it
// to get RecordEmit/RecordError and Stats for free.
type BaseCollector struct {
	name      string
	startTime time.Time

	emitted   atomic.Int64
	errors    atomic.Int64
	lastError atomic.Value // error
	lastEmit  atomic.Value // time.Time
}

// NewBaseCollector initializes the embedded statistics.
func NewBaseCollector(name string) BaseCollector {
	b := BaseCollector{name: name, startTime: time.Now()}
	b.lastEmit.Store(time.Time{})
	return b
}

// Name returns the collector name.
func (b *BaseCollector) Name() string { return b.name }

// RecordEmit counts emitted metrics.
func (b *BaseCollector) RecordEmit(n int) {
	b.emitted.Add(int64(n))
	b.lastEmit.Store(time.Now())
}

// RecordError counts collection errors.
func (b *BaseCollector) RecordError(err error) {
	b.errors.Add(1)
	if err != nil {
		b.lastError.Store(err)
	}
}

// CollectorStats is a snapshot of one collector's counters.
type CollectorStats struct {
	Name     string    `json:"name"`
	Emitted  int64     `json:"emitted"`
	Errors   int64     `json:"errors"`
	LastEmit time.Time `json:"last_emit"`
}

// Stats returns the collector counters.
func (b *BaseCollector) Stats() CollectorStats {
	lastEmit, _ := b.lastEmit.Load().(time.Time)
	return CollectorStats{
		Name:     b.name,
		Emitted:  b.emitted.Load(),
		Errors:   b.errors.Load(),
		LastEmit: lastEmit,
	}
}
