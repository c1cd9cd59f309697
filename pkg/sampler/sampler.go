// Package sampler normalizes every performance signal — runtime heap,
// process CPU, scheduler latency, audio engine state, network probes —
// into one metric schema and a single bounded buffer, so downstream
// evaluation never needs to know where a sample came from.
package sampler

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chordialapp/metronome/pkg/domain"
	"github.com/chordialapp/metronome/pkg/ringbuf"
)

// Collector is a passive metric source. A collector whose platform hook
// is unavailable stays registered but silently inactive: Poll skips it
// and no metric is ever emitted for it. That is degradation, not an
// error.
type Collector interface {
	Name() string
	Available() bool
	Collect(ctx context.Context) []domain.Metric
}

// Sampler records metrics into a bounded FIFO buffer and fans each one
// out to subscribers (threshold evaluation, prometheus export).
type Sampler struct {
	logger  *zap.Logger
	buffer  *ringbuf.Buffer[domain.Metric]
	limiter *rate.Limiter

	mu         sync.RWMutex
	collectors []Collector
	subs       []func(domain.Metric)

	recorded atomic.Int64
	dropped  atomic.Int64
}

// New creates a sampler with the given buffer capacity and record rate
// limit.
func New(logger *zap.Logger, maxMetrics int, perSecond float64, burst int) (*Sampler, error) {
	buffer, err := ringbuf.New[domain.Metric](maxMetrics)
	if err != nil {
		return nil, err
	}
	if perSecond <= 0 {
		perSecond = 200
	}
	if burst <= 0 {
		burst = int(perSecond) * 2
	}
	return &Sampler{
		logger:  logger,
		buffer:  buffer,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Register adds a passive collector. Unavailable collectors are kept but
// never polled.
func (s *Sampler) Register(c Collector) {
	s.mu.Lock()
	s.collectors = append(s.collectors, c)
	s.mu.Unlock()

	if !c.Available() {
		s.logger.Info("collector inactive, platform hook unavailable",
			zap.String("collector", c.Name()))
	}
}

// Subscribe registers a callback invoked synchronously for every
// recorded metric.
func (s *Sampler) Subscribe(fn func(domain.Metric)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Record appends a metric to the buffer and notifies subscribers. An
// invalid metric is rejected; a rate-limited one is silently dropped and
// counted.
func (s *Sampler) Record(m domain.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Severity == "" {
		m.Severity = domain.SeverityInfo
	}
	if !s.limiter.Allow() {
		s.dropped.Add(1)
		return nil
	}

	s.buffer.Append(m)
	s.recorded.Add(1)

	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(m)
	}
	return nil
}

// Poll runs every available collector once and records what it emits.
func (s *Sampler) Poll(ctx context.Context) {
	s.mu.RLock()
	collectors := s.collectors
	s.mu.RUnlock()

	for _, c := range collectors {
		if !c.Available() {
			continue
		}
		for _, m := range c.Collect(ctx) {
			if err := s.Record(m); err != nil {
				s.logger.Warn("collector emitted invalid metric",
					zap.String("collector", c.Name()),
					zap.Error(err))
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Recent returns the newest n metrics, oldest first.
func (s *Sampler) Recent(n int) []domain.Metric {
	return s.buffer.Last(n)
}

// Snapshot returns all buffered metrics, oldest first.
func (s *Sampler) Snapshot() []domain.Metric {
	return s.buffer.Snapshot()
}

// Latest returns the newest buffered metric with the given name.
func (s *Sampler) Latest(name string) (domain.Metric, bool) {
	metrics := s.buffer.Snapshot()
	for i := len(metrics) - 1; i >= 0; i-- {
		if metrics[i].Name == name {
			return metrics[i], true
		}
	}
	return domain.Metric{}, false
}

// Average returns the mean of the newest n samples with the given name.
func (s *Sampler) Average(name string, n int) (float64, bool) {
	metrics := s.buffer.Snapshot()
	var sum float64
	var count int
	for i := len(metrics) - 1; i >= 0 && count < n; i-- {
		if metrics[i].Name == name {
			sum += metrics[i].Value
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// Stats reports recorder counters.
func (s *Sampler) Stats() (recorded, dropped int64) {
	return s.recorded.Load(), s.dropped.Load()
}
