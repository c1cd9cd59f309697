// Package thresholds classifies recorded metrics against a mutable table
// of per-metric warning/critical bands.
package thresholds

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Evaluator holds one threshold per metric name. Metrics whose name has
// no entry are never alerted on. The table is mutable at runtime through
// Set and Delete (driven by the admin API).
type Evaluator struct {
	logger *zap.Logger

	mu    sync.RWMutex
	table map[string]domain.Threshold

	classified atomic.Int64
	breached   atomic.Int64
}

// NewEvaluator creates an evaluator seeded with the given thresholds.
func NewEvaluator(logger *zap.Logger, seed []domain.Threshold) (*Evaluator, error) {
	e := &Evaluator{
		logger: logger,
		table:  make(map[string]domain.Threshold, len(seed)),
	}
	for i := range seed {
		if err := e.Set(seed[i]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Set registers or replaces the threshold for its metric name.
func (e *Evaluator) Set(t domain.Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Polarity == "" {
		t.Polarity = domain.HigherIsWorse
	}

	e.mu.Lock()
	e.table[t.MetricName] = t
	e.mu.Unlock()
	return nil
}

// Delete removes the threshold for a metric name and reports whether one
// existed.
func (e *Evaluator) Delete(metricName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.table[metricName]
	delete(e.table, metricName)
	return ok
}

// Get returns the threshold for a metric name.
func (e *Evaluator) Get(metricName string) (domain.Threshold, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.table[metricName]
	return t, ok
}

// List returns all thresholds sorted by metric name.
func (e *Evaluator) List() []domain.Threshold {
	e.mu.RLock()
	out := make([]domain.Threshold, 0, len(e.table))
	for _, t := range e.table {
		out = append(out, t)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MetricName < out[j].MetricName })
	return out
}

// Classify runs the metric through its threshold, if any, and returns an
// alert on breach. Each metric gets exactly one classification pass; a
// metric with no registered threshold returns nil.
func (e *Evaluator) Classify(m domain.Metric) *domain.Alert {
	e.mu.RLock()
	t, ok := e.table[m.Name]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	e.classified.Add(1)
	sev := t.Classify(m.Value)
	if sev == domain.SeverityInfo {
		return nil
	}

	e.breached.Add(1)
	msg := fmt.Sprintf("%s is %.2f%s, past the %s threshold of %.2f",
		m.Name, m.Value, m.Unit, sev, bound(t, sev))
	alert := domain.NewAlert(domain.AlertThresholdExceeded, sev, msg, m)

	e.logger.Debug("threshold breached",
		zap.String("metric", m.Name),
		zap.Float64("value", m.Value),
		zap.String("severity", string(sev)))
	return &alert
}

// Stats reports how many metrics were classified and how many breached.
func (e *Evaluator) Stats() (classified, breached int64) {
	return e.classified.Load(), e.breached.Load()
}

func bound(t domain.Threshold, sev domain.Severity) float64 {
	if sev == domain.SeverityCritical {
		return t.Critical
	}
	return t.Warning
}
