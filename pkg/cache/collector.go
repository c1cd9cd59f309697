package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Collector surfaces cache occupancy as metrics so optimization rules
// can condition on cache pressure (e.g. cache_bytes_images).
type Collector struct {
	store *Store
}

// NewCollector wraps a store for sampling.
func NewCollector(store *Store) *Collector {
	return &Collector{store: store}
}

// Name identifies the collector.
func (c *Collector) Name() string { return "cache" }

// Available always holds; the caches are in-process.
func (c *Collector) Available() bool { return true }

// Collect emits entry counts and byte footprints per namespace.
func (c *Collector) Collect(ctx context.Context) []domain.Metric {
	now := time.Now()
	metrics := make([]domain.Metric, 0, len(Namespaces())*2)
	for _, ns := range Namespaces() {
		stats := c.store.Stats(ns)
		metrics = append(metrics,
			domain.Metric{
				Name:      fmt.Sprintf("cache_entries_%s", ns),
				Value:     float64(stats.Entries),
				Unit:      domain.UnitCount,
				Timestamp: now,
				Category:  domain.CategorySystem,
				Severity:  domain.SeverityInfo,
			},
			domain.Metric{
				Name:      fmt.Sprintf("cache_bytes_%s", ns),
				Value:     float64(stats.Bytes),
				Unit:      domain.UnitBytes,
				Timestamp: now,
				Category:  domain.CategoryMemory,
				Severity:  domain.SeverityInfo,
			},
		)
	}
	return metrics
}
