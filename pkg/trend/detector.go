// Package trend watches heap snapshots for sustained growth that looks
// like a leak.
package trend

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Snapshot is one heap observation.
type Snapshot struct {
	Timestamp time.Time
	HeapBytes int64
}

// Detector keeps a rolling window of heap snapshots and flags a suspected
// leak when the window is non-decreasing and the average step growth
// exceeds GrowthBytes. Alerts are coalesced: once a leak alert fires, the
// detector stays quiet until that alert is acknowledged (Rearm), so
// sustained growth does not re-alert every cycle.
type Detector struct {
	logger      *zap.Logger
	window      int
	growthBytes int64

	mu          sync.Mutex
	snapshots   []Snapshot
	suppressed  bool
	lastAlertID string
	detections  int64
}

// NewDetector creates a detector over a window of at least 5 snapshots.
func NewDetector(logger *zap.Logger, window int, growthBytes int64) (*Detector, error) {
	if window < 5 {
		return nil, fmt.Errorf("trend: window must be at least 5, got %d", window)
	}
	if growthBytes <= 0 {
		return nil, fmt.Errorf("trend: growth threshold must be positive")
	}
	return &Detector{
		logger:      logger,
		window:      window,
		growthBytes: growthBytes,
		snapshots:   make([]Snapshot, 0, window),
	}, nil
}

// Observe records a heap snapshot and returns a memory_leak alert when
// the window shows suspicious growth. At most one alert is outstanding at
// a time.
func (d *Detector) Observe(s Snapshot) *domain.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.snapshots) == d.window {
		copy(d.snapshots, d.snapshots[1:])
		d.snapshots = d.snapshots[:d.window-1]
	}
	d.snapshots = append(d.snapshots, s)

	if len(d.snapshots) < d.window || d.suppressed {
		return nil
	}
	if !d.leaking() {
		return nil
	}

	d.detections++
	d.suppressed = true

	first := d.snapshots[0].HeapBytes
	last := s.HeapBytes
	metric := domain.Metric{
		Name:      domain.MetricHeapUsed,
		Value:     float64(last),
		Unit:      domain.UnitBytes,
		Timestamp: s.Timestamp,
		Category:  domain.CategoryMemory,
		Severity:  domain.SeverityWarning,
		Metadata: map[string]interface{}{
			"window":       d.window,
			"growth_bytes": last - first,
		},
	}
	msg := fmt.Sprintf("heap grew from %d to %d bytes over %d consecutive snapshots, possible leak",
		first, last, d.window)
	alert := domain.NewAlert(domain.AlertMemoryLeak, domain.SeverityWarning, msg, metric)
	d.lastAlertID = alert.ID

	d.logger.Warn("possible memory leak detected",
		zap.Int64("first_bytes", first),
		zap.Int64("last_bytes", last),
		zap.Int("window", d.window))
	return &alert
}

// leaking reports whether the full window is non-decreasing with average
// step growth over the threshold. Caller holds the lock.
func (d *Detector) leaking() bool {
	var total int64
	for i := 1; i < len(d.snapshots); i++ {
		step := d.snapshots[i].HeapBytes - d.snapshots[i-1].HeapBytes
		if step < 0 {
			return false
		}
		total += step
	}
	avg := total / int64(len(d.snapshots)-1)
	return avg > d.growthBytes
}

// Rearm re-enables detection if id matches the outstanding leak alert.
// The manager calls this when that alert is acknowledged.
func (d *Detector) Rearm(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.suppressed || id != d.lastAlertID {
		return false
	}
	d.suppressed = false
	d.lastAlertID = ""
	return true
}

// Detections returns how many leak suspicions have fired.
func (d *Detector) Detections() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detections
}
