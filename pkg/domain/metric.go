// Package domain holds the core data model shared by every layer of the
// performance subsystem: metrics, alerts, thresholds, optimization rules
// and their results. Everything here is plain data — behavior lives in the
// packages that consume these types.
package domain

import (
	"fmt"
	"time"
)

// Unit is the measurement unit of a metric value.
type Unit string

const (
	UnitMilliseconds Unit = "ms"
	UnitBytes        Unit = "bytes"
	UnitCount        Unit = "count"
	UnitPercentage   Unit = "percentage"
	UnitFPS          Unit = "fps"
)

// Category groups metrics by the subsystem they describe.
type Category string

const (
	CategoryRender  Category = "render"
	CategoryNetwork Category = "network"
	CategoryMemory  Category = "memory"
	CategoryAudio   Category = "audio"
	CategoryUser    Category = "user"
	CategorySystem  Category = "system"
)

// Severity classifies how bad a metric or alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metric is a single normalized performance sample. Collectors of any
// origin (runtime, process, audio engine, network probes) all emit this
// one schema so downstream evaluation never needs to know the source.
// A Metric is immutable once recorded.
type Metric struct {
	Name      string                 `json:"name"`
	Value     float64                `json:"value"`
	Unit      Unit                   `json:"unit"`
	Timestamp time.Time              `json:"timestamp"`
	Category  Category               `json:"category"`
	Severity  Severity               `json:"severity"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks that the metric is well formed enough to record.
func (m *Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if m.Unit == "" {
		return fmt.Errorf("metric %s: unit is required", m.Name)
	}
	if m.Category == "" {
		return fmt.Errorf("metric %s: category is required", m.Name)
	}
	return nil
}

// WellKnown metric names emitted by the built-in collectors. Rules and
// thresholds reference metrics by these names.
const (
	MetricHeapUsed         = "heap_used"
	MetricHeapUtilization  = "heap_utilization"
	MetricMemoryUsage      = "memory_usage"
	MetricGCPause          = "gc_pause_ms"
	MetricGoroutines       = "goroutines"
	MetricCPUUsage         = "cpu_usage"
	MetricSchedulerLatency = "scheduler_latency_ms"
	MetricNetworkRTT       = "network_rtt"
	MetricAudioLatency     = "audio_latency_ms"
	MetricAudioUnderruns   = "audio_underruns"
	MetricAudioBuffer      = "audio_buffer_frames"
	MetricFrameRate        = "frame_rate"
)
