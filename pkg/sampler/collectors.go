package sampler

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chordialapp/metronome/pkg/domain"
)

// RuntimeCollector samples the Go heap and scheduler: heap usage, heap
// utilization, GC pause, goroutine count, and memory usage relative to
// the configured budget.
type RuntimeCollector struct {
	BaseCollector
	memLimitBytes int64
}

// NewRuntimeCollector creates a runtime collector with a memory budget in
// megabytes used to express memory_usage as a percentage.
func NewRuntimeCollector(memLimitMB int) *RuntimeCollector {
	if memLimitMB <= 0 {
		memLimitMB = 512
	}
	return &RuntimeCollector{
		BaseCollector: NewBaseCollector("runtime"),
		memLimitBytes: int64(memLimitMB) * 1024 * 1024,
	}
}

// Available always holds; the runtime is the one hook we can count on.
func (c *RuntimeCollector) Available() bool { return true }

// Collect reads MemStats and synthesizes the memory metrics.
func (c *RuntimeCollector) Collect(ctx context.Context) []domain.Metric {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	now := time.Now()

	heapUtil := 0.0
	if ms.HeapSys > 0 {
		heapUtil = float64(ms.HeapAlloc) / float64(ms.HeapSys) * 100
	}
	lastPauseMS := float64(ms.PauseNs[(ms.NumGC+255)%256]) / 1e6

	metrics := []domain.Metric{
		{
			Name: domain.MetricHeapUsed, Value: float64(ms.HeapAlloc),
			Unit: domain.UnitBytes, Timestamp: now,
			Category: domain.CategoryMemory, Severity: domain.SeverityInfo,
		},
		{
			Name: domain.MetricHeapUtilization, Value: heapUtil,
			Unit: domain.UnitPercentage, Timestamp: now,
			Category: domain.CategoryMemory, Severity: domain.SeverityInfo,
		},
		{
			Name: domain.MetricMemoryUsage, Value: float64(ms.HeapAlloc) / float64(c.memLimitBytes) * 100,
			Unit: domain.UnitPercentage, Timestamp: now,
			Category: domain.CategoryMemory, Severity: domain.SeverityInfo,
		},
		{
			Name: domain.MetricGCPause, Value: lastPauseMS,
			Unit: domain.UnitMilliseconds, Timestamp: now,
			Category: domain.CategoryMemory, Severity: domain.SeverityInfo,
			Metadata: map[string]interface{}{"num_gc": ms.NumGC},
		},
		{
			Name: domain.MetricGoroutines, Value: float64(runtime.NumGoroutine()),
			Unit: domain.UnitCount, Timestamp: now,
			Category: domain.CategorySystem, Severity: domain.SeverityInfo,
		},
	}
	c.RecordEmit(len(metrics))
	return metrics
}

// HeapBytes returns the current heap allocation, used by the trend
// detector's snapshot cycle.
func HeapBytes() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// CPUCollector derives process CPU usage from /proc/self/stat deltas.
// On platforms without procfs the collector is silently inactive.
type CPUCollector struct {
	BaseCollector
	statPath string

	mu        sync.Mutex
	lastTicks uint64
	lastWall  time.Time
	primed    bool
}

// Kernel USER_HZ; fixed at 100 on every platform that has procfs.
const clockTicksPerSecond = 100

// NewCPUCollector creates the procfs-backed CPU collector.
func NewCPUCollector() *CPUCollector {
	return &CPUCollector{
		BaseCollector: NewBaseCollector("cpu"),
		statPath:      "/proc/self/stat",
	}
}

// Available reports whether procfs is readable here.
func (c *CPUCollector) Available() bool {
	_, err := os.Stat(c.statPath)
	return err == nil
}

// Collect emits cpu_usage as a percentage of one core since the previous
// poll. The first poll only primes the baseline and emits nothing.
func (c *CPUCollector) Collect(ctx context.Context) []domain.Metric {
	ticks, err := c.readTicks()
	if err != nil {
		c.RecordError(err)
		return nil
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.primed {
		c.lastTicks, c.lastWall, c.primed = ticks, now, true
		return nil
	}

	elapsed := now.Sub(c.lastWall).Seconds()
	if elapsed <= 0 {
		return nil
	}
	cpuSeconds := float64(ticks-c.lastTicks) / clockTicksPerSecond
	usage := cpuSeconds / elapsed * 100
	c.lastTicks, c.lastWall = ticks, now

	c.RecordEmit(1)
	return []domain.Metric{{
		Name: domain.MetricCPUUsage, Value: usage,
		Unit: domain.UnitPercentage, Timestamp: now,
		Category: domain.CategorySystem, Severity: domain.SeverityInfo,
	}}
}

// readTicks parses utime+stime from /proc/self/stat. The comm field can
// contain spaces, so fields are counted from the closing paren.
func (c *CPUCollector) readTicks() (uint64, error) {
	data, err := os.ReadFile(c.statPath)
	if err != nil {
		return 0, err
	}
	raw := string(data)
	if idx := strings.LastIndexByte(raw, ')'); idx >= 0 {
		raw = raw[idx+1:]
	}
	fields := strings.Fields(raw)
	// After comm: field 11 is utime, 12 is stime (0-based).
	if len(fields) < 13 {
		return 0, os.ErrInvalid
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, err
	}
	return utime + stime, nil
}

// SchedLatencyCollector measures how late a short timer fires, the
// process-level analog of event-loop lag: a loaded scheduler delivers
// timers late.
type SchedLatencyCollector struct {
	BaseCollector
	probe time.Duration
}

// NewSchedLatencyCollector creates the timer-drift collector.
func NewSchedLatencyCollector() *SchedLatencyCollector {
	return &SchedLatencyCollector{
		BaseCollector: NewBaseCollector("sched_latency"),
		probe:         time.Millisecond,
	}
}

// Available always holds.
func (c *SchedLatencyCollector) Available() bool { return true }

// Collect sleeps for the probe duration and reports the overshoot.
func (c *SchedLatencyCollector) Collect(ctx context.Context) []domain.Metric {
	start := time.Now()
	timer := time.NewTimer(c.probe)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	overshoot := time.Since(start) - c.probe
	if overshoot < 0 {
		overshoot = 0
	}

	c.RecordEmit(1)
	return []domain.Metric{{
		Name: domain.MetricSchedulerLatency, Value: float64(overshoot.Microseconds()) / 1000,
		Unit: domain.UnitMilliseconds, Timestamp: time.Now(),
		Category: domain.CategorySystem, Severity: domain.SeverityInfo,
	}}
}
