// Package audio adapts the audio pipeline to observed load: a quality
// level that steps down under CPU pressure or underruns, a buffer-size
// axis that grows on underruns and shrinks on excess latency, and a
// processing path chain (vectorized → worker offload → scalar) with
// per-call fallback.
package audio

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/cache"
	"github.com/chordialapp/metronome/pkg/domain"
)

// Path identifies one processing implementation.
type Path string

const (
	PathVectorized Path = "vectorized"
	PathWorker     Path = "worker"
	PathScalar     Path = "scalar"
)

// levelSetting maps one optimization level to its quality/buffer pair.
// Level 0 is the most degraded, level 3 full quality.
type levelSetting struct {
	CompressionQuality float64
	BufferFrames       int
}

var levelTable = [4]levelSetting{
	{CompressionQuality: 0.4, BufferFrames: 4096},
	{CompressionQuality: 0.6, BufferFrames: 2048},
	{CompressionQuality: 0.8, BufferFrames: 1024},
	{CompressionQuality: 1.0, BufferFrames: 512},
}

// Thresholds for the adaptive tick.
const (
	cpuHighPercent = 80
	cpuLowPercent  = 50
	latencyHighMS  = 50
)

// Timeout for a single worker-path processing call; the full Compress
// API gets a longer budget.
const workerCallTimeout = 100 * time.Millisecond

// Config sizes the optimizer.
type Config struct {
	SampleRate int
	Channels   int
	MinBuffer  int
	MaxBuffer  int
	StartLevel int
	Workers    int
}

// CPUProvider returns the most recent CPU usage percentage, and whether
// one is known.
type CPUProvider func() (float64, bool)

// Optimizer owns the audio adaptation state.
type Optimizer struct {
	logger *zap.Logger
	cfg    Config
	cpu    CPUProvider

	mu           sync.Mutex
	level        int
	bufferFrames int
	paths        []Path

	underrunsWindow atomic.Int64 // since last tick
	underrunsTotal  atomic.Int64
	dropouts        atomic.Int64
	latencyBits     atomic.Uint64 // math.Float64bits of last measured ms

	compressor *compressor
}

// New creates an optimizer. The path preference order is fixed at
// construction by capability detection; every call still falls back down
// the chain on error.
func New(logger *zap.Logger, cfg Config, cpu CPUProvider) *Optimizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.MinBuffer <= 0 {
		cfg.MinBuffer = 256
	}
	if cfg.MaxBuffer < cfg.MinBuffer {
		cfg.MaxBuffer = cfg.MinBuffer * 64
	}
	if cfg.StartLevel < 0 || cfg.StartLevel > 3 {
		cfg.StartLevel = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	o := &Optimizer{
		logger:     logger,
		cfg:        cfg,
		cpu:        cpu,
		level:      cfg.StartLevel,
		compressor: newCompressor(logger, cfg.Workers),
	}
	o.bufferFrames = clamp(levelTable[cfg.StartLevel].BufferFrames, cfg.MinBuffer, cfg.MaxBuffer)
	o.paths = detectPaths()
	return o
}

// detectPaths returns the preference order of available processing
// paths. The vectorized and scalar implementations are always present;
// worker offload is always constructible in-process, so the full chain
// applies everywhere and capability detection is about ordering, not
// pruning.
func detectPaths() []Path {
	return []Path{PathVectorized, PathWorker, PathScalar}
}

// Start launches the compression workers.
func (o *Optimizer) Start(ctx context.Context) {
	o.compressor.start(ctx)
}

// Stop shuts the workers down.
func (o *Optimizer) Stop() {
	o.compressor.stop()
}

// Level returns the current optimization level (0 most degraded, 3 full
// quality).
func (o *Optimizer) Level() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// Quality returns the compression quality for the current level.
func (o *Optimizer) Quality() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return levelTable[o.level].CompressionQuality
}

// BufferFrames returns the current buffer size in frames.
func (o *Optimizer) BufferFrames() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bufferFrames
}

// PreferredPath returns the head of the path chain.
func (o *Optimizer) PreferredPath() Path {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paths[0]
}

// RecordUnderrun notes a playback underrun.
func (o *Optimizer) RecordUnderrun() {
	o.underrunsWindow.Add(1)
	o.underrunsTotal.Add(1)
}

// RecordLatency notes a measured output latency in milliseconds.
func (o *Optimizer) RecordLatency(ms float64) {
	o.latencyBits.Store(math.Float64bits(ms))
}

// Degrade drops one quality level. Rule actions call this; it reports
// whether the level actually moved.
func (o *Optimizer) Degrade() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.level == 0 {
		return false
	}
	o.level--
	o.logger.Info("audio quality degraded", zap.Int("level", o.level))
	return true
}

// Tick runs one adaptation step. The quality level and the buffer size
// are independent axes; each moves at most one step per tick.
func (o *Optimizer) Tick() {
	underruns := o.underrunsWindow.Swap(0)
	cpuUsage, cpuKnown := 0.0, false
	if o.cpu != nil {
		cpuUsage, cpuKnown = o.cpu()
	}
	latency := math.Float64frombits(o.latencyBits.Load())

	o.mu.Lock()
	defer o.mu.Unlock()

	// Quality axis.
	switch {
	case (cpuKnown && cpuUsage > cpuHighPercent) || underruns > 0:
		if o.level > 0 {
			o.level--
			o.logger.Debug("audio level down",
				zap.Int("level", o.level),
				zap.Float64("cpu", cpuUsage),
				zap.Int64("underruns", underruns))
		}
	case cpuKnown && cpuUsage < cpuLowPercent && underruns == 0:
		if o.level < len(levelTable)-1 {
			o.level++
			o.logger.Debug("audio level up", zap.Int("level", o.level))
		}
	}

	// Buffer axis: underruns mean the buffer is too small; high latency
	// with a quiet window means it is too large.
	switch {
	case underruns > 0:
		if next := o.bufferFrames * 2; next <= o.cfg.MaxBuffer {
			o.bufferFrames = next
			o.logger.Debug("audio buffer doubled", zap.Int("frames", o.bufferFrames))
		}
	case latency > latencyHighMS:
		if next := o.bufferFrames / 2; next >= o.cfg.MinBuffer {
			o.bufferFrames = next
			o.logger.Debug("audio buffer halved", zap.Int("frames", o.bufferFrames))
		}
	}
}

// Process runs the frame through the first path in the chain that
// succeeds. When every path fails the frame is returned unmodified and a
// dropout is counted; processing never raises to the caller.
func (o *Optimizer) Process(ctx context.Context, frame *cache.Frame) {
	o.mu.Lock()
	quality := levelTable[o.level].CompressionQuality
	paths := o.paths
	o.mu.Unlock()

	for _, path := range paths {
		if err := o.processVia(ctx, path, frame, quality); err != nil {
			o.logger.Debug("audio path failed, falling back",
				zap.String("path", string(path)),
				zap.Error(err))
			continue
		}
		frame.Compressed = true
		return
	}
	o.dropouts.Add(1)
}

func (o *Optimizer) processVia(ctx context.Context, path Path, frame *cache.Frame, quality float64) error {
	switch path {
	case PathVectorized:
		compressVectorized(frame.Data, quality)
		return nil
	case PathWorker:
		callCtx, cancel := context.WithTimeout(ctx, workerCallTimeout)
		defer cancel()
		return o.compressor.do(callCtx, frame.Data, quality)
	default:
		compressScalar(frame.Data, quality)
		return nil
	}
}

// Compress offloads a full compression pass to the worker pool with the
// long-call budget. A timeout leaves the data unmodified, counts a
// dropout, and returns the error to the caller.
func (o *Optimizer) Compress(ctx context.Context, data [][]float32) error {
	callCtx, cancel := context.WithTimeout(ctx, compressCallTimeout)
	defer cancel()

	o.mu.Lock()
	quality := levelTable[o.level].CompressionQuality
	o.mu.Unlock()

	if err := o.compressor.do(callCtx, data, quality); err != nil {
		o.dropouts.Add(1)
		return err
	}
	return nil
}

// Dropouts returns the total failed processing calls.
func (o *Optimizer) Dropouts() int64 {
	return o.dropouts.Load()
}

// Name implements the sampler collector contract.
func (o *Optimizer) Name() string { return "audio" }

// Available implements the sampler collector contract.
func (o *Optimizer) Available() bool { return true }

// Collect emits the audio metrics: estimated output latency from the
// buffer size, cumulative underruns, and the current buffer size.
func (o *Optimizer) Collect(ctx context.Context) []domain.Metric {
	o.mu.Lock()
	frames := o.bufferFrames
	o.mu.Unlock()

	now := time.Now()
	bufferLatency := float64(frames) / float64(o.cfg.SampleRate) * 1000
	if measured := math.Float64frombits(o.latencyBits.Load()); measured > 0 {
		bufferLatency = measured
	}

	return []domain.Metric{
		{
			Name: domain.MetricAudioLatency, Value: bufferLatency,
			Unit: domain.UnitMilliseconds, Timestamp: now,
			Category: domain.CategoryAudio, Severity: domain.SeverityInfo,
		},
		{
			Name: domain.MetricAudioUnderruns, Value: float64(o.underrunsTotal.Load()),
			Unit: domain.UnitCount, Timestamp: now,
			Category: domain.CategoryAudio, Severity: domain.SeverityInfo,
		},
		{
			Name: domain.MetricAudioBuffer, Value: float64(frames),
			Unit: domain.UnitCount, Timestamp: now,
			Category: domain.CategoryAudio, Severity: domain.SeverityInfo,
		},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
