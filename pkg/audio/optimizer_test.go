package audio

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chordialapp/metronome/pkg/cache"
	"github.com/chordialapp/metronome/pkg/domain"
)

func testConfig() Config {
	return Config{
		SampleRate: 48000,
		Channels:   2,
		MinBuffer:  256,
		MaxBuffer:  16384,
		StartLevel: 2,
		Workers:    1,
	}
}

func fixedCPU(usage float64) CPUProvider {
	return func() (float64, bool) { return usage, true }
}

func TestTick_HighCPUStepsDownOnePerTick(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), fixedCPU(95))

	levels := []int{o.Level()}
	for i := 0; i < 5; i++ {
		o.Tick()
		levels = append(levels, o.Level())
	}

	for i := 1; i < len(levels); i++ {
		drop := levels[i-1] - levels[i]
		assert.LessOrEqual(t, drop, 1, "level moves at most one step per tick")
		assert.GreaterOrEqual(t, drop, 0)
	}
	assert.Equal(t, 0, levels[len(levels)-1], "level bottoms out at 0")

	o.Tick()
	assert.Equal(t, 0, o.Level(), "level never goes below 0")
}

func TestTick_LowCPURecoversQuality(t *testing.T) {
	cfg := testConfig()
	cfg.StartLevel = 0
	o := New(zaptest.NewLogger(t), cfg, fixedCPU(20))

	o.Tick()
	assert.Equal(t, 1, o.Level())

	for i := 0; i < 10; i++ {
		o.Tick()
	}
	assert.Equal(t, 3, o.Level(), "level caps at full quality")
}

func TestTick_MidCPUHoldsLevel(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), fixedCPU(65))
	before := o.Level()
	o.Tick()
	assert.Equal(t, before, o.Level())
}

func TestTick_UnderrunDoublesBufferAndDropsLevel(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), fixedCPU(30))
	frames := o.BufferFrames()
	level := o.Level()

	o.RecordUnderrun()
	o.Tick()

	assert.Equal(t, frames*2, o.BufferFrames(), "underrun doubles the buffer")
	assert.Equal(t, level-1, o.Level(), "underrun wins over low CPU on the quality axis")

	// The underrun window resets each tick: a quiet tick recovers.
	o.Tick()
	assert.Equal(t, level, o.Level())
}

func TestTick_BufferCaps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBuffer = 2048
	o := New(zaptest.NewLogger(t), cfg, fixedCPU(30))

	for i := 0; i < 6; i++ {
		o.RecordUnderrun()
		o.Tick()
	}
	assert.Equal(t, 2048, o.BufferFrames(), "buffer never exceeds max")
}

func TestTick_ExcessLatencyHalvesBuffer(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), fixedCPU(60))
	frames := o.BufferFrames()

	o.RecordLatency(80)
	o.Tick()
	assert.Equal(t, frames/2, o.BufferFrames())

	// Floor at min buffer.
	for i := 0; i < 10; i++ {
		o.Tick()
	}
	assert.Equal(t, 256, o.BufferFrames())
}

func TestDegrade(t *testing.T) {
	cfg := testConfig()
	cfg.StartLevel = 1
	o := New(zaptest.NewLogger(t), cfg, nil)

	assert.True(t, o.Degrade())
	assert.Equal(t, 0, o.Level())
	assert.False(t, o.Degrade(), "already at the floor")
}

func TestProcess_CompressesFrame(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), nil)
	o.Start(context.Background())
	defer o.Stop()

	pool := cache.NewFramePool(1, 1, 64, 48000)
	frame := pool.Checkout()
	for i := range frame.Data[0] {
		frame.Data[0][i] = 0.95
	}

	o.Process(context.Background(), frame)

	assert.True(t, frame.Compressed)
	assert.Less(t, frame.Data[0][0], float32(0.95), "loud samples compressed")
	assert.Zero(t, o.Dropouts())
}

func TestCompress_StoppedWorkersReturnErrorAndCountDropout(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), nil)
	o.Start(context.Background())
	o.Stop()

	data := [][]float32{{0.9, 0.9}}
	err := o.Compress(context.Background(), data)
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, int64(1), o.Dropouts())
	assert.Equal(t, float32(0.9), data[0][0], "input left unmodified on failure")
}

func TestCompressorDo_NotRunning(t *testing.T) {
	c := newCompressor(zaptest.NewLogger(t), 1)
	err := c.do(context.Background(), [][]float32{{1}}, 0.5)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestScalarAndVectorizedAgree(t *testing.T) {
	mk := func() []float32 {
		out := make([]float32, 37) // odd length exercises the tail loop
		for i := range out {
			out[i] = float32(math.Sin(float64(i)/3)) * 1.2
		}
		return out
	}

	a, b := mk(), mk()
	compressScalar([][]float32{a}, 0.5)
	compressVectorized([][]float32{b}, 0.5)

	for i := range a {
		assert.InDelta(t, a[i], b[i], 1e-6, "sample %d", i)
	}
}

func TestCompress_FullQualityIsTransparent(t *testing.T) {
	data := []float32{0.1, 0.9, -0.95}
	orig := append([]float32(nil), data...)
	compressScalar([][]float32{data}, 1.0)
	assert.Equal(t, orig, data)
}

func TestCompress_ClampsToUnitRange(t *testing.T) {
	data := []float32{3.0, -3.0}
	compressScalar([][]float32{data}, 0.4)
	assert.LessOrEqual(t, data[0], float32(1))
	assert.GreaterOrEqual(t, data[1], float32(-1))
}

func TestCollect_EmitsAudioMetrics(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), nil)
	o.RecordUnderrun()

	metrics := o.Collect(context.Background())
	require.Len(t, metrics, 3)

	byName := map[string]domain.Metric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}
	assert.InDelta(t, 1024.0/48000*1000, byName[domain.MetricAudioLatency].Value, 0.01)
	assert.Equal(t, float64(1), byName[domain.MetricAudioUnderruns].Value)
	assert.Equal(t, float64(1024), byName[domain.MetricAudioBuffer].Value)
	for _, m := range byName {
		assert.Equal(t, domain.CategoryAudio, m.Category)
	}
}

func TestProcess_WithoutWorkersStillSucceedsViaFallback(t *testing.T) {
	o := New(zaptest.NewLogger(t), testConfig(), nil)
	// Never started: the worker path would fail, but the vectorized
	// path sits ahead of it and handles the frame.

	pool := cache.NewFramePool(1, 1, 16, 48000)
	frame := pool.Checkout()
	frame.Data[0][0] = 0.9

	o.Process(context.Background(), frame)
	assert.True(t, frame.Compressed)
}
