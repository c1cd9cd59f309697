package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chordialapp/metronome/pkg/config"
	"github.com/chordialapp/metronome/pkg/domain"
	"github.com/chordialapp/metronome/pkg/trend"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Admin.Addr = ""
	cfg.Export.NATS.Enabled = false
	cfg.Network.ProbeURL = ""
	m, err := New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	return m
}

func memoryMetric(value float64) domain.Metric {
	return domain.Metric{
		Name: domain.MetricMemoryUsage, Value: value,
		Unit: domain.UnitPercentage, Timestamp: time.Now(),
		Category: domain.CategoryMemory, Severity: domain.SeverityInfo,
	}
}

func TestRecord_BreachRaisesCriticalAlert(t *testing.T) {
	m := testManager(t)

	// memory_usage seeds at warning 70 / critical 90.
	require.NoError(t, m.Record(memoryMetric(95)))

	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertThresholdExceeded, alerts[0].Type)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, domain.MetricMemoryUsage, alerts[0].Metric.Name)

	// A healthy reading raises nothing.
	require.NoError(t, m.Record(memoryMetric(50)))
	assert.Len(t, m.Alerts(false), 1)
}

func TestRecord_WarningBand(t *testing.T) {
	m := testManager(t)

	require.NoError(t, m.Record(memoryMetric(80)))

	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
}

func TestAcknowledge(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Record(memoryMetric(95)))

	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	id := alerts[0].ID

	assert.False(t, m.Acknowledge("no-such-id"))
	assert.True(t, m.Acknowledge(id))

	assert.Empty(t, m.Alerts(true), "acknowledged alerts are filtered")
	assert.True(t, m.Alerts(false)[0].Acknowledged)
}

func TestAcknowledge_LeakAlertRearmsDetector(t *testing.T) {
	m := testManager(t)

	// Drive the detector to a leak alert through its snapshot path.
	base := time.Now()
	var leak *domain.Alert
	for i := 0; i < m.cfg.Trend.Window; i++ {
		leak = m.detector.Observe(trend.Snapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			HeapBytes: int64(i) * (m.cfg.Trend.GrowthBytes + 1),
		})
	}
	require.NotNil(t, leak)
	m.raise(*leak)

	// Growth continues but the outstanding alert suppresses re-alerting.
	next := m.detector.Observe(trend.Snapshot{
		Timestamp: base.Add(time.Hour),
		HeapBytes: int64(m.cfg.Trend.Window+1) * (m.cfg.Trend.GrowthBytes + 1),
	})
	assert.Nil(t, next)

	require.True(t, m.Acknowledge(leak.ID))

	// Re-armed: continued growth alerts again.
	var again *domain.Alert
	for i := 0; i < m.cfg.Trend.Window; i++ {
		if a := m.detector.Observe(trend.Snapshot{
			Timestamp: base.Add(2*time.Hour + time.Duration(i)*time.Second),
			HeapBytes: int64(m.cfg.Trend.Window+2+i) * (m.cfg.Trend.GrowthBytes + 1),
		}); a != nil {
			again = a
		}
	}
	assert.NotNil(t, again)
}

func TestAlertBuffer_Bounded(t *testing.T) {
	cfg := config.Default()
	cfg.Admin.Addr = ""
	cfg.Alerts.MaxAlerts = 3
	cfg.Sampling.RatePerSecond = 10000
	cfg.Sampling.RateBurst = 10000
	m, err := New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Record(memoryMetric(95)))
	}
	assert.Len(t, m.Alerts(false), 3, "oldest alerts evicted past the cap")
}

func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Admin.Addr = ""
	cfg.Export.NATS.Enabled = false
	cfg.Network.ProbeURL = ""
	// Long intervals: the loops exist but stay quiet during the test.
	cfg.Sampling.Interval = time.Hour
	cfg.Sampling.MemoryInterval = time.Hour
	cfg.Rules.CheckInterval = time.Hour
	cfg.Audio.AdaptInterval = time.Hour

	m, err := New(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "double start rejected")

	assert.ElementsMatch(t,
		[]string{"sample", "memory-trend", "rules-check", "audio-tick"},
		m.scheduler.Names())

	m.Stop()
	m.Stop() // idempotent
}

func TestSummarize(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Record(memoryMetric(95)))

	s := m.Summarize()
	assert.Equal(t, int64(1), s.Recorded)
	assert.Equal(t, int64(1), s.Classified)
	assert.Equal(t, int64(1), s.Breached)
	assert.Equal(t, 1, s.Alerts)
	assert.False(t, s.IsOptimizing)
	assert.Len(t, s.Caches, 4)
	assert.Equal(t, m.audio.Level(), s.AudioLevel)
}

func TestObserveRequest_SlowCallRaisesAlert(t *testing.T) {
	m := testManager(t)

	m.observeRequest("https://api.example.com/tracks", 200, 50*time.Millisecond)
	assert.Empty(t, m.Alerts(false), "fast requests raise nothing")

	m.observeRequest("https://api.example.com/tracks", 200, 3*time.Second)
	alerts := m.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertSlowOperation, alerts[0].Type)
}
