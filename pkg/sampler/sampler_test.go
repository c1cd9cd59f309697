package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chordialapp/metronome/pkg/domain"
)

func newSampler(t *testing.T, maxMetrics int) *Sampler {
	t.Helper()
	s, err := New(zaptest.NewLogger(t), maxMetrics, 10000, 20000)
	require.NoError(t, err)
	return s
}

func sample(name string, value float64) domain.Metric {
	return domain.Metric{
		Name:     name,
		Value:    value,
		Unit:     domain.UnitCount,
		Category: domain.CategorySystem,
	}
}

func TestRecord_AppendsAndNotifies(t *testing.T) {
	s := newSampler(t, 10)

	var seen []domain.Metric
	s.Subscribe(func(m domain.Metric) { seen = append(seen, m) })

	require.NoError(t, s.Record(sample("x", 1)))

	require.Len(t, seen, 1)
	assert.Equal(t, domain.SeverityInfo, seen[0].Severity, "severity defaults to info")

	recorded, dropped := s.Stats()
	assert.Equal(t, int64(1), recorded)
	assert.Zero(t, dropped)
}

func TestRecord_RejectsInvalidMetric(t *testing.T) {
	s := newSampler(t, 10)
	err := s.Record(domain.Metric{Value: 1})
	assert.Error(t, err)
	assert.Empty(t, s.Snapshot())
}

func TestRecord_BufferHoldsMaxMetricsFIFO(t *testing.T) {
	s := newSampler(t, 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(sample("m", float64(i))))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 3, "buffer never exceeds max_metrics")
	assert.Equal(t, float64(2), snap[0].Value, "oldest entries evicted first")
	assert.Equal(t, float64(4), snap[2].Value)
}

func TestRecord_RateLimitDropsSilently(t *testing.T) {
	s, err := New(zaptest.NewLogger(t), 100, 1, 1)
	require.NoError(t, err)

	require.NoError(t, s.Record(sample("m", 1)))
	require.NoError(t, s.Record(sample("m", 2)), "over-rate record is not an error")

	_, dropped := s.Stats()
	assert.Equal(t, int64(1), dropped)
	assert.Len(t, s.Snapshot(), 1)
}

func TestLatestAndAverage(t *testing.T) {
	s := newSampler(t, 10)
	require.NoError(t, s.Record(sample("cpu", 10)))
	require.NoError(t, s.Record(sample("other", 99)))
	require.NoError(t, s.Record(sample("cpu", 30)))

	latest, ok := s.Latest("cpu")
	require.True(t, ok)
	assert.Equal(t, float64(30), latest.Value)

	avg, ok := s.Average("cpu", 5)
	require.True(t, ok)
	assert.Equal(t, float64(20), avg)

	_, ok = s.Latest("missing")
	assert.False(t, ok)
	_, ok = s.Average("missing", 5)
	assert.False(t, ok)
}

type stubCollector struct {
	BaseCollector
	available bool
	metrics   []domain.Metric
	polls     int
}

func (c *stubCollector) Available() bool { return c.available }

func (c *stubCollector) Collect(ctx context.Context) []domain.Metric {
	c.polls++
	return c.metrics
}

func TestPoll_SkipsUnavailableCollectors(t *testing.T) {
	s := newSampler(t, 10)

	active := &stubCollector{
		BaseCollector: NewBaseCollector("active"),
		available:     true,
		metrics:       []domain.Metric{sample("a", 1)},
	}
	inactive := &stubCollector{
		BaseCollector: NewBaseCollector("inactive"),
		available:     false,
		metrics:       []domain.Metric{sample("b", 1)},
	}
	s.Register(active)
	s.Register(inactive)

	s.Poll(context.Background())

	assert.Equal(t, 1, active.polls)
	assert.Zero(t, inactive.polls, "unavailable collector never polled")

	_, ok := s.Latest("a")
	assert.True(t, ok)
	_, ok = s.Latest("b")
	assert.False(t, ok, "no metric ever emitted for an inactive collector")
}

func TestRuntimeCollector_EmitsMemoryMetrics(t *testing.T) {
	c := NewRuntimeCollector(512)
	require.True(t, c.Available())

	metrics := c.Collect(context.Background())
	require.NotEmpty(t, metrics)

	byName := map[string]domain.Metric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}

	heap, ok := byName[domain.MetricHeapUsed]
	require.True(t, ok)
	assert.Greater(t, heap.Value, float64(0))
	assert.Equal(t, domain.UnitBytes, heap.Unit)
	assert.Equal(t, domain.CategoryMemory, heap.Category)

	util, ok := byName[domain.MetricHeapUtilization]
	require.True(t, ok)
	assert.GreaterOrEqual(t, util.Value, float64(0))
	assert.LessOrEqual(t, util.Value, float64(100))

	goroutines, ok := byName[domain.MetricGoroutines]
	require.True(t, ok)
	assert.GreaterOrEqual(t, goroutines.Value, float64(1))
}

func TestCPUCollector_PrimesThenEmits(t *testing.T) {
	c := NewCPUCollector()
	if !c.Available() {
		t.Skip("procfs not available on this platform")
	}

	assert.Empty(t, c.Collect(context.Background()), "first poll only primes the baseline")

	// Burn a little CPU so the delta is nonzero.
	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i % 7
	}
	_ = x
	time.Sleep(20 * time.Millisecond)

	metrics := c.Collect(context.Background())
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.MetricCPUUsage, metrics[0].Name)
	assert.GreaterOrEqual(t, metrics[0].Value, float64(0))
}

func TestSchedLatencyCollector(t *testing.T) {
	c := NewSchedLatencyCollector()
	metrics := c.Collect(context.Background())
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.MetricSchedulerLatency, metrics[0].Name)
	assert.GreaterOrEqual(t, metrics[0].Value, float64(0))
}

func TestNetworkProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	probe := NewNetworkProbe(srv.Client(), srv.URL, time.Second)
	require.True(t, probe.Available())

	metrics := probe.Collect(context.Background())
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.MetricNetworkRTT, metrics[0].Name)
	assert.Equal(t, domain.CategoryNetwork, metrics[0].Category)
	assert.Equal(t, http.StatusNoContent, metrics[0].Metadata["status"])
}

func TestNetworkProbe_UnconfiguredIsInactive(t *testing.T) {
	probe := NewNetworkProbe(http.DefaultClient, "", time.Second)
	assert.False(t, probe.Available())
}

func TestNetworkProbe_FailureEmitsNothing(t *testing.T) {
	probe := NewNetworkProbe(http.DefaultClient, "http://127.0.0.1:1", 200*time.Millisecond)
	assert.Empty(t, probe.Collect(context.Background()))
	assert.Equal(t, int64(1), probe.Stats().Errors)
}
