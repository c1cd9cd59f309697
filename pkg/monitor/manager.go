// Package monitor composes the performance subsystem: the sampler and its
// collectors, threshold evaluation, leak detection, the optimization rule
// engine, the caches and pools rules act on, the audio optimizer, and the
// export surfaces. The Manager is an explicit context object; nothing in
// the subsystem is a package-level singleton.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/chordialapp/metronome/internal/sched"
	"github.com/chordialapp/metronome/pkg/audio"
	"github.com/chordialapp/metronome/pkg/cache"
	"github.com/chordialapp/metronome/pkg/config"
	"github.com/chordialapp/metronome/pkg/domain"
	"github.com/chordialapp/metronome/pkg/export"
	"github.com/chordialapp/metronome/pkg/httpx"
	"github.com/chordialapp/metronome/pkg/ringbuf"
	"github.com/chordialapp/metronome/pkg/rules"
	"github.com/chordialapp/metronome/pkg/sampler"
	"github.com/chordialapp/metronome/pkg/thresholds"
	"github.com/chordialapp/metronome/pkg/trend"
)

// Outbound requests slower than this raise a slow_operation alert.
const slowRequestMS = 1000

// Manager owns every component and their lifecycle. Construct with New,
// run with Start, tear down with Stop.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	sampler   *sampler.Sampler
	evaluator *thresholds.Evaluator
	detector  *trend.Detector
	engine    *rules.Engine
	store     *cache.Store
	framePool *cache.FramePool
	bufPool   *cache.Pool[[]byte]
	audio     *audio.Optimizer
	client    *httpx.Client
	bridge    *export.Bridge
	scheduler *sched.Scheduler

	rdb       *redis.Client
	publisher *export.Publisher

	alerts *ringbuf.Buffer[domain.Alert]

	resultsSeen int64
	adminSrv    *http.Server

	runMu   sync.Mutex
	cancel  context.CancelFunc
	running atomic.Bool
}

// New wires the subsystem from configuration. Nothing starts running
// until Start.
func New(logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitor: invalid config: %w", err)
	}

	m := &Manager{logger: logger, cfg: cfg}

	alerts, err := ringbuf.New[domain.Alert](cfg.Alerts.MaxAlerts)
	if err != nil {
		return nil, err
	}
	m.alerts = alerts

	if cfg.Cache.Redis.Enabled {
		m.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
	}
	m.store = cache.New(logger.Named("cache"), cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Redis:      m.rdb,
	})
	m.bufPool = cache.NewPool[[]byte](cfg.Cache.PoolSize)
	m.framePool = cache.NewFramePool(cfg.Cache.FramePool, cfg.Audio.Channels,
		cfg.Audio.MaxBuffer, cfg.Audio.SampleRate)

	m.sampler, err = sampler.New(logger.Named("sampler"),
		cfg.Sampling.MaxMetrics, cfg.Sampling.RatePerSecond, cfg.Sampling.RateBurst)
	if err != nil {
		return nil, err
	}

	m.evaluator, err = thresholds.NewEvaluator(logger.Named("thresholds"), cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	m.detector, err = trend.NewDetector(logger.Named("trend"), cfg.Trend.Window, cfg.Trend.GrowthBytes)
	if err != nil {
		return nil, err
	}

	if cfg.Export.Prometheus {
		m.bridge = export.NewBridge()
	}

	m.client = httpx.New(logger.Named("httpx"), httpx.Options{
		Store:    m.store,
		CacheTTL: cfg.Cache.DefaultTTL,
		Timeout:  cfg.Network.ProbeTimeout,
		Timing:   m.observeRequest,
	})

	if cfg.Audio.Enabled {
		m.audio = audio.New(logger.Named("audio"), audio.Config{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			MinBuffer:  cfg.Audio.MinBuffer,
			MaxBuffer:  cfg.Audio.MaxBuffer,
			StartLevel: cfg.Audio.StartLevel,
			Workers:    cfg.Audio.Workers,
		}, m.latestCPU)
	}

	targets := rules.Targets{
		Caches: m.store,
		HTTP:   m.client,
		Pools:  []rules.PoolTarget{m.bufPool},
	}
	if m.audio != nil {
		targets.Audio = m.audio
	}
	m.engine, err = rules.NewEngine(logger.Named("rules"), m.sampler, targets, rules.Options{
		SettleDelay:  cfg.Rules.SettleDelay,
		MaxResults:   cfg.Rules.MaxResults,
		RecentWindow: cfg.Rules.RecentWindow,
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rules.DefaultRules() {
		if err := m.engine.AddRule(r); err != nil {
			return nil, err
		}
	}

	m.sampler.Register(sampler.NewRuntimeCollector(cfg.Sampling.MemoryLimitMB))
	m.sampler.Register(sampler.NewCPUCollector())
	m.sampler.Register(sampler.NewSchedLatencyCollector())
	m.sampler.Register(cache.NewCollector(m.store))
	m.sampler.Register(sampler.NewNetworkProbe(m.client, cfg.Network.ProbeURL, cfg.Network.ProbeTimeout))
	if m.audio != nil {
		m.sampler.Register(m.audio)
	}

	// Every recorded metric flows through classification and export once.
	m.sampler.Subscribe(func(metric domain.Metric) {
		if m.bridge != nil {
			m.bridge.Observe(metric)
		}
		if alert := m.evaluator.Classify(metric); alert != nil {
			m.raise(*alert)
		}
	})

	m.scheduler = sched.New(logger.Named("sched"))
	return m, nil
}

// latestCPU feeds the audio optimizer the most recent cpu_usage sample.
func (m *Manager) latestCPU() (float64, bool) {
	metric, ok := m.sampler.Latest(domain.MetricCPUUsage)
	if !ok {
		return 0, false
	}
	return metric.Value, true
}

// observeRequest is the outbound-client timing hook. Slow round trips
// raise a slow_operation alert directly; the RTT signal itself comes
// from the dedicated network probe.
func (m *Manager) observeRequest(url string, status int, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000
	if ms <= slowRequestMS {
		return
	}
	metric := domain.Metric{
		Name: "request_duration_ms", Value: ms,
		Unit: domain.UnitMilliseconds, Timestamp: time.Now(),
		Category: domain.CategoryNetwork, Severity: domain.SeverityWarning,
		Metadata: map[string]interface{}{"url": url, "status": status},
	}
	m.raise(domain.NewAlert(domain.AlertSlowOperation, domain.SeverityWarning,
		fmt.Sprintf("request to %s took %.0fms", url, ms), metric))
}

// raise stores, exports and publishes one alert.
func (m *Manager) raise(alert domain.Alert) {
	m.alerts.Append(alert)
	if m.bridge != nil {
		m.bridge.CountAlert(&alert)
	}
	if m.publisher != nil {
		m.publisher.PublishAlert(&alert)
	}
	m.logger.Warn("alert raised",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))
}

// Start launches the background loops: metric sampling, memory trend
// snapshots, rule checks, audio adaptation, and the admin HTTP server.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running.Load() {
		return fmt.Errorf("monitor: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.Export.NATS.Enabled {
		pub, err := export.NewPublisher(m.logger.Named("nats"),
			m.cfg.Export.NATS.URL, m.cfg.Export.NATS.SubjectPrefix)
		if err != nil {
			m.logger.Warn("nats publisher unavailable, alerts stay local", zap.Error(err))
		} else {
			m.publisher = pub
		}
	}

	if err := m.engine.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if m.audio != nil {
		m.audio.Start(runCtx)
	}

	tasks := []struct {
		name     string
		interval time.Duration
		fn       sched.Task
	}{
		{"sample", m.cfg.Sampling.Interval, m.sampler.Poll},
		{"memory-trend", m.cfg.Sampling.MemoryInterval, m.snapshotHeap},
		{"rules-check", m.cfg.Rules.CheckInterval, m.checkRules},
	}
	if m.audio != nil {
		tasks = append(tasks, struct {
			name     string
			interval time.Duration
			fn       sched.Task
		}{"audio-tick", m.cfg.Audio.AdaptInterval, func(context.Context) { m.audio.Tick() }})
	}
	for _, task := range tasks {
		if err := m.scheduler.Every(runCtx, task.name, task.interval, task.fn); err != nil {
			cancel()
			return err
		}
	}

	if m.cfg.Admin.Addr != "" {
		m.adminSrv = &http.Server{
			Addr:    m.cfg.Admin.Addr,
			Handler: m.Router(),
		}
		go func() {
			if err := m.adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("admin server failed", zap.Error(err))
			}
		}()
	}

	m.running.Store(true)
	m.logger.Info("performance monitoring started",
		zap.Duration("sample_interval", m.cfg.Sampling.Interval),
		zap.Bool("audio", m.audio != nil),
		zap.Bool("prometheus", m.bridge != nil),
		zap.Bool("nats", m.publisher != nil))
	return nil
}

// snapshotHeap feeds the leak detector one heap observation and raises
// any resulting alert.
func (m *Manager) snapshotHeap(ctx context.Context) {
	if alert := m.detector.Observe(trend.Snapshot{
		Timestamp: time.Now(),
		HeapBytes: sampler.HeapBytes(),
	}); alert != nil {
		m.raise(*alert)
	}
}

// checkRules runs one rule-table scan and exports results that completed
// since the previous scan.
func (m *Manager) checkRules(ctx context.Context) {
	m.engine.RunCheck()

	executed, _ := m.engine.Stats()
	if fresh := executed - m.resultsSeen; fresh > 0 {
		results := m.engine.Results()
		if int64(len(results)) < fresh {
			fresh = int64(len(results))
		}
		for _, result := range results[int64(len(results))-fresh:] {
			if m.bridge != nil {
				m.bridge.CountResult(result)
			}
			if m.publisher != nil {
				m.publisher.PublishResult(result)
			}
		}
		m.resultsSeen = executed
	}
}

// Stop tears everything down: scheduled tasks first so no new work is
// queued, then the rule engine (a rule mid-execution finishes), the audio
// workers, the admin server, and the external connections.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running.Load() {
		return
	}

	m.scheduler.Stop()
	m.cancel()
	m.engine.Stop()
	if m.audio != nil {
		m.audio.Stop()
	}

	if m.adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.adminSrv.Shutdown(shutdownCtx); err != nil {
			m.logger.Warn("admin server shutdown", zap.Error(err))
		}
		cancel()
	}
	if m.publisher != nil {
		m.publisher.Close()
	}
	if m.rdb != nil {
		if err := m.rdb.Close(); err != nil {
			m.logger.Warn("closing redis client", zap.Error(err))
		}
	}

	m.running.Store(false)
	m.logger.Info("performance monitoring stopped")
}

// Record feeds an application-supplied metric (frame timings, user
// actions) into the pipeline.
func (m *Manager) Record(metric domain.Metric) error {
	return m.sampler.Record(metric)
}

// Alerts returns the stored alerts, oldest first. With unacknowledgedOnly
// set, acknowledged alerts are filtered out.
func (m *Manager) Alerts(unacknowledgedOnly bool) []domain.Alert {
	all := m.alerts.Snapshot()
	if !unacknowledgedOnly {
		return all
	}
	out := all[:0]
	for _, a := range all {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// Acknowledge marks an alert acknowledged. Acknowledging a memory_leak
// alert re-arms the trend detector so the next sustained growth can alert
// again.
func (m *Manager) Acknowledge(id string) bool {
	var found bool
	var rearm bool
	m.alerts.Each(func(a *domain.Alert) bool {
		if a.ID != id {
			return true
		}
		a.Acknowledged = true
		found = true
		rearm = a.Type == domain.AlertMemoryLeak
		return false
	})
	if rearm {
		m.detector.Rearm(id)
	}
	return found
}

// Sampler exposes the metric pipeline for application code.
func (m *Manager) Sampler() *sampler.Sampler { return m.sampler }

// Thresholds exposes the mutable threshold table.
func (m *Manager) Thresholds() *thresholds.Evaluator { return m.evaluator }

// Engine exposes the optimization rule engine.
func (m *Manager) Engine() *rules.Engine { return m.engine }

// Caches exposes the namespaced TTL caches.
func (m *Manager) Caches() *cache.Store { return m.store }

// Frames exposes the audio frame pool.
func (m *Manager) Frames() *cache.FramePool { return m.framePool }

// Audio exposes the audio optimizer; nil when disabled.
func (m *Manager) Audio() *audio.Optimizer { return m.audio }

// Client exposes the instrumented outbound HTTP client.
func (m *Manager) Client() *httpx.Client { return m.client }

// Summary is the monitoring roll-up served by the admin API.
type Summary struct {
	Recorded     int64                           `json:"recorded"`
	Dropped      int64                           `json:"dropped"`
	Classified   int64                           `json:"classified"`
	Breached     int64                           `json:"breached"`
	Alerts       int                             `json:"alerts"`
	LeakAlerts   int64                           `json:"leak_alerts"`
	Executed     int64                           `json:"rules_executed"`
	Failed       int64                           `json:"rules_failed"`
	IsOptimizing bool                            `json:"is_optimizing"`
	AudioLevel   int                             `json:"audio_level,omitempty"`
	AudioBuffer  int                             `json:"audio_buffer_frames,omitempty"`
	HTTPCache    httpx.CacheStats                `json:"http_cache"`
	Caches       map[cache.Namespace]cache.Stats `json:"caches"`
	Pool         cache.PoolStats                 `json:"pool"`
}

// Summarize collects current counters from every component.
func (m *Manager) Summarize() Summary {
	recorded, dropped := m.sampler.Stats()
	classified, breached := m.evaluator.Stats()
	executed, failed := m.engine.Stats()

	s := Summary{
		Recorded:     recorded,
		Dropped:      dropped,
		Classified:   classified,
		Breached:     breached,
		Alerts:       m.alerts.Len(),
		LeakAlerts:   m.detector.Detections(),
		Executed:     executed,
		Failed:       failed,
		IsOptimizing: m.engine.IsOptimizing(),
		HTTPCache:    m.client.Stats(),
		Caches:       make(map[cache.Namespace]cache.Stats, 4),
		Pool:         m.bufPool.Stats(),
	}
	for _, ns := range cache.Namespaces() {
		s.Caches[ns] = m.store.Stats(ns)
	}
	if m.audio != nil {
		s.AudioLevel = m.audio.Level()
		s.AudioBuffer = m.audio.BufferFrames()
	}
	return s
}
