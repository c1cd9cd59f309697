// Package config defines the subsystem configuration and its loading
// pipeline: defaults, then a YAML file, then METRONOME_* environment
// overrides, then validation.
package config

import (
	"fmt"
	"time"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Config is the root configuration for the performance subsystem.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`

	Sampling SamplingConfig  `yaml:"sampling" json:"sampling"`
	Alerts   AlertsConfig    `yaml:"alerts" json:"alerts"`
	Trend    TrendConfig     `yaml:"trend" json:"trend"`
	Rules    RulesConfig     `yaml:"rules" json:"rules"`
	Cache    CacheConfig     `yaml:"cache" json:"cache"`
	Audio    AudioConfig     `yaml:"audio" json:"audio"`
	Network  NetworkConfig   `yaml:"network" json:"network"`
	Export   ExportConfig    `yaml:"export" json:"export"`
	Admin    AdminConfig     `yaml:"admin" json:"admin"`

	// Thresholds seeds the evaluator table; the admin API can mutate it
	// at runtime.
	Thresholds []domain.Threshold `yaml:"thresholds" json:"thresholds"`
}

// SamplingConfig controls the metric recorder and passive collectors.
type SamplingConfig struct {
	Interval        time.Duration `yaml:"interval" json:"interval"`
	MemoryInterval  time.Duration `yaml:"memory_interval" json:"memory_interval"`
	MaxMetrics      int           `yaml:"max_metrics" json:"max_metrics"`
	RatePerSecond   float64       `yaml:"rate_per_second" json:"rate_per_second"`
	RateBurst       int           `yaml:"rate_burst" json:"rate_burst"`
	MemoryLimitMB   int           `yaml:"memory_limit_mb" json:"memory_limit_mb"`
}

// AlertsConfig bounds the alert store.
type AlertsConfig struct {
	MaxAlerts int `yaml:"max_alerts" json:"max_alerts"`
}

// TrendConfig tunes the memory-leak detector.
type TrendConfig struct {
	Window      int   `yaml:"window" json:"window"`
	GrowthBytes int64 `yaml:"growth_bytes" json:"growth_bytes"`
}

// RulesConfig controls the optimization rule engine.
type RulesConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
	SettleDelay   time.Duration `yaml:"settle_delay" json:"settle_delay"`
	MaxResults    int           `yaml:"max_results" json:"max_results"`
	RecentWindow  int           `yaml:"recent_window" json:"recent_window"`
}

// CacheConfig sizes the namespaced TTL caches and object pools.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	PoolSize   int           `yaml:"pool_size" json:"pool_size"`
	FramePool  int           `yaml:"frame_pool" json:"frame_pool"`
	Redis      RedisConfig   `yaml:"redis" json:"redis"`
}

// RedisConfig enables the optional shared L2 cache for the api namespace.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	DB      int    `yaml:"db" json:"db"`
}

// AudioConfig tunes the audio optimizer.
type AudioConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	AdaptInterval time.Duration `yaml:"adapt_interval" json:"adapt_interval"`
	SampleRate    int           `yaml:"sample_rate" json:"sample_rate"`
	Channels      int           `yaml:"channels" json:"channels"`
	MinBuffer     int           `yaml:"min_buffer" json:"min_buffer"`
	MaxBuffer     int           `yaml:"max_buffer" json:"max_buffer"`
	StartLevel    int           `yaml:"start_level" json:"start_level"`
	Workers       int           `yaml:"workers" json:"workers"`
}

// NetworkConfig configures the RTT probe.
type NetworkConfig struct {
	ProbeURL      string        `yaml:"probe_url" json:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// ExportConfig configures the outbound surfaces.
type ExportConfig struct {
	Prometheus bool       `yaml:"prometheus" json:"prometheus"`
	NATS       NATSConfig `yaml:"nats" json:"nats"`
}

// NATSConfig configures the alert/result publisher.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the baseline configuration. Every zero field in a loaded
// config falls back to these values via ApplyDefaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Sampling: SamplingConfig{
			Interval:       10 * time.Second,
			MemoryInterval: 30 * time.Second,
			MaxMetrics:     1000,
			RatePerSecond:  200,
			RateBurst:      400,
			MemoryLimitMB:  512,
		},
		Alerts: AlertsConfig{MaxAlerts: 100},
		Trend: TrendConfig{
			Window:      5,
			GrowthBytes: 10 * 1024 * 1024,
		},
		Rules: RulesConfig{
			CheckInterval: 5 * time.Second,
			SettleDelay:   time.Second,
			MaxResults:    100,
			RecentWindow:  50,
		},
		Cache: CacheConfig{
			MaxEntries: 500,
			DefaultTTL: 5 * time.Minute,
			PoolSize:   32,
			FramePool:  16,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Audio: AudioConfig{
			Enabled:       true,
			AdaptInterval: time.Second,
			SampleRate:    48000,
			Channels:      2,
			MinBuffer:     256,
			MaxBuffer:     16384,
			StartLevel:    1,
			Workers:       2,
		},
		Network: NetworkConfig{
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Export: ExportConfig{
			Prometheus: true,
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				SubjectPrefix: "metronome",
			},
		},
		Admin: AdminConfig{Addr: ":9477"},
		Thresholds: []domain.Threshold{
			{MetricName: domain.MetricMemoryUsage, Warning: 70, Critical: 90, Unit: domain.UnitPercentage},
			{MetricName: domain.MetricHeapUtilization, Warning: 80, Critical: 95, Unit: domain.UnitPercentage},
			{MetricName: domain.MetricCPUUsage, Warning: 70, Critical: 90, Unit: domain.UnitPercentage},
			{MetricName: domain.MetricGCPause, Warning: 20, Critical: 100, Unit: domain.UnitMilliseconds},
			{MetricName: domain.MetricSchedulerLatency, Warning: 10, Critical: 50, Unit: domain.UnitMilliseconds},
			{MetricName: domain.MetricNetworkRTT, Warning: 200, Critical: 1000, Unit: domain.UnitMilliseconds},
			{MetricName: domain.MetricAudioLatency, Warning: 20, Critical: 50, Unit: domain.UnitMilliseconds},
			{MetricName: domain.MetricFrameRate, Warning: 45, Critical: 24, Unit: domain.UnitFPS, Polarity: domain.LowerIsWorse},
		},
	}
}

// ApplyDefaults fills any zero-valued field from Default. Booleans are
// left as loaded; only capacities, intervals and addresses are defaulted.
func (c *Config) ApplyDefaults() {
	def := Default()

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Sampling.Interval <= 0 {
		c.Sampling.Interval = def.Sampling.Interval
	}
	if c.Sampling.MemoryInterval <= 0 {
		c.Sampling.MemoryInterval = def.Sampling.MemoryInterval
	}
	if c.Sampling.MaxMetrics <= 0 {
		c.Sampling.MaxMetrics = def.Sampling.MaxMetrics
	}
	if c.Sampling.RatePerSecond <= 0 {
		c.Sampling.RatePerSecond = def.Sampling.RatePerSecond
	}
	if c.Sampling.RateBurst <= 0 {
		c.Sampling.RateBurst = def.Sampling.RateBurst
	}
	if c.Sampling.MemoryLimitMB <= 0 {
		c.Sampling.MemoryLimitMB = def.Sampling.MemoryLimitMB
	}
	if c.Alerts.MaxAlerts <= 0 {
		c.Alerts.MaxAlerts = def.Alerts.MaxAlerts
	}
	if c.Trend.Window <= 0 {
		c.Trend.Window = def.Trend.Window
	}
	if c.Trend.GrowthBytes <= 0 {
		c.Trend.GrowthBytes = def.Trend.GrowthBytes
	}
	if c.Rules.CheckInterval <= 0 {
		c.Rules.CheckInterval = def.Rules.CheckInterval
	}
	if c.Rules.SettleDelay <= 0 {
		c.Rules.SettleDelay = def.Rules.SettleDelay
	}
	if c.Rules.MaxResults <= 0 {
		c.Rules.MaxResults = def.Rules.MaxResults
	}
	if c.Rules.RecentWindow <= 0 {
		c.Rules.RecentWindow = def.Rules.RecentWindow
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = def.Cache.DefaultTTL
	}
	if c.Cache.PoolSize <= 0 {
		c.Cache.PoolSize = def.Cache.PoolSize
	}
	if c.Cache.FramePool <= 0 {
		c.Cache.FramePool = def.Cache.FramePool
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = def.Cache.Redis.Addr
	}
	if c.Audio.AdaptInterval <= 0 {
		c.Audio.AdaptInterval = def.Audio.AdaptInterval
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Audio.MinBuffer <= 0 {
		c.Audio.MinBuffer = def.Audio.MinBuffer
	}
	if c.Audio.MaxBuffer <= 0 {
		c.Audio.MaxBuffer = def.Audio.MaxBuffer
	}
	if c.Audio.Workers <= 0 {
		c.Audio.Workers = def.Audio.Workers
	}
	if c.Network.ProbeInterval <= 0 {
		c.Network.ProbeInterval = def.Network.ProbeInterval
	}
	if c.Network.ProbeTimeout <= 0 {
		c.Network.ProbeTimeout = def.Network.ProbeTimeout
	}
	if c.Export.NATS.URL == "" {
		c.Export.NATS.URL = def.Export.NATS.URL
	}
	if c.Export.NATS.SubjectPrefix == "" {
		c.Export.NATS.SubjectPrefix = def.Export.NATS.SubjectPrefix
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = def.Admin.Addr
	}
	if len(c.Thresholds) == 0 {
		c.Thresholds = def.Thresholds
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	if c.Trend.Window < 5 {
		return fmt.Errorf("trend.window: need at least 5 snapshots, got %d", c.Trend.Window)
	}
	if c.Audio.MinBuffer > c.Audio.MaxBuffer {
		return fmt.Errorf("audio: min_buffer %d exceeds max_buffer %d", c.Audio.MinBuffer, c.Audio.MaxBuffer)
	}
	if c.Audio.StartLevel < 0 || c.Audio.StartLevel > 3 {
		return fmt.Errorf("audio.start_level: must be 0..3, got %d", c.Audio.StartLevel)
	}
	for i := range c.Thresholds {
		if err := c.Thresholds[i].Validate(); err != nil {
			return fmt.Errorf("thresholds[%d]: %w", i, err)
		}
	}
	return nil
}
