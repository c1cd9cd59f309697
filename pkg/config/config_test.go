package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chordialapp/metronome/pkg/domain"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Sampling.MaxMetrics)
	assert.Equal(t, 100, cfg.Alerts.MaxAlerts)
	assert.Equal(t, 100, cfg.Rules.MaxResults)
}

func TestDefault_FrameRateThresholdIsLowerIsWorse(t *testing.T) {
	cfg := Default()

	var fps *domain.Threshold
	for i := range cfg.Thresholds {
		if cfg.Thresholds[i].MetricName == domain.MetricFrameRate {
			fps = &cfg.Thresholds[i]
		}
	}
	require.NotNil(t, fps)
	assert.Equal(t, domain.LowerIsWorse, fps.Polarity)
	assert.Equal(t, domain.SeverityCritical, fps.Classify(20))
	assert.Equal(t, domain.SeverityInfo, fps.Classify(60))
}

func TestApplyDefaults_FillsZeroFields(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Sampling.Interval)
	assert.Equal(t, 5, cfg.Trend.Window)
	assert.NotEmpty(t, cfg.Thresholds)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		LogLevel: "debug",
		Sampling: SamplingConfig{MaxMetrics: 42},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 42, cfg.Sampling.MaxMetrics)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "log_level",
		},
		{
			name:   "trend window too small",
			mutate: func(c *Config) { c.Trend.Window = 3 },
			want:   "trend.window",
		},
		{
			name:   "inverted audio buffers",
			mutate: func(c *Config) { c.Audio.MinBuffer = 1 << 20 },
			want:   "min_buffer",
		},
		{
			name:   "start level out of range",
			mutate: func(c *Config) { c.Audio.StartLevel = 7 },
			want:   "start_level",
		},
		{
			name: "inconsistent threshold",
			mutate: func(c *Config) {
				c.Thresholds = []domain.Threshold{{MetricName: "x", Warning: 90, Critical: 10}}
			},
			want: "thresholds[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metronome.yaml")
	data := []byte(`
log_level: warn
sampling:
  max_metrics: 250
cache:
  redis:
    enabled: true
    addr: cache.internal:6379
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("METRONOME_LOG_LEVEL", "debug")
	t.Setenv("METRONOME_NATS_URL", "nats://broker:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "env beats file")
	assert.Equal(t, 250, cfg.Sampling.MaxMetrics)
	assert.True(t, cfg.Cache.Redis.Enabled)
	assert.Equal(t, "cache.internal:6379", cfg.Cache.Redis.Addr)
	assert.True(t, cfg.Export.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.Export.NATS.URL)
	assert.Equal(t, 5*time.Second, cfg.Rules.CheckInterval, "untouched sections get defaults")
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/metronome.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Sampling.MaxMetrics, cfg.Sampling.MaxMetrics)
}
