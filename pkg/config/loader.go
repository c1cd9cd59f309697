package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "METRONOME_"

// Load builds the configuration in priority order: defaults, then the
// YAML file at path (optional when path is empty), then environment
// overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps METRONOME_* variables onto config fields.
func applyEnvOverrides(cfg *Config) error {
	overrides := map[string]func(string) error{
		"LOG_LEVEL": func(v string) error {
			cfg.LogLevel = v
			return nil
		},
		"ADMIN_ADDR": func(v string) error {
			cfg.Admin.Addr = v
			return nil
		},
		"NATS_URL": func(v string) error {
			cfg.Export.NATS.URL = v
			cfg.Export.NATS.Enabled = true
			return nil
		},
		"REDIS_ADDR": func(v string) error {
			cfg.Cache.Redis.Addr = v
			cfg.Cache.Redis.Enabled = true
			return nil
		},
		"PROBE_URL": func(v string) error {
			cfg.Network.ProbeURL = v
			return nil
		},
		"SAMPLING_INTERVAL": func(v string) error {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("SAMPLING_INTERVAL: %w", err)
			}
			cfg.Sampling.Interval = d
			return nil
		},
		"MAX_METRICS": func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("MAX_METRICS: %w", err)
			}
			cfg.Sampling.MaxMetrics = n
			return nil
		},
	}

	for key, apply := range overrides {
		if val := os.Getenv(envPrefix + key); val != "" {
			if err := apply(val); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseDuration accepts Go duration strings and bare integers (seconds).
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
