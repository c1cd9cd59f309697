package rules

import (
	"time"

	"github.com/chordialapp/metronome/pkg/domain"
)

// DefaultRules is the built-in rule table. Triggers reference the
// well-known metric names the collectors emit; cooldowns keep any single
// mitigation from thrashing.
func DefaultRules() []domain.Rule {
	return []domain.Rule{
		{
			ID:       "memory-cleanup",
			Name:     "Clear memory caches under heap pressure",
			Kind:     domain.RuleMemoryCleanup,
			Category: domain.CategoryMemory,
			Priority: 100,
			Enabled:  true,
			Cooldown: 30 * time.Second,
			Metric:   domain.MetricMemoryUsage,
			Trigger:  85,
		},
		{
			ID:       "image-cache-trim",
			Name:     "Drop image cache when it outgrows its budget",
			Kind:     domain.RuleImageCacheTrim,
			Category: domain.CategoryMemory,
			Priority: 60,
			Enabled:  true,
			Cooldown: 60 * time.Second,
			Metric:   "cache_bytes_images",
			Trigger:  64 * 1024 * 1024,
		},
		{
			ID:       "network-cache",
			Name:     "Enable response caching on slow networks",
			Kind:     domain.RuleNetworkCache,
			Category: domain.CategoryNetwork,
			Priority: 50,
			Enabled:  true,
			Cooldown: 45 * time.Second,
			Metric:   domain.MetricNetworkRTT,
			Trigger:  300,
		},
		{
			ID:       "audio-buffer",
			Name:     "Back audio off after underruns",
			Kind:     domain.RuleAudioBuffer,
			Category: domain.CategoryAudio,
			Priority: 90,
			Enabled:  true,
			Cooldown: 10 * time.Second,
			Metric:   domain.MetricAudioUnderruns,
			Trigger:  1,
		},
		{
			ID:       "storage-cleanup",
			Name:     "Purge expired cache entries",
			Kind:     domain.RuleStorageCleanup,
			Category: domain.CategoryMemory,
			Priority: 40,
			Enabled:  true,
			Cooldown: 120 * time.Second,
			Metric:   domain.MetricHeapUtilization,
			Trigger:  90,
		},
		{
			ID:       "pool-drain",
			Name:     "Drain idle object pools under heap pressure",
			Kind:     domain.RulePoolDrain,
			Category: domain.CategoryMemory,
			Priority: 30,
			Enabled:  true,
			Cooldown: 60 * time.Second,
			Metric:   domain.MetricHeapUtilization,
			Trigger:  95,
		},
	}
}
