package domain

import "time"

// RuleKind is the closed set of optimization actions the engine knows how
// to perform. Rules are plain data; the engine dispatches on the kind, so
// the rule table stays serializable and exhaustiveness is checkable.
type RuleKind string

const (
	RuleMemoryCleanup  RuleKind = "memory_cleanup"
	RuleImageCacheTrim RuleKind = "image_cache_trim"
	RuleNetworkCache   RuleKind = "network_cache"
	RuleAudioBuffer    RuleKind = "audio_buffer"
	RuleStorageCleanup RuleKind = "storage_cleanup"
	RulePoolDrain      RuleKind = "pool_drain"
)

// Kinds lists every defined rule kind.
func Kinds() []RuleKind {
	return []RuleKind{
		RuleMemoryCleanup,
		RuleImageCacheTrim,
		RuleNetworkCache,
		RuleAudioBuffer,
		RuleStorageCleanup,
		RulePoolDrain,
	}
}

// Rule describes one optimization rule: when the aggregate of Metric over
// the recent window crosses Trigger (in the direction the kind implies),
// the engine queues the kind's action, at most once per Cooldown.
type Rule struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Kind         RuleKind      `json:"kind" yaml:"kind"`
	Category     Category      `json:"category" yaml:"category"`
	Priority     int           `json:"priority" yaml:"priority"`
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
	Metric       string        `json:"metric" yaml:"metric"`
	Trigger      float64       `json:"trigger" yaml:"trigger"`
	LastExecuted time.Time     `json:"last_executed,omitempty" yaml:"-"`
}

// Improvement captures the observed effect of one rule execution on the
// rule's trigger metric.
type Improvement struct {
	Metric     string  `json:"metric"`
	Before     float64 `json:"before"`
	After      float64 `json:"after"`
	Percentage float64 `json:"percentage"`
}

// Result records one rule execution, success or failure. Results are
// append-only and kept in a bounded log.
type Result struct {
	RuleID      string       `json:"rule_id"`
	Kind        RuleKind     `json:"kind"`
	Success     bool         `json:"success"`
	Improvement *Improvement `json:"improvement,omitempty"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
