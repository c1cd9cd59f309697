// Package rules is the reactive half of the subsystem: a table of
// data-only optimization rules checked against recent metrics and
// executed one at a time by a single background loop. Rules carry no
// closures; the engine dispatches on the rule kind, which keeps the
// table serializable and the action set exhaustively checkable.
package rules

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/domain"
	"github.com/chordialapp/metronome/pkg/ringbuf"
)

// MetricSource supplies the recent metric window conditions are checked
// against and the before/after values for improvement deltas.
type MetricSource interface {
	Recent(n int) []domain.Metric
	Latest(name string) (domain.Metric, bool)
}

// CacheTarget is the cache surface rule actions shrink.
type CacheTarget interface {
	ClearNamespace(name string) int
	PurgeExpired() int
}

// AudioTarget lets rules back the audio engine off under pressure.
type AudioTarget interface {
	Degrade() bool
}

// HTTPTarget lets rules switch response caching on the outbound client.
type HTTPTarget interface {
	SetCachingEnabled(enabled bool)
}

// PoolTarget is an object pool rules can drain.
type PoolTarget interface {
	Drain() int
}

// Targets wires the concrete resources rule kinds act on. A kind whose
// target is nil fails with a recorded error instead of crashing the loop.
type Targets struct {
	Caches CacheTarget
	Audio  AudioTarget
	HTTP   HTTPTarget
	Pools  []PoolTarget
}

type ruleState int

const (
	stateIdle ruleState = iota
	stateQueued
	stateExecuting
)

// Options tunes the engine.
type Options struct {
	// SettleDelay is how long after an action the engine waits before
	// capturing the after-metrics.
	SettleDelay time.Duration
	// MaxResults bounds the execution log.
	MaxResults int
	// RecentWindow is how many recent metrics conditions see.
	RecentWindow int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine owns the rule table and the serialized execution loop.
type Engine struct {
	logger  *zap.Logger
	source  MetricSource
	targets Targets

	settle       time.Duration
	recentWindow int
	now          func() time.Time

	mu     sync.Mutex
	rules  map[string]*domain.Rule
	order  []string
	states map[string]ruleState

	queue   chan string
	results *ringbuf.Buffer[domain.Result]

	isOptimizing atomic.Bool
	executed     atomic.Int64
	failed       atomic.Int64

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewEngine creates an engine over the given metric source and targets.
func NewEngine(logger *zap.Logger, source MetricSource, targets Targets, opts Options) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("rules: metric source is required")
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	results, err := ringbuf.New[domain.Result](opts.MaxResults)
	if err != nil {
		return nil, err
	}
	return &Engine{
		logger:       logger,
		source:       source,
		targets:      targets,
		settle:       opts.SettleDelay,
		recentWindow: opts.RecentWindow,
		now:          opts.Now,
		rules:        make(map[string]*domain.Rule),
		states:       make(map[string]ruleState),
		queue:        make(chan string, 64),
		results:      results,
	}, nil
}

// AddRule registers a rule. Unknown kinds and duplicate IDs are rejected.
func (e *Engine) AddRule(r domain.Rule) error {
	if !knownKind(r.Kind) {
		return fmt.Errorf("rules: unknown kind %q", r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("rules: rule ID is required")
	}
	if r.Metric == "" {
		return fmt.Errorf("rules: rule %s: trigger metric is required", r.ID)
	}
	if r.Cooldown <= 0 {
		r.Cooldown = 30 * time.Second
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.ID]; exists {
		return fmt.Errorf("rules: rule %s already registered", r.ID)
	}
	e.rules[r.ID] = &r
	e.order = append(e.order, r.ID)
	e.states[r.ID] = stateIdle
	return nil
}

// SetEnabled flips a rule on or off and reports whether it existed.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return false
	}
	r.Enabled = enabled
	return true
}

// Rules returns a copy of the table, highest priority first.
func (e *Engine) Rules() []domain.Rule {
	e.mu.Lock()
	out := make([]domain.Rule, 0, len(e.rules))
	for _, id := range e.order {
		out = append(out, *e.rules[id])
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Results returns the execution log, oldest first.
func (e *Engine) Results() []domain.Result {
	return e.results.Snapshot()
}

// IsOptimizing reports whether a rule action is currently executing.
func (e *Engine) IsOptimizing() bool {
	return e.isOptimizing.Load()
}

// Start launches the executor loop.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return fmt.Errorf("rules: engine already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.executor(loopCtx)
	return nil
}

// Stop halts the executor. A rule mid-execution finishes first.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.running = false
}

// RunCheck scans the rule table against the recent metric window and
// queues every enabled rule whose condition holds and whose cooldown has
// elapsed. Rules already queued or executing are skipped.
func (e *Engine) RunCheck() {
	recent := e.source.Recent(e.recentWindow)
	now := e.now()

	e.mu.Lock()
	var due []string
	for _, id := range e.order {
		r := e.rules[id]
		if !r.Enabled || e.states[id] != stateIdle {
			continue
		}
		if !r.LastExecuted.IsZero() && now.Sub(r.LastExecuted) < r.Cooldown {
			continue
		}
		if !conditionMet(r, recent) {
			continue
		}
		due = append(due, id)
	}
	// Queue highest priority first.
	sort.SliceStable(due, func(i, j int) bool {
		return e.rules[due[i]].Priority > e.rules[due[j]].Priority
	})
	for _, id := range due {
		select {
		case e.queue <- id:
			e.states[id] = stateQueued
		default:
			// Queue full; the rule stays idle and the next check
			// will pick it up again.
		}
	}
	e.mu.Unlock()
}

// executor drains the queue one rule at a time. Actions are serialized so
// two rules never mutate the same resource concurrently.
func (e *Engine) executor(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.queue:
			e.execute(ctx, id)
		}
	}
}

func (e *Engine) execute(ctx context.Context, id string) {
	e.mu.Lock()
	r, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	e.states[id] = stateExecuting
	rule := *r
	e.mu.Unlock()

	e.isOptimizing.Store(true)
	defer e.isOptimizing.Store(false)

	before, hasBefore := e.latestValue(rule.Metric)

	err := e.apply(rule)

	// Give the action's effect time to show up in the metrics before
	// capturing the after-snapshot.
	if err == nil {
		select {
		case <-ctx.Done():
		case <-time.After(e.settle):
		}
	}

	result := domain.Result{
		RuleID:    rule.ID,
		Kind:      rule.Kind,
		Success:   err == nil,
		Timestamp: e.now(),
	}
	if err != nil {
		result.Error = err.Error()
		e.failed.Add(1)
		e.logger.Warn("optimization rule failed",
			zap.String("rule", rule.ID),
			zap.String("kind", string(rule.Kind)),
			zap.Error(err))
	} else {
		if after, hasAfter := e.latestValue(rule.Metric); hasBefore && hasAfter && before != 0 {
			result.Improvement = &domain.Improvement{
				Metric:     rule.Metric,
				Before:     before,
				After:      after,
				Percentage: (before - after) / before * 100,
			}
		}
		e.logger.Info("optimization rule executed",
			zap.String("rule", rule.ID),
			zap.String("kind", string(rule.Kind)))
	}
	e.results.Append(result)
	e.executed.Add(1)

	e.mu.Lock()
	if r, ok := e.rules[id]; ok {
		r.LastExecuted = e.now()
		e.states[id] = stateIdle
	}
	e.mu.Unlock()
}

func (e *Engine) latestValue(name string) (float64, bool) {
	m, ok := e.source.Latest(name)
	if !ok {
		return 0, false
	}
	return m.Value, true
}

// apply dispatches the rule kind to its action. A panicking action is
// recovered into an error; the loop must survive any single rule.
func (e *Engine) apply(rule domain.Rule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	switch rule.Kind {
	case domain.RuleMemoryCleanup:
		if e.targets.Caches == nil {
			return fmt.Errorf("no cache target wired")
		}
		cleared := e.targets.Caches.ClearNamespace("memory")
		runtime.GC()
		e.logger.Debug("memory cleanup", zap.Int("cleared", cleared))
		return nil

	case domain.RuleImageCacheTrim:
		if e.targets.Caches == nil {
			return fmt.Errorf("no cache target wired")
		}
		e.targets.Caches.ClearNamespace("images")
		return nil

	case domain.RuleNetworkCache:
		if e.targets.HTTP == nil {
			return fmt.Errorf("no http target wired")
		}
		e.targets.HTTP.SetCachingEnabled(true)
		return nil

	case domain.RuleAudioBuffer:
		if e.targets.Audio == nil {
			return fmt.Errorf("no audio target wired")
		}
		e.targets.Audio.Degrade()
		return nil

	case domain.RuleStorageCleanup:
		if e.targets.Caches == nil {
			return fmt.Errorf("no cache target wired")
		}
		e.targets.Caches.PurgeExpired()
		return nil

	case domain.RulePoolDrain:
		if len(e.targets.Pools) == 0 {
			return fmt.Errorf("no pool targets wired")
		}
		for _, p := range e.targets.Pools {
			p.Drain()
		}
		return nil

	default:
		return fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// conditionMet checks a rule's trigger against the recent window. Audio
// buffer rules react to the latest sample; everything else averages the
// window so one spike does not trigger a cleanup.
func conditionMet(r *domain.Rule, recent []domain.Metric) bool {
	switch r.Kind {
	case domain.RuleAudioBuffer:
		for i := len(recent) - 1; i >= 0; i-- {
			if recent[i].Name == r.Metric {
				return recent[i].Value >= r.Trigger
			}
		}
		return false
	default:
		var sum float64
		var count int
		for i := range recent {
			if recent[i].Name == r.Metric {
				sum += recent[i].Value
				count++
			}
		}
		if count == 0 {
			return false
		}
		return sum/float64(count) >= r.Trigger
	}
}

func knownKind(k domain.RuleKind) bool {
	for _, known := range domain.Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Stats reports execution counters.
func (e *Engine) Stats() (executed, failed int64) {
	return e.executed.Load(), e.failed.Load()
}
