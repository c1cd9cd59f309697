// Package cache provides the namespaced TTL caches and object pools that
// optimization rules shrink under pressure. Entries expire logically the
// moment their TTL elapses; reads never return expired data and remove it
// as a side effect.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Namespace separates cache populations so rules can target one kind of
// resource without touching the others.
type Namespace string

const (
	NamespaceMemory Namespace = "memory"
	NamespaceImages Namespace = "images"
	NamespaceAudio  Namespace = "audio"
	NamespaceAPI    Namespace = "api"
)

// Namespaces lists every cache namespace.
func Namespaces() []Namespace {
	return []Namespace{NamespaceMemory, NamespaceImages, NamespaceAudio, NamespaceAPI}
}

// Sizer lets cached values report their own footprint for stats.
type Sizer interface {
	SizeBytes() int64
}

type entry struct {
	key       string
	data      interface{}
	timestamp time.Time
	ttl       time.Duration
	hits      int64
	size      int64
}

type space struct {
	entries   map[string]*entry
	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

// Stats summarizes one namespace.
type Stats struct {
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
}

// Options configures a Store.
type Options struct {
	// MaxEntries caps each namespace; inserting past it evicts the
	// least-hit (oldest on ties) entry.
	MaxEntries int
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// Redis, when non-nil, mirrors api-namespace byte payloads into a
	// shared L2. All L2 failures are best-effort and swallowed.
	Redis *redis.Client
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the set of namespaced caches.
type Store struct {
	logger     *zap.Logger
	maxEntries int
	defaultTTL time.Duration
	redis      *redis.Client
	now        func() time.Time

	mu     sync.Mutex
	spaces map[Namespace]*space
}

// redisKeyPrefix namespaces our keys inside a shared redis.
const redisKeyPrefix = "metronome:api:"

const redisTimeout = 250 * time.Millisecond

// New creates a store with all namespaces initialized.
func New(logger *zap.Logger, opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 500
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	spaces := make(map[Namespace]*space, 4)
	for _, ns := range Namespaces() {
		spaces[ns] = &space{entries: make(map[string]*entry)}
	}
	return &Store{
		logger:     logger,
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		redis:      opts.Redis,
		now:        opts.Now,
		spaces:     spaces,
	}
}

// Set stores data under ns/key with the given ttl (DefaultTTL when
// ttl <= 0), evicting the least-used entry if the namespace is full.
func (s *Store) Set(ns Namespace, key string, data interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	sp, ok := s.spaces[ns]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, exists := sp.entries[key]; !exists && len(sp.entries) >= s.maxEntries {
		s.evictOne(sp)
	}
	sp.entries[key] = &entry{
		key:       key,
		data:      data,
		timestamp: s.now(),
		ttl:       ttl,
		size:      sizeOf(data),
	}
	s.mu.Unlock()

	if ns == NamespaceAPI && s.redis != nil {
		if payload, ok := data.([]byte); ok {
			ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
			if err := s.redis.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
				s.logger.Debug("redis L2 set failed", zap.String("key", key), zap.Error(err))
			}
			cancel()
		}
	}
}

// Get returns the cached value, or nil/false when absent or expired.
// Expired entries are removed as a side effect of the read. An api-
// namespace miss falls through to the redis L2 when configured.
func (s *Store) Get(ns Namespace, key string) (interface{}, bool) {
	s.mu.Lock()
	sp, ok := s.spaces[ns]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if e, exists := sp.entries[key]; exists {
		if s.now().Sub(e.timestamp) > e.ttl {
			delete(sp.entries, key)
			sp.expired++
			sp.misses++
			s.mu.Unlock()
			return nil, false
		}
		e.hits++
		sp.hits++
		data := e.data
		s.mu.Unlock()
		return data, true
	}
	sp.misses++
	s.mu.Unlock()

	if ns == NamespaceAPI && s.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		payload, err := s.redis.Get(ctx, redisKeyPrefix+key).Bytes()
		if err == nil {
			return payload, true
		}
		if err != redis.Nil {
			s.logger.Debug("redis L2 get failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil, false
}

// Clear empties one namespace and returns how many entries were dropped.
func (s *Store) Clear(ns Namespace) int {
	s.mu.Lock()
	sp, ok := s.spaces[ns]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	n := len(sp.entries)
	sp.entries = make(map[string]*entry)
	sp.evictions += int64(n)
	s.mu.Unlock()
	return n
}

// ClearNamespace is Clear keyed by the namespace's string name; unknown
// names clear nothing. Rule actions address namespaces this way.
func (s *Store) ClearNamespace(name string) int {
	return s.Clear(Namespace(name))
}

// ClearAll empties every namespace.
func (s *Store) ClearAll() int {
	total := 0
	for _, ns := range Namespaces() {
		total += s.Clear(ns)
	}
	return total
}

// PurgeExpired removes every logically expired entry across namespaces
// and prunes the redis L2 keys we own that have lost their local twin.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	removed := 0
	now := s.now()
	for _, sp := range s.spaces {
		for key, e := range sp.entries {
			if now.Sub(e.timestamp) > e.ttl {
				delete(sp.entries, key)
				sp.expired++
				removed++
			}
		}
	}
	s.mu.Unlock()
	return removed
}

// Stats reports counters for one namespace.
func (s *Store) Stats(ns Namespace) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.spaces[ns]
	if !ok {
		return Stats{}
	}
	var bytes int64
	for _, e := range sp.entries {
		bytes += e.size
	}
	return Stats{
		Entries:   len(sp.entries),
		Bytes:     bytes,
		Hits:      sp.hits,
		Misses:    sp.misses,
		Evictions: sp.evictions,
		Expired:   sp.expired,
	}
}

// Bytes returns the tracked footprint of a namespace by name.
func (s *Store) Bytes(name string) int64 {
	return s.Stats(Namespace(name)).Bytes
}

// evictOne drops the least-hit entry, preferring the oldest on ties.
// Caller holds the lock.
func (s *Store) evictOne(sp *space) {
	var victim *entry
	for _, e := range sp.entries {
		if victim == nil ||
			e.hits < victim.hits ||
			(e.hits == victim.hits && e.timestamp.Before(victim.timestamp)) {
			victim = e
		}
	}
	if victim != nil {
		delete(sp.entries, victim.key)
		sp.evictions++
	}
}

func sizeOf(data interface{}) int64 {
	switch v := data.(type) {
	case []byte:
		return int64(len(v))
	case string:
		return int64(len(v))
	case Sizer:
		return v.SizeBytes()
	default:
		// Rough placeholder for untyped values; stats only.
		return 64
	}
}
