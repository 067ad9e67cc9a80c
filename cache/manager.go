package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/glinax/answercache/internal/metrics"
)

// Tier names a cache backend in results and metrics.
type Tier string

const (
	TierMemory     Tier = "memory"
	TierPersistent Tier = "persistent"
)

// Config tunes the manager and its memory tier. All values are product
// tuning knobs, not contracts; DefaultConfig() carries the shipped values.
type Config struct {
	// MemoryCapacity bounds the memory tier's entry count.
	MemoryCapacity int `yaml:"memory_capacity" json:"memory_capacity"`

	// MemoryTTL is how long a memory-tier entry lives after it is stored.
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl"`

	// ReapInterval is how often the background sweep runs.
	ReapInterval time.Duration `yaml:"reap_interval" json:"reap_interval"`

	// StoreTimeout bounds every persistent store call; a timeout is
	// treated as a store failure and degrades to a miss.
	StoreTimeout time.Duration `yaml:"store_timeout" json:"store_timeout"`

	// StatsTopN is how many most-hit entries Stats asks the store for.
	StatsTopN int `yaml:"stats_top_n" json:"stats_top_n"`

	// Policy gates what Put is allowed to cache.
	Policy Policy `yaml:"policy" json:"policy"`
}

// DefaultConfig returns the shipped manager configuration.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity: 1000,
		MemoryTTL:      5 * time.Minute,
		ReapInterval:   5 * time.Minute,
		StoreTimeout:   2 * time.Second,
		StatsTopN:      10,
		Policy:         DefaultPolicy(),
	}
}

// Result is a cache hit: the answer plus which tier served it.
type Result struct {
	Answer Answer `json:"answer"`
	Entry  *Entry `json:"entry"`
	Cached bool   `json:"cached"`
	Tier   Tier   `json:"tier"`
}

// Stats combines both tiers' statistics. Persistent is nil when the store
// is absent or unavailable.
type Stats struct {
	Memory     MemoryStats `json:"memory"`
	Persistent *StoreStats `json:"persistent,omitempty"`
}

// WarmQuery is one known query checked during warm-up.
type WarmQuery struct {
	Text     string `yaml:"text" json:"text"`
	Context  string `yaml:"context,omitempty" json:"context,omitempty"`
	Identity string `yaml:"identity,omitempty" json:"identity,omitempty"`
}

// WarmUpReport lists which known queries are already cached. Warm-up never
// computes answers; the misses are for an operator to seed out-of-band.
type WarmUpReport struct {
	Checked int         `json:"checked"`
	Hits    int         `json:"hits"`
	Misses  int         `json:"misses"`
	Missing []WarmQuery `json:"missing,omitempty"`
}

// Manager composes the memory and persistent tiers behind the public
// get/put/invalidate/stats/warm-up operations. Every operation is
// fail-open: persistent store failures are logged and degrade to a miss or
// no-op, never to an error the caller has to handle.
type Manager struct {
	memory  *MemoryTier
	store   PersistentStore // may be nil: memory-only cache
	policy  Policy
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector

	group singleflight.Group

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewManager creates a manager with injected tiers. store and collector
// may be nil; the cache then runs memory-only and unmetered.
func NewManager(cfg Config, store PersistentStore, collector *metrics.Collector, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = def.MemoryCapacity
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = def.MemoryTTL
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.StatsTopN <= 0 {
		cfg.StatsTopN = def.StatsTopN
	}
	if cfg.Policy.MinQueryLength == 0 && cfg.Policy.MinConfidence == 0 && cfg.Policy.PersonalMarkers == nil {
		cfg.Policy = def.Policy
	}

	return &Manager{
		memory:  NewMemoryTier(cfg.MemoryCapacity, cfg.MemoryTTL),
		store:   store,
		policy:  cfg.Policy,
		config:  cfg,
		logger:  logger.With(zap.String("component", "answer_cache")),
		metrics: collector,
	}
}

// Get looks the query up in the memory tier, then the persistent tier. A
// persistent hit is promoted into the memory tier. Returns nil on a full
// miss; the caller computes a fresh answer out-of-band and calls Put.
func (m *Manager) Get(ctx context.Context, queryText, contextLabel, identityLabel string) *Result {
	if m.isClosed() {
		return nil
	}

	key := BuildKey(queryText, contextLabel, identityLabel)

	if entry := m.memory.Get(key); entry != nil {
		m.metrics.RecordHit(string(TierMemory))
		m.metrics.SetMemoryEntries(m.memory.Len())
		m.logger.Debug("memory cache hit", zap.String("key", key))
		return &Result{Answer: entry.Answer(), Entry: entry, Cached: true, Tier: TierMemory}
	}
	m.metrics.RecordMiss(string(TierMemory))

	if m.store == nil {
		return nil
	}

	// Concurrent lookups for the same key share one store round trip.
	v, err, _ := m.group.Do(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
		defer cancel()

		start := time.Now()
		entry, err := m.store.Get(cctx, key)
		m.metrics.ObserveStoreOp("get", time.Since(start))
		return entry, err
	})
	if err != nil {
		if !IsCacheMiss(err) {
			m.metrics.RecordStoreError("get")
			m.logger.Warn("persistent tier get failed", zap.String("key", key), zap.Error(err))
		}
		m.metrics.RecordMiss(string(TierPersistent))
		return nil
	}

	entry := v.(*Entry)
	m.metrics.RecordHit(string(TierPersistent))
	m.logger.Debug("persistent cache hit", zap.String("key", key))

	// Promote: the next lookup for this key is served from memory.
	m.memory.Put(key, entry)
	m.metrics.SetMemoryEntries(m.memory.Len())

	return &Result{Answer: entry.Answer(), Entry: entry, Cached: true, Tier: TierPersistent}
}

// Put caches a freshly computed answer if it passes the policy, writing
// through both tiers. Returns false on rejection, leaving any prior cache
// state for the key untouched. A persistent write failure is logged and
// dropped; the memory-tier write still counts as success.
func (m *Manager) Put(ctx context.Context, queryText string, answer Answer, contextLabel, identityLabel string) bool {
	if m.isClosed() {
		return false
	}

	if ok, rule := m.policy.Evaluate(queryText, answer); !ok {
		m.metrics.RecordPolicyRejection(rule)
		m.logger.Debug("answer rejected by cache policy",
			zap.String("rule", rule),
			zap.Float64("confidence", answer.Confidence),
		)
		return false
	}

	key := BuildKey(queryText, contextLabel, identityLabel)

	now := time.Now().UTC()
	entry := &Entry{
		Key:            key,
		AnswerText:     answer.Text,
		Sources:        answer.Sources,
		Confidence:     answer.Confidence,
		ContextLabel:   normalizeLabel(contextLabel, DefaultContextLabel),
		CreatedAt:      now,
		LastAccessedAt: now,
		HitCount:       1,
		ExpiresAt:      now.Add(m.config.MemoryTTL),
	}

	m.memory.Put(key, entry)
	m.metrics.SetMemoryEntries(m.memory.Len())

	if m.store != nil {
		cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
		defer cancel()

		start := time.Now()
		err := m.store.Put(cctx, entry)
		m.metrics.ObserveStoreOp("put", time.Since(start))
		if err != nil {
			m.metrics.RecordStoreError("put")
			m.logger.Warn("persistent tier put failed", zap.String("key", key), zap.Error(err))
		}
	}

	m.logger.Debug("answer cached", zap.String("key", key))
	return true
}

// Invalidate removes every entry whose key contains pattern from both
// tiers, returning how many were removed. Used when upstream source
// content changes.
func (m *Manager) Invalidate(ctx context.Context, pattern string) int64 {
	if m.isClosed() {
		return 0
	}

	removed := int64(m.memory.DeleteMatching(pattern))
	m.metrics.SetMemoryEntries(m.memory.Len())

	if m.store != nil {
		cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
		defer cancel()

		start := time.Now()
		n, err := m.store.DeleteMatching(cctx, pattern)
		m.metrics.ObserveStoreOp("delete_matching", time.Since(start))
		if err != nil {
			m.metrics.RecordStoreError("delete_matching")
			m.logger.Warn("persistent tier invalidation failed",
				zap.String("pattern", pattern), zap.Error(err))
		} else {
			removed += n
		}
	}

	m.logger.Info("cache invalidated",
		zap.String("pattern", pattern),
		zap.Int64("removed", removed),
	)
	return removed
}

// Stats reports both tiers. The persistent section is nil when the store
// is absent or failing.
func (m *Manager) Stats(ctx context.Context) *Stats {
	stats := &Stats{Memory: m.memory.Stats()}

	if m.store != nil && !m.isClosed() {
		cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
		defer cancel()

		start := time.Now()
		ss, err := m.store.Stats(cctx, m.config.StatsTopN)
		m.metrics.ObserveStoreOp("stats", time.Since(start))
		if err != nil {
			m.metrics.RecordStoreError("stats")
			m.logger.Warn("persistent tier stats failed", zap.Error(err))
		} else {
			stats.Persistent = ss
		}
	}
	return stats
}

// WarmUp checks cache presence for each known query and reports the
// misses. Observability aid only: answering a miss requires the external
// generator, which the cache never calls.
func (m *Manager) WarmUp(ctx context.Context, queries []WarmQuery) *WarmUpReport {
	report := &WarmUpReport{}

	for _, q := range queries {
		report.Checked++
		key := BuildKey(q.Text, q.Context, q.Identity)

		if m.memory.Peek(key) {
			report.Hits++
			continue
		}

		if m.store != nil {
			cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
			ok, err := m.store.Contains(cctx, key)
			cancel()
			if err != nil {
				m.metrics.RecordStoreError("contains")
				m.logger.Warn("persistent tier presence check failed",
					zap.String("key", key), zap.Error(err))
			} else if ok {
				report.Hits++
				continue
			}
		}

		report.Misses++
		report.Missing = append(report.Missing, q)
	}

	m.logger.Info("cache warm-up checked",
		zap.Int("checked", report.Checked),
		zap.Int("hits", report.Hits),
		zap.Int("misses", report.Misses),
	)
	return report
}

// Ping verifies the persistent store, if any.
func (m *Manager) Ping(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()
	return m.store.Ping(cctx)
}

// Start launches the background reaper. Safe to call once; subsequent
// calls are no-ops until Close.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.closed {
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.reapLoop(m.stop, m.done)

	m.logger.Info("answer cache started",
		zap.Duration("reap_interval", m.config.ReapInterval),
		zap.Int("memory_capacity", m.config.MemoryCapacity),
	)
}

// Close stops the reaper and marks the manager closed. It does not close
// the injected persistent store; the owner that constructed it does.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stop, done := m.stop, m.done
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	m.logger.Info("answer cache closed")
}

// reapLoop periodically sweeps expired memory-tier entries. Eviction is
// best-effort: a delayed or skipped sweep costs memory, never correctness.
func (m *Manager) reapLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			start := time.Now()
			removed := m.memory.Reap()
			m.metrics.ObserveReap(time.Since(start), removed)
			m.metrics.SetMemoryEntries(m.memory.Len())
			if removed > 0 {
				m.logger.Debug("reaped expired entries", zap.Int("removed", removed))
			}
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
