package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by persistent stores when no live entry exists
// for a key. Callers must treat any other error the same way: the cache is
// an optimization, never a correctness dependency.
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Source describes where an answer's content came from (local knowledge
// base entry, web result, etc.).
type Source struct {
	Name       string  `json:"name"`
	URL        string  `json:"url,omitempty"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Answer is the generator's output for a query.
type Answer struct {
	Text       string   `json:"text"`
	Sources    []Source `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Entry is a cached answer together with its bookkeeping. HitCount starts
// at 1 when the entry is stored and is bumped on every subsequent hit.
type Entry struct {
	Key            string    `json:"key"`
	AnswerText     string    `json:"answer_text"`
	Sources        []Source  `json:"sources,omitempty"`
	Confidence     float64   `json:"confidence"`
	ContextLabel   string    `json:"context_label"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	HitCount       int       `json:"hit_count"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Answer rebuilds the generator-shaped answer from the entry.
func (e *Entry) Answer() Answer {
	return Answer{
		Text:       e.AnswerText,
		Sources:    e.Sources,
		Confidence: e.Confidence,
	}
}

// clone returns a deep copy so callers never share mutable state with the
// tier that stored the entry.
func (e *Entry) clone() *Entry {
	cp := *e
	if len(e.Sources) > 0 {
		cp.Sources = append([]Source(nil), e.Sources...)
	}
	return &cp
}

// TopEntry is one row of a store's most-hit ranking.
type TopEntry struct {
	Key            string    `json:"key"`
	ContextLabel   string    `json:"context_label"`
	HitCount       int       `json:"hit_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// StoreStats aggregates a persistent store's live entries.
type StoreStats struct {
	Entries    int64      `json:"entries"`
	TotalHits  int64      `json:"total_hits"`
	AvgHits    float64    `json:"avg_hits"`
	TopEntries []TopEntry `json:"top_entries,omitempty"`
}

// PersistentStore is the durable tier behind the manager. Implementations
// must filter expired entries on read and bump the persisted hit count on
// every successful Get. Errors are returned as-is; the manager is the one
// that degrades them to misses.
type PersistentStore interface {
	// Get returns the live entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put upserts the entry under its key, restarting the store's TTL.
	Put(ctx context.Context, entry *Entry) error

	// Contains reports whether a live entry exists without touching it.
	Contains(ctx context.Context, key string) (bool, error)

	// DeleteMatching removes entries whose key contains pattern
	// (case-insensitive) and returns how many were removed.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)

	// Stats aggregates live entries, ranking the topN most hit.
	Stats(ctx context.Context, topN int) (*StoreStats, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
