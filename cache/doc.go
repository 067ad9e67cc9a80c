/*
Package cache implements the two-tier response cache that sits in front of
the answer generator: a bounded in-process LRU tier backed by a durable
store shared across replicas.

# Overview

Admissions queries repeat heavily (fees, cut-off points, deadlines), while
generating an answer is slow and costly. The cache serves repeats without
touching the generator: lookups try the memory tier first, then the
persistent tier, promoting persistent hits into memory. Writes are gated by
a conservative policy so personalized, low-confidence, or ambiguous answers
are never shared.

# Core types

  - BuildKey: deterministic key derivation from query text plus context and
    identity labels.
  - Policy: ordered accept/reject rules applied before any write.
  - MemoryTier: bounded LRU with TTL, lazy expiry, and periodic reaping.
  - PersistentStore: the durable tier contract, with RedisStore and
    MongoStore implementations.
  - Manager: the orchestrator exposing Get/Put/Invalidate/Stats/WarmUp.

# Failure semantics

The cache is an optimization, never a dependency. Every public Manager
operation is fail-open: store timeouts, I/O errors, and malformed entries
are logged and degrade to a miss or no-op. A request that would have
succeeded without the cache can never fail because of it.

# Usage

	store, err := cache.NewRedisStore(cache.DefaultRedisConfig(), logger)
	if err != nil { ... }
	mgr := cache.NewManager(cache.DefaultConfig(), store, collector, logger)
	mgr.Start()
	defer mgr.Close()

	if res := mgr.Get(ctx, query, university, userID); res != nil {
		return res.Answer
	}
	answer := generate(ctx, query) // external generator, out of band
	mgr.Put(ctx, query, answer, university, userID)
*/
package cache
