package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed persistent tier.
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis tier configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		TTL:          24 * time.Hour,
		KeyPrefix:    "glinax:answer:",
	}
}

// RedisStore is a PersistentStore on Redis. Entries are stored as JSON
// strings under a namespaced key with Redis handling expiry; the hit count
// inside the JSON is bumped atomically with a Lua script.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	prefix    string
	logger    *zap.Logger
	hitScript *redis.Script
}

// redisHitScript decodes the stored entry, bumps its hit count and access time,
// and writes it back preserving the remaining TTL.
var redisHitScript = redis.NewScript(`
	local data = redis.call('GET', KEYS[1])
	if not data then
		return 0
	end
	local entry = cjson.decode(data)
	entry.hit_count = (entry.hit_count or 0) + 1
	entry.last_accessed_at = ARGV[1]
	local ttl = redis.call('TTL', KEYS[1])
	if ttl > 0 then
		redis.call('SET', KEYS[1], cjson.encode(entry), 'EX', ttl)
	end
	return 1
`)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisConfig().TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &RedisStore{
		client:    client,
		ttl:       cfg.TTL,
		prefix:    cfg.KeyPrefix,
		logger:    logger.With(zap.String("component", "redis_store")),
		hitScript: redisHitScript,
	}

	s.logger.Info("redis store initialized",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", cfg.TTL),
	)
	return s, nil
}

// Get returns the live entry for key and bumps its persisted hit count.
// The returned snapshot is the entry as it was before this hit.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	// Redis expiry is authoritative, but a replica lagging on key
	// eviction must still never serve a dead entry.
	if !entry.ExpiresAt.After(time.Now()) {
		s.client.Del(ctx, s.redisKey(key))
		return nil, ErrCacheMiss
	}

	if err := s.hitScript.Run(ctx, s.client,
		[]string{s.redisKey(key)},
		time.Now().UTC().Format(time.RFC3339Nano),
	).Err(); err != nil && err != redis.Nil {
		s.logger.Warn("hit count update failed", zap.String("key", key), zap.Error(err))
	}

	return &entry, nil
}

// Put upserts the entry, restarting the persistent TTL.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	now := time.Now().UTC()
	stored := entry.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.LastAccessedAt.IsZero() {
		stored.LastAccessedAt = now
	}
	if stored.HitCount < 1 {
		stored.HitCount = 1
	}
	stored.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(stored.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Contains reports whether a live entry exists for key.
func (s *RedisStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// DeleteMatching removes entries whose cache key contains pattern.
func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	needle := strings.ToLower(pattern)
	var matched []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := strings.TrimPrefix(full, s.prefix)
		if strings.Contains(strings.ToLower(key), needle) {
			matched = append(matched, full)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	deleted, err := s.client.Del(ctx, matched...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed: %w", err)
	}
	return deleted, nil
}

// Stats scans live entries and aggregates their hit counts. Redis has no
// server-side aggregation over JSON values, so the scan decodes each entry;
// acceptable at the expected key volume.
func (s *RedisStore) Stats(ctx context.Context, topN int) (*StoreStats, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	stats := &StoreStats{}
	var top []TopEntry
	for start := 0; start < len(keys); start += 100 {
		end := start + 100
		if end > len(keys) {
			end = len(keys)
		}
		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget failed: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var entry Entry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				continue
			}
			stats.Entries++
			stats.TotalHits += int64(entry.HitCount)
			top = append(top, TopEntry{
				Key:            entry.Key,
				ContextLabel:   entry.ContextLabel,
				HitCount:       entry.HitCount,
				LastAccessedAt: entry.LastAccessedAt,
			})
		}
	}

	if stats.Entries > 0 {
		stats.AvgHits = float64(stats.TotalHits) / float64(stats.Entries)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].HitCount > top[j].HitCount })
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	stats.TopEntries = top
	return stats, nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}
