package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.TTL = time.Hour

	store, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return mr, store
}

func TestRedisStore_PutAndGet(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	entry := testEntry("answer:KNUST:anonymous:abc", "KNUST fees are ...")
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, entry.Key)
	require.NoError(t, err)
	assert.Equal(t, entry.Key, got.Key)
	assert.Equal(t, "KNUST fees are ...", got.AnswerText)
	assert.Equal(t, 0.8, got.Confidence)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "KNUST Admissions", got.Sources[0].Name)
	assert.Equal(t, 1, got.HitCount)
	assert.True(t, got.ExpiresAt.After(got.CreatedAt))
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, store := setupRedisStore(t)

	_, err := store.Get(context.Background(), "answer:general:anonymous:nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_HitCountBump(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	entry := testEntry("answer:KNUST:anonymous:abc", "a")
	require.NoError(t, store.Put(ctx, entry))

	first, err := store.Get(ctx, entry.Key)
	require.NoError(t, err)
	second, err := store.Get(ctx, entry.Key)
	require.NoError(t, err)

	// Each hit bumps the persisted count after snapshotting.
	assert.Equal(t, 1, first.HitCount)
	assert.Equal(t, 2, second.HitCount)
	assert.True(t, second.LastAccessedAt.After(entry.CreatedAt) ||
		second.LastAccessedAt.Equal(entry.CreatedAt))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	entry := testEntry("answer:KNUST:anonymous:abc", "a")
	require.NoError(t, store.Put(ctx, entry))

	mr.FastForward(2 * time.Hour)

	_, err := store.Get(ctx, entry.Key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_Contains(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("answer:UG:anonymous:abc", "a")))

	ok, err := store.Contains(ctx, "answer:UG:anonymous:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Contains(ctx, "answer:UG:anonymous:other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DeleteMatching(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("answer:KNUST:anonymous:abc", "a")))
	require.NoError(t, store.Put(ctx, testEntry("answer:KNUST:user-1:def", "a")))
	require.NoError(t, store.Put(ctx, testEntry("answer:UG:anonymous:ghi", "a")))

	deleted, err := store.DeleteMatching(ctx, "knust")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = store.Get(ctx, "answer:KNUST:anonymous:abc")
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := store.Get(ctx, "answer:UG:anonymous:ghi")
	require.NoError(t, err)
	assert.Equal(t, "answer:UG:anonymous:ghi", got.Key)
}

func TestRedisStore_Stats(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("answer:KNUST:anonymous:abc", "a")))
	require.NoError(t, store.Put(ctx, testEntry("answer:UG:anonymous:def", "a")))

	// Make the KNUST entry the most hit.
	_, err := store.Get(ctx, "answer:KNUST:anonymous:abc")
	require.NoError(t, err)
	_, err = store.Get(ctx, "answer:KNUST:anonymous:abc")
	require.NoError(t, err)

	stats, err := store.Stats(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(4), stats.TotalHits) // 3 + 1
	assert.InDelta(t, 2.0, stats.AvgHits, 0.001)
	require.Len(t, stats.TopEntries, 1)
	assert.Equal(t, "answer:KNUST:anonymous:abc", stats.TopEntries[0].Key)
	assert.Equal(t, 3, stats.TopEntries[0].HitCount)
}

func TestRedisStore_Ping(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.Error(t, store.Ping(ctx))
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "localhost:1" // nothing listens here

	_, err := NewRedisStore(cfg, zap.NewNop())
	assert.Error(t, err)
}
