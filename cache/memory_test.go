package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(key, text string) *Entry {
	return &Entry{
		Key:        key,
		AnswerText: text,
		Confidence: 0.8,
		Sources:    []Source{{Name: "KNUST Admissions", Type: "local_knowledge"}},
	}
}

func TestMemoryTier_PutAndGet(t *testing.T) {
	tier := NewMemoryTier(10, time.Minute)

	tier.Put("key1", testEntry("key1", "fees are ..."))

	got := tier.Get("key1")
	require.NotNil(t, got)
	assert.Equal(t, "fees are ...", got.AnswerText)
	assert.Equal(t, 1, got.HitCount)
	assert.False(t, got.ExpiresAt.IsZero())
	assert.True(t, got.ExpiresAt.After(got.CreatedAt))
}

func TestMemoryTier_GetMissing(t *testing.T) {
	tier := NewMemoryTier(10, time.Minute)
	assert.Nil(t, tier.Get("absent"))
}

func TestMemoryTier_HitCounting(t *testing.T) {
	tier := NewMemoryTier(10, time.Minute)
	tier.Put("key1", testEntry("key1", "a"))

	first := tier.Get("key1")
	second := tier.Get("key1")
	require.NotNil(t, first)
	require.NotNil(t, second)

	// The stored entry starts at 1; each hit bumps it after snapshotting.
	assert.Equal(t, 1, first.HitCount)
	assert.Equal(t, 2, second.HitCount)
}

func TestMemoryTier_SnapshotIsolated(t *testing.T) {
	tier := NewMemoryTier(10, time.Minute)
	tier.Put("key1", testEntry("key1", "a"))

	got := tier.Get("key1")
	require.NotNil(t, got)
	got.AnswerText = "mutated"
	got.Sources[0].Name = "mutated"

	again := tier.Get("key1")
	require.NotNil(t, again)
	assert.Equal(t, "a", again.AnswerText)
	assert.Equal(t, "KNUST Admissions", again.Sources[0].Name)
}

func TestMemoryTier_LazyExpiry(t *testing.T) {
	tier := NewMemoryTier(10, 20*time.Millisecond)
	tier.Put("key1", testEntry("key1", "a"))

	require.NotNil(t, tier.Get("key1"))

	time.Sleep(40 * time.Millisecond)

	assert.Nil(t, tier.Get("key1"))
	assert.Equal(t, 0, tier.Len(), "expired entry should be removed on read")
}

func TestMemoryTier_CapacityEviction(t *testing.T) {
	tier := NewMemoryTier(3, time.Minute)

	for i := 1; i <= 4; i++ {
		key := fmt.Sprintf("key%d", i)
		tier.Put(key, testEntry(key, "a"))
	}

	assert.Equal(t, 3, tier.Len(), "size never exceeds capacity")
	assert.Nil(t, tier.Get("key1"), "least recently accessed entry evicted")
	assert.NotNil(t, tier.Get("key4"))
}

func TestMemoryTier_EvictionFollowsAccessOrder(t *testing.T) {
	tier := NewMemoryTier(3, time.Minute)
	tier.Put("key1", testEntry("key1", "a"))
	tier.Put("key2", testEntry("key2", "a"))
	tier.Put("key3", testEntry("key3", "a"))

	// Touch key1 so key2 becomes the LRU victim.
	require.NotNil(t, tier.Get("key1"))

	tier.Put("key4", testEntry("key4", "a"))

	assert.NotNil(t, tier.Get("key1"))
	assert.Nil(t, tier.Get("key2"))
	assert.NotNil(t, tier.Get("key3"))
	assert.NotNil(t, tier.Get("key4"))
}

func TestMemoryTier_PeekDoesNotTouch(t *testing.T) {
	tier := NewMemoryTier(2, time.Minute)
	tier.Put("key1", testEntry("key1", "a"))
	tier.Put("key2", testEntry("key2", "a"))

	// Peek must not count a hit nor refresh recency.
	assert.True(t, tier.Peek("key1"))
	assert.False(t, tier.Peek("absent"))

	tier.Put("key3", testEntry("key3", "a"))
	assert.Nil(t, tier.Get("key1"), "peek must not have refreshed key1")

	got := tier.Get("key2")
	require.NotNil(t, got)
	assert.Equal(t, 1, got.HitCount)
}

func TestMemoryTier_Reap(t *testing.T) {
	tier := NewMemoryTier(10, 20*time.Millisecond)
	tier.Put("old1", testEntry("old1", "a"))
	tier.Put("old2", testEntry("old2", "a"))

	time.Sleep(40 * time.Millisecond)
	tier.Put("fresh", testEntry("fresh", "a"))

	removed := tier.Reap()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, tier.Len())
	assert.True(t, tier.Peek("fresh"))
}

func TestMemoryTier_DeleteMatching(t *testing.T) {
	tier := NewMemoryTier(10, time.Minute)
	tier.Put("answer:KNUST:anonymous:abc", testEntry("answer:KNUST:anonymous:abc", "a"))
	tier.Put("answer:KNUST:user-1:def", testEntry("answer:KNUST:user-1:def", "a"))
	tier.Put("answer:UG:anonymous:ghi", testEntry("answer:UG:anonymous:ghi", "a"))

	removed := tier.DeleteMatching("knust")
	assert.Equal(t, 2, removed, "matching is case-insensitive")
	assert.Equal(t, 1, tier.Len())
	assert.True(t, tier.Peek("answer:UG:anonymous:ghi"))
}

func TestMemoryTier_Stats(t *testing.T) {
	tier := NewMemoryTier(2, time.Minute)
	tier.Put("key1", testEntry("key1", "a"))
	tier.Put("key2", testEntry("key2", "a"))
	tier.Put("key3", testEntry("key3", "a")) // evicts key1

	tier.Get("key2")
	tier.Get("absent")

	stats := tier.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestMemoryTier_ConcurrentAccess(t *testing.T) {
	tier := NewMemoryTier(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key%d", j%20)
				tier.Put(key, testEntry(key, "a"))
				tier.Get(key)
				tier.Peek(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, tier.Len(), 100)
}
