package cache

import (
	"strings"
	"sync"
	"time"
)

// MemoryTier is the bounded in-process tier: a map keyed by cache key with
// an intrusive doubly linked list for O(1) LRU bookkeeping. Entries expire
// lazily on read and eagerly via Reap; capacity overflows evict the least
// recently accessed entry.
type MemoryTier struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*memNode
	head     *memNode // most recently used
	tail     *memNode // least recently used

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

type memNode struct {
	key       string
	entry     *Entry
	storedAt  time.Time
	expiresAt time.Time
	prev      *memNode
	next      *memNode
}

// MemoryStats is a snapshot of the tier's counters.
type MemoryStats struct {
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// NewMemoryTier creates a memory tier bounded to capacity entries, each
// living at most ttl after it was stored.
func NewMemoryTier(capacity int, ttl time.Duration) *MemoryTier {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryTier{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*memNode),
	}
}

// Get returns a copy of the live entry for key, or nil. A hit bumps the
// stored hit count and access time after snapshotting, so the value a
// caller observes counts the hits up to and including its own.
func (m *MemoryTier) Get(key string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.items[key]
	if !ok {
		m.misses++
		return nil
	}

	now := time.Now()
	if now.After(node.expiresAt) {
		m.remove(node)
		m.expirations++
		m.misses++
		return nil
	}

	m.moveToHead(node)
	snap := node.entry.clone()
	node.entry.HitCount++
	node.entry.LastAccessedAt = now
	m.hits++
	return snap
}

// Peek reports whether a live entry exists without counting a hit or
// disturbing the LRU order.
func (m *MemoryTier) Peek(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.items[key]
	if !ok {
		return false
	}
	if time.Now().After(node.expiresAt) {
		m.remove(node)
		m.expirations++
		return false
	}
	return true
}

// Put stores a copy of the entry, restarting the memory TTL. At capacity
// the least recently accessed entry is evicted first.
func (m *MemoryTier) Put(key string, entry *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored := entry.clone()
	stored.Key = key
	stored.ExpiresAt = now.Add(m.ttl)
	if stored.HitCount < 1 {
		stored.HitCount = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.LastAccessedAt = now

	if node, ok := m.items[key]; ok {
		node.entry = stored
		node.storedAt = now
		node.expiresAt = stored.ExpiresAt
		m.moveToHead(node)
		return
	}

	if len(m.items) >= m.capacity {
		m.evictTail()
	}

	node := &memNode{
		key:       key,
		entry:     stored,
		storedAt:  now,
		expiresAt: stored.ExpiresAt,
	}
	m.items[key] = node
	m.addToHead(node)
}

// Delete removes the entry for key, if present.
func (m *MemoryTier) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.items[key]; ok {
		m.remove(node)
	}
}

// DeleteMatching removes every entry whose key contains pattern
// (case-insensitive) and returns how many were removed.
func (m *MemoryTier) DeleteMatching(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(pattern)
	removed := 0
	for key, node := range m.items {
		if strings.Contains(strings.ToLower(key), needle) {
			m.remove(node)
			removed++
		}
	}
	return removed
}

// Reap removes every expired entry, bounding growth even when nothing is
// being read. Returns how many entries were removed.
func (m *MemoryTier) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for node := m.tail; node != nil; {
		prev := node.prev
		if now.After(node.expiresAt) {
			m.remove(node)
			m.expirations++
			removed++
		}
		node = prev
	}
	return removed
}

// Clear drops every entry.
func (m *MemoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*memNode)
	m.head = nil
	m.tail = nil
}

// Len returns the current number of entries.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats returns a snapshot of the tier's counters.
func (m *MemoryTier) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		Size:        len(m.items),
		Capacity:    m.capacity,
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
	}
}

// remove unlinks the node and drops it from the index. Caller holds mu.
func (m *MemoryTier) remove(node *memNode) {
	m.unlink(node)
	delete(m.items, node.key)
}

func (m *MemoryTier) addToHead(node *memNode) {
	node.prev = nil
	node.next = m.head
	if m.head != nil {
		m.head.prev = node
	}
	m.head = node
	if m.tail == nil {
		m.tail = node
	}
}

func (m *MemoryTier) unlink(node *memNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		m.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		m.tail = node.prev
	}
}

func (m *MemoryTier) moveToHead(node *memNode) {
	if node == m.head {
		return
	}
	m.unlink(node)
	m.addToHead(node)
}

func (m *MemoryTier) evictTail() {
	if m.tail == nil {
		return
	}
	m.remove(m.tail)
	m.evictions++
}
