// This module implements a size-aware LRU cache.
// Eviction Policy:
// Entries are kept in a doubly linked recency list, most recently accessed at the front. Every Get hit and every Add
// moves the entry to the front and stamps its last access time. After each Add, entries are removed from the back
// until both the entry count and the byte total are within their limits. Insertion and eviction happen under the same
// lock, so no reader ever observes the cache above its limits.

package cache

import (
	"sync"
	"time"

	"github.com/nobletooth/civitloader/pkg/utils"
)

// Entry is a snapshot of a cached item and its bookkeeping.
type Entry[K comparable, V any] struct {
	Key            K
	Value          V
	Size           int64     // Bytes accounted for this entry.
	CreatedAt      time.Time // When the entry was first inserted.
	LastAccessedAt time.Time // Strictly increases with every access of this key.
}

// LRU is a thread-safe in-memory cache bounded by both entry count and total entry size.
type LRU[K comparable, V any] struct {
	maxEntries int
	maxBytes   int64
	bytes      int64                              // Running sum of the entry sizes.
	index      map[K]*linkedListNode[*Entry[K, V]] // Provides lookup for an entry by its key.
	recency    *linkedList[*Entry[K, V]]           // Front is the most recently accessed entry.
	// evictionCallback is an optional callback function that is executed when an entry is evicted by Add. It runs
	// under the cache lock, so it must not call any of the cache methods to avoid deadlocks.
	evictionCallback func(K, V)
	// usageCallback receives the entry count and byte total after every change, under the cache lock. Calls are
	// therefore ordered and the last one always matches the cache.
	usageCallback func(entries int, bytes int64)
	now           func() time.Time
	mux           sync.Mutex
}

var _ Layer[int, int] = (*LRU[int, int])(nil)

// NewLRU is the constructor for LRU. Non-positive limits are invariant violations and are clamped to 1.
// NOTE: eviction callback function must not call any of the cache methods or else we'll be having a deadlock.
func NewLRU[K comparable, V any](maxEntries int, maxBytes int64, evictionCallback func(K, V)) *LRU[K, V] {
	if maxEntries <= 0 {
		utils.RaiseInvariant("lru", "non_positive_max_entries",
			"Invalid max entries has been given to LRU cache.", "maxEntries", maxEntries)
		maxEntries = 1
	}
	if maxBytes <= 0 {
		utils.RaiseInvariant("lru", "non_positive_max_bytes",
			"Invalid max bytes has been given to LRU cache.", "maxBytes", maxBytes)
		maxBytes = 1
	}
	return &LRU[K, V]{
		maxEntries:       maxEntries,
		maxBytes:         maxBytes,
		index:            make(map[K]*linkedListNode[*Entry[K, V]], maxEntries),
		recency:          new(linkedList[*Entry[K, V]]),
		evictionCallback: evictionCallback,
		now:              time.Now,
	}
}

// SetUsageCallback registers a function run after every Add and Purge with the resulting usage. Like the eviction
// callback, it runs under the cache lock and must not call any of the cache methods.
// It must be set before the cache is shared between goroutines.
func (c *LRU[K, V]) SetUsageCallback(usageCallback func(entries int, bytes int64)) {
	c.usageCallback = usageCallback
}

// reportUsage runs the usage callback. The caller must hold the lock.
func (c *LRU[K, V]) reportUsage() {
	if c.usageCallback != nil {
		c.usageCallback(c.recency.Len(), c.bytes)
	}
}

// touch stamps a new access time on the entry, never going backwards or standing still.
func (c *LRU[K, V]) touch(entry *Entry[K, V]) {
	accessedAt := c.now()
	if !accessedAt.After(entry.LastAccessedAt) {
		accessedAt = entry.LastAccessedAt.Add(time.Nanosecond)
	}
	entry.LastAccessedAt = accessedAt
}

// Get returns the value for the key and marks it as the most recently used entry.
func (c *LRU[K, V]) Get(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, keyExists := c.index[key]
	if !keyExists {
		return *new(V), false
	}
	c.touch(node.Value)
	c.recency.MoveToFront(node)
	return node.Value.Value, true
}

// Peek returns a snapshot of the entry for the key without counting as an access.
func (c *LRU[K, V]) Peek(key K) (Entry[K, V], bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, keyExists := c.index[key]
	if !keyExists {
		return Entry[K, V]{}, false
	}
	return *node.Value, true
}

// Add inserts or overwrites the key and then evicts least recently used entries until the cache is within its limits.
// An entry larger than the byte limit on its own is evicted right away.
func (c *LRU[K, V]) Add(key K, value V, size int64) /*evicted*/ int {
	if size < 0 {
		utils.RaiseInvariant("lru", "negative_entry_size", "Negative entry size has been given to LRU cache.",
			"size", size)
		size = 0
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	if node, keyExists := c.index[key]; keyExists {
		// Overwrite in place; the memory total follows the new size.
		c.bytes += size - node.Value.Size
		node.Value.Value = value
		node.Value.Size = size
		c.touch(node.Value)
		c.recency.MoveToFront(node)
	} else {
		now := c.now()
		c.index[key] = c.recency.PushFront(&Entry[K, V]{
			Key:            key,
			Value:          value,
			Size:           size,
			CreatedAt:      now,
			LastAccessedAt: now,
		})
		c.bytes += size
	}
	evicted := c.evictToCapacity()
	c.reportUsage()
	return evicted
}

// evictToCapacity removes entries from the back of the recency list until both limits hold.
// The caller must hold the lock.
func (c *LRU[K, V]) evictToCapacity() /*evicted*/ int {
	evicted := 0
	for c.recency.Len() > c.maxEntries || c.bytes > c.maxBytes {
		victim := c.recency.Back()
		if victim == nil { // Unreachable while the accounting is consistent.
			utils.RaiseInvariant("lru", "inconsistent_accounting", "Byte total is positive on an empty cache.",
				"bytes", c.bytes)
			c.bytes = 0
			break
		}
		c.recency.Remove(victim)
		delete(c.index, victim.Value.Key)
		c.bytes -= victim.Value.Size
		evicted++
		if c.evictionCallback != nil {
			c.evictionCallback(victim.Value.Key, victim.Value.Value)
		}
	}
	return evicted
}

func (c *LRU[K, V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.recency.Len()
}

func (c *LRU[K, V]) Bytes() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.bytes
}

// Usage returns the entry count and byte total read under one lock acquisition.
func (c *LRU[K, V]) Usage() (entries int, bytes int64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.recency.Len(), c.bytes
}

// Keys returns the cached keys ordered from the most to the least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mux.Lock()
	defer c.mux.Unlock()

	keys := make([]K, 0, c.recency.Len())
	for node := c.recency.Front(); node != nil; node = node.Next() {
		keys = append(keys, node.Value.Key)
	}
	return keys
}

// Purge removes every entry and resets the byte total. The eviction callback is not run.
func (c *LRU[K, V]) Purge() {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.index = make(map[K]*linkedListNode[*Entry[K, V]], c.maxEntries)
	c.recency = new(linkedList[*Entry[K, V]])
	c.bytes = 0
	c.reportUsage()
}
