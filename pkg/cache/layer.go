// Civitloader keeps rendered thumbnails in memory to avoid decoding the same image on every listing.
// This module provides an interface on caching, so a bounded LRU and a disabled cache have the same API.

package cache

// Layer defines the interface for a generic, size-aware key-value cache.
type Layer[K comparable, V any] interface {
	// Get returns value from cache for given key and a boolean indicating whether key was found.
	// A successful Get counts as an access.
	Get(key K) (V, bool)
	// Add inserts or overwrites a key-value pair accounted as `size` bytes. It returns how many entries were
	// evicted to get back within the cache limits.
	Add(key K, value V, size int64) /*evicted*/ int
	Len() int     // Number of entries currently in the cache.
	Bytes() int64 // Sum of the sizes of the entries currently in the cache.
	Purge()       // Removes all items from the cache.
	// Usage returns the entry count and the byte total as one consistent snapshot.
	Usage() (entries int, bytes int64)
}

// NoOp is a cache layer that doesn't store any items.
// It is used when cache is disabled.
type NoOp[K comparable, V any] struct { // Implements Layer.
}

var _ Layer[int, int] = (*NoOp[int, int])(nil)

// NewNoOp returns a no-operation cache layer that does not store any items.
func NewNoOp[K comparable, V any]() *NoOp[K, V] {
	return &NoOp[K, V]{}
}

func (n *NoOp[K, V]) Get(key K) (V, bool) {
	var zero V
	return zero, false
}

func (n *NoOp[K, V]) Add(key K, value V, size int64) int { return 0 }

func (n *NoOp[K, V]) Len() int { return 0 }

func (n *NoOp[K, V]) Bytes() int64 { return 0 }

func (n *NoOp[K, V]) Usage() (int, int64) { return 0, 0 }

func (n *NoOp[K, V]) Purge() {}
