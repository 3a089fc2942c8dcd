// Civitloader shows a small preview next to every image in a folder listing. This module renders those previews and
// keeps them in a bounded, memory-aware LRU cache so that listing the same folder twice does not decode every image
// again.
//
// Cache keys bind the absolute path to the file's modification time and the thumbnail box. Editing a file therefore
// changes its key: the next lookup is a miss and the entry under the old key stays in the cache, unreachable, until
// LRU pressure evicts it. There is no invalidation sweep.
//
// Generation runs outside the cache lock on a bounded worker pool. Concurrent misses for the same key share one
// generation. Insertion and eviction run under the cache lock, so readers never see the cache above its limits.

package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nobletooth/civitloader/pkg/cache"
	"github.com/nobletooth/civitloader/pkg/config"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound          = errors.New("not a regular file")
	ErrUnsupportedFormat = errors.New("unsupported image extension")
	ErrDecode            = errors.New("failed to decode image")
	ErrEncode            = errors.New("failed to encode thumbnail")
)

// SupportedExtensions are the lower-cased file extensions, without the dot, that get a thumbnail.
var SupportedExtensions = []string{"jpg", "jpeg", "png", "bmp", "tiff", "tif", "webp", "gif"}

// IsImageFile reports whether the path has a supported image extension. The content is not inspected.
func IsImageFile(path string) bool {
	extension := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return slices.Contains(SupportedExtensions, extension)
}

// DataURI wraps a payload returned by Cache.Get so it can be embedded in HTML or JSON.
func DataURI(payload string) string {
	return "data:image/jpeg;base64," + payload
}

// Config holds the limits of a cache instance. It never changes after New.
type Config struct {
	Disabled       bool  // Every lookup generates and nothing is stored.
	MaxEntries     int   `validate:"gt=0"`
	MaxMemoryBytes int64 `validate:"gt=0"`
	Width          int   `validate:"gt=0"`
	Height         int   `validate:"gt=0"`
	Workers        int   `validate:"gt=0"` // Maximum concurrent generations.
	// MaxPixels caps width*height as declared by the image header. Larger images are rejected before decoding.
	MaxPixels int64 `validate:"gt=0"`
}

// DefaultMaxPixels is the largest image, in pixels, that gets a thumbnail by default.
const DefaultMaxPixels = 178_956_970

// DefaultConfig returns a config with 100 entries, 50 MiB and a 150x150 box.
func DefaultConfig() Config {
	return Config{MaxEntries: 100, MaxMemoryBytes: 50 << 20, Width: 150, Height: 150, Workers: 4,
		MaxPixels: DefaultMaxPixels}
}

// Stats is a snapshot of the cache occupancy and configuration.
type Stats struct {
	EntryCount     int   `json:"entry_count"`
	MaxEntries     int   `json:"max_entries"`
	MemoryBytes    int64 `json:"memory_bytes"`
	MaxMemoryBytes int64 `json:"max_memory_bytes"`
	Width          int   `json:"thumbnail_width"`
	Height         int   `json:"thumbnail_height"`
}

// Cache renders image files into base64 JPEG thumbnails and keeps the results in memory.
// A single Cache is shared by every consumer in the process.
type Cache struct {
	config   Config
	store    FileStore
	entries  cache.Layer[Key, string]
	workers  *semaphore.Weighted
	inflight singleflight.Group
}

// New validates the config and builds an empty cache reading files from `store`.
func New(conf Config, store FileStore) (*Cache, error) {
	if err := config.Validate(conf); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
	}
	if store == nil {
		store = OSFileStore{}
	}
	var entries cache.Layer[Key, string]
	if conf.Disabled {
		entries = cache.NewNoOp[Key, string]()
	} else {
		lru := cache.NewLRU[Key, string](conf.MaxEntries, conf.MaxMemoryBytes,
			func(Key, string) { evictionsMetric.Inc() })
		lru.SetUsageCallback(func(entries int, bytes int64) {
			entriesMetric.Set(float64(entries))
			bytesMetric.Set(float64(bytes))
		})
		entries = lru
	}
	entriesMetric.Set(0)
	bytesMetric.Set(0)
	return &Cache{
		config:  conf,
		store:   store,
		entries: entries,
		workers: semaphore.NewWeighted(int64(conf.Workers)),
	}, nil
}

// Get returns the base64 JPEG thumbnail of the image at `path`. It returns false when the path is not a regular
// file, does not have a supported extension, or cannot be rendered. Failures are logged, never returned.
func (c *Cache) Get(path string) (string, bool) {
	payload, status, err := c.lookup(path)
	lookupsMetric.WithLabelValues(string(status)).Inc()
	switch status {
	case statusHit, statusMiss:
		return payload, true
	case statusDecodeError, statusEncodeError:
		slog.Warn("Failed to create thumbnail.", "path", path, "error", err)
	default:
		slog.Debug("Skipped thumbnail.", "path", path, "reason", err)
	}
	return "", false
}

func (c *Cache) lookup(path string) (string, lookupStatus, error) {
	info, err := c.store.Stat(path)
	if err != nil {
		return "", statusNotFound, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return "", statusNotFound, ErrNotFound
	}
	if !IsImageFile(path) {
		return "", statusUnsupported, ErrUnsupportedFormat
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", statusNotFound, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	key := NewKey(absPath, info.ModTime().UnixNano(), c.config.Width, c.config.Height)
	if payload, found := c.entries.Get(key); found {
		return payload, statusHit, nil
	}

	generated, err, _ := c.inflight.Do(key.String(), func() (any, error) {
		// Another caller may have finished the same key between our lookup and this point.
		if payload, found := c.entries.Get(key); found {
			return payload, nil
		}
		payload, err := c.generate(path)
		if err != nil {
			return "", err
		}
		c.entries.Add(key, payload, int64(len(payload)))
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, ErrEncode) {
			return "", statusEncodeError, err
		}
		return "", statusDecodeError, err
	}
	return generated.(string), statusMiss, nil
}

// generate renders the file on one of the worker slots.
func (c *Cache) generate(path string) (string, error) {
	// Acquire never fails on a background context.
	_ = c.workers.Acquire(context.Background(), 1)
	defer c.workers.Release(1)

	startedAt := time.Now()
	defer func() { generationSeconds.Observe(time.Since(startedAt).Seconds()) }()

	src, err := c.store.Open(path)
	if err != nil {
		// The file was there a moment ago; treat a vanished or unreadable file as a read failure.
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer func() { _ = src.Close() }()
	return render(src, c.config.Width, c.config.Height, c.config.MaxPixels)
}

// Clear removes every cached thumbnail. A generation that is in flight may still insert its result afterwards.
func (c *Cache) Clear() {
	c.entries.Purge()
	slog.Info("Thumbnail cache cleared.")
}

// Stats returns the current occupancy and the configured limits.
func (c *Cache) Stats() Stats {
	entries, bytes := c.entries.Usage()
	return Stats{
		EntryCount:     entries,
		MaxEntries:     c.config.MaxEntries,
		MemoryBytes:    bytes,
		MaxMemoryBytes: c.config.MaxMemoryBytes,
		Width:          c.config.Width,
		Height:         c.config.Height,
	}
}
