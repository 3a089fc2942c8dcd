package thumbnail

import (
	"flag"
	"runtime"
)

var (
	enableCacheFlag = flag.Bool("enable_thumbnail_cache", true,
		"Keep generated thumbnails in memory. When false every listing renders its thumbnails again.")
	maxEntriesFlag  = flag.Int("thumbnail_cache_max_entries", 100, "Maximum number of cached thumbnails.")
	maxMemoryMBFlag = flag.Int64("thumbnail_cache_max_memory_mb", 50, "Maximum size of cached thumbnails in MiB.")
	widthFlag       = flag.Int("thumbnail_width", 150, "Maximum thumbnail width in pixels.")
	heightFlag      = flag.Int("thumbnail_height", 150, "Maximum thumbnail height in pixels.")
	workersFlag     = flag.Int("thumbnail_workers", runtime.NumCPU(), "Maximum number of concurrent thumbnail renders.")
	maxPixelsFlag   = flag.Int64("thumbnail_max_pixels", DefaultMaxPixels,
		"Images whose header declares more pixels than this get no thumbnail.")
)

// ConfigFromFlags reads the cache config from the command line flags.
func ConfigFromFlags() Config {
	return Config{
		Disabled:       !*enableCacheFlag,
		MaxEntries:     *maxEntriesFlag,
		MaxMemoryBytes: *maxMemoryMBFlag << 20,
		Width:          *widthFlag,
		Height:         *heightFlag,
		Workers:        *workersFlag,
		MaxPixels:      *maxPixelsFlag,
	}
}

// NewFromFlags builds the process cache from the command line flags, reading from the local file system.
func NewFromFlags() (*Cache, error) {
	return New(ConfigFromFlags(), OSFileStore{})
}
