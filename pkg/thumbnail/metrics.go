package thumbnail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type lookupStatus string

const (
	statusHit         lookupStatus = "hit"
	statusMiss        lookupStatus = "miss" // Generated and inserted.
	statusNotFound    lookupStatus = "not_found"
	statusUnsupported lookupStatus = "unsupported"
	statusDecodeError lookupStatus = "decode_error"
	statusEncodeError lookupStatus = "encode_error"
)

var (
	lookupsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_lookups_total",
		Help: "The total number of thumbnail lookups by outcome",
	}, []string{"status"})
	evictionsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thumbnail_evictions_total",
		Help: "The total number of thumbnails evicted to stay within the cache limits",
	})
	generationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "thumbnail_generation_seconds",
		Help:    "Time spent decoding, resizing and encoding a thumbnail",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s.
	})
	entriesMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thumbnail_cache_entries",
		Help: "The number of thumbnails currently cached",
	})
	bytesMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thumbnail_cache_bytes",
		Help: "The number of payload bytes currently cached",
	})
)
