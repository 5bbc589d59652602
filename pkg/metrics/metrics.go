package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_cache_evictions_total",
		Help: "Total number of tiles evicted from the cache",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tile_cache_size",
		Help: "Number of tiles currently cached",
	})

	FetchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetches_started_total",
		Help: "Total number of tile fetches dispatched to workers",
	})

	FetchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetches_completed_total",
		Help: "Total number of tile fetches that returned an image",
	})

	FetchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetches_failed_total",
		Help: "Total number of tile fetches that failed",
	})

	FetchesStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fetches_stale_total",
		Help: "Total number of completed fetches whose epoch was superseded",
	})

	FetchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tile_fetches_in_flight",
		Help: "Number of tile fetches currently running",
	})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tile_fetch_duration_seconds",
		Help:    "Duration of tile fetches in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	FallbackResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tile_fallback_resolved_total",
		Help: "Total number of tiles provisionally shown from an ancestor crop",
	})

	TilesTrimmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_trimmed_total",
		Help: "Total number of display tiles released by trim",
	})
)
