// Package engine implements the map tile streaming engine: it owns the
// camera, the cross-zoom tile cache and the needed-set, schedules fetches for
// missing tiles, resolves provisional ancestor imagery and trims stale
// display tiles.
//
// Concurrency model: one goroutine (the Run loop) owns and mutates all engine
// state. Public commands and queries marshal onto that goroutine through a
// single op channel; fetch workers only perform network I/O and image decode
// and re-enter through the same funnel. Nothing in the engine takes a lock.
package engine

import (
	"context"
	"image"
	"sort"
	"time"

	"github.com/bauervision/eidomap/internal/fallback"
	"github.com/bauervision/eidomap/internal/fetch"
	"github.com/bauervision/eidomap/internal/repository/cache"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/internal/viewport"
	"github.com/bauervision/eidomap/pkg/logger"
	"github.com/bauervision/eidomap/pkg/metrics"
)

// Config holds the engine's streaming and cache parameters.
type Config struct {
	MinZoom              int
	MaxZoom              int
	HalfTiles            int
	PrefetchRing         bool
	MaxConcurrentFetches int
	MaxCachedTiles       int
	FallbackDepth        int
	DeferredTrim         bool
	TrimDelay            time.Duration
	LowResWhileMoving    bool
	InteractingHold      time.Duration
	VOriginBottom        bool
}

func (c *Config) normalize() {
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MaxZoom <= 0 || c.MaxZoom > tile.MaxZoom {
		c.MaxZoom = tile.MaxZoom
	}
	if c.MaxZoom < c.MinZoom {
		c.MaxZoom = c.MinZoom
	}
	if c.HalfTiles < 1 {
		c.HalfTiles = 1
	}
	if c.MaxConcurrentFetches < 1 {
		c.MaxConcurrentFetches = 4
	}
	if c.MaxCachedTiles < 1 {
		c.MaxCachedTiles = 256
	}
	if c.FallbackDepth < 0 {
		c.FallbackDepth = 0
	}
	if c.TrimDelay <= 0 {
		c.TrimDelay = 450 * time.Millisecond
	}
	if c.InteractingHold <= 0 {
		c.InteractingHold = 600 * time.Millisecond
	}
}

// Sink receives the engine's display-side events. All callbacks run on the
// engine goroutine; implementations must hand work to their own context
// instead of blocking.
type Sink interface {
	// TileReady fires for every applied image: direct cache hit, provisional
	// ancestor crop, or completed fetch. crop is the sub-rectangle of img to
	// show; a full crop means the image is the tile itself.
	TileReady(addr tile.Address, img image.Image, crop fallback.CropRect)

	// NeededSetChanged reports the needed set after a rebuild, row-major.
	NeededSetChanged(needed []tile.Address)

	// TilesTrimmed reports display tiles released by trim.
	TilesTrimmed(trimmed []tile.Address)
}

type nopSink struct{}

func (nopSink) TileReady(tile.Address, image.Image, fallback.CropRect) {}
func (nopSink) NeededSetChanged([]tile.Address)                       {}
func (nopSink) TilesTrimmed([]tile.Address)                           {}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Zoom      int     `json:"zoom"`
	Epoch     int64   `json:"epoch"`
	Needed    int     `json:"needed"`
	Displayed int     `json:"displayed"`
	Cached    int     `json:"cached"`
	InFlight  int     `json:"in_flight"`
	Queued    int     `json:"queued"`
}

type Engine struct {
	cfg  Config
	log  logger.Logger
	sink Sink

	cache    *cache.LRU
	sched    *fetch.Scheduler
	resolver *fallback.Resolver

	cam        Camera
	epoch      int64
	needed     map[tile.Address]struct{}
	neededList []tile.Address
	displayed  map[tile.Address]struct{}

	interactingUntil time.Time
	now              func() time.Time

	trimGen   int64
	trimArmed bool
	trimDue   bool

	ops     chan func()
	stopped chan struct{}
}

// New creates an engine. sink may be nil; events are then dropped. The engine
// does nothing until Run is started and a camera command arrives.
func New(cfg Config, fetcher fetch.Fetcher, sink Sink, log logger.Logger) *Engine {
	cfg.normalize()
	if sink == nil {
		sink = nopSink{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		sink:      sink,
		needed:    make(map[tile.Address]struct{}),
		displayed: make(map[tile.Address]struct{}),
		now:       time.Now,
		ops:       make(chan func(), 128),
		stopped:   make(chan struct{}),
	}
	e.cache = cache.NewLRU(cfg.MaxCachedTiles, func(tile.Address) {
		metrics.CacheEvictions.Inc()
	})
	e.resolver = fallback.New(e.cache, cfg.MinZoom, cfg.VOriginBottom)
	e.sched = fetch.New(fetcher, cfg.MaxConcurrentFetches, e.do, e.onFetchResult)
	return e
}

// Run drives the engine until ctx is canceled. It must be running for any
// command or query to make progress.
func (e *Engine) Run(ctx context.Context) {
	e.sched.Bind(ctx)
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.ops:
			f()
		}
	}
}

// do marshals f onto the engine goroutine. After shutdown ops are dropped,
// which lets straggling fetch workers exit instead of blocking forever.
func (e *Engine) do(f func()) {
	select {
	case e.ops <- f:
	case <-e.stopped:
	}
}

// SetCenter points the camera at a geographic position. Out-of-range values
// are clamped and wrapped, never rejected.
func (e *Engine) SetCenter(lat, lon float64, zoom int) {
	e.do(func() { e.setCenter(lat, lon, zoom) })
}

// Pan moves the camera by a world pixel delta at the current zoom.
func (e *Engine) Pan(dx, dy float64) {
	e.do(func() { e.pan(dx, dy) })
}

// SetZoom changes the zoom level, keeping the camera centered on the same
// geographic point.
func (e *Engine) SetZoom(zoom int) {
	e.do(func() { e.setZoom(zoom) })
}

// ZoomBy steps the zoom level by delta.
func (e *Engine) ZoomBy(delta int) {
	e.do(func() { e.setZoom(e.cam.Zoom + delta) })
}

// MarkInteracting signals that the user is actively panning or zooming, which
// biases fetches toward smaller tiles for the configured hold window.
func (e *Engine) MarkInteracting() {
	e.do(func() { e.touchInteraction() })
}

// Refresh recomputes the needed set against the current camera, re-requesting
// any tile that is missing and not in flight.
func (e *Engine) Refresh() {
	e.do(func() { e.rebuild() })
}

// CachedTile returns the cached image for addr, if present. The lookup runs
// on the engine goroutine and counts as a recency touch.
func (e *Engine) CachedTile(ctx context.Context, addr tile.Address) (image.Image, bool, error) {
	type reply struct {
		img image.Image
		ok  bool
	}
	ch := make(chan reply, 1)
	e.do(func() {
		img, ok := e.cache.Get(addr)
		ch <- reply{img: img, ok: ok}
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		return r.img, r.ok, nil
	}
}

// Status reports a snapshot of the engine state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	ch := make(chan Status, 1)
	e.do(func() { ch <- e.status() })
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case s := <-ch:
		return s, nil
	}
}

func (e *Engine) status() Status {
	gp := e.cam.GeoCenter()
	return Status{
		Lat:       gp.Lat,
		Lon:       gp.Lon,
		Zoom:      e.cam.Zoom,
		Epoch:     e.epoch,
		Needed:    len(e.needed),
		Displayed: len(e.displayed),
		Cached:    e.cache.Len(),
		InFlight:  e.sched.InFlight(),
		Queued:    e.sched.QueueLen(),
	}
}

func (e *Engine) touchInteraction() {
	e.interactingUntil = e.now().Add(e.cfg.InteractingHold)
}

func (e *Engine) interacting() bool {
	return e.now().Before(e.interactingUntil)
}

// rebuild recomputes the needed set for the current camera and reconciles
// display state: cache hits apply immediately, misses get an ancestor crop
// (when one is cached) and a queued fetch.
func (e *Engine) rebuild() {
	e.neededList = viewport.Compute(e.cam.CenterX, e.cam.CenterY, e.cam.Zoom, e.cfg.HalfTiles, e.cfg.PrefetchRing)
	e.needed = make(map[tile.Address]struct{}, len(e.neededList))
	for _, a := range e.neededList {
		e.needed[a] = struct{}{}
	}

	notify := make([]tile.Address, len(e.neededList))
	copy(notify, e.neededList)
	e.sink.NeededSetChanged(notify)

	opts := fetch.Options{LowRes: e.cfg.LowResWhileMoving && e.interacting()}

	for _, addr := range e.neededList {
		if img, ok := e.cache.Get(addr); ok {
			metrics.CacheHits.Inc()
			e.displayed[addr] = struct{}{}
			e.sink.TileReady(addr, img, fallback.FullCrop())
			continue
		}
		metrics.CacheMisses.Inc()

		// A display element exists either way; a missing ancestor just means
		// it shows the neutral placeholder until the fetch lands.
		e.displayed[addr] = struct{}{}
		if img, crop, ok := e.resolver.Resolve(addr, e.cfg.FallbackDepth); ok {
			metrics.FallbackResolved.Inc()
			e.sink.TileReady(addr, img, crop)
		}

		e.sched.Request(addr, e.epoch, opts)
	}

	e.scheduleTrim()
}

// onFetchResult runs on the engine goroutine for every completed fetch, after
// the scheduler has freed the slot.
func (e *Engine) onFetchResult(res fetch.Result) {
	if res.Err != nil {
		// Local failure: no cache write, no retry. The tile keeps whatever
		// fallback it has; a later rebuild re-requests it.
		e.log.Warn("tile fetch failed", "addr", res.Addr.String(), "error", res.Err)
		e.maybeTrim()
		return
	}

	// Always cache, even when stale or no longer needed: the imagery is valid
	// for its address regardless of which viewport generation asked for it.
	e.cache.Put(res.Addr, res.Img)
	metrics.CacheSize.Set(float64(e.cache.Len()))

	switch {
	case res.Epoch != e.epoch:
		metrics.FetchesStale.Inc()
		e.log.Debug("stale fetch cached, not applied",
			"addr", res.Addr.String(), "epoch", res.Epoch, "current", e.epoch)
	case e.isNeeded(res.Addr):
		e.displayed[res.Addr] = struct{}{}
		e.sink.TileReady(res.Addr, res.Img, fallback.FullCrop())
	default:
		e.log.Debug("fetched tile no longer needed, cached", "addr", res.Addr.String())
	}

	e.maybeTrim()
}

func (e *Engine) isNeeded(addr tile.Address) bool {
	_, ok := e.needed[addr]
	return ok
}

func sortAddresses(addrs []tile.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		a, b := addrs[i], addrs[j]
		if a.Zoom != b.Zoom {
			return a.Zoom < b.Zoom
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}
