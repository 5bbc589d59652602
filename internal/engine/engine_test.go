package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bauervision/eidomap/internal/fallback"
	"github.com/bauervision/eidomap/internal/fetch"
	"github.com/bauervision/eidomap/internal/projection"
	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/internal/viewport"
)

type readyEvent struct {
	addr tile.Address
	crop fallback.CropRect
}

type recordingSink struct {
	ready   []readyEvent
	needed  [][]tile.Address
	trimmed [][]tile.Address
}

func (s *recordingSink) TileReady(addr tile.Address, _ image.Image, crop fallback.CropRect) {
	s.ready = append(s.ready, readyEvent{addr: addr, crop: crop})
}

func (s *recordingSink) NeededSetChanged(needed []tile.Address) {
	s.needed = append(s.needed, needed)
}

func (s *recordingSink) TilesTrimmed(trimmed []tile.Address) {
	s.trimmed = append(s.trimmed, trimmed)
}

func (s *recordingSink) reset() {
	s.ready = nil
	s.needed = nil
	s.trimmed = nil
}

func (s *recordingSink) readyAddrs() map[tile.Address]int {
	m := map[tile.Address]int{}
	for _, ev := range s.ready {
		m[ev.addr]++
	}
	return m
}

func testImg() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

type instantFetcher struct {
	fail atomic.Bool
	opts sync.Map // tile.Address -> fetch.Options
}

func (f *instantFetcher) FetchTile(_ context.Context, addr tile.Address, opts fetch.Options) (image.Image, error) {
	f.opts.Store(addr, opts)
	if f.fail.Load() {
		return nil, errors.New("fetch refused")
	}
	return testImg(), nil
}

type gatedFetcher struct {
	release chan struct{}
}

func (f *gatedFetcher) FetchTile(_ context.Context, _ tile.Address, _ fetch.Options) (image.Image, error) {
	<-f.release
	return testImg(), nil
}

// pump runs queued ops until the engine has been quiet for a beat, standing
// in for the Run loop.
func pump(e *Engine) {
	for {
		select {
		case f := <-e.ops:
			f()
		case <-time.After(150 * time.Millisecond):
			return
		}
	}
}

func testConfig() Config {
	return Config{
		MinZoom:              3,
		MaxZoom:              19,
		HalfTiles:            1,
		PrefetchRing:         false,
		MaxConcurrentFetches: 32,
		MaxCachedTiles:       256,
		FallbackDepth:        4,
		DeferredTrim:         false,
		TrimDelay:            time.Hour,
		InteractingHold:      time.Hour,
	}
}

// tileCenter returns a lat/lon over the center of the given tile.
func tileCenter(zoom, x, y int) (float64, float64) {
	gp := projection.WorldPixelToLatLon(float64(x)*256+128, float64(y)*256+128, zoom)
	return gp.Lat, gp.Lon
}

func TestSetCenterFetchesNeededSet(t *testing.T) {
	sink := &recordingSink{}
	e := New(testConfig(), &instantFetcher{}, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)

	require.Len(t, sink.needed, 1)
	assert.Len(t, sink.needed[0], 9)
	assert.Len(t, e.displayed, 9)

	pump(e)

	ready := sink.readyAddrs()
	require.Len(t, ready, 9)
	for _, a := range sink.needed[0] {
		assert.Equal(t, 1, ready[a])
	}
	assert.Equal(t, 9, e.cache.Len())
	assert.Equal(t, 0, e.sched.InFlight())
}

func TestCacheHitAppliesImmediately(t *testing.T) {
	sink := &recordingSink{}
	e := New(testConfig(), &instantFetcher{}, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	pump(e)
	sink.reset()

	e.setCenter(lat, lon, 12)

	// Everything is cached: nine synchronous full-crop applications, nothing
	// in flight.
	assert.Len(t, sink.ready, 9)
	for _, ev := range sink.ready {
		assert.Equal(t, fallback.FullCrop(), ev.crop)
	}
	assert.Equal(t, 0, e.sched.InFlight())
	assert.Equal(t, 0, e.sched.QueueLen())
}

func TestEpochAdvancesOnlyOnZoomChange(t *testing.T) {
	e := New(testConfig(), &instantFetcher{}, nil, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	epoch := e.epoch

	e.setCenter(lat+0.01, lon+0.01, 12)
	assert.Equal(t, epoch, e.epoch)

	e.pan(256, 0)
	assert.Equal(t, epoch, e.epoch)

	e.setZoom(13)
	assert.Equal(t, epoch+1, e.epoch)

	e.setZoom(13)
	assert.Equal(t, epoch+1, e.epoch)
}

func TestCameraClampsAndProceeds(t *testing.T) {
	e := New(testConfig(), &instantFetcher{}, nil, nil)

	e.setCenter(99, 500, 42)

	assert.Equal(t, 19, e.cam.Zoom)
	gp := e.cam.GeoCenter()
	assert.InDelta(t, projection.MaxLatitude, gp.Lat, 1e-6)
	assert.InDelta(t, 140, gp.Lon, 1e-6)

	e.setCenter(0, 0, -5)
	assert.Equal(t, 3, e.cam.Zoom)
}

func TestStaleEpochCompletionCachedNotApplied(t *testing.T) {
	sink := &recordingSink{}
	f := &gatedFetcher{release: make(chan struct{})}
	e := New(testConfig(), f, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	oldNeeded := sink.needed[0]
	require.Len(t, oldNeeded, 9)
	assert.Equal(t, 9, e.sched.InFlight())

	e.setZoom(13)
	sink.reset()

	close(f.release)
	pump(e)

	// Old-zoom completions were cached but never reported.
	for _, a := range oldNeeded {
		assert.True(t, e.cache.Has(a), "stale result for %v should be cached", a)
	}
	for _, ev := range sink.ready {
		assert.Equal(t, 13, ev.addr.Zoom, "no display application for superseded epoch")
	}
	assert.Equal(t, 0, e.sched.InFlight())
}

func TestPanCachesUnneededCompletionsWithoutApplying(t *testing.T) {
	sink := &recordingSink{}
	f := &gatedFetcher{release: make(chan struct{})}
	e := New(testConfig(), f, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	require.Equal(t, 9, e.sched.InFlight())

	// One tile east: same epoch, west column drops out of the needed set.
	e.pan(256, 0)
	assert.Equal(t, 12, e.sched.InFlight())

	close(f.release)
	pump(e)

	ready := sink.readyAddrs()
	westColumn := []tile.Address{
		{Zoom: 12, X: 999, Y: 799},
		{Zoom: 12, X: 999, Y: 800},
		{Zoom: 12, X: 999, Y: 801},
	}
	for _, a := range westColumn {
		assert.True(t, e.cache.Has(a), "unneeded completion for %v should be cached", a)
		assert.Zero(t, ready[a], "unneeded completion for %v should not be applied", a)
	}
	// Every currently needed tile was applied exactly once.
	for a := range e.needed {
		assert.Equal(t, 1, ready[a])
	}

	// Immediate trim released the west column, in deterministic order.
	require.Len(t, sink.trimmed, 1)
	assert.Equal(t, westColumn, sink.trimmed[0])
}

func TestFallbackProvisionalBeforeFetch(t *testing.T) {
	sink := &recordingSink{}
	f := &gatedFetcher{release: make(chan struct{})}
	e := New(testConfig(), f, sink, nil)

	// Cache the parents by hand, then look one level deeper.
	for x := 999; x <= 1001; x++ {
		for y := 799; y <= 801; y++ {
			e.cache.Put(tile.Address{Zoom: 12, X: x, Y: y}, testImg())
		}
	}

	lat, lon := tileCenter(13, 2000, 1600)
	e.setCenter(lat, lon, 13)

	// Every needed z13 tile has its z12 parent cached: nine provisional
	// half-size crops, while the real fetches are still gated.
	require.Len(t, sink.ready, 9)
	for _, ev := range sink.ready {
		assert.Equal(t, 13, ev.addr.Zoom)
		assert.InDelta(t, 0.5, ev.crop.W, 1e-12)
		assert.InDelta(t, 0.5, ev.crop.H, 1e-12)
	}
	assert.Equal(t, 9, e.sched.InFlight())

	sink.reset()
	close(f.release)
	pump(e)

	// The real tiles replace the provisional crops.
	require.Len(t, sink.ready, 9)
	for _, ev := range sink.ready {
		assert.Equal(t, fallback.FullCrop(), ev.crop)
	}
}

func TestFailedFetchKeepsFallbackAndRetriesOnRefresh(t *testing.T) {
	sink := &recordingSink{}
	f := &instantFetcher{}
	f.fail.Store(true)
	e := New(testConfig(), f, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	pump(e)

	assert.Equal(t, 0, e.cache.Len())
	assert.Equal(t, 0, e.sched.InFlight())
	assert.Empty(t, sink.readyAddrs())

	// The upstream recovers; a rebuild naturally re-requests every miss.
	f.fail.Store(false)
	e.rebuild()
	pump(e)

	assert.Equal(t, 9, e.cache.Len())
	assert.Len(t, sink.readyAddrs(), 9)
}

func TestLowResRequestedWhileInteracting(t *testing.T) {
	cfg := testConfig()
	cfg.LowResWhileMoving = true
	f := &instantFetcher{}
	e := New(cfg, f, nil, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)
	pump(e)

	v, ok := f.opts.Load(tile.Address{Zoom: 12, X: 1000, Y: 800})
	require.True(t, ok)
	assert.False(t, v.(fetch.Options).LowRes, "programmatic jump is not an interaction")

	// A pan marks the viewport interacting for the hold window.
	e.pan(256, 0)
	pump(e)

	v, ok = f.opts.Load(tile.Address{Zoom: 12, X: 1002, Y: 800})
	require.True(t, ok)
	assert.True(t, v.(fetch.Options).LowRes)
}

func TestRunServesQueries(t *testing.T) {
	e := New(testConfig(), &instantFetcher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	lat, lon := tileCenter(12, 1000, 800)
	e.SetCenter(lat, lon, 12)

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := e.Status(ctx)
		require.NoError(t, err)
		if st.Cached == 9 && st.InFlight == 0 {
			assert.Equal(t, 12, st.Zoom)
			assert.Equal(t, 9, st.Needed)
			assert.InDelta(t, lat, st.Lat, 1e-6)
			assert.InDelta(t, lon, st.Lon, 1e-6)
			break
		}
		require.False(t, time.Now().After(deadline), "engine never settled: %+v", st)
		time.Sleep(5 * time.Millisecond)
	}

	img, ok, err := e.CachedTile(ctx, tile.Address{Zoom: 12, X: 1000, Y: 800})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, img)
}

func TestNeededTileOrder(t *testing.T) {
	sink := &recordingSink{}
	e := New(testConfig(), &instantFetcher{}, sink, nil)

	lat, lon := tileCenter(12, 1000, 800)
	e.setCenter(lat, lon, 12)

	want := viewport.Compute(e.cam.CenterX, e.cam.CenterY, 12, 1, false)
	assert.Equal(t, want, sink.needed[0])
}
