package fetch

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

	"github.com/bauervision/eidomap/internal/tile"
)

// harness stands in for the engine loop: exec parks closures, drain runs them
// on the test goroutine so all scheduler state stays single-owner.
type harness struct {
	mu      sync.Mutex
	pending []func()
}

func (h *harness) exec(f func()) {
	h.mu.Lock()
	h.pending = append(h.pending, f)
	h.mu.Unlock()
}

func (h *harness) drain() int {
	n := 0
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return n
		}
		f := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()
		f()
		n++
	}
}

type countingFetcher struct {
	delay   time.Duration
	active  int64
	maxSeen int64
	calls   sync.Map // tile.Address -> *int64
	err     error
}

func (f *countingFetcher) FetchTile(_ context.Context, addr tile.Address, _ Options) (image.Image, error) {
	cur := atomic.AddInt64(&f.active, 1)
	for {
		prev := atomic.LoadInt64(&f.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt64(&f.maxSeen, prev, cur) {
			break
		}
	}

	c, _ := f.calls.LoadOrStore(addr, new(int64))
	atomic.AddInt64(c.(*int64), 1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt64(&f.active, -1)

	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

// gatedFetcher blocks every fetch until released.
type gatedFetcher struct {
	release chan struct{}
	calls   int64
}

func (f *gatedFetcher) FetchTile(_ context.Context, _ tile.Address, _ Options) (image.Image, error) {
	atomic.AddInt64(&f.calls, 1)
	<-f.release
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func waitResults(t *testing.T, h *harness, got func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for got() < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d results, have %d", want, got())
		}
		if h.drain() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestConcurrencyCap(t *testing.T) {
	const maxConcurrent = 8
	h := &harness{}
	f := &countingFetcher{delay: 2 * time.Millisecond}

	var results []Result
	s := New(f, maxConcurrent, h.exec, func(r Result) { results = append(results, r) })

	for i := 0; i < 100; i++ {
		s.Request(tile.Address{Zoom: 12, X: i % 10, Y: i / 10}, 1, Options{})
	}
	assert.LessOrEqual(t, s.InFlight(), maxConcurrent)

	waitResults(t, h, func() int { return len(results) }, 100)

	assert.LessOrEqual(t, atomic.LoadInt64(&f.maxSeen), int64(maxConcurrent))
	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, 0, s.QueueLen())

	// Every address fetched exactly once.
	perAddr := map[tile.Address]int{}
	for _, r := range results {
		require.NoError(t, r.Err)
		perAddr[r.Addr]++
	}
	require.Len(t, perAddr, 100)
	for addr, n := range perAddr {
		assert.Equalf(t, 1, n, "address %v completed %d times", addr, n)
	}
}

func TestDeduplicatesByAddressAcrossEpochs(t *testing.T) {
	h := &harness{}
	f := &gatedFetcher{release: make(chan struct{})}

	var results []Result
	s := New(f, 4, h.exec, func(r Result) { results = append(results, r) })

	addr := tile.Address{Zoom: 12, X: 100, Y: 200}
	assert.True(t, s.Request(addr, 1, Options{}))
	// Same address under a newer epoch attaches to the in-flight operation.
	assert.False(t, s.Request(addr, 2, Options{}))
	assert.Equal(t, 1, s.InFlight())

	close(f.release)
	waitResults(t, h, func() int { return len(results) }, 1)

	assert.Equal(t, int64(1), atomic.LoadInt64(&f.calls))
	require.Len(t, results, 1)
	// The completion carries the original request's epoch.
	assert.Equal(t, int64(1), results[0].Epoch)
}

func TestQueuedJobDeduplicated(t *testing.T) {
	h := &harness{}
	f := &gatedFetcher{release: make(chan struct{})}
	s := New(f, 1, h.exec, func(Result) {})

	s.Request(tile.Address{Zoom: 5, X: 0, Y: 0}, 1, Options{})
	queued := tile.Address{Zoom: 5, X: 1, Y: 0}
	assert.True(t, s.Request(queued, 1, Options{}))
	assert.False(t, s.Request(queued, 1, Options{}))
	assert.Equal(t, 1, s.QueueLen())

	close(f.release)
}

func TestFailureFreesSlotWithoutRetry(t *testing.T) {
	h := &harness{}
	f := &countingFetcher{err: errors.New("boom")}

	var results []Result
	s := New(f, 2, h.exec, func(r Result) { results = append(results, r) })

	addr := tile.Address{Zoom: 9, X: 3, Y: 4}
	s.Request(addr, 1, Options{})
	waitResults(t, h, func() int { return len(results) }, 1)

	require.Error(t, results[0].Err)
	assert.Equal(t, 0, s.InFlight())

	// No automatic retry; a later request for the same address fetches again.
	assert.True(t, s.Request(addr, 2, Options{}))
	waitResults(t, h, func() int { return len(results) }, 2)

	c, ok := f.calls.Load(addr)
	require.True(t, ok)
	assert.Equal(t, int64(2), atomic.LoadInt64(c.(*int64)))
}

func TestFreedSlotAdmitsNextQueuedJob(t *testing.T) {
	h := &harness{}
	f := &gatedFetcher{release: make(chan struct{}, 16)}

	var results []Result
	s := New(f, 1, h.exec, func(r Result) { results = append(results, r) })

	a := tile.Address{Zoom: 7, X: 1, Y: 1}
	b := tile.Address{Zoom: 7, X: 2, Y: 1}
	s.Request(a, 1, Options{})
	s.Request(b, 1, Options{})
	assert.Equal(t, 1, s.InFlight())
	assert.Equal(t, 1, s.QueueLen())

	f.release <- struct{}{}
	waitResults(t, h, func() int { return len(results) }, 1)
	assert.Equal(t, a, results[0].Addr)
	assert.Equal(t, 1, s.InFlight()) // b admitted by the freed slot
	assert.Equal(t, 0, s.QueueLen())

	f.release <- struct{}{}
	waitResults(t, h, func() int { return len(results) }, 2)
	assert.Equal(t, b, results[1].Addr)
}
