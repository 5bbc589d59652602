// Package fetch schedules tile downloads with bounded concurrency,
// per-address deduplication and epoch tagging.
package fetch

import (
	"context"
	"image"
	"time"

	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/metrics"
)

// Options tune an individual fetch.
type Options struct {
	// LowRes asks the source for its smaller/faster tile variant, used while
	// the viewport is interacting.
	LowRes bool
}

// Fetcher downloads and decodes a single tile.
type Fetcher interface {
	FetchTile(ctx context.Context, addr tile.Address, opts Options) (image.Image, error)
}

// Result is a completed fetch handed back to the scheduler's owner. Epoch is
// the viewport generation the job was requested under; the owner decides what
// a stale epoch means for display.
type Result struct {
	Addr    tile.Address
	Epoch   int64
	Img     image.Image
	Err     error
	Elapsed time.Duration
}

type job struct {
	addr  tile.Address
	epoch int64
	opts  Options
}

// Scheduler runs tile fetches on worker goroutines while keeping all of its
// own state confined to one owner goroutine. Workers only perform I/O and
// decode; they re-enter the scheduler exclusively through the exec funnel
// provided at construction, which the owner drains.
//
// Request, InFlight and QueueLen must be called from the owner goroutine.
type Scheduler struct {
	fetcher       Fetcher
	maxConcurrent int
	exec          func(func())
	onResult      func(Result)

	ctx      context.Context
	queue    []job
	queued   map[tile.Address]struct{}
	inflight map[tile.Address]struct{}
}

// New creates a scheduler. exec marshals a closure onto the owner goroutine;
// onResult is invoked there for every completion, after the concurrency slot
// has been freed and the next queued job dispatched.
func New(fetcher Fetcher, maxConcurrent int, exec func(func()), onResult func(Result)) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		fetcher:       fetcher,
		maxConcurrent: maxConcurrent,
		exec:          exec,
		onResult:      onResult,
		ctx:           context.Background(),
		queued:        make(map[tile.Address]struct{}),
		inflight:      make(map[tile.Address]struct{}),
	}
}

// Bind sets the context handed to fetch workers. There is no hard
// cancellation per tile; the context only bounds the process lifetime.
func (s *Scheduler) Bind(ctx context.Context) {
	s.ctx = ctx
}

// Request enqueues a fetch for addr tagged with epoch. Requests are
// deduplicated by address alone: a request for an address already queued or
// in flight attaches to the existing operation and reports false.
func (s *Scheduler) Request(addr tile.Address, epoch int64, opts Options) bool {
	if _, ok := s.inflight[addr]; ok {
		return false
	}
	if _, ok := s.queued[addr]; ok {
		return false
	}

	s.queue = append(s.queue, job{addr: addr, epoch: epoch, opts: opts})
	s.queued[addr] = struct{}{}
	s.dispatch()
	return true
}

// InFlight returns the number of fetches currently running.
func (s *Scheduler) InFlight() int {
	return len(s.inflight)
}

// QueueLen returns the number of fetches waiting for a slot.
func (s *Scheduler) QueueLen() int {
	return len(s.queue)
}

// dispatch admits queued jobs while slots are free. FIFO; center and prefetch
// tiles share one queue without priority.
func (s *Scheduler) dispatch() {
	for len(s.inflight) < s.maxConcurrent && len(s.queue) > 0 {
		j := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, j.addr)
		s.inflight[j.addr] = struct{}{}

		metrics.FetchesStarted.Inc()
		metrics.FetchesInFlight.Set(float64(len(s.inflight)))

		go s.run(j)
	}
}

func (s *Scheduler) run(j job) {
	start := time.Now()
	img, err := s.fetcher.FetchTile(s.ctx, j.addr, j.opts)
	res := Result{
		Addr:    j.addr,
		Epoch:   j.epoch,
		Img:     img,
		Err:     err,
		Elapsed: time.Since(start),
	}
	s.exec(func() { s.finish(res) })
}

func (s *Scheduler) finish(res Result) {
	delete(s.inflight, res.Addr)

	metrics.FetchesInFlight.Set(float64(len(s.inflight)))
	metrics.FetchDuration.Observe(res.Elapsed.Seconds())
	if res.Err != nil {
		metrics.FetchesFailed.Inc()
	} else {
		metrics.FetchesCompleted.Inc()
	}

	s.dispatch()
	s.onResult(res)
}
