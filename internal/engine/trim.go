package engine

import (
	"time"

	"github.com/bauervision/eidomap/internal/tile"
	"github.com/bauervision/eidomap/pkg/metrics"
)

// Trim releases display tiles that fell out of the needed set. In immediate
// mode that happens synchronously after a rebuild. In deferred mode a timer
// arms per rebuild and release additionally waits for all in-flight fetches
// to drain, so a tile is never released before its replacement can have
// arrived. A new rebuild supersedes any pending trim; at most one is armed.
func (e *Engine) scheduleTrim() {
	if !e.cfg.DeferredTrim {
		e.executeTrim()
		return
	}

	e.trimGen++
	e.trimArmed = true
	e.trimDue = false

	gen := e.trimGen
	time.AfterFunc(e.cfg.TrimDelay, func() {
		e.do(func() { e.onTrimTimer(gen) })
	})
}

// onTrimTimer marks the delay elapsed for the trim generation gen. A stale
// generation means a later rebuild already re-armed.
func (e *Engine) onTrimTimer(gen int64) {
	if !e.trimArmed || gen != e.trimGen {
		return
	}
	e.trimDue = true
	e.maybeTrim()
}

// maybeTrim fires the pending deferred trim once both gates are open: the
// delay elapsed and no fetch is in flight. Checked again on every fetch
// completion.
func (e *Engine) maybeTrim() {
	if e.trimArmed && e.trimDue && e.sched.InFlight() == 0 {
		e.executeTrim()
	}
}

func (e *Engine) executeTrim() {
	e.trimArmed = false
	e.trimDue = false

	var trimmed []tile.Address
	for addr := range e.displayed {
		if _, ok := e.needed[addr]; !ok {
			trimmed = append(trimmed, addr)
			delete(e.displayed, addr)
		}
	}
	if len(trimmed) == 0 {
		return
	}

	sortAddresses(trimmed)
	metrics.TilesTrimmed.Add(float64(len(trimmed)))
	e.log.Debug("trimmed display tiles", "count", len(trimmed))
	e.sink.TilesTrimmed(trimmed)
}
