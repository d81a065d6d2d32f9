package grid

import (
	"context"
	"time"

	"paqet/internal/flog"
	"paqet/internal/grid/pool"
)

// wrapper coordinates the race of attempts across pools for a single
// caller request. It is the sole owner of its attempts and of the
// next-attempt timer; every mutation of wrapper state happens on the
// owning grid's loop goroutine.
type wrapper struct {
	id   uint64
	grid *Grid
	ctx  context.Context

	cb pool.Callbacks // nil once the caller has been signaled

	attempts []*attempt

	timer      *time.Timer
	timerArmed bool

	opts pool.StreamOptions

	h3AttemptFailed    bool
	h2AttemptSucceeded bool
	hasAttemptedH2     bool

	deleted bool
}

func newWrapper(id uint64, g *Grid, ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) *wrapper {
	w := &wrapper{id: id, grid: g, ctx: ctx, cb: cb, opts: opts}
	if !opts.CanUseH3 {
		// The caller has told us a prior post-handshake H3 failure
		// already happened for this logical request, so H3 must not be
		// retried, and it must count as failed for broken-detection.
		w.h3AttemptFailed = true
	}
	return w
}

func (w *wrapper) armTimerIfNeeded() {
	if w.timerArmed {
		return
	}
	w.timerArmed = true
	w.timer = time.AfterFunc(w.grid.nextAttemptDuration, func() {
		w.grid.post(func() { w.onTimerFired() })
	})
}

func (w *wrapper) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *wrapper) onTimerFired() {
	if w.deleted {
		return
	}
	w.tryAnother()
}

// newStreamOnPool starts an attempt on h. Returns true if the pool
// completed synchronously, in which case the wrapper may already be gone.
func (w *wrapper) newStreamOnPool(h pool.Handle) bool {
	a := newAttempt(w, h)
	w.attempts = append(w.attempts, a)
	w.armTimerIfNeeded()
	return a.start(w.ctx)
}

// tryAnother attempts the next pool in the fallback sequence: always the
// H2 pool, the only fallback this grid has. started is false iff no
// fallback was possible, which the caller interprets as terminal
// exhaustion.
func (w *wrapper) tryAnother() (started, immediate bool) {
	if w.grid.destroying {
		return false, false
	}
	if w.hasAttemptedH2 {
		return false, false
	}
	w.grid.createNextPool() // ensure the H2 pool exists
	w.hasAttemptedH2 = true
	immediate = w.newStreamOnPool(w.grid.h2Pool)
	return true, immediate
}

// removeAttempt is the single destruction point for an attempt: it
// enforces that a still-pending token is cancelled (what would be the
// attempt's destructor in a language with them) and then drops it from
// the list.
func (w *wrapper) removeAttempt(a *attempt) {
	a.cancel(pool.Default)
	for i, x := range w.attempts {
		if x == a {
			w.attempts = append(w.attempts[:i], w.attempts[i+1:]...)
			return
		}
	}
}

func (w *wrapper) cancelAllPendingAttempts(policy pool.CancelPolicy) {
	for _, a := range w.attempts {
		a.cancel(policy)
	}
	w.attempts = nil
}

func (w *wrapper) maybeMarkH3Broken() {
	if w.h3AttemptFailed && w.h2AttemptSucceeded {
		flog.Infof("grid: h3 failed and h2 succeeded for %s, marking h3 broken", w.grid.origin)
		w.grid.markH3Broken()
	}
}

// deleteSelf is the single destruction point for a wrapper: stop its
// timer, cancel whatever attempts remain (the would-be destructor
// cascade), drop the caller callback so a late-arriving attempt
// completion can never reach it, and remove it from the grid's owning
// map.
func (w *wrapper) deleteSelf() {
	if w.deleted {
		return
	}
	w.deleted = true
	w.cb = nil
	w.stopTimer()
	for _, a := range w.attempts {
		a.cancel(pool.Default)
	}
	w.attempts = nil
	delete(w.grid.wrappers, w.id)
}

// signalFailureAndDeleteSelf removes this wrapper from the grid *before*
// upcalling the caller, so that any re-entrant grid call the caller makes
// from inside the callback sees a clean state.
func (w *wrapper) signalFailureAndDeleteSelf(reason pool.FailureReason, transportReason string, host pool.Host) {
	cb := w.cb
	w.cb = nil
	w.deleteSelf()
	if cb != nil {
		cb.OnFailure(reason, transportReason, host)
	}
}

// onAttemptReady is the success path.
func (w *wrapper) onAttemptReady(a *attempt, stream pool.Stream, host pool.Host, protocol pool.Protocol) {
	if w.deleted {
		// The wrapper was already torn down (caller cancel or terminal
		// failure) before this completion arrived; a pool that doesn't
		// honor cancellation can still deliver one. Don't upcall and
		// don't touch attempt bookkeeping that's already been cleared.
		stream.LocalReset()
		return
	}
	isH3 := w.grid.isH3Pool(a.h)
	if !isH3 {
		w.h2AttemptSucceeded = true
		w.maybeMarkH3Broken()
	}

	w.removeAttempt(a)
	cb := w.cb
	w.cb = nil

	if isH3 {
		// The H2 racer, if any, is no longer useful: the H3 connection
		// won and a second connection to the same origin is wasted work.
		w.cancelAllPendingAttempts(pool.Default)
	}
	// If H2 won, deliberately leave any in-flight H3 attempt running: if
	// it succeeds later, that connection is cached for future requests.

	if len(w.attempts) == 0 {
		w.deleteSelf()
	}

	if cb != nil {
		cb.OnReady(stream, host, protocol)
		return
	}
	if w.grid.avoidZombieStreams {
		stream.LocalReset()
	}
}

// onAttemptFailed is the failure path.
func (w *wrapper) onAttemptFailed(a *attempt, reason pool.FailureReason, transportReason string, host pool.Host) {
	if w.deleted {
		// Same late-completion case as onAttemptReady: nothing left to
		// upcall or track.
		return
	}
	if w.grid.isH3Pool(a.h) {
		w.h3AttemptFailed = true
	}
	w.maybeMarkH3Broken()

	w.removeAttempt(a)
	if len(w.attempts) > 0 {
		// Other attempts remain pending; let them race.
		return
	}

	if started, _ := w.tryAnother(); started {
		return
	}

	// All pools have been tried and failed: terminal.
	w.signalFailureAndDeleteSelf(reason, transportReason, host)
}

// cancelFromCaller is the caller-cancellation path: cancel every pending
// attempt with the caller's chosen policy and disappear without
// upcalling, since the caller already knows it asked for this.
func (w *wrapper) cancelFromCaller(policy pool.CancelPolicy) {
	w.cancelAllPendingAttempts(policy)
	w.deleteSelf()
}
