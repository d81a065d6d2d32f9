package grid

import (
	"context"

	"paqet/internal/grid/pool"
)

// attempt is one in-flight stream-creation call against a single pool on
// behalf of one wrapper. It owns nothing transport-level beyond the
// cancel token the pool hands back.
type attempt struct {
	w     *wrapper
	h     pool.Handle
	token pool.Cancellable // non-nil iff the attempt is pending
}

func newAttempt(w *wrapper, h pool.Handle) *attempt {
	return &attempt{w: w, h: h}
}

// start invokes NewStream on the pool. It returns true if the pool
// completed synchronously, in which case the wrapper has already run its
// full success/failure handling (and may have destroyed itself) before
// start returns.
func (a *attempt) start(ctx context.Context) bool {
	res := a.h.NewStream(ctx, a, a.w.opts)
	switch res.Outcome {
	case pool.Pending:
		a.token = res.Token
		return false
	case pool.ImmediateReady:
		a.w.onAttemptReady(a, res.Stream, res.Host, res.Protocol)
		return true
	default: // pool.ImmediateFailure
		a.w.onAttemptFailed(a, res.FailureReason, res.TransportReason, res.FailureHost)
		return true
	}
}

// OnReady implements pool.Callbacks for asynchronous completions. The pool
// may invoke this from any goroutine, so all state mutation, including
// clearing token, is posted onto the grid's single-threaded loop rather
// than done here.
func (a *attempt) OnReady(stream pool.Stream, host pool.Host, protocol pool.Protocol) {
	w := a.w
	w.grid.post(func() {
		a.token = nil
		w.onAttemptReady(a, stream, host, protocol)
	})
}

// OnFailure implements pool.Callbacks for asynchronous completions.
func (a *attempt) OnFailure(reason pool.FailureReason, transportReason string, host pool.Host) {
	w := a.w
	w.grid.post(func() {
		a.token = nil
		w.onAttemptFailed(a, reason, transportReason, host)
	})
}

// cancel cancels the attempt's token if one is still held. Called
// explicitly at every point an attempt leaves its wrapper's list, since
// Go has no destructors to do it implicitly.
func (a *attempt) cancel(policy pool.CancelPolicy) {
	if a.token == nil {
		return
	}
	t := a.token
	a.token = nil
	t.Cancel(policy)
}
