// Package grid implements the connectivity grid: a per-origin meta
// connection pool that races outbound stream-creation attempts across an
// H3 pool and an H2/fallback pool and delivers the first usable stream to
// the caller, following a happy-eyeballs-style fallback policy gated by
// an alternative-protocol cache and an H3 liveness tracker.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paqet/internal/flog"
	"paqet/internal/grid/altsvc"
	"paqet/internal/grid/h3status"
	"paqet/internal/grid/pool"
)

var (
	// ErrGridDraining is returned by NewStream once DrainAndDelete has
	// been requested or deferred deletion is pending; no new pools or
	// streams are created past that point.
	ErrGridDraining = errors.New("grid: draining, no new streams")
	// ErrGridClosed is returned by calls made after Close.
	ErrGridClosed = errors.New("grid: closed")
)

// H3LivenessSink is the pair of H3-only upcalls the grid exposes to the H3
// pool. A concrete H3 pool implementation (see h3pool) is expected to hold
// one of these and call it as handshakes complete or fail.
type H3LivenessSink interface {
	OnHandshakeComplete()
	OnZeroRTTHandshakeFailed()
}

// NewH3PoolFunc lazily constructs the H3 pool for this grid's origin. It
// is given the grid itself as the H3LivenessSink, so the grid is the
// result-callback sink for handshake-level events without the H3 pool
// needing to know anything about the grid beyond this interface.
type NewH3PoolFunc func(sink H3LivenessSink) (pool.Handle, error)

// NewH2PoolFunc lazily constructs the H2/fallback pool for this grid's
// origin.
type NewH2PoolFunc func() (pool.Handle, error)

// Config is everything a Grid needs at construction. Transport-socket
// options, host resolution, stats registries, and runtime feature flags
// beyond AvoidZombieStreams are deliberately not modeled here: the grid
// treats them as opaque and they belong to the pool factories.
type Config struct {
	Origin Origin
	Host   pool.Host

	Tracker  *h3status.Tracker
	AltCache *altsvc.Cache

	NewH3Pool NewH3PoolFunc
	NewH2Pool NewH2PoolFunc

	// AvoidZombieStreams: when a success arrives for a wrapper whose
	// caller has already been signaled a different outcome, locally
	// reset the stream instead of leaking it.
	AvoidZombieStreams bool

	// NextAttemptDefault overrides the 300ms default next-attempt
	// duration before the alt-cache's smoothed RTT is consulted. Zero
	// means use the built-in default.
	NextAttemptDefault time.Duration

	// Protocols is asserted to contain exactly {h1, h2, h3} by the
	// surrounding layer. A mismatch is a precondition violation: logged,
	// and H3 is conservatively disabled rather than panicking in
	// production. An empty list skips the check.
	Protocols []string
}

// Grid is the per-origin connectivity grid.
type Grid struct {
	origin Origin
	host   pool.Host

	tracker  *h3status.Tracker
	altCache *altsvc.Cache

	newH3PoolFn NewH3PoolFunc
	newH2PoolFn NewH2PoolFunc

	h3Pool pool.Handle
	h2Pool pool.Handle
	pools  []pool.Handle

	nextAttemptDuration time.Duration

	wrappers   map[uint64]*wrapper
	nextWrapID uint64

	destroying       bool
	deferredDeleting bool
	draining         bool
	h3Disabled       bool

	idleCallbacks []func()

	avoidZombieStreams bool
	h3BrokenCount      int

	cmds   chan func()
	closed chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Grid and starts its event loop. The loop goroutine is
// the single thread all grid/wrapper/attempt state is mutated on.
func New(cfg Config) (*Grid, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("grid: Tracker is required")
	}
	if cfg.AltCache == nil {
		return nil, fmt.Errorf("grid: AltCache is required")
	}
	if cfg.NewH3Pool == nil || cfg.NewH2Pool == nil {
		return nil, fmt.Errorf("grid: both NewH3Pool and NewH2Pool are required")
	}

	next := cfg.NextAttemptDefault
	if next <= 0 {
		next = 300 * time.Millisecond
	}
	if rtt := cfg.AltCache.SmoothedRTT(cfg.Origin); rtt > 0 {
		next = 2 * rtt
	}

	h3Disabled := false
	if len(cfg.Protocols) > 0 && (len(cfg.Protocols) != 3 || !hasAll(cfg.Protocols, "h1", "h2", "h3")) {
		flog.Errorf("grid: protocols %v for %s are not exactly {h1,h2,h3}; disabling h3", cfg.Protocols, cfg.Origin)
		h3Disabled = true
	}

	g := &Grid{
		origin:              cfg.Origin,
		host:                cfg.Host,
		tracker:             cfg.Tracker,
		altCache:            cfg.AltCache,
		newH3PoolFn:         cfg.NewH3Pool,
		newH2PoolFn:         cfg.NewH2Pool,
		nextAttemptDuration: next,
		wrappers:            make(map[uint64]*wrapper),
		avoidZombieStreams:  cfg.AvoidZombieStreams,
		h3Disabled:          h3Disabled,
		cmds:                make(chan func(), 64),
		closed:              make(chan struct{}),
	}
	go g.loop()
	return g, nil
}

func hasAll(have []string, want ...string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func (g *Grid) loop() {
	for {
		select {
		case fn := <-g.cmds:
			fn()
		case <-g.closed:
			return
		}
	}
}

// post enqueues fn to run on the loop goroutine without waiting for it.
// Used for events that originate outside any caller's stack (timer
// fires, asynchronous pool callbacks, idle notifications).
func (g *Grid) post(fn func()) {
	select {
	case g.cmds <- fn:
	case <-g.closed:
	}
}

// do enqueues fn and blocks until it has run, giving external callers a
// synchronous view of state that is nonetheless always mutated from the
// single loop goroutine.
func (g *Grid) do(fn func()) {
	done := make(chan struct{})
	g.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-g.closed:
	}
}

// isH3Pool recognizes the H3 pool solely by handle identity; there is no
// separate type tag on a pool handle.
func (g *Grid) isH3Pool(h pool.Handle) bool {
	return h != nil && g.h3Pool != nil && h == g.h3Pool
}

// createNextPool lazily creates whichever pool is missing, H3 first.
// Returns nil if both pools already exist, or if creation is forbidden or
// failed.
func (g *Grid) createNextPool() pool.Handle {
	if g.deferredDeleting || g.draining {
		return nil
	}
	if g.h3Pool != nil && g.h2Pool != nil {
		return nil
	}
	if g.h3Pool == nil {
		h, err := g.newH3PoolFn(g)
		if err != nil {
			flog.Errorf("grid: failed to dial h3 pool for %s: %v", g.origin, err)
			return nil
		}
		g.h3Pool = h
		g.pools = append(g.pools, h)
		g.setupPool(h)
		return h
	}
	h, err := g.newH2PoolFn()
	if err != nil {
		flog.Errorf("grid: failed to dial h2 pool for %s: %v", g.origin, err)
		return nil
	}
	g.h2Pool = h
	g.pools = append(g.pools, h)
	g.setupPool(h)
	return h
}

func (g *Grid) setupPool(h pool.Handle) {
	h.AddIdleCallback(func() {
		g.post(func() { g.onIdleReceived() })
	})
}

// shouldAttemptH3 decides whether H3 is worth racing for this origin.
func (g *Grid) shouldAttemptH3() bool {
	if g.h3Disabled {
		return false
	}
	if g.host == nil || !g.host.IsIP() {
		flog.Errorf("grid: host for %s is not an IP address", g.origin)
		return false
	}
	alts, ok := g.altCache.FindAlternatives(g.origin)
	if !ok {
		return false
	}
	if g.tracker.IsBroken(g.origin) {
		return false
	}
	for _, alt := range alts {
		if alt.Hostname != "" || (alt.Port != 0 && alt.Port != g.origin.Port) {
			// Alternatives that change host or port are routed
			// elsewhere in a future version; skip silently for now.
			continue
		}
		if altsvc.SupportedALPN(alt.ALPN) {
			return true
		}
	}
	return false
}

// NewStream is the grid's core entry point. It returns a nil handle and
// nil error when the caller has already been signaled synchronously.
func (g *Grid) NewStream(ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) (*CancelHandle, error) {
	var handle *CancelHandle
	// Stays ErrGridClosed if the loop has already exited and fn never runs.
	err := ErrGridClosed
	g.do(func() {
		handle, err = g.newStreamLocked(ctx, cb, opts)
	})
	return handle, err
}

func (g *Grid) newStreamLocked(ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) (*CancelHandle, error) {
	if g.destroying {
		return nil, ErrGridClosed
	}
	if g.deferredDeleting || g.draining {
		return nil, ErrGridDraining
	}

	var startPool pool.Handle
	if g.h3Pool != nil {
		startPool = g.h3Pool
	} else if g.h2Pool != nil {
		startPool = g.h2Pool
	}
	if startPool == nil {
		startPool = g.createNextPool()
	}

	overriding := opts
	delayTCP := true
	if g.shouldAttemptH3() && opts.CanUseH3 {
		if g.tracker.HasFailedRecently(g.origin) {
			overriding.CanSendEarlyData = false
			delayTCP = false
		}
	} else {
		g.createNextPool() // make sure the H2 pool exists
		startPool = g.h2Pool
	}

	if startPool == nil {
		return nil, fmt.Errorf("grid: no pool available for %s", g.origin)
	}

	g.nextWrapID++
	w := newWrapper(g.nextWrapID, g, ctx, cb, overriding)
	g.wrappers[w.id] = w

	if immediate := w.newStreamOnPool(startPool); immediate {
		return nil, nil
	}

	if !delayTCP {
		if _, immediate := w.tryAnother(); immediate {
			return nil, nil
		}
	}

	return &CancelHandle{id: w.id}, nil
}

// CancelHandle is the handle a caller holds to cancel an in-flight
// NewStream call. It names a wrapper by id rather than exposing a pointer
// to it, so the caller has nothing that could dangle once the wrapper is
// gone.
type CancelHandle struct {
	id uint64
}

// Cancel cancels every pending attempt for handle with policy and removes
// the wrapper without upcalling the caller.
func (g *Grid) Cancel(handle *CancelHandle, policy pool.CancelPolicy) {
	if handle == nil {
		return
	}
	g.do(func() {
		w, ok := g.wrappers[handle.id]
		if !ok {
			return // already completed or already cancelled
		}
		w.cancelFromCaller(policy)
	})
}

// AddIdleCallback registers cb to be invoked when every owned pool
// reports idle.
func (g *Grid) AddIdleCallback(cb func()) {
	g.do(func() {
		g.idleCallbacks = append(g.idleCallbacks, cb)
	})
}

func (g *Grid) onIdleReceived() {
	if g.destroying {
		return
	}
	if g.isIdleLocked() {
		for _, cb := range g.idleCallbacks {
			cb()
		}
	}
}

func (g *Grid) isIdleLocked() bool {
	for _, p := range g.pools {
		if !p.IsIdle() {
			return false
		}
	}
	return true
}

// IsIdle reports whether every owned pool is idle.
func (g *Grid) IsIdle() bool {
	var idle bool
	g.do(func() { idle = g.isIdleLocked() })
	return idle
}

// HasActiveConnections reports whether any owned pool has an active
// connection.
func (g *Grid) HasActiveConnections() bool {
	var active bool
	g.do(func() {
		for _, p := range g.pools {
			if p.HasActiveConnections() {
				active = true
				return
			}
		}
	})
	return active
}

// DrainConnections forwards to every owned pool. DrainAndDelete
// permanently forbids further pool/stream creation.
func (g *Grid) DrainConnections(behavior pool.DrainBehavior) {
	g.do(func() {
		if behavior == pool.DrainAndDelete {
			g.draining = true
		}
		for _, p := range g.pools {
			p.DrainConnections(behavior)
		}
	})
}

// DeleteIsPending marks this grid for deferred deletion and forwards the
// advisory signal to every owned pool.
func (g *Grid) DeleteIsPending() {
	g.do(func() {
		g.deferredDeleting = true
		for _, p := range g.pools {
			p.DeleteIsPending()
		}
	})
}

// Host returns the opaque host descriptor this grid connects to.
func (g *Grid) Host() pool.Host { return g.host }

// MaybePreconnect is unsupported for the grid; it always returns false.
func (g *Grid) MaybePreconnect(ratio float64) bool { return false }

// H3BrokenCount returns the number of times this grid has marked H3
// broken, for stats and tests.
func (g *Grid) H3BrokenCount() int {
	var n int
	g.do(func() { n = g.h3BrokenCount })
	return n
}

func (g *Grid) markH3Broken() {
	g.h3BrokenCount++
	g.tracker.MarkBroken(g.origin)
}

// OnHandshakeComplete implements H3LivenessSink: the H3 pool calls this
// once its QUIC handshake completes.
func (g *Grid) OnHandshakeComplete() {
	g.tracker.MarkConfirmed(g.origin)
}

// OnZeroRTTHandshakeFailed implements H3LivenessSink: the H3 pool calls
// this when a 0-RTT handshake attempt fails.
func (g *Grid) OnZeroRTTHandshakeFailed() {
	g.tracker.MarkFailedRecently(g.origin)
}

// Close tears the grid down. Every wrapper that still has a live caller
// receives exactly one synthetic
// LocalConnectionFailure with reason text "grid teardown", delivered
// without routing through the normal failure path (which would upcall
// back into the grid currently being destroyed). Pools are released only
// after every wrapper has been flushed.
func (g *Grid) Close() error {
	g.closeOnce.Do(func() {
		g.do(func() {
			g.destroying = true
			pending := make([]*wrapper, 0, len(g.wrappers))
			for _, w := range g.wrappers {
				pending = append(pending, w)
			}
			for _, w := range pending {
				w.signalFailureAndDeleteSelf(pool.LocalConnectionFailure, "grid teardown", g.host)
			}
			if g.h2Pool != nil {
				if e := g.h2Pool.Close(); e != nil {
					g.closeErr = e
				}
			}
			if g.h3Pool != nil {
				if e := g.h3Pool.Close(); e != nil && g.closeErr == nil {
					g.closeErr = e
				}
			}
		})
		close(g.closed)
	})
	return g.closeErr
}
