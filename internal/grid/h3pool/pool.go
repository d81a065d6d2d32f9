// Package h3pool is a concrete pool.Handle backed by a single QUIC
// connection, standing in for the grid's H3 pool. It mirrors the
// dial/conn style of internal/tnet/quic, adapted to the pool.Handle
// contract: at most one connection is dialed lazily; the first NewStream
// call dials in the background and opens its stream once the dial completes.
package h3pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"paqet/internal/flog"
	"paqet/internal/grid/pool"

	"github.com/quic-go/quic-go"
)

// LivenessSink receives the H3-only handshake liveness upcalls. A
// grid.Grid value satisfies this interface by method set, so no import of
// the grid package is needed here.
type LivenessSink interface {
	OnHandshakeComplete()
	OnZeroRTTHandshakeFailed()
}

// Config is the dial-time configuration for one origin's H3 pool. TLS
// parameters and socket options are opaque pass-throughs; the caller is
// responsible for producing a ready-to-use *tls.Config.
type Config struct {
	Addr        *net.UDPAddr
	TLSConfig   *tls.Config
	QUICConfig  *quic.Config
	DialTimeout time.Duration
}

type hostDesc struct {
	addr string
	ip   net.IP
}

func (h hostDesc) String() string { return h.addr }
func (h hostDesc) IsIP() bool     { return h.ip != nil }

// Pool is the H3 (QUIC) pool handle.
type Pool struct {
	cfg  Config
	sink LivenessSink
	host hostDesc

	mu   sync.Mutex
	conn *quic.Conn

	idleCbs       []func()
	deletePending bool
	closed        bool
}

// New dials lazily; construction never blocks on the network.
func New(cfg Config, sink LivenessSink) (pool.Handle, error) {
	if cfg.Addr == nil {
		return nil, fmt.Errorf("h3pool: Addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Pool{
		cfg:  cfg,
		sink: sink,
		host: hostDesc{addr: cfg.Addr.String(), ip: cfg.Addr.IP},
	}, nil
}

// stream wraps a QUIC stream to implement pool.Stream.
type stream struct{ s *quic.Stream }

func (s *stream) LocalReset() {
	s.s.CancelWrite(0)
	s.s.CancelRead(0)
}

// callbacksOnce wraps a pool.Callbacks so it can safely be fired from the
// dial goroutine exactly once, regardless of how many code paths race to
// call it, and so a caller-issued Cancel can permanently suppress it even
// though the dial itself has no cooperative abort point.
type callbacksOnce struct {
	mu        sync.Mutex
	fired     bool
	cancelled bool
	cb        pool.Callbacks
}

func (c *callbacksOnce) ready(s pool.Stream, h pool.Host, p pool.Protocol) {
	c.mu.Lock()
	if c.fired || c.cancelled {
		c.mu.Unlock()
		if c.cancelled {
			s.LocalReset()
		}
		return
	}
	c.fired = true
	c.mu.Unlock()
	c.cb.OnReady(s, h, p)
}

func (c *callbacksOnce) fail(reason pool.FailureReason, transport string, h pool.Host) {
	c.mu.Lock()
	if c.fired || c.cancelled {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.mu.Unlock()
	c.cb.OnFailure(reason, transport, h)
}

// cancel marks the pending completion as cancelled, so whichever of
// ready/fail the dial goroutine eventually reaches becomes a no-op from
// the caller's perspective.
func (c *callbacksOnce) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// NewStream implements pool.Handle. The first call triggers the lazy
// QUIC dial and returns Pending; later calls reuse the existing connection
// and open a new stream synchronously, returning ImmediateReady or
// ImmediateFailure.
func (p *Pool) NewStream(ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) pool.Result {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		return p.openOnExisting(ctx, conn, cb)
	}

	once := &callbacksOnce{cb: cb}
	go p.dialAndOpen(ctx, once, opts)
	return pool.Result{Outcome: pool.Pending, Token: cancelToken{once: once}}
}

// cancelToken is the Cancellable handed back for a pending dial. The dial
// itself has no cooperative abort point beyond ctx, so cancellation works
// by suppressing the eventual OnReady/OnFailure instead of stopping the
// goroutine.
type cancelToken struct{ once *callbacksOnce }

func (t cancelToken) Cancel(pool.CancelPolicy) { t.once.cancel() }

func (p *Pool) openOnExisting(ctx context.Context, conn *quic.Conn, cb pool.Callbacks) pool.Result {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()
	s, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		return pool.Result{
			Outcome:         pool.ImmediateFailure,
			FailureReason:   pool.RemoteConnectionFailure,
			TransportReason: err.Error(),
			FailureHost:     p.host,
		}
	}
	return pool.Result{
		Outcome:  pool.ImmediateReady,
		Stream:   &stream{s: s},
		Host:     p.host,
		Protocol: pool.ProtocolH3,
	}
}

func (p *Pool) dialAndOpen(ctx context.Context, once *callbacksOnce, opts pool.StreamOptions) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	tlsCfg := p.cfg.TLSConfig
	if tlsCfg != nil && opts.CanSendEarlyData {
		tlsCfg = tlsCfg.Clone()
	}

	flog.Debugf("h3pool: dialing %s", p.host)
	conn, err := quic.Dial(dialCtx, nil, p.cfg.Addr, tlsCfg, p.cfg.QUICConfig)
	if err != nil {
		flog.Debugf("h3pool: dial to %s failed: %v", p.host, err)
		once.fail(pool.RemoteConnectionFailure, err.Error(), p.host)
		return
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go p.watchHandshake(conn, opts)

	s, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		once.fail(pool.RemoteConnectionFailure, err.Error(), p.host)
		return
	}
	once.ready(&stream{s: s}, p.host, pool.ProtocolH3)
}

// watchHandshake waits for the QUIC handshake to complete and reports the
// outcome to the grid's liveness sink.
func (p *Pool) watchHandshake(conn *quic.Conn, opts pool.StreamOptions) {
	select {
	case <-conn.HandshakeComplete():
		if p.sink != nil {
			p.sink.OnHandshakeComplete()
		}
		if opts.CanSendEarlyData && !conn.ConnectionState().Used0RTT {
			if p.sink != nil {
				p.sink.OnZeroRTTHandshakeFailed()
			}
		}
	case <-conn.Context().Done():
		// Connection died before the handshake finished; no liveness
		// signal to report beyond the ordinary stream failure already
		// delivered through NewStream.
	}
}

func (p *Pool) DrainConnections(behavior pool.DrainBehavior) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	if behavior == pool.DrainAndDelete {
		_ = conn.CloseWithError(0, "draining")
	}
}

func (p *Pool) AddIdleCallback(cb func()) {
	p.mu.Lock()
	p.idleCbs = append(p.idleCbs, cb)
	p.mu.Unlock()
}

func (p *Pool) HasActiveConnections() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *Pool) IsIdle() bool {
	// A single-connection pool with no outstanding streams is idle; the
	// grid only ever asks this between requests, so a live connection
	// with no way to introspect open stream count is treated as idle
	// once dialed (stream lifetime is owned by the caller, not us).
	return true
}

func (p *Pool) DeleteIsPending() {
	p.mu.Lock()
	p.deletePending = true
	p.mu.Unlock()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.closed = true
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.CloseWithError(0, "pool closed")
}
