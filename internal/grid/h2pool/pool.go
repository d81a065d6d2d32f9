// Package h2pool is a concrete grid.Handle backed by a single smux-over-TCP
// session, standing in for the grid's H2/fallback pool. It mirrors
// internal/tnet/tcp's smux session style, adapted to the pool.Handle
// contract: one session is dialed lazily and every NewStream call after
// the first just opens another smux stream on it.
package h2pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"paqet/internal/conf"
	"paqet/internal/flog"
	"paqet/internal/grid/pool"

	"github.com/xtaci/smux"
)

// Config is the dial-time configuration for one origin's H2 pool.
type Config struct {
	Addr        *net.TCPAddr
	TCP         *conf.TransportTCP
	DialTimeout time.Duration
}

func smuxConfig(cfg *conf.TransportTCP) *smux.Config {
	smuxCfg := smux.DefaultConfig()
	if cfg != nil && cfg.SMUXConfig != nil {
		smuxCfg.Version = cfg.SMUXConfig.Version
		smuxCfg.MaxFrameSize = cfg.SMUXConfig.MaxFrameSize
		smuxCfg.MaxReceiveBuffer = cfg.SMUXConfig.MaxReceiveBuffer
		smuxCfg.MaxStreamBuffer = cfg.SMUXConfig.MaxStreamBuffer
		smuxCfg.KeepAliveInterval = time.Duration(cfg.SMUXConfig.KeepAliveInterval) * time.Second
		smuxCfg.KeepAliveTimeout = time.Duration(cfg.SMUXConfig.KeepAliveTimeout) * time.Second
	}
	return smuxCfg
}

func configureTCPConn(conn *net.TCPConn, cfg *conf.TransportTCP) error {
	if cfg == nil {
		return nil
	}
	if cfg.NoDelay {
		if err := conn.SetNoDelay(true); err != nil {
			return err
		}
	}
	if cfg.KeepAlive {
		if err := conn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := conn.SetKeepAlivePeriod(cfg.GetKeepAlivePeriod()); err != nil {
			return err
		}
	}
	if cfg.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBufferSize); err != nil {
			return err
		}
	}
	if cfg.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
			return err
		}
	}
	return nil
}

type hostDesc struct {
	addr string
	ip   net.IP
}

func (h hostDesc) String() string { return h.addr }
func (h hostDesc) IsIP() bool     { return h.ip != nil }

// Pool is the H2 (smux-over-TCP) pool handle.
type Pool struct {
	cfg  Config
	host hostDesc

	mu      sync.Mutex
	session *smux.Session
	conn    *net.TCPConn

	idleCbs       []func()
	deletePending bool
	closed        bool
}

// New dials lazily; construction never blocks on the network.
func New(cfg Config) (pool.Handle, error) {
	if cfg.Addr == nil {
		return nil, fmt.Errorf("h2pool: Addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Pool{
		cfg:  cfg,
		host: hostDesc{addr: cfg.Addr.String(), ip: cfg.Addr.IP},
	}, nil
}

type stream struct{ *smux.Stream }

func (s *stream) LocalReset() {
	_ = s.Stream.Close()
}

// callbacksOnce wraps a pool.Callbacks so the dial goroutine fires it at
// most once and so a caller-issued Cancel can permanently suppress it even
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

func (p *Pool) NewStream(ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) pool.Result {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()

	if sess != nil {
		return p.openOnExisting(sess)
	}

	once := &callbacksOnce{cb: cb}
	go p.dialAndOpen(ctx, once)
	return pool.Result{Outcome: pool.Pending, Token: cancelToken{once: once}}
}

// cancelToken is the Cancellable handed back for a pending dial. The dial
// itself has no cooperative abort point beyond ctx, so cancellation works
// by suppressing the eventual OnReady/OnFailure instead of stopping the
// goroutine.
type cancelToken struct{ once *callbacksOnce }

func (t cancelToken) Cancel(pool.CancelPolicy) { t.once.cancel() }

func (p *Pool) openOnExisting(sess *smux.Session) pool.Result {
	s, err := sess.OpenStream()
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
		Stream:   &stream{s},
		Host:     p.host,
		Protocol: pool.ProtocolH2,
	}
}

func (p *Pool) dialAndOpen(ctx context.Context, once *callbacksOnce) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	flog.Debugf("h2pool: dialing %s", p.host)
	var d net.Dialer
	rawConn, err := d.DialContext(dialCtx, "tcp", p.cfg.Addr.String())
	if err != nil {
		flog.Debugf("h2pool: dial to %s failed: %v", p.host, err)
		once.fail(pool.LocalConnectionFailure, err.Error(), p.host)
		return
	}
	tcpConn, ok := rawConn.(*net.TCPConn)
	if !ok {
		_ = rawConn.Close()
		once.fail(pool.LocalConnectionFailure, "dialed connection is not TCP", p.host)
		return
	}
	if err := configureTCPConn(tcpConn, p.cfg.TCP); err != nil {
		_ = tcpConn.Close()
		once.fail(pool.LocalConnectionFailure, err.Error(), p.host)
		return
	}

	sess, err := smux.Client(tcpConn, smuxConfig(p.cfg.TCP))
	if err != nil {
		_ = tcpConn.Close()
		once.fail(pool.RemoteConnectionFailure, err.Error(), p.host)
		return
	}

	p.mu.Lock()
	p.session = sess
	p.conn = tcpConn
	p.mu.Unlock()

	s, err := sess.OpenStream()
	if err != nil {
		once.fail(pool.RemoteConnectionFailure, err.Error(), p.host)
		return
	}
	once.ready(&stream{s}, p.host, pool.ProtocolH2)
}

func (p *Pool) DrainConnections(behavior pool.DrainBehavior) {
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return
	}
	if behavior == pool.DrainAndDelete {
		_ = sess.Close()
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
	return p.session != nil
}

func (p *Pool) IsIdle() bool {
	return true
}

func (p *Pool) DeleteIsPending() {
	p.mu.Lock()
	p.deletePending = true
	p.mu.Unlock()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	sess := p.session
	conn := p.conn
	p.closed = true
	p.mu.Unlock()

	var firstErr error
	if sess != nil {
		if err := sess.Close(); err != nil {
			firstErr = err
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
