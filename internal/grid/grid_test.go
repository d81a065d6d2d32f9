package grid

import (
	"context"
	"sync"
	"testing"
	"time"

	"paqet/internal/grid/altsvc"
	"paqet/internal/grid/h3status"
	"paqet/internal/grid/pool"
)

// fakeHost is a minimal pool.Host for tests.
type fakeHost struct {
	addr string
	ip   bool
}

func (h fakeHost) String() string { return h.addr }
func (h fakeHost) IsIP() bool     { return h.ip }

// fakeStream is a minimal pool.Stream that records whether it was reset.
type fakeStream struct {
	mu  sync.Mutex
	id  string
	was bool
}

func (s *fakeStream) LocalReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.was = true
}

func (s *fakeStream) wasReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.was
}

// fakeToken records how many times Cancel was called and with what policy.
type fakeToken struct {
	mu        sync.Mutex
	cancelled bool
	policy    pool.CancelPolicy
}

func (t *fakeToken) Cancel(policy pool.CancelPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.policy = policy
}

func (t *fakeToken) wasCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// fakeHandle is a hand-written pool.Handle test double. When immediate is
// set, NewStream returns it synchronously; otherwise it stashes cb for the
// test to fire later via fireReady/fireFailure.
type fakeHandle struct {
	mu        sync.Mutex
	immediate *pool.Result
	lastCB    pool.Callbacks
	lastToken *fakeToken
	lastOpts  pool.StreamOptions
	calls     int
	closed    bool
}

func (h *fakeHandle) NewStream(ctx context.Context, cb pool.Callbacks, opts pool.StreamOptions) pool.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.lastOpts = opts
	if h.immediate != nil {
		return *h.immediate
	}
	h.lastCB = cb
	h.lastToken = &fakeToken{}
	return pool.Result{Outcome: pool.Pending, Token: h.lastToken}
}

func (h *fakeHandle) fireReady(stream pool.Stream, host pool.Host, protocol pool.Protocol) {
	h.mu.Lock()
	cb := h.lastCB
	h.mu.Unlock()
	cb.OnReady(stream, host, protocol)
}

func (h *fakeHandle) fireFailure(reason pool.FailureReason, transportReason string, host pool.Host) {
	h.mu.Lock()
	cb := h.lastCB
	h.mu.Unlock()
	cb.OnFailure(reason, transportReason, host)
}

func (h *fakeHandle) token() *fakeToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastToken
}

func (h *fakeHandle) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *fakeHandle) opts() pool.StreamOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastOpts
}

func (h *fakeHandle) DrainConnections(pool.DrainBehavior) {}
func (h *fakeHandle) AddIdleCallback(func())              {}
func (h *fakeHandle) HasActiveConnections() bool          { return false }
func (h *fakeHandle) IsIdle() bool                        { return true }
func (h *fakeHandle) DeleteIsPending()                    {}
func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// recorder is the caller-side pool.Callbacks test double, with a channel
// signal so tests can wait for an asynchronous completion without sleeping.
type recorder struct {
	mu              sync.Mutex
	readyCalled     bool
	failCalled      bool
	stream          pool.Stream
	host            pool.Host
	protocol        pool.Protocol
	reason          pool.FailureReason
	transportReason string
	done            chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 1)}
}

func (r *recorder) OnReady(stream pool.Stream, host pool.Host, protocol pool.Protocol) {
	r.mu.Lock()
	r.readyCalled = true
	r.stream = stream
	r.host = host
	r.protocol = protocol
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) OnFailure(reason pool.FailureReason, transportReason string, host pool.Host) {
	r.mu.Lock()
	r.failCalled = true
	r.reason = reason
	r.transportReason = transportReason
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) signal() {
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func (r *recorder) gotReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyCalled
}

func (r *recorder) gotFailure() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failCalled
}

const testAddr = "93.184.216.34"

func testOrigin() Origin {
	return NewOrigin("example.com", 443)
}

type testGrid struct {
	g  *Grid
	h3 *fakeHandle
	h2 *fakeHandle
	ac *altsvc.Cache
	tr *h3status.Tracker
}

func newTestGrid(t *testing.T, withH3Alt bool) *testGrid {
	t.Helper()
	h3 := &fakeHandle{}
	h2 := &fakeHandle{}
	ac := altsvc.New()
	tr := h3status.New()
	origin := testOrigin()
	if withH3Alt {
		ac.SetAlternatives(origin, []altsvc.Alternative{{ALPN: "h3"}})
	}

	cfg := Config{
		Origin:   origin,
		Host:     fakeHost{addr: testAddr, ip: true},
		Tracker:  tr,
		AltCache: ac,
		NewH3Pool: func(sink H3LivenessSink) (pool.Handle, error) {
			return h3, nil
		},
		NewH2Pool: func() (pool.Handle, error) {
			return h2, nil
		},
		NextAttemptDefault: 20 * time.Millisecond,
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return &testGrid{g: g, h3: h3, h2: h2, ac: ac, tr: tr}
}

// S1: H3 is eligible and the pool answers immediately. No H2 race occurs.
func TestImmediateH3Success(t *testing.T) {
	tg := newTestGrid(t, true)
	stream := &fakeStream{id: "h3-stream"}
	host := fakeHost{addr: testAddr, ip: true}
	tg.h3.immediate = &pool.Result{Outcome: pool.ImmediateReady, Stream: stream, Host: host, Protocol: pool.ProtocolH3}

	rec := newRecorder()
	handle, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if handle != nil {
		t.Fatalf("NewStream() handle = %v, want nil for synchronous completion", handle)
	}
	if !rec.gotReady() {
		t.Fatal("expected synchronous OnReady")
	}
	if rec.protocol != pool.ProtocolH3 {
		t.Fatalf("protocol = %v, want h3", rec.protocol)
	}
	if tg.h2.callCount() != 0 {
		t.Fatalf("h2 pool was dialed, want untouched")
	}
}

// S2: H3 never answers before the next-attempt timer fires, H2 wins the
// race; the still-pending H3 attempt is left alone rather than cancelled.
func TestH2WinsRaceLeavesH3Running(t *testing.T) {
	tg := newTestGrid(t, true)
	tg.h2.immediate = &pool.Result{
		Outcome:  pool.ImmediateReady,
		Stream:   &fakeStream{id: "h2-stream"},
		Host:     fakeHost{addr: testAddr, ip: true},
		Protocol: pool.ProtocolH2,
	}

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	rec.wait(t)

	if !rec.gotReady() {
		t.Fatal("expected OnReady from h2")
	}
	if rec.protocol != pool.ProtocolH2 {
		t.Fatalf("protocol = %v, want h2", rec.protocol)
	}
	if tg.h3.token() == nil {
		t.Fatal("h3 attempt was never started")
	}
	if tg.h3.token().wasCancelled() {
		t.Fatal("h3 attempt was cancelled, want left running per fallback semantics")
	}
}

// S3: both pools fail; the caller sees exactly one terminal failure
// carrying the last pool's failure reason.
func TestBothPoolsFailDeliversTerminalFailure(t *testing.T) {
	tg := newTestGrid(t, true)

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	tg.h3.fireFailure(pool.RemoteConnectionFailure, "h3 reset", fakeHost{addr: testAddr, ip: true})

	// h3's failure alone makes the wrapper fall back to h2 immediately;
	// wait for that fallback attempt to register before firing its
	// failure too.
	deadline := time.Now().Add(2 * time.Second)
	for tg.h2.token() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tg.h2.token() == nil {
		t.Fatal("h2 fallback attempt was never started after h3 failed")
	}
	if rec.gotReady() || rec.gotFailure() {
		t.Fatal("h3 failure alone should not complete the wrapper while h2 is still pending")
	}

	tg.h2.fireFailure(pool.LocalConnectionFailure, "h2 refused", fakeHost{addr: testAddr, ip: true})
	rec.wait(t)

	if !rec.gotFailure() {
		t.Fatal("expected terminal OnFailure once both pools have failed")
	}
	if rec.reason != pool.LocalConnectionFailure {
		t.Fatalf("reason = %v, want the last failure's reason", rec.reason)
	}
}

// S4: when the caller says H3 cannot be used, the grid never dials H3 at
// all and goes straight to H2.
func TestCanUseH3FalseSkipsH3(t *testing.T) {
	tg := newTestGrid(t, true)
	tg.h2.immediate = &pool.Result{
		Outcome:  pool.ImmediateReady,
		Stream:   &fakeStream{id: "h2-only"},
		Host:     fakeHost{addr: testAddr, ip: true},
		Protocol: pool.ProtocolH2,
	}

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: false})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if !rec.gotReady() {
		t.Fatal("expected immediate OnReady from h2")
	}
	if tg.h3.callCount() != 0 {
		t.Fatal("h3 pool was dialed despite CanUseH3=false")
	}
}

// S5: the caller cancels before any attempt completes; no callback fires
// and the pending token is cancelled with the caller's chosen policy.
func TestCallerCancelStopsPendingAttempts(t *testing.T) {
	tg := newTestGrid(t, true)

	rec := newRecorder()
	handle, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if handle == nil {
		t.Fatal("expected a live cancel handle for a pending attempt")
	}

	tg.g.Cancel(handle, pool.CloseExcess)

	// give the loop goroutine a moment to process the cancellation
	time.Sleep(50 * time.Millisecond)

	if rec.gotReady() || rec.gotFailure() {
		t.Fatal("cancelled request must not receive any callback")
	}
	tok := tg.h3.token()
	if tok == nil || !tok.wasCancelled() {
		t.Fatal("expected the h3 token to have been cancelled")
	}
	if tok.policy != pool.CloseExcess {
		t.Fatalf("cancel policy = %v, want CloseExcess", tok.policy)
	}

	// A real pool can't always abort the in-flight dial once Cancel is
	// called, so it may still complete later. That late completion must
	// never reach the caller, since it already got nothing per the
	// cancel contract.
	late := &fakeStream{id: "h3-late"}
	tg.h3.fireReady(late, fakeHost{addr: testAddr, ip: true}, pool.ProtocolH3)
	time.Sleep(50 * time.Millisecond)
	if rec.gotReady() || rec.gotFailure() {
		t.Fatal("late completion after cancel must not reach the caller")
	}
	if !late.wasReset() {
		t.Fatal("expected the late stream to be locally reset instead of leaked")
	}
}

// S6: when H3 fails but H2 ultimately succeeds for the same wrapper, H3 is
// marked broken for the origin.
func TestH3FailureThenH2SuccessMarksH3Broken(t *testing.T) {
	tg := newTestGrid(t, true)

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	tg.h3.fireFailure(pool.RemoteConnectionFailure, "h3 reset", fakeHost{addr: testAddr, ip: true})

	deadline := time.Now().Add(2 * time.Second)
	for tg.h2.token() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tg.h2.token() == nil {
		t.Fatal("h2 fallback attempt was never started after h3 failed")
	}

	tg.h2.fireReady(&fakeStream{id: "h2-stream"}, fakeHost{addr: testAddr, ip: true}, pool.ProtocolH2)
	rec.wait(t)

	if !rec.gotReady() {
		t.Fatal("expected OnReady from h2 after h3 failed")
	}
	if !tg.tr.IsBroken(testOrigin()) {
		t.Fatal("expected h3 to be marked broken for the origin")
	}
	if tg.g.H3BrokenCount() != 1 {
		t.Fatalf("H3BrokenCount() = %d, want 1", tg.g.H3BrokenCount())
	}
}

// Without any advertised H3 alternative, the grid never dials H3 at all.
func TestNoAltSvcEntrySkipsH3(t *testing.T) {
	tg := newTestGrid(t, false)
	tg.h2.immediate = &pool.Result{
		Outcome:  pool.ImmediateReady,
		Stream:   &fakeStream{id: "h2-default"},
		Host:     fakeHost{addr: testAddr, ip: true},
		Protocol: pool.ProtocolH2,
	}

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if !rec.gotReady() {
		t.Fatal("expected immediate OnReady from h2")
	}
	if tg.h3.callCount() != 0 {
		t.Fatal("h3 pool was dialed despite no alt-svc entry")
	}
}

// Zombie-stream handling: a success that arrives after the caller has
// already been signaled a different outcome locally resets the stream
// instead of leaking it, when avoid_zombie_streams is enabled.
func TestZombieStreamIsLocallyReset(t *testing.T) {
	h3 := &fakeHandle{}
	h2 := &fakeHandle{}
	ac := altsvc.New()
	tr := h3status.New()
	origin := testOrigin()
	ac.SetAlternatives(origin, []altsvc.Alternative{{ALPN: "h3"}})

	cfg := Config{
		Origin:             origin,
		Host:               fakeHost{addr: testAddr, ip: true},
		Tracker:            tr,
		AltCache:           ac,
		NewH3Pool:          func(sink H3LivenessSink) (pool.Handle, error) { return h3, nil },
		NewH2Pool:          func() (pool.Handle, error) { return h2, nil },
		NextAttemptDefault: 20 * time.Millisecond,
		AvoidZombieStreams: true,
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	rec := newRecorder()
	handle, err := g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if handle == nil {
		t.Fatal("expected a pending cancel handle")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h2.token() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h2.token() == nil {
		t.Fatal("h2 attempt was never started by the next-attempt timer")
	}

	h2.fireReady(&fakeStream{id: "h2-winner"}, fakeHost{addr: testAddr, ip: true}, pool.ProtocolH2)
	rec.wait(t)
	if !rec.gotReady() {
		t.Fatal("expected h2 to win and signal the caller")
	}

	zombie := &fakeStream{id: "h3-zombie"}
	h3.fireReady(zombie, fakeHost{addr: testAddr, ip: true}, pool.ProtocolH3)

	// Give the loop goroutine a moment to process the zombie success.
	time.Sleep(50 * time.Millisecond)
	if !zombie.wasReset() {
		t.Fatal("expected the zombie h3 stream to be locally reset")
	}
}

// Close delivers a synthetic terminal failure to every wrapper still
// outstanding, rather than leaving callers hanging forever.
func TestCloseSignalsOutstandingWrappers(t *testing.T) {
	tg := newTestGrid(t, true)

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	if err := tg.g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rec.wait(t)

	if !rec.gotFailure() {
		t.Fatal("expected a synthetic failure on close")
	}
	if rec.transportReason != "grid teardown" {
		t.Fatalf("transportReason = %q, want %q", rec.transportReason, "grid teardown")
	}

	// Further calls after Close must fail, not hang.
	rec2 := newRecorder()
	_, err = tg.g.NewStream(context.Background(), rec2, pool.StreamOptions{CanUseH3: true})
	if err != ErrGridClosed {
		t.Fatalf("NewStream() after Close error = %v, want ErrGridClosed", err)
	}
}

// When the tracker remembers a recent H3 failure for this origin, H3 is
// still raced (it hasn't been marked broken), but early data is withheld
// and the H2 fallback is started immediately rather than after the
// next-attempt timer.
func TestFailedRecentlyStartsH2Immediately(t *testing.T) {
	tg := newTestGrid(t, true)
	tg.tr.MarkFailedRecently(testOrigin())

	rec := newRecorder()
	handle, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: true, CanSendEarlyData: true})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if handle == nil {
		t.Fatal("expected a pending cancel handle")
	}

	if tg.h3.callCount() != 1 {
		t.Fatalf("h3 calls = %d, want 1", tg.h3.callCount())
	}
	if tg.h3.opts().CanSendEarlyData {
		t.Fatal("expected CanSendEarlyData to be withheld after a recent h3 failure")
	}
	if tg.h2.callCount() != 1 {
		t.Fatalf("h2 calls = %d, want 1 (started immediately, not after the next-attempt timer)", tg.h2.callCount())
	}
}

// When the caller says H3 cannot be used for this logical request, that
// preset failure still counts toward broken-detection: if H2 goes on to
// succeed, H3 is marked broken for the origin exactly as if H3 had
// actually been attempted and failed.
func TestCanUseH3FalsePresetCountsTowardBroken(t *testing.T) {
	tg := newTestGrid(t, true)
	tg.h2.immediate = &pool.Result{
		Outcome:  pool.ImmediateReady,
		Stream:   &fakeStream{id: "h2-only"},
		Host:     fakeHost{addr: testAddr, ip: true},
		Protocol: pool.ProtocolH2,
	}

	rec := newRecorder()
	_, err := tg.g.NewStream(context.Background(), rec, pool.StreamOptions{CanUseH3: false})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	if !rec.gotReady() {
		t.Fatal("expected immediate OnReady from h2")
	}
	if !tg.tr.IsBroken(testOrigin()) {
		t.Fatal("expected h3 to be marked broken once h2 succeeded for a CanUseH3=false request")
	}
	if tg.g.H3BrokenCount() != 1 {
		t.Fatalf("H3BrokenCount() = %d, want 1", tg.g.H3BrokenCount())
	}
}
