// Package pool defines the abstract contract every per-protocol connection
// pool must satisfy so the grid can race them interchangeably. Concrete
// implementations live in sibling packages (h3pool, h2pool); this package
// only declares the shape the grid depends on.
package pool

import (
	"context"
	"fmt"
)

// FailureReason is the closed set of pool failure kinds a caller can see.
// The grid never invents a reason of its own; it forwards whatever the
// underlying pool produced, except during teardown (grid.Close synthesizes
// LocalConnectionFailure with the text "grid teardown").
type FailureReason int

const (
	LocalConnectionFailure FailureReason = iota
	RemoteConnectionFailure
	Overflow
	Timeout
)

func (r FailureReason) String() string {
	switch r {
	case LocalConnectionFailure:
		return "local_connection_failure"
	case RemoteConnectionFailure:
		return "remote_connection_failure"
	case Overflow:
		return "overflow"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CancelPolicy controls how an in-flight attempt is torn down.
type CancelPolicy int

const (
	// Default leaves any partially-established connection to be reused.
	Default CancelPolicy = iota
	// CloseExcess forcibly closes anything the attempt already opened.
	CloseExcess
)

func (p CancelPolicy) String() string {
	if p == CloseExcess {
		return "close_excess"
	}
	return "default"
}

// DrainBehavior controls what DrainConnections does to idle connections.
type DrainBehavior int

const (
	DrainOnly DrainBehavior = iota
	DrainAndDelete
)

// Protocol identifies which wire protocol a stream ended up using. Reported
// back on success so callers that care (tests, stats) can tell H3 and H2
// streams apart.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolH3
	ProtocolH2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolH3:
		return "h3"
	case ProtocolH2:
		return "h2"
	default:
		return "unknown"
	}
}

// StreamOptions are the per-request knobs the grid forwards to a pool.
type StreamOptions struct {
	CanUseH3         bool
	CanSendEarlyData bool
}

// Stream is the opaque handle a pool hands back on success. The grid never
// looks inside it beyond passing it to the caller or, for a zombie
// success, asking it to reset itself.
type Stream interface {
	// LocalReset tears the stream down immediately. Used when the caller
	// that asked for it has already been signaled a different outcome
	// (the avoid-zombie-streams path).
	LocalReset()
}

// Host is an opaque descriptor for the upstream host a pool connects to.
// The grid never inspects it beyond passing it through and checking
// whether it is a literal IP address.
type Host interface {
	fmt.Stringer
	// IsIP reports whether the host address is a literal IP, which gates
	// whether H3 may be attempted at all.
	IsIP() bool
}

// Callbacks is the sink an Attempt supplies to NewStream for outcomes that
// are not known synchronously. Exactly one of OnReady/OnFailure fires, and
// only once, for any NewStream call that returned Pending.
type Callbacks interface {
	OnReady(stream Stream, host Host, protocol Protocol)
	OnFailure(reason FailureReason, transportReason string, host Host)
}

// Cancellable is the token returned by a pending NewStream call.
type Cancellable interface {
	Cancel(policy CancelPolicy)
}

// Outcome tags whether NewStream completed synchronously or is still in
// flight. This is the Go rendering of the sum type called for directly by
// the design notes: {Pending(token), Immediate}.
type Outcome int

const (
	// Pending means the pool will invoke cb exactly once later.
	Pending Outcome = iota
	// ImmediateReady means the stream is already usable; cb is not
	// invoked for this call.
	ImmediateReady
	// ImmediateFailure means the attempt already failed synchronously;
	// cb is not invoked for this call.
	ImmediateFailure
)

// Result is what NewStream returns. Only the fields relevant to Outcome
// are populated; the rest are zero.
type Result struct {
	Outcome Outcome

	// Populated when Outcome == Pending.
	Token Cancellable

	// Populated when Outcome == ImmediateReady.
	Stream   Stream
	Host     Host
	Protocol Protocol

	// Populated when Outcome == ImmediateFailure.
	FailureReason   FailureReason
	TransportReason string
	FailureHost     Host
}

// Handle is the uniform interface the grid programs against for both the
// H3 pool and the H2/fallback pool. A pool's identity is recognized
// solely by comparing the Handle value itself; there is no separate type
// tag.
type Handle interface {
	// NewStream starts a stream-creation attempt. If it can be satisfied
	// synchronously the returned Result carries ImmediateReady or
	// ImmediateFailure and cb is never invoked for this call; otherwise
	// it returns Pending with a live Token and cb fires exactly once,
	// later, possibly from a different goroutine.
	NewStream(ctx context.Context, cb Callbacks, opts StreamOptions) Result

	DrainConnections(behavior DrainBehavior)
	AddIdleCallback(cb func())
	HasActiveConnections() bool
	IsIdle() bool
	// DeleteIsPending is an advisory signal the pool should expect
	// teardown soon; it does not by itself stop accepting work.
	DeleteIsPending()
	// Close releases any resources the pool holds (sockets, sessions).
	Close() error
}
