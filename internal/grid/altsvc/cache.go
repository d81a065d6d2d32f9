// Package altsvc is a minimal stand-in for the alternative-protocol
// advertisement cache the grid consults to decide whether H3 is worth
// racing for a given origin. In a full build this would be populated from
// Alt-Svc response headers; that plumbing is out of scope for the grid
// itself, so this package exposes writer methods purely so something can
// populate it.
package altsvc

import (
	"sync"
	"time"

	"paqet/internal/grid/originkey"
)

// Origin aliases the shared origin key.
type Origin = originkey.Origin

// Alternative is one advertised alternate-protocol entry. An empty Hostname
// and a Port that is zero or the origin's own port mean the origin is
// unchanged; any other Hostname/Port changes the origin, and the grid skips
// such entries rather than following them.
type Alternative struct {
	ALPN     string
	Hostname string
	Port     int
}

type entry struct {
	alternatives []Alternative
	srtt         time.Duration
}

// Cache is the side-band collaborator the grid consults but never writes.
type Cache struct {
	mu      sync.Mutex
	entries map[Origin]*entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Origin]*entry)}
}

// FindAlternatives returns the advertised alternatives for origin, if any
// have been recorded. The empty-list/absent distinction matters: an origin
// with no entry at all must disable H3, same as one with an empty list.
func (c *Cache) FindAlternatives(o Origin) ([]Alternative, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[o]
	if !ok || len(e.alternatives) == 0 {
		return nil, false
	}
	out := make([]Alternative, len(e.alternatives))
	copy(out, e.alternatives)
	return out, true
}

// SmoothedRTT returns the last known smoothed round-trip time for origin,
// or zero if none has been recorded.
func (c *Cache) SmoothedRTT(o Origin) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[o]
	if !ok {
		return 0
	}
	return e.srtt
}

// SetAlternatives records the alt-protocol advertisements for an origin.
// The grid itself only ever reads the cache; this exists so the cache is
// populatable by the CLI/server wiring and by tests.
func (c *Cache) SetAlternatives(o Origin, alts []Alternative) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[o]
	if !ok {
		e = &entry{}
		c.entries[o] = e
	}
	e.alternatives = alts
}

// SetSrtt records the smoothed RTT for an origin.
func (c *Cache) SetSrtt(o Origin, rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[o]
	if !ok {
		e = &entry{}
		c.entries[o] = e
	}
	e.srtt = rtt
}

// supportedALPNs are the ALPN tokens quic-go negotiates for H3. The helper
// that maps an advertised ALPN token to supported/unsupported lives here,
// next to the data it interprets.
var supportedALPNs = map[string]bool{
	"h3":    true,
	"h3-29": true,
	"h3-32": true,
}

// SupportedALPN reports whether alpn names an encrypted transport version
// this build recognizes.
func SupportedALPN(alpn string) bool {
	return supportedALPNs[alpn]
}
