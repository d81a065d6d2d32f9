// Package h3status tracks, per origin, whether H3 is known broken, has
// recently failed, or has been confirmed to work at least once. The grid
// consumes this through the Tracker type; it never mutates liveness
// state itself except through the three Mark* calls.
package h3status

import (
	"sync"

	"paqet/internal/grid/originkey"
)

// Origin aliases the shared origin key so callers can use either name.
type Origin = originkey.Origin

type flags struct {
	broken         bool
	confirmed      bool
	failedRecently bool
}

// Tracker is the process-wide (or test-scoped) H3 liveness store. A single
// Tracker can be shared by several grids for different origins, the same
// way paqet's config registries are shared across connections.
type Tracker struct {
	mu    sync.Mutex
	state map[Origin]*flags
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{state: make(map[Origin]*flags)}
}

func (t *Tracker) get(o Origin) *flags {
	f, ok := t.state[o]
	if !ok {
		f = &flags{}
		t.state[o] = f
	}
	return f
}

func (t *Tracker) IsBroken(o Origin) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(o).broken
}

func (t *Tracker) HasFailedRecently(o Origin) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(o).failedRecently
}

func (t *Tracker) MarkBroken(o Origin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(o).broken = true
}

func (t *Tracker) MarkConfirmed(o Origin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.get(o)
	f.confirmed = true
	// A successful handshake is the strongest possible signal that H3
	// works; clear the softer "failed recently" flag so a single blip
	// doesn't keep delaying the TCP race forever.
	f.failedRecently = false
}

func (t *Tracker) MarkFailedRecently(o Origin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(o).failedRecently = true
}

// IsConfirmed reports whether H3 has ever completed a handshake for this
// origin. Not used by the grid's own race decision (which only reads
// broken/failed-recently) but exposed for stats and test assertions.
func (t *Tracker) IsConfirmed(o Origin) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(o).confirmed
}
