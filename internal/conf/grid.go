package conf

import "fmt"

// Grid holds the tunables for the per-origin connectivity grid: the
// happy-eyeballs-style race between the QUIC (H3) pool and the
// smux-over-TCP (H2/fallback) pool for a single upstream origin.
type Grid struct {
	// NextAttemptMs is the delay, in milliseconds, before the H2 race
	// starts once an H3 attempt is outstanding. Zero means use the
	// grid's built-in default (300ms), overridden at construction time
	// by 2x the alt-cache's smoothed RTT when one is known.
	NextAttemptMs int `yaml:"next_attempt_ms"`

	// AvoidZombieStreams controls whether a "zombie" success (the
	// caller already received a different outcome) locally resets the
	// resulting stream instead of leaking it.
	AvoidZombieStreams bool `yaml:"avoid_zombie_streams"`

	// H3DialTimeoutMs bounds a single QUIC handshake attempt.
	H3DialTimeoutMs int `yaml:"h3_dial_timeout_ms"`
	// H2DialTimeoutMs bounds a single TCP+smux session establishment.
	H2DialTimeoutMs int `yaml:"h2_dial_timeout_ms"`
}

func (g *Grid) setDefaults() {
	if g.NextAttemptMs == 0 {
		g.NextAttemptMs = 300
	}
	if g.H3DialTimeoutMs == 0 {
		g.H3DialTimeoutMs = 5000
	}
	if g.H2DialTimeoutMs == 0 {
		g.H2DialTimeoutMs = 5000
	}
}

func (g *Grid) validate() []error {
	var errors []error

	if g.NextAttemptMs < 0 || g.NextAttemptMs > 60_000 {
		errors = append(errors, fmt.Errorf("grid.next_attempt_ms must be between 0-60000"))
	}
	if g.H3DialTimeoutMs < 100 || g.H3DialTimeoutMs > 120_000 {
		errors = append(errors, fmt.Errorf("grid.h3_dial_timeout_ms must be between 100-120000"))
	}
	if g.H2DialTimeoutMs < 100 || g.H2DialTimeoutMs > 120_000 {
		errors = append(errors, fmt.Errorf("grid.h2_dial_timeout_ms must be between 100-120000"))
	}

	return errors
}
