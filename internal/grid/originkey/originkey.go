// Package originkey defines the identity key shared by the grid, the
// alt-protocol cache, and the H3 status tracker, broken out into its own
// package so none of those three need to import each other just to agree
// on what an origin is.
package originkey

import "fmt"

// Origin is the immutable (scheme, sni_host, port) tuple used as the
// lookup key into liveness and alternative-protocol state.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}
