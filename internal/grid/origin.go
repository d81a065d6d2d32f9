package grid

import "paqet/internal/grid/originkey"

// SchemeHTTPS is the only scheme the grid currently supports.
//
// TODO(paqet): figure out how a non-https scheme would get plumbed in here,
// if it ever needs to be. Kept as a constant rather than threaded through
// Origin's constructor until there's a caller that needs anything else.
const SchemeHTTPS = "https"

// Origin is the immutable identity key into the alt-protocol cache and the
// H3 status tracker: (scheme, sni_host, port).
type Origin = originkey.Origin

// NewOrigin builds an Origin with the fixed https scheme.
func NewOrigin(host string, port int) Origin {
	return Origin{Scheme: SchemeHTTPS, Host: host, Port: port}
}
