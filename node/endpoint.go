package node

import (
	"fmt"
	"net"
)

// Endpoint identifies a single cache node. Equality is by (host, port), but
// comparison and hashing use the resolved IP when one is known, falling
// back to the hostname otherwise — mirroring the preference rule the
// configuration-endpoint wire format itself encodes (prefer the ip field,
// fall back to hostname).
type Endpoint struct {
	Host       string
	ResolvedIP string
	Port       int
}

// NewEndpoint builds an Endpoint from a hostname/ip pair as parsed off the
// wire. Either of host or resolvedIP may be empty, but not both.
func NewEndpoint(host, resolvedIP string, port int) Endpoint {
	return Endpoint{Host: host, ResolvedIP: resolvedIP, Port: port}
}

// addr returns the host part used for dialing and identity: the resolved IP
// when present, the hostname otherwise.
func (e Endpoint) addr() string {
	if e.ResolvedIP != "" {
		return e.ResolvedIP
	}

	return e.Host
}

// Key returns the stable identity of the endpoint, used for map lookups and
// as the hash-ring key.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.addr(), fmt.Sprint(e.Port))
}

// String returns a diagnostic-friendly representation that preserves the
// hostname when one was supplied.
func (e Endpoint) String() string {
	if e.Host != "" && e.ResolvedIP != "" && e.Host != e.ResolvedIP {
		return fmt.Sprintf("%s(%s):%d", e.Host, e.ResolvedIP, e.Port)
	}

	return net.JoinHostPort(e.addr(), fmt.Sprint(e.Port))
}

// DialAddr returns the "host:port" string to pass to a Dialer.
func (e Endpoint) DialAddr() string {
	return e.Key()
}
