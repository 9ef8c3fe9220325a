package pool

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/maxpoletaev/elastipool/node"
)

// ConfigError reports an invalid Options field (spec §6).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pool: invalid option %s: %s", e.Field, e.Reason)
}

// ErrDisposed is returned by Start when called after Dispose.
var ErrDisposed = errors.New("pool: disposed")

// parseHostPort parses a "host:port" initial-server entry into a
// node.Endpoint. The host is treated as a resolved IP when it parses as
// one, and as a hostname otherwise — mirroring the ip-preferred rule the
// discovery wire format itself uses.
func parseHostPort(addr string) (node.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return node.Endpoint{}, fmt.Errorf("initial server %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return node.Endpoint{}, fmt.Errorf("initial server %q: bad port: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		return node.NewEndpoint("", host, port), nil
	}

	return node.NewEndpoint(host, "", port), nil
}
