package node

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Conn is the liveness-probing capability a Handle needs from the
// underlying cache client's socket pool. The full memcached wire protocol,
// value serialization, and authentication are provided by that underlying
// client and are out of scope here (spec §1) — Conn only has to answer "is
// this node reachable right now".
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a Conn to an Endpoint.
type Dialer func(ctx context.Context, endpoint Endpoint) (Conn, error)

// DialTCP is the default Dialer: a plain TCP connect used as a stand-in for
// the underlying memcached client's real socket pool.
func DialTCP(ctx context.Context, endpoint Endpoint) (Conn, error) {
	dialer := &net.Dialer{}

	c, err := dialer.DialContext(ctx, "tcp", endpoint.DialAddr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return &tcpConn{conn: c}, nil
}

type tcpConn struct {
	conn net.Conn
}

func (c *tcpConn) Ping(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(2 * time.Second)
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	// A zero-length write surfaces a reset/closed socket without consuming
	// any bytes the (out-of-scope) protocol client still owns on the
	// stream. It is not a strong liveness check, but checking more than
	// that would mean speaking the cache protocol, which is not this
	// core's job.
	if _, err := c.conn.Write(nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	return nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
