package configendpoint

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/elastipool/node"
)

// Endpoint is the (host, port) of the cluster's configuration endpoint.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) addr() string {
	return net.JoinHostPort(e.Host, fmt.Sprint(e.Port))
}

// ClusterConfig is the parsed response to "config get cluster": a
// monotonically non-decreasing version plus the ordered node roster at
// that version.
type ClusterConfig struct {
	Version uint64
	Nodes   []node.Endpoint
}

// Option configures a ConfigEndpoint.
type Option func(*ConfigEndpoint)

// WithDialTimeout overrides the connect timeout used when opening the
// dedicated connection to the configuration endpoint.
func WithDialTimeout(d time.Duration) Option {
	return func(c *ConfigEndpoint) { c.dialTimeout = d }
}

// WithReadTimeout overrides the read timeout used while reading a
// "config get cluster" response.
func WithReadTimeout(d time.Duration) Option {
	return func(c *ConfigEndpoint) { c.readTimeout = d }
}

// WithRetry overrides the initial-resolution retry policy (spec §4.1):
// tries defaults to 5, delay to 1s.
func WithRetry(tries int, delay time.Duration) Option {
	return func(c *ConfigEndpoint) {
		if tries > 0 {
			c.tries = tries
		}

		if delay > 0 {
			c.delay = delay
		}
	}
}

// ConfigEndpoint translates a single cluster configuration endpoint into
// parsed (version, node roster) tuples. It owns one dedicated connection,
// opened lazily and reused across calls to Resolve until an I/O error
// forces a redial.
type ConfigEndpoint struct {
	endpoint Endpoint
	logger   kitlog.Logger

	dialTimeout time.Duration
	readTimeout time.Duration
	tries       int
	delay       time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// New creates a ConfigEndpoint for endpoint. The connection is not opened
// until the first call to Resolve.
func New(endpoint Endpoint, logger kitlog.Logger, opts ...Option) *ConfigEndpoint {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	c := &ConfigEndpoint{
		endpoint:    endpoint,
		logger:      logger,
		dialTimeout: 5 * time.Second,
		readTimeout: 5 * time.Second,
		tries:       5,
		delay:       time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resolve issues "config get cluster" against the configuration endpoint
// and parses the response. Transport errors close the dedicated connection
// so the next call redials.
func (c *ConfigEndpoint) Resolve(ctx context.Context) (ClusterConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return ClusterConfig{}, fmt.Errorf("configendpoint: connect: %w", err)
	}

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return ClusterConfig{}, fmt.Errorf("configendpoint: set deadline: %w", err)
	}

	if _, err := conn.Write([]byte("config get cluster\r\n")); err != nil {
		c.closeLocked()
		return ClusterConfig{}, fmt.Errorf("configendpoint: write request: %w", err)
	}

	cfg, err := readClusterConfig(conn)
	if err != nil {
		c.closeLocked()
		return ClusterConfig{}, fmt.Errorf("configendpoint: read response: %w", err)
	}

	return cfg, nil
}

func (c *ConfigEndpoint) connLocked(ctx context.Context) (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.endpoint.addr())
	if err != nil {
		return nil, err
	}

	c.conn = conn

	return conn, nil
}

func (c *ConfigEndpoint) closeLocked() {
	if c.conn == nil {
		return
	}

	_ = c.conn.Close()
	c.conn = nil
}

// ResolveWithRetry is used for the initial resolution only (spec §4.1): on
// failure it sleeps delay and retries up to tries-1 more times before
// surfacing the last error to the caller.
func (c *ConfigEndpoint) ResolveWithRetry(ctx context.Context) (ClusterConfig, error) {
	var lastErr error

	for attempt := 1; attempt <= c.tries; attempt++ {
		cfg, err := c.Resolve(ctx)
		if err == nil {
			return cfg, nil
		}

		lastErr = err

		level.Warn(c.logger).Log(
			"msg", "initial cluster discovery attempt failed",
			"attempt", attempt,
			"tries", c.tries,
			"err", err,
		)

		if attempt == c.tries {
			break
		}

		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ClusterConfig{}, ctx.Err()
		}
	}

	return ClusterConfig{}, fmt.Errorf("configendpoint: exhausted %d attempts: %w", c.tries, lastErr)
}

// Dispose releases the dedicated connection, if any.
func (c *ConfigEndpoint) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	return nil
}
