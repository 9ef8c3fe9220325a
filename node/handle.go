package node

import (
	"context"
	"sync"
	"sync/atomic"
)

// FailedFunc is invoked when a Handle's failed event fires.
type FailedFunc func(h *Handle)

// Handle is an opaque per-node object, analogous to what an underlying
// memcached client library hands back for each cache node: a liveness flag
// plus ping/dispose/failed capabilities. A Handle is owned by exactly one
// pool at a time.
type Handle struct {
	endpoint Endpoint
	dialer   Dialer

	alive atomic.Bool

	mu          sync.Mutex
	conn        Conn
	subscribers []FailedFunc
	disposed    bool
}

// New creates a Handle for endpoint. The handle starts out alive: per
// spec §3, is_alive is true "when the handle has a usable open connection
// or has not yet been marked dead" — a freshly-minted handle has neither
// failed nor been probed yet.
func New(endpoint Endpoint, dialer Dialer) *Handle {
	h := &Handle{
		endpoint: endpoint,
		dialer:   dialer,
	}

	h.alive.Store(true)

	return h
}

// Endpoint returns the node endpoint this handle represents.
func (h *Handle) Endpoint() Endpoint {
	return h.endpoint
}

// RingKey implements locator.Member.
func (h *Handle) RingKey() string {
	return h.endpoint.Key()
}

// IsAlive reports the handle's current liveness flag.
func (h *Handle) IsAlive() bool {
	return h.alive.Load()
}

// OnFailed subscribes f to this handle's failed event. Subscriptions are
// never removed: Dispose leaves them in place, and a handle the pool drops
// keeps its subscribers until the handle itself is garbage-collected.
func (h *Handle) OnFailed(f FailedFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers = append(h.subscribers, f)
}

// ReportFailure is the seam the (out-of-scope) operation path calls when an
// operation against this handle fails terminally. It flips is_alive to
// false, closes the current connection if any, and re-fires to subscribers
// exactly once per alive->dead transition, so a storm of failing operations
// against an already-dead handle does not retrigger the pool's failure
// path repeatedly.
func (h *Handle) ReportFailure(_ error) {
	wasAlive := h.alive.CompareAndSwap(true, false)
	if !wasAlive {
		return
	}

	h.mu.Lock()
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
	subs := append([]FailedFunc(nil), h.subscribers...)
	h.mu.Unlock()

	for _, f := range subs {
		f(h)
	}
}

// Ping attempts to re-establish connectivity, reusing an open connection if
// one exists. A successful ping sets is_alive to true; a failed one sets it
// to false. It does not fire the failed event — resurrection is the pool's
// job, driven by the return value of Ping, not by the handle broadcasting
// its own probe results.
func (h *Handle) Ping(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		h.alive.Store(false)
		return errDisposed
	}

	if h.conn != nil {
		if err := h.conn.Ping(ctx); err == nil {
			h.alive.Store(true)
			return nil
		}

		_ = h.conn.Close()
		h.conn = nil
	}

	conn, err := h.dialer(ctx, h.endpoint)
	if err != nil {
		h.alive.Store(false)
		return err
	}

	h.conn = conn
	h.alive.Store(true)

	return nil
}

// Dispose releases the handle's socket. It is idempotent.
func (h *Handle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return nil
	}

	h.disposed = true

	if h.conn == nil {
		return nil
	}

	err := h.conn.Close()
	h.conn = nil

	return err
}
