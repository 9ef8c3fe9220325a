// Package pool implements the Auto Server Pool: a routing table over cache
// nodes that stays in sync with a cluster's configuration endpoint via
// periodic auto-discovery, and resurrects nodes that have been marked dead
// (spec §3, §4.3, §9).
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/maxpoletaev/elastipool/configendpoint"
	"github.com/maxpoletaev/elastipool/discovery"
	"github.com/maxpoletaev/elastipool/internal/generic"
	"github.com/maxpoletaev/elastipool/internal/multierror"
	"github.com/maxpoletaev/elastipool/locator"
	"github.com/maxpoletaev/elastipool/node"
)

// FailedFunc is invoked whenever a node transitions from alive to dead.
type FailedFunc = node.FailedFunc

// Pool is the client-facing routing table: Locate resolves cache keys to
// node handles by consistent hashing, while a background poller keeps the
// membership current and a resurrection loop retries dead nodes.
type Pool struct {
	opts   resolved
	logger kitlog.Logger

	configEndpoint *configendpoint.ConfigEndpoint
	poller         *discovery.Poller

	loc generic.Atomic[*locator.Ring]

	mu                sync.Mutex
	allNodes          map[string]*node.Handle
	disposed          bool
	haveVersion       bool
	lastConfigVersion uint64
	subscribers       []FailedFunc
	resurrectActive   bool
	resurrectTimer    *time.Timer
}

// New constructs a Pool from opts. The pool is seeded with InitialServers
// (if any) so Locate is usable before Start completes the first discovery
// round; Start must still be called to begin polling. Resurrection of failed
// nodes is armed by the first node failure, whether or not Start was called.
func New(opts Options) (*Pool, error) {
	r, err := opts.Validate()
	if err != nil {
		return nil, err
	}

	p := &Pool{
		opts:     r,
		logger:   r.logger,
		allNodes: make(map[string]*node.Handle),
	}

	p.configEndpoint = configendpoint.New(
		r.clusterEndpoint,
		r.logger,
		configendpoint.WithRetry(r.tries, r.delay),
	)

	p.poller = discovery.New(p.configEndpoint, p, r.logger)

	p.loc.Store(locator.Empty())

	if len(r.initialServers) > 0 {
		p.rebuildLocator(r.initialServers)
	}

	return p, nil
}

// Start performs the initial cluster discovery (with the configured
// retry policy) and, on success, begins the background poller. If initial
// discovery fails and the pool was seeded with InitialServers, Start
// returns nil and leaves the seeded set in place — auto-discovery keeps
// trying on the regular poll interval.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()

	if disposed {
		return ErrDisposed
	}

	cfg, err := p.configEndpoint.ResolveWithRetry(ctx)
	if err != nil {
		if len(p.opts.initialServers) > 0 {
			level.Warn(p.logger).Log("msg", "initial discovery failed, starting from initial_servers", "err", err)
		} else {
			return err
		}
	} else {
		p.UpdateLocator(cfg.Version, cfg.Nodes)
	}

	p.poller.Start(p.opts.pollIntervalMs)

	return nil
}

// Locate returns the node handle that owns key under the current routing
// table. ok is false when the routing table holds no alive node: the pool
// has no nodes, or every node it knows is dead.
func (p *Pool) Locate(key string) (*node.Handle, bool) {
	ring := p.loc.Load()

	m, ok := ring.Locate(key)
	if !ok {
		return nil, false
	}

	return m.(*node.Handle), true
}

// WorkingNodes returns the handles currently considered alive.
func (p *Pool) WorkingNodes() []*node.Handle {
	ring := p.loc.Load()
	members := ring.Members()

	out := make([]*node.Handle, 0, len(members))

	for _, m := range members {
		h := m.(*node.Handle)
		if h.IsAlive() {
			out = append(out, h)
		}
	}

	return out
}

// OperationFactory returns the protocol-specific factory the pool was
// configured with.
func (p *Pool) OperationFactory() node.OperationFactory {
	return node.NewOperationFactory(p.opts.protocol)
}

// OnNodeFailed subscribes f to every node's failed event, present and
// future.
func (p *Pool) OnNodeFailed(f FailedFunc) {
	p.mu.Lock()
	p.subscribers = append(p.subscribers, f)
	p.mu.Unlock()
}

// UpdateLocator applies a new (version, roster) pair from the Config Node,
// implementing discovery.Updater. Stale or equal versions are ignored
// (idempotent per spec §4.3). For each endpoint, a node already known dead
// keeps its existing handle (and therefore its dead state) rather than
// being revived by the mere fact of reappearing in a roster; every other
// endpoint — new or already alive — gets a fresh handle, per the
// update-merge algorithm. Handles superseded this way (replaced or dropped
// entirely) are disposed after a grace period so a locate() racing with
// this update does not observe a torn-down handle. The routing table is
// rebuilt from the alive subset of the new node set before this returns.
func (p *Pool) UpdateLocator(version uint64, endpoints []node.Endpoint) {
	p.mu.Lock()

	if p.disposed {
		p.mu.Unlock()
		return
	}

	if p.haveVersion && version <= p.lastConfigVersion {
		p.mu.Unlock()
		return
	}

	p.lastConfigVersion = version
	p.haveVersion = true

	newNodes := make(map[string]*node.Handle, len(endpoints))

	for _, ep := range endpoints {
		key := ep.Key()

		if h, ok := p.allNodes[key]; ok && !h.IsAlive() {
			newNodes[key] = h
			continue
		}

		h := node.New(ep, p.opts.dialer)
		h.OnFailed(p.onNodeFailed)
		newNodes[key] = h
	}

	var stale []*node.Handle

	for key, h := range p.allNodes {
		if newNodes[key] != h {
			stale = append(stale, h)
		}
	}

	p.allNodes = newNodes
	p.rebuildRingLocked()
	p.mu.Unlock()

	if len(stale) > 0 {
		p.disposeDeferred(stale)
	}

	level.Debug(p.logger).Log("msg", "locator updated", "version", version, "nodes", len(endpoints), "dropped", len(stale))
}

// rebuildLocator builds the initial handle set from a set of endpoints
// supplied at construction time (InitialServers), bypassing the
// version/merge logic UpdateLocator applies for discovery-sourced updates.
func (p *Pool) rebuildLocator(endpoints []node.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nodes := make(map[string]*node.Handle, len(endpoints))

	for _, ep := range endpoints {
		h := node.New(ep, p.opts.dialer)
		h.OnFailed(p.onNodeFailed)
		nodes[ep.Key()] = h
	}

	p.allNodes = nodes
	p.rebuildRingLocked()
}

// rebuildRingLocked rebuilds and atomically swaps the routing table from
// the currently-alive subset of allNodes (spec §4.3/§9: the routing table
// must only ever contain alive members). Callers must hold p.mu.
func (p *Pool) rebuildRingLocked() {
	members := make([]locator.Member, 0, len(p.allNodes))

	for _, h := range p.allNodes {
		if h.IsAlive() {
			members = append(members, h)
		}
	}

	p.loc.Store(locator.New(members, p.opts.vnodesPerNode))
}

// onNodeFailed is subscribed to every handle's failed event. It rebuilds
// the routing table from the currently-alive subset of allNodes so Locate
// stops routing to h immediately, notifies the pool's own subscribers, and
// arms the resurrection loop.
func (p *Pool) onNodeFailed(h *node.Handle) {
	level.Warn(p.logger).Log("msg", "node marked dead", "node", h.Endpoint())

	p.mu.Lock()

	if p.disposed {
		p.mu.Unlock()
		return
	}

	p.rebuildRingLocked()
	subs := append([]FailedFunc(nil), p.subscribers...)
	p.mu.Unlock()

	for _, f := range subs {
		f(h)
	}

	p.maybeArmResurrection()
}

// maybeArmResurrection starts the resurrection timer if it is not already
// running. The timer is a self-rearming single-shot (time.AfterFunc), not
// a periodic ticker: it is suspended whenever no node is dead, rather than
// firing needlessly (spec §9's timer-semantics note).
func (p *Pool) maybeArmResurrection() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed || p.resurrectActive {
		return
	}

	p.resurrectActive = true
	p.resurrectTimer = time.AfterFunc(p.opts.deadTimeout, p.resurrectTick)
}

// resurrectTick pings every currently-dead node concurrently. Any ping
// success flips that handle back to alive as a side effect of Handle.Ping.
// If any node recovered this tick, the routing table is rebuilt so Locate
// can route to it again. The timer rearms itself if any node is still dead
// afterward, and suspends otherwise.
func (p *Pool) resurrectTick() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}

	dead := make([]*node.Handle, 0)

	for _, h := range p.allNodes {
		if !h.IsAlive() {
			dead = append(dead, h)
		}
	}
	p.mu.Unlock()

	var recovered atomic.Bool

	if len(dead) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.deadTimeout)

		var g errgroup.Group
		for _, h := range dead {
			h := h
			g.Go(func() error {
				if err := h.Ping(ctx); err != nil {
					return err
				}

				recovered.Store(true)

				return nil
			})
		}

		_ = g.Wait()
		cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return
	}

	if recovered.Load() {
		p.rebuildRingLocked()
	}

	stillDead := false
	for _, h := range p.allNodes {
		if !h.IsAlive() {
			stillDead = true
			break
		}
	}

	if stillDead {
		p.resurrectTimer = time.AfterFunc(p.opts.deadTimeout, p.resurrectTick)
		return
	}

	p.resurrectActive = false
	p.resurrectTimer = nil
}

// disposeDeferred disposes handles dropped by a roster update after
// opts.disposeGrace, giving an in-flight Locate() call time to finish
// using the handle it already read off the old ring.
func (p *Pool) disposeDeferred(handles []*node.Handle) {
	go func() {
		time.Sleep(p.opts.disposeGrace)

		errs := multierror.New[string]()

		var g errgroup.Group
		for _, h := range handles {
			h := h
			g.Go(func() error {
				if err := h.Dispose(); err != nil {
					errs.Add(h.Endpoint().Key(), err)
				}
				return nil
			})
		}

		_ = g.Wait()

		if err := errs.Combined(); err != nil {
			level.Warn(p.logger).Log("msg", "error disposing dropped nodes", "err", err)
		}
	}()
}

// Dispose stops the poller, disposes every node handle, and suspends the
// resurrection timer. It is idempotent.
func (p *Pool) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}

	p.disposed = true

	if p.resurrectTimer != nil {
		p.resurrectTimer.Stop()
		p.resurrectTimer = nil
	}

	nodes := p.allNodes
	p.allNodes = make(map[string]*node.Handle)
	p.mu.Unlock()

	p.poller.Stop()
	_ = p.configEndpoint.Dispose()

	p.loc.Store(locator.Empty())

	errs := multierror.New[string]()

	var g errgroup.Group
	for _, h := range nodes {
		h := h
		g.Go(func() error {
			if err := h.Dispose(); err != nil {
				errs.Add(h.Endpoint().Key(), err)
			}
			return nil
		})
	}

	_ = g.Wait()

	return errs.Combined()
}
