package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/elastipool/configendpoint"
	"github.com/maxpoletaev/elastipool/node"
)

// DefaultInterval is used when Start is called with a negative interval
// (spec §4.2).
const DefaultInterval = 60 * time.Second

// tickTimeout bounds a single resolve attempt (plus its single retry)
// within one tick, so a hung configuration endpoint cannot wedge the
// poller forever.
const tickTimeout = 30 * time.Second

// Resolver is the Config Node capability the poller drives.
type Resolver interface {
	Resolve(ctx context.Context) (configendpoint.ClusterConfig, error)
}

// Updater is the Auto Server Pool capability the poller pushes updates
// into.
type Updater interface {
	UpdateLocator(version uint64, endpoints []node.Endpoint)
}

// Poller periodically invokes a Resolver and, on a version bump, pushes the
// new roster into an Updater. Ticks are non-reentrant: if a tick is still
// running when the next fire arrives, that fire is skipped (spec §4.2).
type Poller struct {
	resolver Resolver
	updater  Updater
	logger   kitlog.Logger

	interval time.Duration
	started  atomic.Bool
	ticking  atomic.Bool

	lastVersionMu sync.Mutex
	lastVersion   uint64
	haveVersion   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Poller. logger may be nil.
func New(resolver Resolver, updater Updater, logger kitlog.Logger) *Poller {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	return &Poller{
		resolver: resolver,
		updater:  updater,
		logger:   logger,
	}
}

// Start schedules tick() every intervalMs milliseconds. A negative
// intervalMs selects DefaultInterval. Calling Start on an already-started
// poller is a no-op.
func (p *Poller) Start(intervalMs int) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	interval := DefaultInterval
	if intervalMs >= 0 {
		interval = time.Duration(intervalMs) * time.Millisecond
	}

	p.interval = interval
	p.stop = make(chan struct{})

	p.wg.Add(1)

	go p.run()
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.maybeTick()
		case <-p.stop:
			return
		}
	}
}

func (p *Poller) maybeTick() {
	if !p.ticking.CompareAndSwap(false, true) {
		level.Debug(p.logger).Log("msg", "discovery tick skipped, previous tick still running")
		return
	}

	defer p.ticking.Store(false)

	p.tick()
}

// tick resolves the cluster config with a single bounded retry and, on a
// version bump, pushes the result into the updater. Failures are logged
// and never propagated — the next tick tries again (spec §4.2 step 3).
func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	cfg, err := p.resolver.Resolve(ctx)
	if err != nil {
		level.Warn(p.logger).Log("msg", "discovery resolve failed, retrying once", "err", err)

		cfg, err = p.resolver.Resolve(ctx)
		if err != nil {
			level.Error(p.logger).Log("msg", "discovery tick failed", "err", err)
			return
		}
	}

	p.lastVersionMu.Lock()
	stale := p.haveVersion && cfg.Version <= p.lastVersion
	if !stale {
		p.lastVersion = cfg.Version
		p.haveVersion = true
	}
	p.lastVersionMu.Unlock()

	if stale {
		level.Debug(p.logger).Log("msg", "discovery tick observed stale version", "version", cfg.Version)
		return
	}

	p.updater.UpdateLocator(cfg.Version, cfg.Nodes)
}

// Stop cancels future ticks and waits for an in-flight tick to finish.
// Calling Stop on a poller that was never started, or stopping twice, is a
// no-op.
func (p *Poller) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}

	close(p.stop)
	p.wg.Wait()
}
