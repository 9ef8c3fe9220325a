package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/elastipool/configendpoint"
	"github.com/maxpoletaev/elastipool/node"
)

type fakeResolver struct {
	mu      sync.Mutex
	cfg     configendpoint.ClusterConfig
	err     error
	calls   int
	onCall  func()
	blocked chan struct{}
}

func (r *fakeResolver) Resolve(ctx context.Context) (configendpoint.ClusterConfig, error) {
	r.mu.Lock()
	r.calls++
	cfg, err := r.cfg, r.err
	onCall := r.onCall
	r.mu.Unlock()

	if onCall != nil {
		onCall()
	}

	if r.blocked != nil {
		<-r.blocked
	}

	return cfg, err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

type fakeUpdater struct {
	mu      sync.Mutex
	updates []uint64
}

func (u *fakeUpdater) UpdateLocator(version uint64, endpoints []node.Endpoint) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.updates = append(u.updates, version)
}

func (u *fakeUpdater) versions() []uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]uint64(nil), u.updates...)
}

func TestPoller_AppliesNewerVersion(t *testing.T) {
	resolver := &fakeResolver{cfg: configendpoint.ClusterConfig{Version: 1, Nodes: []node.Endpoint{
		node.NewEndpoint("a", "10.0.0.1", 11211),
	}}}
	updater := &fakeUpdater{}

	p := New(resolver, updater, nil)
	p.Start(20)
	defer p.Stop()

	require.Eventually(t, func() bool {
		return len(updater.versions()) > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Equal(t, []uint64{1}, updater.versions())
}

func TestPoller_SkipsStaleVersionBeforeCallingUpdater(t *testing.T) {
	resolver := &fakeResolver{cfg: configendpoint.ClusterConfig{Version: 5}}
	updater := &fakeUpdater{}

	p := New(resolver, updater, nil)
	p.tick()
	p.tick()
	p.tick()

	assert.Equal(t, []uint64{5}, updater.versions())
}

func TestPoller_StopWaitsForInFlightTick(t *testing.T) {
	blocked := make(chan struct{})

	resolver := &fakeResolver{
		cfg:     configendpoint.ClusterConfig{Version: 1},
		blocked: blocked,
	}
	updater := &fakeUpdater{}

	p := New(resolver, updater, nil)
	p.Start(10)

	require.Eventually(t, func() bool {
		return resolver.callCount() > 0
	}, time.Second, 5*time.Millisecond)

	var stopped atomic.Bool

	go func() {
		p.Stop()
		stopped.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, stopped.Load(), "Stop should block on the in-flight tick")

	close(blocked)

	require.Eventually(t, func() bool {
		return stopped.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestPoller_NonReentrantTickSkipsOverlappingFire(t *testing.T) {
	resolver := &fakeResolver{cfg: configendpoint.ClusterConfig{Version: 1}}
	updater := &fakeUpdater{}

	p := New(resolver, updater, nil)

	p.ticking.Store(true)
	p.maybeTick()
	p.ticking.Store(false)

	assert.Equal(t, 0, resolver.callCount())
}
