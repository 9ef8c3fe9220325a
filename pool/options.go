package pool

import (
	"strings"
	"time"

	kitlog "github.com/go-kit/log"

	"github.com/maxpoletaev/elastipool/configendpoint"
	"github.com/maxpoletaev/elastipool/locator"
	"github.com/maxpoletaev/elastipool/node"
)

// Options configures a Pool (spec §6). Fields map 1:1 onto the recognized
// configuration options; zero values of the *Ms duration fields select the
// documented defaults.
type Options struct {
	// ClusterEndpointHost must contain ".cfg." (case-insensitive) or the
	// pool fails to construct: the endpoint does not support
	// auto-discovery.
	ClusterEndpointHost string `yaml:"cluster_endpoint_hostname"`
	ClusterEndpointPort int    `yaml:"cluster_endpoint_port"`

	// InitialServers seeds the pool before the first successful discovery
	// round completes.
	InitialServers []string `yaml:"initial_servers"`

	// Tries/DelayMs govern the initial discovery retry policy. Defaults:
	// 5 tries, 1000ms delay.
	Tries   int `yaml:"node_tries"`
	DelayMs int `yaml:"node_delay_ms"`

	// PollIntervalMs is the discovery polling interval. A zero or negative
	// value selects the default (60000ms).
	PollIntervalMs int `yaml:"poller_interval_ms"`

	// DeadTimeoutMs is the interval between resurrection attempts.
	// Defaults to 30000ms.
	DeadTimeoutMs int `yaml:"dead_timeout_ms"`

	// Protocol selects the operation factory: "text" or "binary".
	// Defaults to "binary".
	Protocol string `yaml:"protocol"`

	// VnodesPerNode tunes the consistent-hash ring's replica count.
	// Defaults to locator.DefaultVnodesPerMember.
	VnodesPerNode int `yaml:"vnodes_per_node"`

	// DisposeGrace is how long a dropped node handle is kept around before
	// being disposed, giving in-flight locate() results time to finish
	// using it (spec §9's deferred-disposal open question).
	DisposeGrace time.Duration `yaml:"-"`

	// Dialer opens connections to cache nodes. Defaults to node.DialTCP.
	Dialer node.Dialer `yaml:"-"`

	Logger kitlog.Logger `yaml:"-"`
}

const (
	defaultTries         = 5
	defaultDelayMs       = 1000
	defaultDeadTimeoutMs = 30000
	defaultDisposeGrace  = 5 * time.Second
)

type resolved struct {
	clusterEndpoint configendpoint.Endpoint
	initialServers  []node.Endpoint
	tries           int
	delay           time.Duration
	pollIntervalMs  int
	deadTimeout     time.Duration
	protocol        node.Protocol
	vnodesPerNode   int
	disposeGrace    time.Duration
	dialer          node.Dialer
	logger          kitlog.Logger
}

// Validate checks the options against the documented observable errors and
// fills in defaults, returning the resolved configuration pool.New acts on.
func (o Options) Validate() (resolved, error) {
	if o.ClusterEndpointHost == "" {
		return resolved{}, &ConfigError{Field: "cluster_endpoint.hostname", Reason: "must not be empty"}
	}

	if o.ClusterEndpointPort <= 0 {
		return resolved{}, &ConfigError{Field: "cluster_endpoint.port", Reason: "must be positive"}
	}

	if !strings.Contains(strings.ToLower(o.ClusterEndpointHost), ".cfg.") {
		return resolved{}, &ConfigError{
			Field:  "cluster_endpoint.hostname",
			Reason: "does not support auto-discovery (missing \".cfg.\")",
		}
	}

	protocol, err := node.ParseProtocol(o.Protocol)
	if err != nil {
		return resolved{}, &ConfigError{Field: "protocol", Reason: err.Error()}
	}

	initial := make([]node.Endpoint, 0, len(o.InitialServers))

	for _, addr := range o.InitialServers {
		ep, err := parseHostPort(addr)
		if err != nil {
			return resolved{}, &ConfigError{Field: "initial_servers", Reason: err.Error()}
		}

		initial = append(initial, ep)
	}

	tries := o.Tries
	if tries <= 0 {
		tries = defaultTries
	}

	delayMs := o.DelayMs
	if delayMs <= 0 {
		delayMs = defaultDelayMs
	}

	pollIntervalMs := o.PollIntervalMs
	if pollIntervalMs == 0 {
		pollIntervalMs = -1
	}

	deadTimeoutMs := o.DeadTimeoutMs
	if deadTimeoutMs <= 0 {
		deadTimeoutMs = defaultDeadTimeoutMs
	}

	vnodes := o.VnodesPerNode
	if vnodes <= 0 {
		vnodes = locator.DefaultVnodesPerMember
	}

	disposeGrace := o.DisposeGrace
	if disposeGrace <= 0 {
		disposeGrace = defaultDisposeGrace
	}

	dialer := o.Dialer
	if dialer == nil {
		dialer = node.DialTCP
	}

	logger := o.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	return resolved{
		clusterEndpoint: configendpoint.Endpoint{Host: o.ClusterEndpointHost, Port: o.ClusterEndpointPort},
		initialServers:  initial,
		tries:           tries,
		delay:           time.Duration(delayMs) * time.Millisecond,
		pollIntervalMs:  pollIntervalMs,
		deadTimeout:     time.Duration(deadTimeoutMs) * time.Millisecond,
		protocol:        protocol,
		vnodesPerNode:   vnodes,
		disposeGrace:    disposeGrace,
		dialer:          dialer,
		logger:          logger,
	}, nil
}
