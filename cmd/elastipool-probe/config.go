package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maxpoletaev/elastipool/pool"
)

// fileConfig mirrors pool.Options field-for-field via matching yaml tags, so
// a config file and the CLI flags populate the exact same pool.Options
// value.
type fileConfig struct {
	pool.Options `yaml:",inline"`
}

func loadConfig(path string) (pool.Options, error) {
	if path == "" {
		return pool.Options{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return pool.Options{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return pool.Options{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return fc.Options, nil
}

// applyArgs overlays CLI flags onto the file-loaded options. Flags left at
// their flag.Parse default never override a value the config file set.
func applyArgs(base pool.Options, args cliArgs) pool.Options {
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if args.clusterEndpoint != "" {
		base.ClusterEndpointHost = args.clusterEndpoint
	}

	if args.clusterPort > 0 && (explicit["cluster-port"] || base.ClusterEndpointPort == 0) {
		base.ClusterEndpointPort = args.clusterPort
	}

	if args.initialServers != "" {
		servers := strings.Split(args.initialServers, ",")
		for i, s := range servers {
			servers[i] = strings.TrimSpace(s)
		}
		base.InitialServers = servers
	}

	if args.protocol != "" && (explicit["protocol"] || base.Protocol == "") {
		base.Protocol = args.protocol
	}

	if args.pollIntervalMs >= 0 {
		base.PollIntervalMs = args.pollIntervalMs
	}

	if args.deadTimeoutMs > 0 {
		base.DeadTimeoutMs = args.deadTimeoutMs
	}

	return base
}
