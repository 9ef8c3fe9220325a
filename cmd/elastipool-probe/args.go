package main

import "flag"

type cliArgs struct {
	configPath string

	clusterEndpoint string
	clusterPort     int
	initialServers  string
	protocol        string

	pollIntervalMs int
	deadTimeoutMs  int

	key     string
	verbose bool
}

func parseCliArgs() cliArgs {
	args := cliArgs{}

	flag.StringVar(&args.configPath, "config", "", "path to a YAML config file")

	flag.StringVar(&args.clusterEndpoint, "cluster-endpoint", "", "configuration endpoint hostname (must contain .cfg.)")
	flag.IntVar(&args.clusterPort, "cluster-port", 11211, "configuration endpoint port")
	flag.StringVar(&args.initialServers, "initial-servers", "", "comma-separated host:port seed list")
	flag.StringVar(&args.protocol, "protocol", "binary", "wire protocol: binary or text")

	flag.IntVar(&args.pollIntervalMs, "poll-interval-ms", -1, "discovery poll interval (ms), -1 for default")
	flag.IntVar(&args.deadTimeoutMs, "dead-timeout-ms", 0, "resurrection retry interval (ms), 0 for default")

	flag.StringVar(&args.key, "key", "", "print the node that owns this key and exit")
	flag.BoolVar(&args.verbose, "verbose", false, "verbose mode")

	flag.Parse()

	return args
}
