package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/elastipool/internal/generic"
	"github.com/maxpoletaev/elastipool/node"
	"github.com/maxpoletaev/elastipool/pool"
)

func main() {
	appctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	args := parseCliArgs()

	if !args.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	fileOpts, err := loadConfig(args.configPath)
	if err != nil {
		logger.Log("msg", "failed to load config file", "err", err)
		os.Exit(1)
	}

	opts := applyArgs(fileOpts, args)
	opts.Logger = logger

	p, err := pool.New(opts)
	if err != nil {
		logger.Log("msg", "failed to construct pool", "err", err)
		os.Exit(1)
	}

	if err := p.Start(appctx); err != nil {
		logger.Log("msg", "initial discovery failed", "err", err)
		os.Exit(1)
	}

	if args.key != "" {
		h, ok := p.Locate(args.key)
		if !ok {
			level.Error(logger).Log("msg", "no nodes available", "key", args.key)
			_ = p.Dispose()
			os.Exit(1)
		}

		level.Info(logger).Log("msg", "located key", "key", args.key, "node", h.Endpoint())
		_ = p.Dispose()

		return
	}

	level.Info(logger).Log("msg", "probe running, printing working nodes every 10s")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	printWorkingNodes(logger, p)

	for {
		select {
		case <-appctx.Done():
			level.Info(logger).Log("msg", "shutting down")
			_ = p.Dispose()

			return
		case <-ticker.C:
			printWorkingNodes(logger, p)
		}
	}
}

// printWorkingNodes logs the current live roster in a stable order, keyed
// by endpoint, so consecutive log lines are diffable by a human watching
// the probe.
func printWorkingNodes(logger kitlog.Logger, p *pool.Pool) {
	byKey := make(map[string]*node.Handle)
	for _, h := range p.WorkingNodes() {
		byKey[h.Endpoint().Key()] = h
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	generic.SortSlice(keys, false)

	for _, k := range keys {
		level.Info(logger).Log("msg", "working node", "endpoint", byKey[k].Endpoint())
	}
}
