// Command tickcapture runs one capture node: join the configured
// multicast group, validate and persist market-data records per
// symbol, and publish liveness/throughput status. Flag parsing is
// deliberately thin — beyond the config file path and the pprof debug
// address, every tuning knob belongs in YAML, per spec's framing of the CLI
// entry point as an external collaborator of the core.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof" // localhost-only profiling endpoint

	"tickcapture/internal/app"
	"tickcapture/internal/config"
	"tickcapture/internal/obslog"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.yaml", "path to the node's YAML configuration")
	debugAddr := flag.String("debug-addr", "localhost:6060", "pprof listen address, empty to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tickcapture: %v\n", err)
		return 1
	}

	log := obslog.New(obslog.Config{Level: cfg.Logging.Level, Dir: cfg.Logging.Dir})
	slog.SetDefault(log)

	if *debugAddr != "" {
		go func() {
			log.Info("pprof listening", slog.String("addr", *debugAddr))
			if err := http.ListenAndServe(*debugAddr, nil); err != nil {
				log.Warn("pprof server exited", slog.Any("error", err))
			}
		}()
	}

	node, err := app.New(cfg, log)
	if err != nil {
		log.Error("node init failed", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Run(ctx); err != nil {
		log.Error("node exited with error", slog.Any("error", err))
		return 1
	}

	log.Info("node stopped cleanly")
	return 0
}
