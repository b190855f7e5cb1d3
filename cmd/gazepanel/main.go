// gazepanel - terminal client for a gaze-controlled smart-home panel.
// Connects to the edge server's event channel and HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-gazepanel/internal/config"
	"github.com/teslashibe/go-gazepanel/pkg/app"
)

func main() {
	cfg, opts := parseFlags()

	a, err := app.New(cfg, opts)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := a.Init(); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Printf("runtime error: %v", err)
	}
}

// parseFlags loads the config file and applies flag overrides.
func parseFlags() (*config.Panel, app.Options) {
	path := flag.String("config", "", "YAML config file")
	server := flag.String("server", "", "Edge server URL (overrides config and GAZEPANEL_SERVER)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logFile := flag.String("log-file", "", "Write logs to this file")
	headless := flag.Bool("headless", false, "Run without the terminal UI, logging to stderr")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	return cfg, app.Options{Headless: *headless}
}
