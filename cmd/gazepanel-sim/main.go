// gazepanel-sim - local edge server simulator. Serves the panel API and
// streams a synthetic gaze path over /ws.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	ilog "github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/sim"
)

func main() {
	cfg := sim.DefaultConfig()

	port := flag.Int("port", cfg.Port, "HTTP port")
	debug := flag.Bool("debug", false, "Enable debug logging")
	width := flag.Float64("width", cfg.Viewport.W, "Viewport width in pixels")
	height := flag.Float64("height", cfg.Viewport.H, "Viewport height in pixels")
	quiet := flag.Bool("quiet", false, "Disable the HTTP access log")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	ilog.Init(level)

	cfg.Port = *port
	cfg.Viewport = geom.Size{W: *width, H: *height}
	if *quiet {
		cfg.AccessLog = nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sim.New(cfg, sim.NewBackend(cfg.Viewport)).Run(ctx); err != nil {
		log.Fatalf("simulator: %v", err)
	}
}
