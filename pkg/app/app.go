// Package app assembles the gaze panel: API client, event channel,
// engine components and terminal surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-gazepanel/internal/config"
	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/api"
	"github.com/teslashibe/go-gazepanel/pkg/calibration"
	"github.com/teslashibe/go-gazepanel/pkg/channel"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hover"
	"github.com/teslashibe/go-gazepanel/pkg/panel"
	"github.com/teslashibe/go-gazepanel/pkg/pointer"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
	"github.com/teslashibe/go-gazepanel/pkg/snapshot"
	"github.com/teslashibe/go-gazepanel/pkg/tui"
)

// Terminal size assumed when running without the TUI.
const (
	headlessCols = 120
	headlessRows = 40
)

// Options are the command-line choices that are not part of the config
// file.
type Options struct {
	// Headless runs without the terminal UI and logs to stderr.
	Headless bool
}

// App is the gaze panel client.
type App struct {
	cfg  *config.Panel
	opts Options

	logFile *os.File
	logger  *slog.Logger

	client      *api.Client
	screen      *tui.Screen
	renderer    *pointer.Renderer
	detector    *hover.Detector
	calibration *calibration.Controller
	presenter   *snapshot.Presenter
	poller      *snapshot.Poller
	panel       *panel.Panel
	channel     *channel.Adapter
}

// New creates an app for a validated configuration.
func New(cfg *config.Panel, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &App{cfg: cfg, opts: opts}, nil
}

// Init sets up logging and builds every component.
// Call this after New() and before Run().
func (a *App) Init() error {
	if err := a.initLogging(); err != nil {
		return err
	}
	a.logger = log.Component("app")
	a.logger.Info("gaze panel starting", "server", a.cfg.ServerURL, "headless", a.opts.Headless)

	viewport := geom.Size{W: a.cfg.Viewport.Width, H: a.cfg.Viewport.Height}

	a.client = api.New(a.cfg.ServerURL)
	a.screen = tui.NewScreen(viewport)
	if a.opts.Headless {
		a.screen.Resize(headlessCols, headlessRows)
	}

	a.calibration = calibration.NewController(a.client, a.screen,
		calibration.WithInterval(a.cfg.Timing.CalibrationPoll))
	a.renderer = pointer.NewRenderer(a.screen, viewport,
		pointer.WithCalibrationActive(a.calibration.Active))
	a.renderer.AttachAux(a.screen.Preview())
	a.detector = hover.NewDetector(a.screen, a.screen,
		hover.WithStrongAfter(a.cfg.Gaze.HoverStrongAfter))
	a.presenter = snapshot.NewPresenter(a.screen, a.client, nil)
	a.calibration.OnStateChange(func(s calibration.State) {
		a.logger.Debug("calibration state", "state", s)
	})

	// The poller and the panel refer to each other.
	var p *panel.Panel
	a.poller = snapshot.NewPoller(a.client, func(s protocol.Snapshot) { p.ApplySnapshot(s) }, a.cfg.Timing.StatePoll)
	p = panel.New(panel.Deps{
		Renderer:    a.renderer,
		Detector:    a.detector,
		Presenter:   a.presenter,
		Calibration: a.calibration,
		Feedback:    a.screen,
		Actions:     a.client,
		Refresher:   a.poller,
	})
	a.panel = p

	a.channel = channel.New(channel.Config{
		URL:            a.cfg.WebSocketURL(),
		ReconnectDelay: a.cfg.Timing.ReconnectDelay,
	}, p)
	a.channel.OnConnectionChange(p.SetConnected)
	return nil
}

func (a *App) initLogging() error {
	var w io.Writer = io.Discard
	switch {
	case a.cfg.LogFile != "":
		f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		a.logFile = f
		w = f
	case a.opts.Headless:
		w = os.Stderr
	}
	log.InitWriter(a.cfg.LogLevel, w)
	return nil
}

// Run starts the channel and the poller, then blocks in the terminal UI
// (or until ctx is done when headless). Quitting the UI stops everything.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.panel.Configure(ctx, a.cfg.Gaze.DwellTime, a.cfg.Gaze.ClickMode); err != nil {
		a.logger.Warn("gaze settings not applied", "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.channel.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.poller.Run(ctx)
	}()

	var err error
	if a.opts.Headless {
		<-ctx.Done()
	} else {
		err = tui.Run(ctx, a.screen, a.panel)
	}
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Shutdown stops a running calibration and closes the log file.
func (a *App) Shutdown() {
	if a.panel != nil {
		a.panel.AbortCalibration()
		a.panel.WaitCalibration()
	}
	if a.logger != nil {
		st := a.channel.GetStats()
		a.logger.Info("gaze panel stopped", "records", st.Received, "malformed", st.Malformed, "skipped_frames", a.renderer.Skipped())
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
