package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hub"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// Config configures the simulator.
type Config struct {
	Port     int
	Viewport geom.Size

	// FrameInterval is the gaze stream cadence. Zero disables streaming.
	FrameInterval time.Duration
	// StateInterval is how often a full snapshot is pushed.
	StateInterval time.Duration
	// RecommendEvery is how often a new recommendation is proposed.
	RecommendEvery time.Duration

	// AccessLog receives one line per HTTP request. Nil disables it.
	AccessLog io.Writer
}

// DefaultConfig matches the edge server's cadence.
func DefaultConfig() Config {
	return Config{
		Port:           8000,
		Viewport:       geom.Size{W: 1920, H: 1080},
		FrameInterval:  50 * time.Millisecond,
		StateInterval:  time.Second,
		RecommendEvery: 30 * time.Second,
		AccessLog:      os.Stderr,
	}
}

// Server serves the simulated edge API.
type Server struct {
	cfg     Config
	app     *fiber.App
	backend *Backend
	hub     *hub.Hub
	gaze    GazePath
	logger  *slog.Logger
}

// New creates a simulator server around backend.
func New(cfg Config, backend *Backend) *Server {
	s := &Server{
		cfg:     cfg,
		backend: backend,
		hub:     hub.New("gaze"),
		gaze:    DefaultGazePath(cfg.Viewport),
		logger:  log.Component("sim"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Gaze Panel Simulator",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Output: cfg.AccessLog,
			Format: "${time} ${status} ${method} ${path} ${reqHeader:X-Request-ID} ${latency}\n",
		}))
	}

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/dwell-time", s.handleDwellTime)
	api.Post("/click-mode", s.handleClickMode)
	api.Post("/devices/refresh", s.handleRefresh)
	api.Post("/devices/:id/control", s.handleControl)
	api.Post("/recommendation/respond", s.handleRespond)
	api.Post("/calibration/start", s.handleCalibrationStart)
	api.Get("/calibration/progress", s.handleCalibrationProgress)
	api.Post("/calibration/sample", s.handleCalibrationSample)
	api.Post("/calibration/next", s.handleCalibrationNext)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("sim: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	go s.stream(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("simulator listening", "addr", ln.Addr().String(), "user_uuid", s.backend.Snapshot().UserUUID)
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// stream pushes the synthetic gaze, periodic snapshots and
// recommendations to every panel.
func (s *Server) stream(ctx context.Context) {
	if s.cfg.FrameInterval <= 0 {
		return
	}
	frames := time.NewTicker(s.cfg.FrameInterval)
	defer frames.Stop()

	var state, recommend <-chan time.Time
	if s.cfg.StateInterval > 0 {
		t := time.NewTicker(s.cfg.StateInterval)
		defer t.Stop()
		state = t.C
	}
	if s.cfg.RecommendEvery > 0 {
		t := time.NewTicker(s.cfg.RecommendEvery)
		defer t.Stop()
		recommend = t.C
	}

	start := time.Now()
	clicked := -1
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frames.C:
			for _, e := range s.frame(s.gaze.At(now.Sub(start)), &clicked) {
				s.publish(e)
			}
		case <-state:
			s.publish(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
		case <-recommend:
			if rec, ok := s.backend.Recommend(); ok {
				s.logger.Info("recommendation proposed", "id", rec.ID)
				s.publish(protocol.RecommendationEvent{Recommendation: rec})
			}
		}
	}
}

// frame turns one gaze sample into channel events. clicked holds the
// last segment a click was sent for, so each hold clicks once.
func (s *Server) frame(g GazeSample, clicked *int) []protocol.Event {
	events := []protocol.Event{protocol.GazeEvent{Position: g.Position}}
	if g.Position == nil || g.Held <= 0 {
		return events
	}

	dwell, mode := s.backend.Settings()
	if mode == "blink" || dwell <= 0 {
		return events
	}
	progress := g.Held.Seconds() / dwell
	if progress > 1 {
		progress = 1
	}
	events = append(events, protocol.DwellEvent{Position: g.Position, Progress: progress})

	if progress >= 1 && *clicked != g.Segment {
		*clicked = g.Segment
		click := protocol.ClickEvent{Position: g.Position, Method: "dwell"}
		if id := g.Waypoint.DeviceID; id != "" {
			click.DeviceID = id
			for _, d := range s.backend.Devices() {
				if d.DeviceID == id {
					click.DeviceName = d.Label()
				}
			}
		}
		events = append(events, click)
	}
	return events
}

func (s *Server) publish(e protocol.Event) {
	if err := s.hub.BroadcastEvent(e); err != nil {
		s.logger.Warn("encode event", "type", e.Type(), "error", err)
	}
}

func (s *Server) handleWS(c *websocket.Conn) {
	id := uuid.NewString()
	initial, err := hub.NewMessage(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
	if err != nil {
		s.logger.Warn("encode snapshot", "error", err)
		return
	}
	client, ok := hub.NewClient(s.hub, c, id, initial)
	if !ok {
		return
	}
	client.Run()
}
