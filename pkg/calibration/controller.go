// Package calibration drives the eye-tracker calibration session. The
// server owns calibration progress; the controller polls it at a fixed
// cadence, shows the current target, submits samples and asks the server
// to advance until it reports completion.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// DefaultInterval is the nominal polling cadence.
const DefaultInterval = 100 * time.Millisecond

// DefaultTotalTargets is shown when the server omits total_targets.
const DefaultTotalTargets = 5

var (
	// ErrAborted is returned by Start when the session was aborted.
	ErrAborted = errors.New("calibration: aborted")

	// ErrRunning is returned by Start when a session is already running.
	ErrRunning = errors.New("calibration: session already running")

	// ErrNotBegun is returned by Run when Begin was not called first.
	ErrNotBegun = errors.New("calibration: session not begun")
)

// State is the session state.
type State int

const (
	Idle State = iota
	Running
	Complete
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	default:
		return "idle"
	}
}

// API is the server side of calibration.
type API interface {
	StartCalibration(ctx context.Context) error
	CalibrationProgress(ctx context.Context) (protocol.CalibrationProgress, error)
	AddCalibrationSample(ctx context.Context) error
	NextCalibrationTarget(ctx context.Context) error
}

// UI presents the calibration overlay.
type UI interface {
	ShowCalibration()
	RenderProgress(View)
	HideCalibration()
	CalibrationComplete()
}

// View is what the overlay shows for one poll.
type View struct {
	Target       geom.Point // viewport pixels
	TargetIndex  int        // zero-based
	TotalTargets int
	Samples      int
	Required     int
	Percent      float64 // clamped to 0..100
	Guidance     string
}

// Title returns the "Target n / m" heading.
func (v View) Title() string {
	return fmt.Sprintf("Target %d / %d", v.TargetIndex+1, v.TotalTargets)
}

// Guidance returns the instruction for a sample percentage.
func Guidance(percent float64) string {
	switch {
	case percent >= 100:
		return "Hold still, moving to the next target"
	case percent >= 70:
		return "Almost there, keep looking"
	case percent >= 30:
		return "Keep looking at the red dot"
	default:
		return "Look at the red dot"
	}
}

// NewView builds the overlay view for a progress snapshot.
func NewView(p protocol.CalibrationProgress) View {
	pct := p.Percent()
	bar := pct
	if bar > 100 {
		bar = 100
	}
	if bar < 0 {
		bar = 0
	}
	total := p.TotalTargets
	if total <= 0 {
		total = DefaultTotalTargets
	}
	return View{
		Target:       geom.Point{X: p.TargetPosition[0], Y: p.TargetPosition[1]},
		TargetIndex:  p.CurrentTarget,
		TotalTargets: total,
		Samples:      p.CurrentSamples,
		Required:     p.RequiredSamples,
		Percent:      bar,
		Guidance:     Guidance(pct),
	}
}

// Ticker paces the loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Controller runs at most one calibration session at a time.
type Controller struct {
	api       API
	ui        UI
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	last     protocol.CalibrationProgress
	onChange func(State)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicker replaces the ticker constructor. Tests use it to drive the
// loop without real waits.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates an idle controller.
func NewController(api API, ui UI, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		ui:        ui,
		interval:  DefaultInterval,
		newTicker: NewTimeTicker,
		logger:    log.Component("calibration"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnStateChange sets a callback invoked after every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	return c.State() == Running
}

// LastProgress returns the most recent progress read from the server.
func (c *Controller) LastProgress() protocol.CalibrationProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Abort stops a running session. It reports whether a session was
// running.
func (c *Controller) Abort() bool {
	if !c.transition(Running, Aborted) {
		return false
	}
	c.logger.Info("calibration aborted by user")
	return true
}

// Start begins a session and runs it to its end. It returns nil when the
// server reports completion, ErrAborted after Abort, or the request error
// that ended the session.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Begin(); err != nil {
		return err
	}
	return c.Run(ctx)
}

// Begin moves the controller to Running. It returns ErrRunning when a
// session is already running. Abort is honoured from the moment Begin
// returns, even before Run is called.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.state == Running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.state = Running
	c.last = protocol.CalibrationProgress{}
	c.mu.Unlock()
	c.notify(Running)

	c.logger.Info("calibration started")
	return nil
}

// Run drives a session started with Begin until it ends.
func (c *Controller) Run(ctx context.Context) error {
	switch c.State() {
	case Running:
	case Aborted:
		return ErrAborted
	default:
		return ErrNotBegun
	}

	c.ui.ShowCalibration()

	if err := c.api.StartCalibration(ctx); err != nil {
		return c.fail(fmt.Errorf("start: %w", err))
	}

	ticker := c.newTicker(c.interval)
	defer ticker.Stop()

	for {
		// The state is the only cancellation signal for requests.
		if st := c.State(); st != Running {
			c.ui.HideCalibration()
			if st == Aborted {
				return ErrAborted
			}
			return nil
		}

		done, err := c.step(ctx)
		if err != nil {
			return c.fail(err)
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			c.transition(Running, Aborted)
			c.ui.HideCalibration()
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

// step runs one loop body. It reports true once the session completed.
func (c *Controller) step(ctx context.Context) (bool, error) {
	progress, err := c.api.CalibrationProgress(ctx)
	if err != nil {
		return false, fmt.Errorf("progress: %w", err)
	}
	c.mu.Lock()
	c.last = progress
	c.mu.Unlock()

	if progress.IsComplete {
		if !c.transition(Running, Complete) {
			// Aborted while the request was in flight.
			return false, nil
		}
		c.ui.HideCalibration()
		c.ui.CalibrationComplete()
		c.logger.Info("calibration complete", "targets", progress.TotalTargets)
		return true, nil
	}

	c.ui.RenderProgress(NewView(progress))

	if err := c.api.AddCalibrationSample(ctx); err != nil {
		return false, fmt.Errorf("sample: %w", err)
	}

	// Uses the progress read above, which may lag the sample just added
	// by one poll.
	if progress.TargetReady() {
		if err := c.api.NextCalibrationTarget(ctx); err != nil {
			return false, fmt.Errorf("next: %w", err)
		}
		c.logger.Debug("calibration target advanced", "target", progress.CurrentTarget)
	}
	return false, nil
}

func (c *Controller) fail(err error) error {
	c.transition(Running, Aborted)
	c.ui.HideCalibration()
	c.logger.Warn("calibration failed", "error", err)
	return err
}

// transition moves from one state to another and reports whether it did.
func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notify(to)
	return true
}

func (c *Controller) notify(s State) {
	c.mu.Lock()
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
