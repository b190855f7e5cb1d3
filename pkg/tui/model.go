package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-gazepanel/pkg/snapshot"
)

// FrameInterval is the repaint cadence.
const FrameInterval = 50 * time.Millisecond

// footerRows are the lines below the canvas: progress bar and help.
const footerRows = 2

// Controls are the panel commands bound to keys.
type Controls interface {
	StartCalibration(ctx context.Context) error
	AbortCalibration() bool
	Respond(ctx context.Context, yes bool) error
	RefreshDevices(ctx context.Context) error
	Activate(ctx context.Context) (bool, error)
}

type keyMap struct {
	Calibrate key.Binding
	Abort     key.Binding
	Yes       key.Binding
	No        key.Binding
	Refresh   key.Binding
	Activate  key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Calibrate: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "calibrate")),
		Abort:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "abort")),
		Yes:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y/n", "answer")),
		No:        key.NewBinding(key.WithKeys("n")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Activate:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Calibrate, k.Abort, k.Yes, k.Refresh, k.Activate, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type frameMsg time.Time

// resultMsg reports the outcome of a command run off the UI loop.
type resultMsg struct {
	action string
	err    error
}

// Model is the bubbletea model repainting a Screen.
type Model struct {
	ctx      context.Context
	screen   *Screen
	controls Controls

	keys   keyMap
	help   help.Model
	bar    progress.Model
	width  int
	status string
}

// NewModel creates the model. ctx bounds the commands started from keys.
func NewModel(ctx context.Context, screen *Screen, controls Controls) Model {
	return Model{
		ctx:      ctx,
		screen:   screen,
		controls: controls,
		keys:     defaultKeys(),
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return frame()
}

func frame() tea.Cmd {
	return tea.Tick(FrameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 4
		m.help.Width = msg.Width
		m.screen.Resize(msg.Width, msg.Height-footerRows)
		return m, nil

	case frameMsg:
		return m, frame()

	case resultMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, snapshot.ErrNoPrompt):
			m.status = "nothing to answer"
		default:
			m.status = msg.action + " failed: " + msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Calibrate):
		return m, m.run("calibration", m.controls.StartCalibration)
	case key.Matches(msg, m.keys.Abort):
		m.controls.AbortCalibration()
		return m, nil
	case key.Matches(msg, m.keys.Yes):
		return m, m.run("answer", func(ctx context.Context) error { return m.controls.Respond(ctx, true) })
	case key.Matches(msg, m.keys.No):
		return m, m.run("answer", func(ctx context.Context) error { return m.controls.Respond(ctx, false) })
	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", m.controls.RefreshDevices)
	case key.Matches(msg, m.keys.Activate):
		return m, m.run("select", func(ctx context.Context) error {
			_, err := m.controls.Activate(ctx)
			return err
		})
	}
	return m, nil
}

func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{action: action, err: fn(ctx)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	body := m.screen.Render()
	if body == "" {
		return "starting…"
	}

	footer := ""
	if v, ok := m.screen.CalibrationView(); ok {
		footer = "  " + m.bar.ViewAs(v.Percent/100)
	} else if m.status != "" {
		footer = "  " + palette[stWarn].Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer, m.help.View(m.keys))
}

// Run runs the terminal program until quit or ctx is done.
func Run(ctx context.Context, screen *Screen, controls Controls) error {
	p := tea.NewProgram(NewModel(ctx, screen, controls), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
