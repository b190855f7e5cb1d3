// Package config provides configuration for the gazepanel commands.
// Values come from an optional YAML file, then environment variables,
// then command-line flags applied by the caller.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the edge server's expectations.
const (
	DefaultServerURL        = "http://localhost:8000"
	DefaultWSPath           = "/ws"
	DefaultReconnectDelay   = 3 * time.Second
	DefaultStatePoll        = 2 * time.Second
	DefaultCalibrationPoll  = 100 * time.Millisecond
	DefaultHoverStrongAfter = 300 * time.Millisecond
	DefaultViewportWidth    = 1920
	DefaultViewportHeight   = 1080
	DefaultLogLevel         = "info"
)

// Click modes accepted by the edge server.
const (
	ClickModeDwell = "dwell"
	ClickModeBlink = "blink"
	ClickModeBoth  = "both"
)

// Panel is the top-level client configuration.
type Panel struct {
	ServerURL string `yaml:"server_url"`
	WSPath    string `yaml:"ws_path"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`

	Timing   TimingConfig   `yaml:"timing"`
	Gaze     GazeConfig     `yaml:"gaze"`
	Viewport ViewportConfig `yaml:"viewport"`
}

// TimingConfig holds the loop cadences.
type TimingConfig struct {
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	StatePoll       time.Duration `yaml:"state_poll"`
	CalibrationPoll time.Duration `yaml:"calibration_poll"`
}

// GazeConfig holds interaction thresholds.
type GazeConfig struct {
	HoverStrongAfter time.Duration `yaml:"hover_strong_after"`
	// DwellTime in seconds is pushed to the server on startup when > 0.
	DwellTime float64 `yaml:"dwell_time"`
	// ClickMode is pushed to the server on startup when set.
	ClickMode string `yaml:"click_mode"`
}

// ViewportConfig is the pixel size of the primary surface the gaze
// coordinates refer to.
type ViewportConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Default returns a configuration with every default applied.
func Default() *Panel {
	cfg := &Panel{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Panel
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when non-empty, otherwise starts from defaults, then
// applies environment overrides and validates the result.
func Load(path string) (*Panel, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Panel) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.WSPath == "" {
		c.WSPath = DefaultWSPath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Timing.ReconnectDelay <= 0 {
		c.Timing.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Timing.StatePoll <= 0 {
		c.Timing.StatePoll = DefaultStatePoll
	}
	if c.Timing.CalibrationPoll <= 0 {
		c.Timing.CalibrationPoll = DefaultCalibrationPoll
	}
	if c.Gaze.HoverStrongAfter <= 0 {
		c.Gaze.HoverStrongAfter = DefaultHoverStrongAfter
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = DefaultViewportWidth
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = DefaultViewportHeight
	}
}

func (c *Panel) applyEnv() {
	if v := os.Getenv("GAZEPANEL_SERVER"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("GAZEPANEL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GAZEPANEL_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// Validate reports the first invalid field.
func (c *Panel) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url: scheme must be http or https, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws_path: must start with /, got %q", c.WSPath)
	}
	switch c.Gaze.ClickMode {
	case "", ClickModeDwell, ClickModeBlink, ClickModeBoth:
	default:
		return fmt.Errorf("gaze.click_mode: must be dwell, blink or both, got %q", c.Gaze.ClickMode)
	}
	if c.Gaze.DwellTime < 0 {
		return fmt.Errorf("gaze.dwell_time: must not be negative")
	}
	return nil
}

// WebSocketURL derives the event channel URL from the server URL.
func (c *Panel) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.WSPath
	return u.String()
}
