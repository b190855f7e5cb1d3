// Package api is the HTTP client for the edge server endpoints used by
// the panel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gazepanel/internal/httpc"
	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// Endpoint paths.
const (
	PathState               = "/api/state"
	PathDwellTime           = "/api/dwell-time"
	PathClickMode           = "/api/click-mode"
	PathDevicesRefresh      = "/api/devices/refresh"
	PathCalibrationStart    = "/api/calibration/start"
	PathCalibrationProgress = "/api/calibration/progress"
	PathCalibrationSample   = "/api/calibration/sample"
	PathCalibrationNext     = "/api/calibration/next"
	PathRecommendation      = "/api/recommendation/respond"
)

// DevicePath returns the control endpoint for a device.
func DevicePath(deviceID string) string {
	return "/api/devices/" + url.PathEscape(deviceID) + "/control"
}

// RequestIDHeader carries a per-request ID for correlating server logs.
const RequestIDHeader = "X-Request-ID"

// RequestError describes a failed request.
type RequestError struct {
	Method string
	Path   string
	Status int // 0 when no response was received
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client talks to one edge server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	// Device commands go to real appliances; keep them from being
	// hammered by repeated gaze clicks.
	control *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithControlRate sets the minimum interval between device commands.
func WithControlRate(every time.Duration) Option {
	return func(c *Client) { c.control = rate.NewLimiter(rate.Every(every), 1) }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpc.Client,
		logger:  log.Component("api"),
		control: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State fetches the full panel state.
func (c *Client) State(ctx context.Context) (protocol.Snapshot, error) {
	var s protocol.Snapshot
	err := c.do(ctx, http.MethodGet, PathState, nil, &s)
	return s, err
}

// SetDwellTime sets the server's dwell-click time in seconds.
func (c *Client) SetDwellTime(ctx context.Context, seconds float64) (protocol.Result, error) {
	return c.result(ctx, http.MethodPost, PathDwellTime, protocol.DwellTimeRequest{DwellTime: seconds})
}

// SetClickMode selects dwell, blink or both as the click trigger.
func (c *Client) SetClickMode(ctx context.Context, mode string) (protocol.Result, error) {
	return c.result(ctx, http.MethodPost, PathClickMode, protocol.ClickModeRequest{ClickMode: mode})
}

// ToggleDevice asks the server to toggle a device.
func (c *Client) ToggleDevice(ctx context.Context, deviceID string) (protocol.Result, error) {
	if err := c.control.Wait(ctx); err != nil {
		return nil, err
	}
	return c.result(ctx, http.MethodPost, DevicePath(deviceID), protocol.ControlRequest{Action: protocol.ActionToggle})
}

// RefreshDevices asks the server to reload the device inventory.
func (c *Client) RefreshDevices(ctx context.Context) (protocol.Result, error) {
	return c.result(ctx, http.MethodPost, PathDevicesRefresh, nil)
}

// RespondRecommendation answers the pending recommendation.
func (c *Client) RespondRecommendation(ctx context.Context, yes bool) (protocol.Result, error) {
	answer := protocol.AnswerNo
	if yes {
		answer = protocol.AnswerYes
	}
	return c.result(ctx, http.MethodPost, PathRecommendation, protocol.RespondRequest{Answer: answer})
}

// StartCalibration begins a server-side calibration session.
func (c *Client) StartCalibration(ctx context.Context) error {
	_, err := c.result(ctx, http.MethodPost, PathCalibrationStart, nil)
	return err
}

// CalibrationProgress fetches the running session's progress.
func (c *Client) CalibrationProgress(ctx context.Context) (protocol.CalibrationProgress, error) {
	var resp struct {
		protocol.CalibrationProgress
		Error string `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, PathCalibrationProgress, nil, &resp); err != nil {
		return protocol.CalibrationProgress{}, err
	}
	if resp.Error != "" {
		return protocol.CalibrationProgress{}, &RequestError{
			Method: http.MethodGet, Path: PathCalibrationProgress, Err: errors.New(resp.Error),
		}
	}
	return resp.CalibrationProgress, nil
}

// AddCalibrationSample records one sample for the current target.
func (c *Client) AddCalibrationSample(ctx context.Context) error {
	_, err := c.result(ctx, http.MethodPost, PathCalibrationSample, nil)
	return err
}

// NextCalibrationTarget advances to the next target.
func (c *Client) NextCalibrationTarget(ctx context.Context) error {
	_, err := c.result(ctx, http.MethodPost, PathCalibrationNext, nil)
	return err
}

// result performs a request answered by a free-form object and turns
// in-band errors into a RequestError.
func (c *Client) result(ctx context.Context, method, path string, body any) (protocol.Result, error) {
	var res protocol.Result
	if err := c.do(ctx, method, path, body, &res); err != nil {
		return nil, err
	}
	if msg := res.ErrorMessage(); msg != "" {
		return res, &RequestError{Method: method, Path: path, Err: errors.New(msg)}
	}
	if status, _ := res["status"].(string); status == "error" {
		msg, _ := res["message"].(string)
		if msg == "" {
			msg = "server reported error"
		}
		return res, &RequestError{Method: method, Path: path, Err: errors.New(msg)}
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Method: method, Path: path, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer httpc.DrainClose(resp.Body)

	c.logger.Debug("request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"elapsed", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RequestError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(msg))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
