package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
	reqID  string
}

// fakeServer records requests and answers from a route table.
type fakeServer struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]func(w http.ResponseWriter)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.EscapedPath(), reqID: r.Header.Get(RequestIDHeader)}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	if h, ok := f.routes[r.Method+" "+rec.path]; ok {
		h(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (f *fakeServer) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{routes: routes}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithLogger(log.Discard()), WithControlRate(time.Millisecond)), fs
}

func jsonReply(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestState(t *testing.T) {
	c, fs := newTestClient(t, map[string]func(http.ResponseWriter){
		"GET /api/state": jsonReply(`{
			"calibrated": true,
			"devices": [{"device_id":"ac-1","display_name":"AC","device_type":"air_conditioner",
			             "current_state":{"is_on":true,"temperature":24}}],
			"recommendation": {"recommendation_id":"r1","prompt_text":"Cool down?"},
			"user_uuid": "u-42"}`),
	})

	s, err := c.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !s.Calibrated || s.UserUUID != "u-42" {
		t.Errorf("snapshot = %+v", s)
	}
	if len(s.Devices) != 1 || s.Devices[0].Label() != "AC" || *s.Devices[0].CurrentState.Temperature != 24 {
		t.Errorf("devices = %+v", s.Devices)
	}
	if s.Recommendation == nil || s.Recommendation.Text() != "Cool down?" {
		t.Errorf("recommendation = %+v", s.Recommendation)
	}

	req := fs.last(t)
	if _, err := uuid.Parse(req.reqID); err != nil {
		t.Errorf("request ID %q is not a UUID", req.reqID)
	}
}

func TestRequestBodies(t *testing.T) {
	c, fs := newTestClient(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		method   string
		path     string
		wantBody map[string]any
	}{
		{
			name:     "dwell time",
			call:     func() error { _, err := c.SetDwellTime(ctx, 1.5); return err },
			method:   http.MethodPost,
			path:     PathDwellTime,
			wantBody: map[string]any{"dwell_time": 1.5},
		},
		{
			name:     "click mode",
			call:     func() error { _, err := c.SetClickMode(ctx, "blink"); return err },
			method:   http.MethodPost,
			path:     PathClickMode,
			wantBody: map[string]any{"click_mode": "blink"},
		},
		{
			name:     "toggle",
			call:     func() error { _, err := c.ToggleDevice(ctx, "living room/lamp"); return err },
			method:   http.MethodPost,
			path:     "/api/devices/living%20room%2Flamp/control",
			wantBody: map[string]any{"action": "toggle"},
		},
		{
			name:   "refresh",
			call:   func() error { _, err := c.RefreshDevices(ctx); return err },
			method: http.MethodPost,
			path:   PathDevicesRefresh,
		},
		{
			name:     "respond yes",
			call:     func() error { _, err := c.RespondRecommendation(ctx, true); return err },
			method:   http.MethodPost,
			path:     PathRecommendation,
			wantBody: map[string]any{"answer": "YES"},
		},
		{
			name:     "respond no",
			call:     func() error { _, err := c.RespondRecommendation(ctx, false); return err },
			method:   http.MethodPost,
			path:     PathRecommendation,
			wantBody: map[string]any{"answer": "NO"},
		},
		{
			name:   "calibration start",
			call:   func() error { return c.StartCalibration(ctx) },
			method: http.MethodPost,
			path:   PathCalibrationStart,
		},
		{
			name:   "calibration sample",
			call:   func() error { return c.AddCalibrationSample(ctx) },
			method: http.MethodPost,
			path:   PathCalibrationSample,
		},
		{
			name:   "calibration next",
			call:   func() error { return c.NextCalibrationTarget(ctx) },
			method: http.MethodPost,
			path:   PathCalibrationNext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("call error = %v", err)
			}
			req := fs.last(t)
			if req.method != tt.method || req.path != tt.path {
				t.Errorf("request = %s %s, want %s %s", req.method, req.path, tt.method, tt.path)
			}
			for k, v := range tt.wantBody {
				if req.body[k] != v {
					t.Errorf("body[%s] = %v, want %v", k, req.body[k], v)
				}
			}
		})
	}
}

func TestCalibrationProgress(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter){
		"GET /api/calibration/progress": jsonReply(`{"current_target":2,"total_targets":5,
			"current_samples":12,"required_samples":30,"is_complete":false,"target_position":[960,540]}`),
	})

	p, err := c.CalibrationProgress(context.Background())
	if err != nil {
		t.Fatalf("CalibrationProgress() error = %v", err)
	}
	want := protocol.CalibrationProgress{
		CurrentTarget: 2, TotalTargets: 5, CurrentSamples: 12, RequiredSamples: 30,
		TargetPosition: [2]float64{960, 540},
	}
	if p != want {
		t.Errorf("progress = %+v, want %+v", p, want)
	}
}

func TestInBandErrors(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter){
		"GET /api/calibration/progress":    jsonReply(`{"error":"Gaze tracker not initialized"}`),
		"POST /api/calibration/start":      jsonReply(`{"status":"error","message":"Gaze tracker not initialized"}`),
		"POST /api/recommendation/respond": jsonReply(`{"error":"No pending recommendation"}`),
	})
	ctx := context.Background()

	var reqErr *RequestError
	if _, err := c.CalibrationProgress(ctx); !errors.As(err, &reqErr) {
		t.Errorf("CalibrationProgress() error = %v, want RequestError", err)
	}
	if err := c.StartCalibration(ctx); !errors.As(err, &reqErr) || reqErr.Err.Error() != "Gaze tracker not initialized" {
		t.Errorf("StartCalibration() error = %v", err)
	}
	if _, err := c.RespondRecommendation(ctx, true); err == nil {
		t.Error("RespondRecommendation() error = nil, want in-band error")
	}
}

func TestHTTPStatusError(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter){
		"GET /api/state": func(w http.ResponseWriter) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})

	_, err := c.State(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("State() error = %v, want RequestError", err)
	}
	if reqErr.Status != http.StatusInternalServerError || reqErr.Path != PathState {
		t.Errorf("RequestError = %+v", reqErr)
	}
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithLogger(log.Discard()))
	err := c.AddCalibrationSample(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != 0 {
		t.Errorf("AddCalibrationSample() error = %v, want transport RequestError", err)
	}
}

func TestDecodeError(t *testing.T) {
	c, _ := newTestClient(t, map[string]func(http.ResponseWriter){
		"GET /api/state": jsonReply(`<html>`),
	})
	if _, err := c.State(context.Background()); err == nil {
		t.Error("State() error = nil for non-JSON body")
	}
}
