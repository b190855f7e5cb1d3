package sim

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

func newTestServer() *Server {
	return New(Config{Viewport: testViewport}, NewBackend(testViewport))
}

func call(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestStateEndpoint(t *testing.T) {
	s := newTestServer()
	status, body := call(t, s, http.MethodGet, "/api/state", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if devices, ok := body["devices"].([]any); !ok || len(devices) != 3 {
		t.Errorf("devices = %v", body["devices"])
	}
	if body["calibrated"] != false {
		t.Errorf("calibrated = %v", body["calibrated"])
	}
	if u, _ := body["user_uuid"].(string); len(u) != 36 {
		t.Errorf("user_uuid = %q", u)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	s := newTestServer()

	if status, body := call(t, s, http.MethodPost, "/api/dwell-time", `{"dwell_time":1.5}`); status != 200 || body["status"] != "success" {
		t.Errorf("dwell-time = %d %v", status, body)
	}
	if status, _ := call(t, s, http.MethodPost, "/api/dwell-time", `{"dwell_time":-1}`); status != http.StatusBadRequest {
		t.Errorf("negative dwell-time status = %d", status)
	}
	if status, body := call(t, s, http.MethodPost, "/api/click-mode", `{"click_mode":"blink"}`); status != 200 || body["click_mode"] != "blink" {
		t.Errorf("click-mode = %d %v", status, body)
	}
	if status, _ := call(t, s, http.MethodPost, "/api/click-mode", `{"click_mode":"stare"}`); status != http.StatusBadRequest {
		t.Errorf("invalid click-mode status = %d", status)
	}
	if d, m := s.backend.Settings(); d != 1.5 || m != "blink" {
		t.Errorf("Settings() = %v, %q", d, m)
	}
}

func TestDeviceEndpoints(t *testing.T) {
	s := newTestServer()

	status, body := call(t, s, http.MethodPost, "/api/devices/light_bedroom/control", `{"action":"toggle"}`)
	if status != 200 || body["status"] != "success" {
		t.Fatalf("control = %d %v", status, body)
	}
	state, _ := body["current_state"].(map[string]any)
	if state["is_on"] != false {
		t.Errorf("light after toggle = %v", state)
	}

	if status, body := call(t, s, http.MethodPost, "/api/devices/garage/control", `{"action":"toggle"}`); status != http.StatusNotFound || body["error"] == nil {
		t.Errorf("unknown device = %d %v", status, body)
	}

	if _, body := call(t, s, http.MethodPost, "/api/devices/refresh", ""); body["status"] != "refreshed" || body["count"] != 3.0 {
		t.Errorf("refresh = %v", body)
	}
}

func TestRespondEndpoint(t *testing.T) {
	s := newTestServer()

	status, body := call(t, s, http.MethodPost, "/api/recommendation/respond", `{"answer":"YES"}`)
	if status != 200 || body["error"] != "No pending recommendation" {
		t.Errorf("respond with nothing pending = %d %v", status, body)
	}

	s.backend.Recommend()
	_, body = call(t, s, http.MethodPost, "/api/recommendation/respond", `{"answer":"NO"}`)
	if body["status"] != "ok" || body["answer"] != "NO" {
		t.Errorf("respond = %v", body)
	}
}

func TestCalibrationEndpoints(t *testing.T) {
	s := newTestServer()

	if _, body := call(t, s, http.MethodPost, "/api/calibration/sample", ""); body["error"] == nil {
		t.Errorf("sample before start = %v", body)
	}
	if _, body := call(t, s, http.MethodPost, "/api/calibration/start", ""); body["status"] != "started" {
		t.Fatalf("start = %v", body)
	}

	_, body := call(t, s, http.MethodGet, "/api/calibration/progress", "")
	if body["total_targets"] != 5.0 || body["required_samples"] != float64(SamplesPerTarget) || body["is_complete"] != false {
		t.Errorf("progress = %v", body)
	}

	for i := 0; i < SamplesPerTarget-1; i++ {
		call(t, s, http.MethodPost, "/api/calibration/sample", "")
	}
	if _, body := call(t, s, http.MethodPost, "/api/calibration/sample", ""); body["ready"] != true {
		t.Errorf("last sample = %v", body)
	}
	for i := 0; i < 4; i++ {
		if _, body := call(t, s, http.MethodPost, "/api/calibration/next", ""); body["complete"] != false {
			t.Fatalf("next %d = %v", i, body)
		}
	}
	if _, body := call(t, s, http.MethodPost, "/api/calibration/next", ""); body["complete"] != true {
		t.Errorf("final next = %v", body)
	}
	if _, body := call(t, s, http.MethodGet, "/api/calibration/progress", ""); body["is_complete"] != true {
		t.Errorf("progress after completion = %v", body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() protocol.Event {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return ev
	}

	first, ok := read().(protocol.SnapshotEvent)
	if !ok || len(first.Devices) != 3 {
		t.Fatalf("first record = %+v, want snapshot", first)
	}

	rec, _ := s.backend.Recommend()
	s.publish(protocol.RecommendationEvent{Recommendation: rec})
	got, ok := read().(protocol.RecommendationEvent)
	if !ok || got.Recommendation.ID != rec.ID {
		t.Errorf("broadcast = %+v, want recommendation %s", got, rec.ID)
	}
	if n := s.Hub().ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}
