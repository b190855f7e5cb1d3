package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// eventSink records every dispatched event on a channel.
type eventSink struct {
	events chan protocol.Event
}

func newEventSink() *eventSink {
	return &eventSink{events: make(chan protocol.Event, 64)}
}

func (s *eventSink) HandleGaze(e protocol.GazeEvent)                     { s.events <- e }
func (s *eventSink) HandleDwell(e protocol.DwellEvent)                   { s.events <- e }
func (s *eventSink) HandleClick(e protocol.ClickEvent)                   { s.events <- e }
func (s *eventSink) HandleRecommendation(e protocol.RecommendationEvent) { s.events <- e }
func (s *eventSink) HandleSnapshot(e protocol.SnapshotEvent)             { s.events <- e }

func (s *eventSink) next(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

var upgrader = websocket.Upgrader{}

// scriptServer sends the given records on every connection, then closes it.
func scriptServer(t *testing.T, records []string, accepted *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		accepted.Add(1)

		for _, rec := range records {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(rec)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestAdapterDeliversInOrderAndDropsMalformed(t *testing.T) {
	var accepted atomic.Int32
	srv := scriptServer(t, []string{
		`{"type":"gaze","position":{"x":1,"y":1}}`,
		`not json at all`,
		`{"type":"click","position":{"x":2,"y":2},"device_id":"d1"}`,
		`{"type":"gaze","position":"oops"}`,
		`{"calibrated":true,"devices":[]}`,
	}, &accepted)
	defer srv.Close()

	sink := newEventSink()
	a := New(Config{URL: wsURL(srv), ReconnectDelay: time.Hour}, sink, WithLogger(log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	want := []protocol.MessageType{protocol.TypeGaze, protocol.TypeClick, protocol.TypeSnapshot}
	for i, typ := range want {
		if got := sink.next(t).Type(); got != typ {
			t.Errorf("event %d = %v, want %v", i, got, typ)
		}
	}

	// Allow the read loop to observe the close.
	deadline := time.Now().Add(2 * time.Second)
	for a.GetStats().Received < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stats := a.GetStats()
	if stats.Received != 5 {
		t.Errorf("Received = %d, want 5", stats.Received)
	}
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}
}

func TestAdapterReconnectsAfterFixedDelay(t *testing.T) {
	var accepted atomic.Int32
	srv := scriptServer(t, []string{`{"type":"gaze","position":null}`}, &accepted)
	defer srv.Close()

	sink := newEventSink()
	a := New(Config{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond}, sink, WithLogger(log.Discard()))

	type change struct {
		connected bool
		at        time.Time
	}
	changes := make(chan change, 16)
	a.OnConnectionChange(func(connected bool) {
		select {
		case changes <- change{connected, time.Now()}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	// connect, lose, connect again
	want := []bool{true, false, true}
	got := make([]change, 0, len(want))
	for i, w := range want {
		select {
		case ch := <-changes:
			if ch.connected != w {
				t.Fatalf("change %d = %v, want %v", i, ch.connected, w)
			}
			got = append(got, ch)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for change %d", i)
		}
	}
	if gap := got[2].at.Sub(got[1].at); gap < 20*time.Millisecond {
		t.Errorf("reconnected %v after loss, want at least 20ms", gap)
	}

	if accepted.Load() < 2 {
		t.Errorf("accepted = %d, want at least 2", accepted.Load())
	}
	sink.next(t)
}

func TestAdapterRetriesWhenServerDown(t *testing.T) {
	var accepted atomic.Int32
	srv := scriptServer(t, nil, &accepted)
	url := wsURL(srv)
	srv.Close()

	a := New(Config{URL: url, ReconnectDelay: 10 * time.Millisecond}, newEventSink(), WithLogger(log.Discard()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}
	if a.Connected() {
		t.Error("Connected() = true with server down")
	}
}

func TestNewDefaults(t *testing.T) {
	a := New(Config{URL: "ws://localhost:1/ws"}, newEventSink())
	if a.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", a.cfg.ReconnectDelay, DefaultReconnectDelay)
	}
	if a.cfg.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v", a.cfg.HandshakeTimeout)
	}
}
