// Package channel owns the persistent WebSocket connection to the edge
// server. It decodes each record and routes it to a protocol.Handler in
// arrival order, and reconnects after a fixed delay when the connection
// drops.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

const (
	// DefaultReconnectDelay is the flat delay before every reconnect
	// attempt. There is no backoff and no retry limit.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultHandshakeTimeout bounds a single dial.
	DefaultHandshakeTimeout = 5 * time.Second

	// maxMessageSize bounds a single record; snapshots with many devices
	// are the largest.
	maxMessageSize = 1 << 20
)

// Config configures an Adapter.
type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Adapter is the event channel client.
type Adapter struct {
	cfg     Config
	handler protocol.Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu       sync.Mutex
	onChange func(connected bool)

	connected atomic.Bool

	// Stats
	connects  atomic.Uint64
	received  atomic.Uint64
	malformed atomic.Uint64

	dropLog rate.Sometimes
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) { a.dialer = d }
}

// New creates an adapter that delivers decoded events to h.
func New(cfg Config, h protocol.Handler, opts ...Option) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	a := &Adapter{
		cfg:     cfg,
		handler: h,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:  log.Component("channel"),
		dropLog: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnConnectionChange sets the callback invoked when the connection is
// established or lost.
func (a *Adapter) OnConnectionChange(fn func(connected bool)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Connected reports whether the channel is currently connected.
func (a *Adapter) Connected() bool {
	return a.connected.Load()
}

// Run connects and processes records until ctx is cancelled. Connection
// failures never end the loop.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("channel lost, reconnecting",
			"error", err,
			"delay", a.cfg.ReconnectDelay)

		timer := time.NewTimer(a.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to loss.
func (a *Adapter) session(ctx context.Context) error {
	conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, a.cfg.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	a.connects.Add(1)
	a.setConnected(true)
	a.logger.Info("channel connected", "url", a.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		_ = conn.Close()
		a.setConnected(false)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return err
		}
		a.received.Add(1)
		a.deliver(data)
	}
}

func (a *Adapter) deliver(data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		a.malformed.Add(1)
		a.dropLog.Do(func() {
			a.logger.Debug("dropping malformed record", "error", err, "dropped", a.malformed.Load())
		})
		return
	}
	protocol.Dispatch(ev, a.handler)
}

func (a *Adapter) setConnected(v bool) {
	if a.connected.Swap(v) == v {
		return
	}
	a.mu.Lock()
	cb := a.onChange
	a.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// Stats contains channel statistics.
type Stats struct {
	Connected bool   `json:"connected"`
	Connects  uint64 `json:"connects"`
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
}

// GetStats returns channel statistics.
func (a *Adapter) GetStats() Stats {
	return Stats{
		Connected: a.connected.Load(),
		Connects:  a.connects.Load(),
		Received:  a.received.Load(),
		Malformed: a.malformed.Load(),
	}
}
