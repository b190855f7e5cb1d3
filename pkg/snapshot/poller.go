package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// DefaultInterval is how often the full state is pulled.
const DefaultInterval = 2 * time.Second

// Fetcher pulls the full state.
type Fetcher interface {
	State(ctx context.Context) (protocol.Snapshot, error)
}

// Poller pulls snapshots on a fixed interval and on demand.
type Poller struct {
	fetcher  Fetcher
	apply    func(protocol.Snapshot)
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
}

// NewPoller creates a poller handing every snapshot to apply.
func NewPoller(fetcher Fetcher, apply func(protocol.Snapshot), interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		apply:    apply,
		interval: interval,
		logger:   log.Component("poller"),
		refresh:  make(chan struct{}, 1),
	}
}

// Refresh requests an immediate fetch. Requests coalesce.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Run fetches immediately, then on every tick or refresh until ctx is
// done. Failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.refresh:
		}
		p.fetch(ctx)
	}
}

func (p *Poller) fetch(ctx context.Context) {
	s, err := p.fetcher.State(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("state fetch failed", "error", err)
		}
		return
	}
	p.apply(s)
}
