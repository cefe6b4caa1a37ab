package workers

import (
	"context"
	"time"

	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/registry"
)

// IdleSessionReaper periodically destroys sessions that have had no
// subscribers for longer than the idle window, so state from silent
// disconnects does not accumulate.
type IdleSessionReaper struct {
	registry *registry.Registry
	interval time.Duration
}

type NewIdleSessionReaperOptions struct {
	Registry *registry.Registry
	Interval time.Duration
}

func NewIdleSessionReaper(opts NewIdleSessionReaperOptions) *IdleSessionReaper {
	return &IdleSessionReaper{
		registry: opts.Registry,
		interval: opts.Interval,
	}
}

func (w *IdleSessionReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			reaped := w.registry.ReapIdle(t.UTC())
			if len(reaped) > 0 {
				log.Info("Reaped %d idle sessions", len(reaped))
			}
		}
	}
}
