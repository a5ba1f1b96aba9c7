package clock

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultResyncInterval is the steady-state probe cadence.
const DefaultResyncInterval = time.Hour

// Runner owns the periodic resync loop around a Clock. Besides the
// fixed interval it accepts out-of-band nudges (network reconnect,
// app brought to foreground) through Kick.
type Runner struct {
	clock    *Clock
	interval time.Duration
	kick     chan struct{}
}

func NewRunner(c *Clock, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	return &Runner{
		clock:    c,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Start blocks until ctx is cancelled. The first sync is retried on a
// short interval until the clock is established; afterwards a failed
// resync just waits for the next trigger.
func (r *Runner) Start(ctx context.Context) {
	const establishRetry = 10 * time.Second

	for !r.clock.Ready() {
		if err := r.clock.Sync(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
		case <-time.After(establishRetry):
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		if err := r.clock.Sync(ctx); err != nil {
			log.Debug().Err(err).Msg("clock resync failed")
		}
	}
}

// Kick requests an immediate resync. Non-blocking; coalesces with a
// pending kick.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}
