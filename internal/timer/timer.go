// Package timer provides a cancel-and-rearm one-shot deadline used for
// schedule boundaries and playlist prefetches. Rearming always cancels
// the previous deadline first so a dependency change can never leave
// two timers racing to fire.
package timer

import (
	"sync"
	"time"
)

type OneShot struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// Arm schedules fn after d, cancelling any previously armed deadline.
// A non-positive d fires on the next tick of the runtime timer heap.
func (o *OneShot) Arm(d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.gen++
	gen := o.gen
	if d < 0 {
		d = 0
	}
	o.timer = time.AfterFunc(d, func() {
		o.mu.Lock()
		stale := gen != o.gen
		o.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

// Stop cancels the armed deadline, if any. A callback already past the
// staleness check may still run.
func (o *OneShot) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}
