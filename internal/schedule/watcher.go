package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/timer"
)

const (
	// boundaryCushion is added past the computed boundary so the timer
	// fires just after the window edge, never just before it.
	boundaryCushion = 100 * time.Millisecond

	// DefaultSafetyPoll re-derives active/next even if a boundary timer
	// was missed or misfired.
	DefaultSafetyPoll = 30 * time.Second
)

// Fetcher pulls today's schedule from the backend.
type Fetcher interface {
	FetchSchedule(ctx context.Context) (model.DaySchedule, error)
}

// ChangeFunc is invoked on the watcher goroutine whenever the resolved
// (active, next) pair changes. Either entry may be nil.
type ChangeFunc func(active, next *model.ScheduleEntry)

// Watcher keeps the resolved active/next windows current: it arms a
// one-shot timer at the next boundary (which also refreshes the
// schedule list to catch last-moment server-side edits) and runs a
// low-frequency safety poll as a backstop.
type Watcher struct {
	clk      *clock.Clock
	fetcher  Fetcher
	onChange ChangeFunc
	poll     time.Duration

	boundary timer.OneShot

	mu     sync.Mutex
	sched  model.DaySchedule
	active *model.ScheduleEntry
	next   *model.ScheduleEntry
}

func NewWatcher(clk *clock.Clock, fetcher Fetcher, onChange ChangeFunc) *Watcher {
	return &Watcher{
		clk:      clk,
		fetcher:  fetcher,
		onChange: onChange,
		poll:     DefaultSafetyPoll,
	}
}

// Start blocks until ctx is cancelled, running the safety poll. Call
// Refresh first (or rely on the poll) to load the initial schedule.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	defer w.boundary.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recompute(ctx)
		}
	}
}

// Refresh re-fetches today's schedule and recomputes active/next. A
// fetch failure keeps the previous schedule (stale-but-consistent) and
// still recomputes, so window edges are honored offline.
func (w *Watcher) Refresh(ctx context.Context) error {
	sched, err := w.fetcher.FetchSchedule(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("schedule refresh failed, keeping previous entries")
	} else {
		w.mu.Lock()
		w.sched = sched
		w.mu.Unlock()
	}
	w.recompute(ctx)
	return err
}

// Current returns the last resolved pair.
func (w *Watcher) Current() (active, next *model.ScheduleEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, w.next
}

// Schedule returns the last fetched day schedule.
func (w *Watcher) Schedule() model.DaySchedule {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sched
}

func (w *Watcher) recompute(ctx context.Context) {
	now, ok := w.clk.NowSeconds()
	if !ok {
		return
	}

	w.mu.Lock()
	sched := w.sched
	active, next := ResolveActiveAndNext(sched.Entries, sched.Date, now)
	changed := !sameEntry(active, w.active) || !sameEntry(next, w.next)
	w.active, w.next = active, next
	w.mu.Unlock()

	w.armBoundary(ctx, sched, now)

	if changed {
		log.Info().
			Int("active", entryID(active)).
			Int("next", entryID(next)).
			Msg("schedule window changed")
		if w.onChange != nil {
			w.onChange(active, next)
		}
	}
}

// armBoundary points the one-shot timer at the nearest future start or
// end today, or at midnight when no window boundary remains (the
// rollover fetches the new day's list). The timer refreshes from the
// backend, not just locally, to pick up last-moment changes.
func (w *Watcher) armBoundary(ctx context.Context, sched model.DaySchedule, now float64) {
	delay := time.Duration((clock.SecondsPerDay - now) * float64(time.Second))
	if boundary, ok := NextBoundarySeconds(sched.Entries, sched.Date, now); ok {
		if d, ok := w.clk.UntilSeconds(boundary); ok && d < delay {
			delay = d
		}
	}
	w.boundary.Arm(delay+boundaryCushion, func() {
		if err := w.Refresh(ctx); err != nil {
			log.Debug().Err(err).Msg("boundary-triggered refresh failed")
		}
	})
}

func sameEntry(a, b *model.ScheduleEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func entryID(e *model.ScheduleEntry) int {
	if e == nil {
		return 0
	}
	return e.ScheduleID
}
