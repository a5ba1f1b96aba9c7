package playlist

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/mediacache"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/state"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/timer"
)

// DefaultPrefetchLead is how far ahead of a window boundary the
// relevant playlist is fetched and persisted.
const DefaultPrefetchLead = 30 * time.Second

// Fetcher pulls playlists from the backend.
type Fetcher interface {
	FetchChildPlaylist(ctx context.Context, scheduleID int) (*model.Playlist, error)
	FetchDefaultPlaylist(ctx context.Context) (*model.Playlist, error)
}

// DecisionFunc is invoked on every decision change.
type DecisionFunc func(model.PlaylistDecision)

// Controller owns the decision lifecycle: it fetches the candidate
// playlists, persists last-known-good copies, runs the cascade, warms
// the media cache for the winner, and arms the prefetch timers around
// upcoming window boundaries.
type Controller struct {
	fetcher    Fetcher
	store      state.Store
	clk        *clock.Clock
	cache      *mediacache.Store
	lead       time.Duration
	onDecision DecisionFunc

	childPrefetch   timer.OneShot
	defaultPrefetch timer.OneShot

	mu      sync.Mutex
	current model.PlaylistDecision
}

func NewController(fetcher Fetcher, store state.Store, clk *clock.Clock, cache *mediacache.Store, onDecision DecisionFunc) *Controller {
	return &Controller{
		fetcher:    fetcher,
		store:      store,
		clk:        clk,
		cache:      cache,
		lead:       DefaultPrefetchLead,
		onDecision: onDecision,
		current:    model.PlaylistDecision{Source: model.SourceEmpty, Reason: "not yet evaluated"},
	}
}

// SetPrefetchLead overrides the prefetch window (configuration hook).
func (c *Controller) SetPrefetchLead(d time.Duration) {
	if d > 0 {
		c.lead = d
	}
}

// Current returns the decision currently in force.
func (c *Controller) Current() model.PlaylistDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Reevaluate refetches inputs for the given active/next pair and runs
// the cascade. today is the schedule's calendar date; fetch failures
// feed the cascade as absent sources and never propagate.
func (c *Controller) Reevaluate(ctx context.Context, today string, active, next *model.ScheduleEntry) {
	in := Inputs{Active: active, OnScreen: c.snapshotOnScreen()}

	if active != nil {
		in.Child = c.fetchChild(ctx, active.ScheduleID)
	}
	in.Default = c.fetchDefault(ctx)
	in.CachedChild = c.loadCached(state.CategoryChild)
	in.CachedDefault = c.loadCached(state.CategoryDefault)

	decision := Decide(in)
	c.apply(ctx, decision)
	c.armPrefetch(ctx, today, active, next)
}

func (c *Controller) snapshotOnScreen() *model.PlaylistDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Source == model.SourceEmpty {
		return nil
	}
	cur := c.current
	return &cur
}

func (c *Controller) apply(ctx context.Context, decision model.PlaylistDecision) {
	c.mu.Lock()
	changed := !sameDecision(c.current, decision)
	c.current = decision
	c.mu.Unlock()

	if !changed {
		return
	}
	log.Info().
		Str("source", string(decision.Source)).
		Str("category", string(decision.Category)).
		Str("reason", decision.Reason).
		Msg("playlist decision changed")

	if err := c.store.SaveNowPlaying(&decision); err != nil {
		log.Warn().Err(err).Msg("failed to persist now-playing marker")
	}
	if c.onDecision != nil {
		c.onDecision(decision)
	}
	if c.cache != nil && decision.Playlist.HasSlides() {
		c.cache.ResolveAll(ctx, decision.Playlist.MediaURLs())
	}
}

// fetchChild returns a usable child playlist or nil, persisting it as
// last known good when non-empty.
func (c *Controller) fetchChild(ctx context.Context, scheduleID int) *model.Playlist {
	p, err := c.fetcher.FetchChildPlaylist(ctx, scheduleID)
	if err != nil {
		log.Warn().Err(err).Int("schedule_id", scheduleID).Msg("child playlist fetch failed")
		return nil
	}
	if !p.HasSlides() {
		return nil
	}
	if err := c.store.SavePlaylist(state.CategoryChild, p); err != nil {
		log.Warn().Err(err).Msg("failed to persist last-known-good child playlist")
	}
	return p
}

func (c *Controller) fetchDefault(ctx context.Context) *model.Playlist {
	p, err := c.fetcher.FetchDefaultPlaylist(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("default playlist fetch failed")
		return nil
	}
	if !p.HasSlides() {
		return nil
	}
	if err := c.store.SavePlaylist(state.CategoryDefault, p); err != nil {
		log.Warn().Err(err).Msg("failed to persist last-known-good default playlist")
	}
	return p
}

func (c *Controller) loadCached(category string) *model.Playlist {
	p, err := c.store.LoadPlaylist(category)
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("failed to load cached playlist")
		return nil
	}
	return p
}

// armPrefetch schedules the warm-up fetches: the upcoming window's
// child playlist shortly before its start, and the default playlist
// shortly before the current window's end. Delays come from the server
// clock, never from local wall-clock deltas.
func (c *Controller) armPrefetch(ctx context.Context, today string, active, next *model.ScheduleEntry) {
	c.childPrefetch.Stop()
	c.defaultPrefetch.Stop()

	// MsUntil is same-day only, so windows starting or ending on a
	// later date are left to the daily schedule refresh.
	if next != nil && next.StartDate == today {
		if delay, ok := c.clk.MsUntil(next.StartTime); ok && delay > 0 {
			id := next.ScheduleID
			c.childPrefetch.Arm(delay-c.lead, func() {
				log.Debug().Int("schedule_id", id).Msg("prefetching upcoming child playlist")
				c.fetchChild(ctx, id)
			})
		}
	}
	if active != nil && active.EndDate == today {
		if delay, ok := c.clk.MsUntil(active.EndTime); ok && delay > 0 {
			c.defaultPrefetch.Arm(delay-c.lead, func() {
				log.Debug().Msg("prefetching default playlist before window end")
				c.fetchDefault(ctx)
			})
		}
	}
}

// Close cancels the prefetch timers.
func (c *Controller) Close() {
	c.childPrefetch.Stop()
	c.defaultPrefetch.Stop()
}

func sameDecision(a, b model.PlaylistDecision) bool {
	if a.Source != b.Source || a.Category != b.Category || a.ScheduleID != b.ScheduleID {
		return false
	}
	if (a.Playlist == nil) != (b.Playlist == nil) {
		return false
	}
	if a.Playlist != nil && a.Playlist.ID != b.Playlist.ID {
		return false
	}
	return true
}
