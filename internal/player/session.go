// Package player wires the clock, schedule watcher, decision engine,
// timeline and media cache into one owned session with an explicit
// lifecycle. One session per device; nothing here blocks the render
// loop, which polls NowPlaying on its own tick.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/events"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/mediacache"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/playlist"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/schedule"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/state"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/timeline"
)

const (
	// tickInterval is how often the session re-derives the current
	// slide position for the renderer to poll.
	tickInterval = 250 * time.Millisecond

	// tokenLeeway forces a re-register this long before the device
	// token actually expires.
	tokenLeeway = 24 * time.Hour
)

// NowPlaying is the renderer-facing snapshot of the current instant.
type NowPlaying struct {
	Source     model.PlaylistSource   `json:"source"`
	Category   model.PlaylistCategory `json:"category,omitempty"`
	PlaylistID int                    `json:"playlist_id,omitempty"`
	Disabled   bool                   `json:"disabled"`
	Position   *timeline.Position     `json:"position,omitempty"`
	UntilNext  int64                  `json:"until_next_ms,omitempty"`
}

// Session owns the player runtime.
type Session struct {
	deviceID   string
	clk        *clock.Clock
	runner     *clock.Runner
	client     *backend.Client
	watcher    *schedule.Watcher
	controller *playlist.Controller
	cache      *mediacache.Store
	store      state.Store
	channel    *events.Channel

	mu         sync.Mutex
	anchor     float64
	anchored   bool
	nowPlaying NowPlaying

	wg        sync.WaitGroup
	disposers []func()
}

// Deps carries the collaborators the session composes. Channel may be
// nil when no broker is configured.
type Deps struct {
	DeviceID       string
	Clock          *clock.Clock
	ResyncInterval time.Duration
	Client         *backend.Client
	Cache          *mediacache.Store
	Store          state.Store
	Channel        *events.Channel
	PrefetchLead   time.Duration
}

func NewSession(d Deps) *Session {
	s := &Session{
		deviceID: d.DeviceID,
		clk:      d.Clock,
		runner:   clock.NewRunner(d.Clock, d.ResyncInterval),
		client:   d.Client,
		cache:    d.Cache,
		store:    d.Store,
		channel:  d.Channel,
	}
	s.controller = playlist.NewController(d.Client, d.Store, d.Clock, d.Cache, s.onDecision)
	if d.PrefetchLead > 0 {
		s.controller.SetPrefetchLead(d.PrefetchLead)
	}
	s.watcher = schedule.NewWatcher(d.Clock, d.Client, func(active, next *model.ScheduleEntry) {
		s.reevaluate(context.Background(), active, next)
	})
	return s
}

// Start brings the session up and returns; the work continues on
// background goroutines until ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	if err := s.ensureRegistered(ctx); err != nil {
		// Registration failures degrade to cached content; keep going.
		log.Warn().Err(err).Msg("registration failed, continuing with persisted state")
	}

	s.wireEvents(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runner.Start(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.bootstrap(ctx)
		s.watcher.Start(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tickLoop(ctx)
	}()

	return nil
}

// Close waits for the background goroutines and releases the timers.
// The context passed to Start must already be cancelled.
func (s *Session) Close() {
	s.wg.Wait()
	s.controller.Close()
	for _, dispose := range s.disposers {
		dispose()
	}
}

// bootstrap waits for the clock, then loads the schedule and runs the
// first cascade so something is on screen even before any boundary.
func (s *Session) bootstrap(ctx context.Context) {
	for !s.clk.Ready() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
	if err := s.watcher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial schedule load failed")
	}
	active, next := s.watcher.Current()
	s.reevaluate(ctx, active, next)
}

func (s *Session) ensureRegistered(ctx context.Context) error {
	if token, err := s.store.LoadToken(); err == nil && token != "" {
		s.client.SetToken(token)
	}
	if s.client.TokenValid(tokenLeeway) {
		return nil
	}
	if err := s.client.Register(ctx, backend.DeviceInfo{
		ClientInformation: "medusa-player",
	}); err != nil {
		return err
	}
	if err := s.store.SaveToken(s.client.Token()); err != nil {
		log.Warn().Err(err).Msg("failed to persist device token")
	}
	return nil
}

func (s *Session) wireEvents(ctx context.Context) {
	if s.channel == nil {
		return
	}
	dispose, err := s.channel.Subscribe(events.DeviceTopic(s.deviceID), func(ev events.Event) {
		s.handleEvent(ctx, ev)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to subscribe to device channel")
	} else {
		s.disposers = append(s.disposers, dispose)
	}

	s.channel.OnReconnect(func() {
		// An outage may have hidden schedule edits and let the clock
		// drift; catch up on both.
		s.runner.Kick()
		if err := s.watcher.Refresh(ctx); err != nil {
			log.Debug().Err(err).Msg("post-reconnect schedule refresh failed")
		}
	})
}

func (s *Session) handleEvent(ctx context.Context, ev events.Event) {
	switch ev.Type {
	case events.TypeScheduleUpdate:
		log.Info().Msg("schedule update pushed by server")
		if err := s.watcher.Refresh(ctx); err != nil {
			log.Debug().Err(err).Msg("pushed schedule refresh failed")
		}
	case events.TypeScreenDeleted:
		log.Warn().Msg("screen deleted on server, clearing local state")
		if err := s.store.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear local state")
		}
		s.client.SetToken("")
		if err := s.ensureRegistered(ctx); err != nil {
			log.Warn().Err(err).Msg("re-registration after deletion failed")
		}
	case events.TypeSlideControl:
		// Slide control is the renderer's concern; the core ignores it.
	default:
		log.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
	}
}

// Resync forces a clock probe and a schedule refresh out of band, used
// when the device comes back to the foreground.
func (s *Session) Resync(ctx context.Context) {
	s.runner.Kick()
	if err := s.watcher.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("forced schedule refresh failed")
	}
}

func (s *Session) reevaluate(ctx context.Context, active, next *model.ScheduleEntry) {
	sched := s.watcher.Schedule()
	s.controller.Reevaluate(ctx, sched.Date, active, next)
}

// onDecision re-anchors the timeline whenever the decision changes. A
// child playlist is anchored at its window's declared start; a default
// or unanchored playlist starts counting from the server time at which
// it went on screen.
func (s *Session) onDecision(d model.PlaylistDecision) {
	now, ok := s.clk.NowSeconds()
	if !ok {
		return
	}
	anchor := now
	if d.Category == model.CategoryChild {
		if active, _ := s.watcher.Current(); active != nil {
			if start, err := clock.ParseHMS(active.StartTime); err == nil {
				anchor = start
			}
		}
	}
	s.mu.Lock()
	s.anchor = anchor
	s.anchored = true
	s.mu.Unlock()
}

func (s *Session) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick recomputes the renderer snapshot. Pure reads only; all state
// changes happen through the watcher/controller callbacks.
func (s *Session) tick() {
	now, ok := s.clk.NowSeconds()
	if !ok {
		return
	}
	d := s.controller.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	np := NowPlaying{Source: d.Source, Category: d.Category, Disabled: true}
	if d.Playlist != nil {
		np.PlaylistID = d.Playlist.ID
	}
	if d.HasContent() && s.anchored {
		if pos, ok := timeline.Locate(d.Playlist.Slides, s.anchor, now); ok {
			np.Disabled = false
			np.Position = &pos
			np.UntilNext = pos.UntilNext.Milliseconds()
		}
	}
	s.nowPlaying = np
}

// NowPlaying returns the latest renderer snapshot.
func (s *Session) NowPlaying() NowPlaying {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowPlaying
}

// ClockStatus is the clock portion of the status snapshot.
type ClockStatus struct {
	Ready        bool    `json:"ready"`
	NowSeconds   float64 `json:"now_seconds"`
	Timezone     string  `json:"timezone,omitempty"`
	DriftSeconds float64 `json:"drift_seconds"`
}

// ScheduleStatus is the schedule portion of the status snapshot.
type ScheduleStatus struct {
	Date   string               `json:"date,omitempty"`
	Active *model.ScheduleEntry `json:"active,omitempty"`
	Next   *model.ScheduleEntry `json:"next,omitempty"`
}

// Status is the full diagnostic snapshot served by the status API.
type Status struct {
	DeviceID string                 `json:"device_id"`
	Clock    ClockStatus            `json:"clock"`
	Schedule ScheduleStatus         `json:"schedule"`
	Decision model.PlaylistDecision `json:"decision"`
	Playing  NowPlaying             `json:"now_playing"`
}

func (s *Session) Status() Status {
	now, ready := s.clk.NowSeconds()
	active, next := s.watcher.Current()
	sched := s.watcher.Schedule()
	return Status{
		DeviceID: s.deviceID,
		Clock: ClockStatus{
			Ready:        ready,
			NowSeconds:   now,
			Timezone:     s.clk.Timezone(),
			DriftSeconds: s.clk.LastDrift(),
		},
		Schedule: ScheduleStatus{Date: sched.Date, Active: active, Next: next},
		Decision: s.controller.Current(),
		Playing:  s.NowPlaying(),
	}
}

// CacheStats exposes the media cache summary for the status API.
func (s *Session) CacheStats() mediacache.Stats {
	if s.cache == nil {
		return mediacache.Stats{}
	}
	return s.cache.Stats()
}
