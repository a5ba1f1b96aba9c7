package clock

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SecondsPerDay is the modulus for all seconds-of-day arithmetic.
const SecondsPerDay = 86400.0

// DefaultDriftThreshold is the largest divergence (seconds) between the
// extrapolated clock and a fresh probe that is recorded without rebasing.
// Rebasing on every probe would make the on-screen clock visibly jump.
const DefaultDriftThreshold = 2.0

// ServerTime is the payload of the CMS time endpoint.
type ServerTime struct {
	Time     string `json:"server_time"`
	Timezone string `json:"timezone"`
}

// TimeSource fetches the authoritative server time.
type TimeSource interface {
	FetchServerTime(ctx context.Context) (ServerTime, error)
}

// Clock keeps a drift-corrected estimate of seconds-since-midnight in
// server time. The anchor pair (baseSeconds, baseMark) ties a probed
// server time to a monotonic local reading; NowSeconds extrapolates
// from it and never consults wall-clock time, so a wrong or manipulated
// device clock cannot skew playback.
type Clock struct {
	source    TimeSource
	threshold float64
	now       func() time.Time

	mu          sync.Mutex
	ready       bool
	timezone    string
	baseSeconds float64
	baseMark    time.Time
	lastDrift   float64
}

// Option configures a Clock.
type Option func(*Clock)

// WithDriftThreshold overrides the rebase threshold in seconds.
func WithDriftThreshold(seconds float64) Option {
	return func(c *Clock) { c.threshold = seconds }
}

// WithTimeFunc injects the monotonic reading source, for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

func New(source TimeSource, opts ...Option) *Clock {
	c := &Clock{
		source:    source,
		threshold: DefaultDriftThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync probes the time endpoint and folds the result into the anchor.
// A failed probe leaves the previous anchor untouched and is not fatal:
// the clock keeps extrapolating from the last good base.
func (c *Clock) Sync(ctx context.Context) error {
	st, err := c.source.FetchServerTime(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("server time probe failed, keeping previous base")
		return err
	}
	serverSeconds, err := ParseHMS(st.Time)
	if err != nil {
		log.Warn().Err(err).Str("server_time", st.Time).Msg("unparseable server time, keeping previous base")
		return err
	}
	mark := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		c.baseSeconds = serverSeconds
		c.baseMark = mark
		c.timezone = st.Timezone
		c.ready = true
		log.Info().Str("server_time", st.Time).Str("timezone", st.Timezone).Msg("server clock established")
		return nil
	}

	expected := floorMod(c.baseSeconds+mark.Sub(c.baseMark).Seconds(), SecondsPerDay)
	drift := circularDiff(serverSeconds, expected)
	c.lastDrift = drift
	c.timezone = st.Timezone

	if math.Abs(drift) > c.threshold {
		c.baseSeconds = serverSeconds
		c.baseMark = mark
		log.Info().Float64("drift_seconds", drift).Msg("server clock rebased")
	}
	return nil
}

// NowSeconds returns the current estimated seconds-of-day and whether
// the clock is ready. Pure and cheap; safe to call every frame.
func (c *Clock) NowSeconds() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return 0, false
	}
	return floorMod(c.baseSeconds+c.now().Sub(c.baseMark).Seconds(), SecondsPerDay), true
}

// Ready reports whether at least one probe has succeeded.
func (c *Clock) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Timezone returns the last reported server timezone (informational).
func (c *Clock) Timezone() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timezone
}

// LastDrift returns the divergence recorded by the most recent probe.
func (c *Clock) LastDrift() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDrift
}

// MsUntil returns the duration from now until the given HH:MM:SS today.
// Same-day only: a target that already passed yields a negative
// duration, which callers must special-case. ok is false before the
// first successful sync or for an unparseable target.
func (c *Clock) MsUntil(hms string) (time.Duration, bool) {
	target, err := ParseHMS(hms)
	if err != nil {
		return 0, false
	}
	return c.UntilSeconds(target)
}

// UntilSeconds is MsUntil for an already-parsed seconds-of-day target.
func (c *Clock) UntilSeconds(target float64) (time.Duration, bool) {
	now, ok := c.NowSeconds()
	if !ok {
		return 0, false
	}
	return time.Duration((target - now) * float64(time.Second)), true
}

// ParseHMS parses "HH:MM:SS" into seconds-of-day.
func ParseHMS(hms string) (float64, error) {
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM:SS", hms)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", hms)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", hms)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || s < 0 || s >= 60 {
		return 0, fmt.Errorf("invalid second in %q", hms)
	}
	return float64(h*3600+m*60) + s, nil
}

// floorMod wraps x into [0, m) even for negative x.
func floorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

// circularDiff returns a-b on the day circle, wrapped into
// [-SecondsPerDay/2, SecondsPerDay/2) so a probe just after midnight
// against a base just before it reads as a small drift, not ~86400s.
func circularDiff(a, b float64) float64 {
	d := floorMod(a-b, SecondsPerDay)
	if d >= SecondsPerDay/2 {
		d -= SecondsPerDay
	}
	return d
}
