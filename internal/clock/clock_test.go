package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	times []ServerTime
	errs  []error
	calls int
}

func (f *fakeSource) FetchServerTime(ctx context.Context) (ServerTime, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return ServerTime{}, f.errs[i]
	}
	if i >= len(f.times) {
		i = len(f.times) - 1
	}
	return f.times[i], nil
}

// fakeTime produces time.Time values a controllable distance apart so
// tests can advance the monotonic counter without sleeping.
type fakeTime struct {
	base    time.Time
	elapsed time.Duration
}

func (f *fakeTime) now() time.Time { return f.base.Add(f.elapsed) }
func (f *fakeTime) advance(d time.Duration) { f.elapsed += d }

func newTestClock(src TimeSource) (*Clock, *fakeTime) {
	ft := &fakeTime{base: time.Unix(1_700_000_000, 0)}
	return New(src, WithTimeFunc(ft.now)), ft
}

func TestNotReadyBeforeFirstSync(t *testing.T) {
	c, _ := newTestClock(&fakeSource{})
	_, ok := c.NowSeconds()
	assert.False(t, ok)
	assert.False(t, c.Ready())
	_, ok = c.MsUntil("10:00:00")
	assert.False(t, ok)
}

func TestExtrapolationFromBase(t *testing.T) {
	src := &fakeSource{times: []ServerTime{{Time: "10:00:00", Timezone: "UTC"}}}
	c, ft := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	now, ok := c.NowSeconds()
	require.True(t, ok)
	assert.InDelta(t, 36000.0, now, 1e-6)

	ft.advance(90 * time.Second)
	now, _ = c.NowSeconds()
	assert.InDelta(t, 36090.0, now, 1e-6)
}

func TestDayWraparound(t *testing.T) {
	src := &fakeSource{times: []ServerTime{{Time: "23:59:50"}}}
	c, ft := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	ft.advance(20 * time.Second)
	now, ok := c.NowSeconds()
	require.True(t, ok)
	assert.InDelta(t, 10.0, now, 1e-6)
}

func TestSmallDriftDoesNotRebase(t *testing.T) {
	src := &fakeSource{times: []ServerTime{
		{Time: "10:00:00"},
		{Time: "10:01:01"}, // 1s behind the extrapolated 10:01:02
	}}
	c, ft := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	ft.advance(62 * time.Second)
	before, _ := c.NowSeconds()
	require.NoError(t, c.Sync(context.Background()))
	after, _ := c.NowSeconds()

	// No backward jump: the base is untouched, only the drift is noted.
	assert.InDelta(t, before, after, 1e-6)
	assert.InDelta(t, -1.0, c.LastDrift(), 1e-6)
}

func TestLargeDriftRebases(t *testing.T) {
	src := &fakeSource{times: []ServerTime{
		{Time: "10:00:00"},
		{Time: "10:05:00"}, // extrapolated clock says 10:01:00
	}}
	c, ft := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	ft.advance(60 * time.Second)
	require.NoError(t, c.Sync(context.Background()))

	now, _ := c.NowSeconds()
	assert.InDelta(t, 36300.0, now, 1e-6) // 10:05:00
	assert.InDelta(t, 240.0, c.LastDrift(), 1e-6)
}

func TestFailedProbeKeepsBase(t *testing.T) {
	src := &fakeSource{
		times: []ServerTime{{Time: "10:00:00"}},
		errs:  []error{nil, errors.New("connection refused")},
	}
	c, ft := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	ft.advance(30 * time.Second)
	require.Error(t, c.Sync(context.Background()))

	now, ok := c.NowSeconds()
	require.True(t, ok)
	assert.InDelta(t, 36030.0, now, 1e-6)
}

func TestMsUntil(t *testing.T) {
	src := &fakeSource{times: []ServerTime{{Time: "10:00:00"}}}
	c, _ := newTestClock(src)
	require.NoError(t, c.Sync(context.Background()))

	d, ok := c.MsUntil("10:30:00")
	require.True(t, ok)
	assert.InDelta(t, float64(30*time.Minute), float64(d), float64(time.Millisecond))

	// Same-day only: a target in the past is negative, not tomorrow's.
	d, ok = c.MsUntil("09:00:00")
	require.True(t, ok)
	assert.Negative(t, d)

	_, ok = c.MsUntil("not-a-time")
	assert.False(t, ok)
}

func TestParseHMS(t *testing.T) {
	s, err := ParseHMS("13:45:30")
	require.NoError(t, err)
	assert.InDelta(t, 49530.0, s, 1e-9)

	for _, bad := range []string{"", "13:45", "24:00:00", "10:60:00", "10:00:60", "aa:bb:cc"} {
		_, err := ParseHMS(bad)
		assert.Error(t, err, bad)
	}
}
