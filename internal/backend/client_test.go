package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaylistShapes(t *testing.T) {
	shapes := map[string]string{
		"wrapped":      `{"playlist":{"id":1,"slides":[{"id":10,"duration":5}]}}`,
		"data-wrapped": `{"data":{"playlist":{"id":1,"slides":[{"id":10,"duration":5}]}}}`,
		"bare":         `{"id":1,"slides":[{"id":10,"duration":5}]}`,
		"data-bare":    `{"data":{"id":1,"slides":[{"id":10,"duration":5}]}}`,
	}
	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			p, err := ParsePlaylist([]byte(raw))
			require.NoError(t, err)
			require.Len(t, p.Slides, 1)
			assert.Equal(t, 10, p.Slides[0].ID)
			assert.InDelta(t, 5.0, p.Slides[0].Duration, 1e-9)
		})
	}
}

func TestParsePlaylistEmptySlides(t *testing.T) {
	// "slides present but empty" is a valid payload; emptiness is the
	// decision engine's concern, not the parser's.
	p, err := ParsePlaylist([]byte(`{"playlist":{"id":3,"slides":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, p.Slides)
}

func TestParsePlaylistRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{
		`{"items":[{"id":1}]}`,
		`{"playlist":{"id":1}}`,
		`{}`,
		`not json`,
	} {
		_, err := ParsePlaylist([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestRegisterStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tv/screens/register", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"token":"abc.def.ghi"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev-1", WithHTTPClient(srv.Client()))
	require.NoError(t, c.Register(context.Background(), DeviceInfo{ClientWidth: 1920, ClientHeight: 1080}))
	assert.Equal(t, "abc.def.ghi", c.Token())
}

func TestAuthorizationHeaderSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"server_time":"10:00:00","timezone":"UTC"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev-1", WithHTTPClient(srv.Client()))
	c.SetToken("tok-1")
	st, err := c.FetchServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10:00:00", st.Time)
	assert.Equal(t, "UTC", st.Timezone)
}

func TestFetchScheduleDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tv/screens/dev-1/schedule", r.URL.Path)
		w.Write([]byte(`{"date":"2026-08-29","data":[
			{"schedule_id":7,"start_date":"2026-08-29","end_date":"2026-08-29",
			 "start_time":"10:00:00","end_time":"11:00:00"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev-1", WithHTTPClient(srv.Client()))
	sched, err := c.FetchSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29", sched.Date)
	require.Len(t, sched.Entries, 1)
	assert.Equal(t, 7, sched.Entries[0].ScheduleID)
}

func TestFetchPlaylistErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dev-1", WithHTTPClient(srv.Client()))
	_, err := c.FetchDefaultPlaylist(context.Background())
	assert.Error(t, err)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dev-1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestTokenValid(t *testing.T) {
	c := NewClient("http://cms", "dev-1")

	assert.False(t, c.TokenValid(0), "no token")

	c.SetToken("garbage")
	assert.False(t, c.TokenValid(0))

	c.SetToken(signedToken(t, time.Now().Add(time.Hour)))
	assert.True(t, c.TokenValid(0))
	assert.False(t, c.TokenValid(2*time.Hour), "expires within leeway")

	c.SetToken(signedToken(t, time.Now().Add(-time.Minute)))
	assert.False(t, c.TokenValid(0))
}
