package mediacache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, budget int64, handler http.Handler) (*Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store, err := NewStore(t.TempDir(), budget, srv.Client())
	require.NoError(t, err)
	return store, srv
}

func TestResolveDownloadsOnce(t *testing.T) {
	var hits atomic.Int64
	store, srv := newTestStore(t, 0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))

	url := srv.URL + "/assets/video.mp4"
	first := store.Resolve(context.Background(), url)
	second := store.Resolve(context.Background(), url)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load())
	assert.True(t, strings.HasSuffix(first, ".mp4"))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestResolveFallsBackToRemoteURL(t *testing.T) {
	store, srv := newTestStore(t, 0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	url := srv.URL + "/broken.png"
	assert.Equal(t, url, store.Resolve(context.Background(), url))
}

func TestMissingFileDropsEntry(t *testing.T) {
	var hits atomic.Int64
	store, srv := newTestStore(t, 0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("x"))
	}))

	url := srv.URL + "/a.jpg"
	path := store.Resolve(context.Background(), url)
	require.NoError(t, os.Remove(path))

	again := store.Resolve(context.Background(), url)
	assert.Equal(t, path, again)
	assert.Equal(t, int64(2), hits.Load(), "missing file must trigger a re-download")
}

func TestEvictionIsLRU(t *testing.T) {
	store, srv := newTestStore(t, 25, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789")) // 10 bytes each
	}))

	// Deterministic access times.
	var fake atomic.Int64
	store.now = func() time.Time { return time.UnixMilli(fake.Add(1)) }

	ctx := context.Background()
	a := store.Resolve(ctx, srv.URL+"/a.bin")
	b := store.Resolve(ctx, srv.URL+"/b.bin")
	c := store.Resolve(ctx, srv.URL+"/c.bin")

	// Touch a so b becomes the oldest.
	store.Resolve(ctx, srv.URL+"/a.bin")

	store.Evict() // 30 bytes > 25: evict exactly one entry, the LRU one

	_, errA := os.Stat(a)
	_, errB := os.Stat(b)
	_, errC := os.Stat(c)
	assert.NoError(t, errA, "recently touched entry must survive")
	assert.True(t, os.IsNotExist(errB), "least recently accessed entry must be evicted")
	assert.NoError(t, errC)

	st := store.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, int64(20), st.TotalBytes)
}

func TestResolveAllEvictsAfterBatch(t *testing.T) {
	store, srv := newTestStore(t, 15, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))

	refs := store.ResolveAll(context.Background(), []string{
		srv.URL + "/one.png",
		srv.URL + "/two.png",
	})
	require.Len(t, refs, 2)

	st := store.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.LessOrEqual(t, st.TotalBytes, int64(15))
}

func TestIndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc"))
	}))
	defer srv.Close()

	store, err := NewStore(dir, 0, srv.Client())
	require.NoError(t, err)
	url := srv.URL + "/x.gif"
	path := store.Resolve(context.Background(), url)

	reopened, err := NewStore(dir, 0, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, path, reopened.Resolve(context.Background(), url))

	_, err = os.Stat(filepath.Join(dir, indexFileName))
	assert.NoError(t, err)
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("https://cdn.example.com/a.mp4"), Key("https://cdn.example.com/a.mp4"))
	assert.NotEqual(t, Key("https://cdn.example.com/a.mp4"), Key("https://cdn.example.com/b.mp4"))
}
