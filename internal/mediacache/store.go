package mediacache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBudgetBytes bounds the cache directory at 2 GiB.
const DefaultBudgetBytes int64 = 2 << 30

const indexFileName = "index.json"

// Entry is one cached asset in the on-disk index.
type Entry struct {
	Key        string `json:"key"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	LastAccess int64  `json:"last_access"` // unix milliseconds
}

type index map[string]Entry

// Store is a content-addressed disk cache for remote media URLs. The
// index file is the single source of truth: it is loaded fresh and
// saved after every mutating operation, so no in-memory-only state can
// be lost across process restarts.
type Store struct {
	dir    string
	budget int64
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	inflight map[string]*download
}

type download struct {
	done chan struct{}
	ref  string
}

func NewStore(dir string, budget int64, client *http.Client) (*Store, error) {
	if budget <= 0 {
		budget = DefaultBudgetBytes
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		dir:      dir,
		budget:   budget,
		client:   client,
		now:      time.Now,
		inflight: make(map[string]*download),
	}, nil
}

// Key is the stable content key for a source URL.
func Key(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Resolve returns a local file path for the URL, downloading on a miss.
// On any failure it returns the original URL unchanged so the renderer
// can fall back to a direct network load; it never returns an error.
// Concurrent resolution of the same key waits on the in-flight download
// instead of downloading twice.
func (s *Store) Resolve(ctx context.Context, rawURL string) string {
	key := Key(rawURL)

	s.mu.Lock()
	if ref, ok := s.lookupLocked(key); ok {
		s.mu.Unlock()
		return ref
	}
	if d, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		<-d.done
		return d.ref
	}
	d := &download{done: make(chan struct{})}
	s.inflight[key] = d
	s.mu.Unlock()

	ref, err := s.fetch(ctx, key, rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("media download failed, falling back to remote URL")
		ref = rawURL
	}
	d.ref = ref
	close(d.done)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	return ref
}

// ResolveAll resolves a batch sequentially, then runs eviction once.
// The returned map is keyed by source URL.
func (s *Store) ResolveAll(ctx context.Context, urls []string) map[string]string {
	refs := make(map[string]string, len(urls))
	for _, u := range urls {
		refs[u] = s.Resolve(ctx, u)
	}
	s.Evict()
	return refs
}

// lookupLocked checks the index for a live entry, touching its access
// time on a hit. An entry whose backing file disappeared is dropped.
func (s *Store) lookupLocked(key string) (string, bool) {
	idx := s.loadIndex()
	e, ok := idx[key]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		delete(idx, key)
		s.saveIndex(idx)
		return "", false
	}
	e.LastAccess = s.now().UnixMilli()
	idx[key] = e
	s.saveIndex(idx)
	return e.Path, true
}

func (s *Store) fetch(ctx context.Context, key, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(s.dir, key+safeExt(rawURL))
	tmp, err := os.CreateTemp(s.dir, key+".part-*")
	if err != nil {
		return "", err
	}
	size, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	s.mu.Lock()
	idx := s.loadIndex()
	idx[key] = Entry{Key: key, Path: path, Size: size, LastAccess: s.now().UnixMilli()}
	s.saveIndex(idx)
	s.mu.Unlock()

	log.Debug().Str("url", rawURL).Str("path", path).Int64("bytes", size).Msg("media cached")
	return path, nil
}

// Evict removes least-recently-accessed entries until the cache is back
// under budget. File deletion is best-effort; the index entry goes away
// regardless.
func (s *Store) Evict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadIndex()
	var total int64
	for _, e := range idx {
		total += e.Size
	}
	if total <= s.budget {
		return
	}

	entries := make([]Entry, 0, len(idx))
	for _, e := range idx {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastAccess < entries[j].LastAccess })

	for _, e := range entries {
		if total <= s.budget {
			break
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", e.Path).Msg("failed to delete evicted media file")
		}
		delete(idx, e.Key)
		total -= e.Size
		log.Debug().Str("key", e.Key).Int64("bytes", e.Size).Msg("media evicted")
	}
	s.saveIndex(idx)
}

// Stats summarizes the index for the status API.
type Stats struct {
	Entries     int   `json:"entries"`
	TotalBytes  int64 `json:"total_bytes"`
	BudgetBytes int64 `json:"budget_bytes"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.loadIndex()
	st := Stats{Entries: len(idx), BudgetBytes: s.budget}
	for _, e := range idx {
		st.TotalBytes += e.Size
	}
	return st
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFileName) }

func (s *Store) loadIndex() index {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return make(index)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		log.Warn().Err(err).Msg("corrupt cache index, starting over")
		return make(index)
	}
	return idx
}

func (s *Store) saveIndex(idx index) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Warn().Err(err).Msg("failed to write cache index")
		return
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		log.Warn().Err(err).Msg("failed to replace cache index")
	}
}

var extPattern = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,8}$`)

// safeExt preserves the original file extension when it looks sane.
func safeExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := filepath.Ext(u.Path)
	if extPattern.MatchString(ext) {
		return ext
	}
	return ""
}
