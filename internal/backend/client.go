// Package backend is the player's HTTP client for the CMS tv API:
// registration, server time, the day schedule, and playlists.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL, deviceID string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs a previously persisted device token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current device token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// TokenValid reports whether the held JWT exists and does not expire
// within leeway. The signature is not verified here; only the backend
// can do that. An unparseable token counts as invalid.
func (c *Client) TokenValid(leeway time.Duration) bool {
	tok := c.Token()
	if tok == "" {
		return false
	}
	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	return time.Now().Add(leeway).Before(time.Unix(int64(exp), 0))
}

// DeviceInfo describes this device to the CMS at registration.
type DeviceInfo struct {
	DeviceID          string `json:"device_id"`
	ClientInformation string `json:"client_information,omitempty"`
	ClientWidth       int    `json:"client_width,omitempty"`
	ClientHeight      int    `json:"client_height,omitempty"`
}

// Register announces the device to the CMS and stores the returned
// token for subsequent calls.
func (c *Client) Register(ctx context.Context, info DeviceInfo) error {
	info.DeviceID = c.deviceID
	body, err := json.Marshal(info)
	if err != nil {
		return err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/tv/screens/register", bytes.NewReader(body), &resp); err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("device registration returned no token")
	}
	c.SetToken(resp.Token)
	log.Info().Str("device_id", c.deviceID).Msg("device registered")
	return nil
}

// FetchServerTime implements clock.TimeSource.
func (c *Client) FetchServerTime(ctx context.Context) (clock.ServerTime, error) {
	var st clock.ServerTime
	err := c.doJSON(ctx, http.MethodGet, "/api/tv/time", nil, &st)
	return st, err
}

// FetchSchedule returns today's schedule windows for this device.
func (c *Client) FetchSchedule(ctx context.Context) (model.DaySchedule, error) {
	var sched model.DaySchedule
	path := fmt.Sprintf("/api/tv/screens/%s/schedule", c.deviceID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &sched)
	return sched, err
}

// FetchChildPlaylist returns the playlist tied to a schedule window.
func (c *Client) FetchChildPlaylist(ctx context.Context, scheduleID int) (*model.Playlist, error) {
	path := fmt.Sprintf("/api/tv/schedules/%d/playlist", scheduleID)
	return c.fetchPlaylist(ctx, path)
}

// FetchDefaultPlaylist returns the device's fallback playlist.
func (c *Client) FetchDefaultPlaylist(ctx context.Context) (*model.Playlist, error) {
	path := fmt.Sprintf("/api/tv/screens/%s/playlist", c.deviceID)
	return c.fetchPlaylist(ctx, path)
}

func (c *Client) fetchPlaylist(ctx context.Context, path string) (*model.Playlist, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	p, err := ParsePlaylist(raw)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("unrecognized playlist payload")
		return nil, err
	}
	return p, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
