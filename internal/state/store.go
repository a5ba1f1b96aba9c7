// Package state persists the player's local state across restarts:
// last-known-good playlists, the now-playing marker, and the device
// identity. Values are stored as keyed JSON blobs in a SQLite database
// owned exclusively by this process.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// Playlist categories for last-known-good persistence.
const (
	CategoryChild   = "child"
	CategoryDefault = "default"
)

const (
	keyDeviceID   = "device_id"
	keyToken      = "auth_token"
	keyNowPlaying = "now_playing"
	keyPlaylist   = "playlist:" // + category
)

type Store interface {
	SavePlaylist(category string, p *model.Playlist) error
	// LoadPlaylist returns (nil, nil) when no copy has been persisted.
	LoadPlaylist(category string) (*model.Playlist, error)

	SaveNowPlaying(d *model.PlaylistDecision) error
	LoadNowPlaying() (*model.PlaylistDecision, error)

	SaveDeviceID(id string) error
	LoadDeviceID() (string, error)

	SaveToken(token string) error
	LoadToken() (string, error)

	// Clear wipes everything except the device identity. Used when the
	// backend reports the screen as deleted.
	Clear() error

	Close() error
}

type sqliteStore struct {
	db *sqlx.DB
}

var _ Store = (*sqliteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Open opens (creating if needed) the state database at path.
func Open(path string) (Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state schema: %w", err)
	}
	log.Info().Str("path", path).Msg("state store opened")
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(data),
	)
	return err
}

// get decodes the blob under key into out. Returns false when the key
// does not exist.
func (s *sqliteStore) get(key string, out any) (bool, error) {
	var raw string
	err := s.db.Get(&raw, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *sqliteStore) SavePlaylist(category string, p *model.Playlist) error {
	return s.set(keyPlaylist+category, p)
}

func (s *sqliteStore) LoadPlaylist(category string) (*model.Playlist, error) {
	var p model.Playlist
	ok, err := s.get(keyPlaylist+category, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (s *sqliteStore) SaveNowPlaying(d *model.PlaylistDecision) error {
	return s.set(keyNowPlaying, d)
}

func (s *sqliteStore) LoadNowPlaying() (*model.PlaylistDecision, error) {
	var d model.PlaylistDecision
	ok, err := s.get(keyNowPlaying, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (s *sqliteStore) SaveDeviceID(id string) error {
	return s.set(keyDeviceID, id)
}

func (s *sqliteStore) LoadDeviceID() (string, error) {
	var id string
	_, err := s.get(keyDeviceID, &id)
	return id, err
}

func (s *sqliteStore) SaveToken(token string) error {
	return s.set(keyToken, token)
}

func (s *sqliteStore) LoadToken() (string, error) {
	var token string
	_, err := s.get(keyToken, &token)
	return token, err
}

func (s *sqliteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key != ?`, keyDeviceID)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
