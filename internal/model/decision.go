package model

// PlaylistSource tells where the playlist that won the fallback cascade
// came from.
type PlaylistSource string

const (
	SourceChild   PlaylistSource = "child"
	SourceDefault PlaylistSource = "default"
	SourceCache   PlaylistSource = "cache"
	SourceEmpty   PlaylistSource = "empty"
)

// PlaylistCategory distinguishes schedule-bound playlists from the
// device fallback playlist, independent of where the copy came from.
type PlaylistCategory string

const (
	CategoryChild   PlaylistCategory = "child"
	CategoryDefault PlaylistCategory = "default"
)

// PlaylistDecision is the outcome of one cascade evaluation. It is
// recomputed on every relevant state change and never persisted as-is;
// only the now-playing marker derived from it survives restarts.
// Reason is diagnostic text, never used for logic.
type PlaylistDecision struct {
	Source     PlaylistSource   `json:"source"`
	Category   PlaylistCategory `json:"category,omitempty"`
	ScheduleID int              `json:"schedule_id,omitempty"`
	Playlist   *Playlist        `json:"playlist,omitempty"`
	Reason     string           `json:"reason"`
}

// HasContent reports whether the decision carries something renderable.
func (d *PlaylistDecision) HasContent() bool {
	return d != nil && d.Source != SourceEmpty && d.Playlist.HasSlides()
}
