package playlist

import (
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// Inputs is everything one cascade evaluation looks at. Fresh fetch
// results that failed or came back empty must be passed as nil; the
// cascade itself re-checks HasSlides so an empty playlist is treated
// as absent regardless of HTTP success.
type Inputs struct {
	Active        *model.ScheduleEntry
	Child         *model.Playlist
	Default       *model.Playlist
	CachedChild   *model.Playlist
	CachedDefault *model.Playlist
	OnScreen      *model.PlaylistDecision
}

// Decide runs the fallback priority cascade and always produces a
// decision; at worst it is the explicit empty state the renderer shows
// as "no content".
func Decide(in Inputs) model.PlaylistDecision {
	if in.Active == nil {
		return decideIdle(in)
	}
	return decideScheduled(in)
}

// decideIdle covers "no schedule window is active": default content or
// nothing.
func decideIdle(in Inputs) model.PlaylistDecision {
	if in.Default.HasSlides() {
		return model.PlaylistDecision{
			Source:   model.SourceDefault,
			Category: model.CategoryDefault,
			Playlist: in.Default,
			Reason:   "no active schedule, fresh default playlist",
		}
	}
	if in.CachedDefault.HasSlides() {
		return model.PlaylistDecision{
			Source:   model.SourceCache,
			Category: model.CategoryDefault,
			Playlist: in.CachedDefault,
			Reason:   "no active schedule, last-known-good default",
		}
	}
	if in.OnScreen.HasContent() && in.OnScreen.Category == model.CategoryDefault {
		keep := *in.OnScreen
		keep.Reason = "no active schedule, keeping default already on screen"
		return keep
	}
	return model.PlaylistDecision{
		Source: model.SourceEmpty,
		Reason: "no active schedule and no default available",
	}
}

// decideScheduled covers an active window: the schedule's own playlist
// if at all possible, degrading through cache and default.
func decideScheduled(in Inputs) model.PlaylistDecision {
	if in.Child.HasSlides() {
		return model.PlaylistDecision{
			Source:     model.SourceChild,
			Category:   model.CategoryChild,
			ScheduleID: in.Active.ScheduleID,
			Playlist:   in.Child,
			Reason:     "fresh child playlist for active schedule",
		}
	}
	// A still-valid child render survives a server outage mid-playback.
	if in.OnScreen.HasContent() &&
		in.OnScreen.Category == model.CategoryChild &&
		in.OnScreen.ScheduleID == in.Active.ScheduleID {
		keep := *in.OnScreen
		keep.Reason = "child fetch unavailable, keeping current child render"
		return keep
	}
	if in.CachedChild.HasSlides() {
		return model.PlaylistDecision{
			Source:     model.SourceCache,
			Category:   model.CategoryChild,
			ScheduleID: in.Active.ScheduleID,
			Playlist:   in.CachedChild,
			Reason:     "last-known-good child playlist",
		}
	}
	if in.Default.HasSlides() {
		return model.PlaylistDecision{
			Source:   model.SourceDefault,
			Category: model.CategoryDefault,
			Playlist: in.Default,
			Reason:   "no child available, fresh default playlist",
		}
	}
	if in.CachedDefault.HasSlides() {
		return model.PlaylistDecision{
			Source:   model.SourceCache,
			Category: model.CategoryDefault,
			Playlist: in.CachedDefault,
			Reason:   "no child available, last-known-good default",
		}
	}
	if in.OnScreen.HasContent() {
		keep := *in.OnScreen
		keep.Reason = "nothing fetchable, keeping whatever is on screen"
		return keep
	}
	return model.PlaylistDecision{
		Source: model.SourceEmpty,
		Reason: "active schedule but no playlist available from any source",
	}
}
