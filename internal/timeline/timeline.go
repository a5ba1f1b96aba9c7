// Package timeline answers "which slide should be on screen right now"
// for a playlist with a known absolute anchor. It is pure math with no
// I/O or timers; the player session queries it on a recurring tick and
// the renderer reacts to index changes.
package timeline

import (
	"math"
	"time"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

const secondsPerDay = 86400.0

// Position locates an instant within a looping playlist.
type Position struct {
	Index     int           `json:"index"`
	SlideID   int           `json:"slide_id"`
	Offset    float64       `json:"offset_seconds"`
	UntilNext time.Duration `json:"-"`
	Loop      int           `json:"loop"`
}

// Locate computes the active slide at nowSeconds for a playlist
// anchored at anchorSeconds (both seconds-of-day, server clock). The
// second return is false for the disabled state: an empty playlist or
// one whose total duration is zero.
func Locate(slides []model.Slide, anchorSeconds, nowSeconds float64) (Position, bool) {
	total := totalDuration(slides)
	if len(slides) == 0 || total <= 0 {
		return Position{}, false
	}

	// An anchor "later" than now means playback started before midnight
	// and we wrapped; fold the elapsed time back onto the day circle.
	elapsed := nowSeconds - anchorSeconds
	if elapsed < 0 {
		elapsed += secondsPerDay
	}

	loop := int(elapsed / total)
	loopElapsed := math.Mod(elapsed, total)

	var before float64
	for i, s := range slides {
		if loopElapsed < before+s.Duration || i == len(slides)-1 {
			offset := loopElapsed - before
			return Position{
				Index:     i,
				SlideID:   s.ID,
				Offset:    offset,
				UntilNext: time.Duration((s.Duration - offset) * float64(time.Second)),
				Loop:      loop,
			}, true
		}
		before += s.Duration
	}
	return Position{}, false
}

// SlideInstance is one concrete appearance of a slide inside a
// schedule window, clipped to the window's absolute bounds.
type SlideInstance struct {
	Loop    int     `json:"loop"`
	Index   int     `json:"index"`
	SlideID int     `json:"slide_id"`
	Start   float64 `json:"start_seconds"`
	End     float64 `json:"end_seconds"`
}

// Window is the fully expanded timeline of a schedule window: every
// loop of the playlist between the window's start and end, the final
// loop possibly partial.
type Window struct {
	Start        float64         `json:"start_seconds"`
	End          float64         `json:"end_seconds"`
	LoopDuration float64         `json:"loop_duration"`
	FullLoops    int             `json:"full_loops"`
	Partial      bool            `json:"partial"`
	Slides       []SlideInstance `json:"slides"`
}

// BuildWindow expands a playlist across [startSeconds, endSeconds).
// Instances are clipped so no slide transition can be announced past
// the window end. Returns false for the disabled state.
func BuildWindow(slides []model.Slide, startSeconds, endSeconds float64) (Window, bool) {
	total := totalDuration(slides)
	windowDur := endSeconds - startSeconds
	if len(slides) == 0 || total <= 0 || windowDur <= 0 {
		return Window{}, false
	}

	fullLoops := int(windowDur / total)
	remainder := windowDur - float64(fullLoops)*total

	w := Window{
		Start:        startSeconds,
		End:          endSeconds,
		LoopDuration: total,
		FullLoops:    fullLoops,
		Partial:      remainder > 0,
	}

	loops := fullLoops
	if w.Partial {
		loops++
	}
	for loop := 0; loop < loops; loop++ {
		cursor := startSeconds + float64(loop)*total
		for i, s := range slides {
			start := cursor
			end := cursor + s.Duration
			cursor = end
			if start >= endSeconds {
				break
			}
			if end > endSeconds {
				end = endSeconds
			}
			w.Slides = append(w.Slides, SlideInstance{
				Loop:    loop,
				Index:   i,
				SlideID: s.ID,
				Start:   start,
				End:     end,
			})
		}
	}
	return w, true
}

func totalDuration(slides []model.Slide) float64 {
	var total float64
	for _, s := range slides {
		total += s.Duration
	}
	return total
}
