package schedule

import (
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// ResolveActiveAndNext walks today's entries and returns the window
// containing (today, nowSeconds) plus the chronologically nearest
// future window. The backend promises non-overlapping windows; if
// malformed data makes two entries active, the first in input order
// wins.
func ResolveActiveAndNext(entries []model.ScheduleEntry, today string, nowSeconds float64) (active, next *model.ScheduleEntry) {
	for i := range entries {
		e := &entries[i]
		if active == nil && windowContains(e, today, nowSeconds) {
			active = e
			continue
		}
		if !startsAfter(e, today, nowSeconds) {
			continue
		}
		if next == nil || startsBefore(e, next) {
			next = e
		}
	}
	return active, next
}

// windowContains implements [startDate,endDate]x[startTime,endTime)
// containment: start inclusive, end exclusive, full-day semantics for
// dates strictly between the boundary dates. Entries with unparseable
// times are never active.
func windowContains(e *model.ScheduleEntry, today string, nowSeconds float64) bool {
	if today < e.StartDate || today > e.EndDate {
		return false
	}
	start, err := clock.ParseHMS(e.StartTime)
	if err != nil {
		log.Warn().Int("schedule_id", e.ScheduleID).Str("start_time", e.StartTime).Msg("unparseable schedule start time")
		return false
	}
	end, err := clock.ParseHMS(e.EndTime)
	if err != nil {
		log.Warn().Int("schedule_id", e.ScheduleID).Str("end_time", e.EndTime).Msg("unparseable schedule end time")
		return false
	}
	if today == e.StartDate && nowSeconds < start {
		return false
	}
	if today == e.EndDate && nowSeconds >= end {
		return false
	}
	return true
}

// startsAfter reports whether the entry's start instant is strictly in
// the future relative to (today, nowSeconds).
func startsAfter(e *model.ScheduleEntry, today string, nowSeconds float64) bool {
	if e.StartDate > today {
		return true
	}
	if e.StartDate < today {
		return false
	}
	start, err := clock.ParseHMS(e.StartTime)
	if err != nil {
		return false
	}
	return start > nowSeconds
}

// startsBefore orders two entries by start instant (date, then time).
func startsBefore(a, b *model.ScheduleEntry) bool {
	if a.StartDate != b.StartDate {
		return a.StartDate < b.StartDate
	}
	as, errA := clock.ParseHMS(a.StartTime)
	bs, errB := clock.ParseHMS(b.StartTime)
	if errA != nil || errB != nil {
		return errB != nil
	}
	return as < bs
}

// NextBoundarySeconds finds the nearest future state-change instant
// today: the earliest start or end among all entries that still lies
// ahead of nowSeconds. Boundaries on later days are covered by the
// daily schedule refresh, so only today's matter here.
func NextBoundarySeconds(entries []model.ScheduleEntry, today string, nowSeconds float64) (float64, bool) {
	best := 0.0
	found := false
	consider := func(sec float64) {
		if sec <= nowSeconds {
			return
		}
		if !found || sec < best {
			best = sec
			found = true
		}
	}
	for i := range entries {
		e := &entries[i]
		if e.StartDate == today {
			if start, err := clock.ParseHMS(e.StartTime); err == nil {
				consider(start)
			}
		}
		if e.EndDate == today {
			if end, err := clock.ParseHMS(e.EndTime); err == nil {
				consider(end)
			}
		}
	}
	return best, found
}
