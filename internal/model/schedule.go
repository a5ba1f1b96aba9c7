package model

// ScheduleEntry is one time window during which a specific playlist
// should be on screen. Dates are "YYYY-MM-DD", times are "HH:MM:SS".
type ScheduleEntry struct {
	ScheduleID int    `json:"schedule_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// DaySchedule is the backend's answer to "what windows exist today".
type DaySchedule struct {
	Date    string          `json:"date"`
	Entries []ScheduleEntry `json:"data"`
}
