package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date wire format used for every persisted date.
const DateLayout = "2006-01-02"

// Anytime is the time-range sentinel for blocks without a fixed slot.
const Anytime = "Anytime"

// Category tags. The set is open; these are the ones with behaviour attached.
const (
	TypeGeneral   = "GENERAL"
	TypeWork      = "WORK"
	TypeStudy     = "STUDY"
	TypeFitness   = "FITNESS"
	TypePhysical  = "PHYSICAL"
	TypeCoaching  = "COACHING"
	TypeSpiritual = "SPIRITUAL"
	TypeHoliday   = "HOLIDAY"
)

// Meta is the free-form per-category metadata attached to an event
// (e.g. "client" for coaching, "distance_cmd"/"zone" for runs).
type Meta map[string]any

// EventTemplate is the invariant payload shared by every record of a series.
type EventTemplate struct {
	Activity   string `json:"activity"`
	Location   string `json:"location"`
	Type       string `json:"type"`
	TimeRange  string `json:"time_range"`
	IsPriority bool   `json:"is_priority"`
	IsGoal     bool   `json:"is_goal"`
	// EndDate is a display label carried verbatim; it does not bound expansion.
	EndDate string `json:"end_date,omitempty"`
	Meta    Meta   `json:"meta"`
}

// EventRecord is one concrete dated occurrence, as persisted.
type EventRecord struct {
	ID       uuid.UUID     `json:"id"`
	UserID   uuid.UUID     `json:"user_id"`
	SeriesID uuid.NullUUID `json:"series_id"`
	Date     string        `json:"date"`
	EventTemplate
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ScheduleBlock is a display row: either a stored event or a holiday.
type ScheduleBlock struct {
	ID       string        `json:"id"`
	SeriesID uuid.NullUUID `json:"series_id"`
	Date     string        `json:"date"`
	EventTemplate
	Completed bool `json:"completed"`
	Holiday   bool `json:"holiday"`
}

// Holiday is a single public holiday from an external feed.
type Holiday struct {
	UID        string   `json:"uid"`
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
}

// FormatDate renders t as YYYY-MM-DD in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateOnly truncates t to midnight UTC of its calendar date in t's location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BlockFromRecord converts a stored record into a display block.
func BlockFromRecord(r EventRecord) ScheduleBlock {
	return ScheduleBlock{
		ID:            r.ID.String(),
		SeriesID:      r.SeriesID,
		Date:          r.Date,
		EventTemplate: r.EventTemplate,
		Completed:     r.Completed,
	}
}
