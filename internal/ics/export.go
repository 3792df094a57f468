package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"lifeplan/internal/model"
)

// ExportConfig describes the generated calendar.
type ExportConfig struct {
	Name string
	// Location interprets "HH:MM-HH:MM" time ranges. If nil, UTC is used.
	Location *time.Location
	// Now stamps DTSTAMP. Zero means time.Now().
	Now time.Time
}

// Export renders records as a VCALENDAR with one VEVENT per record. Records
// whose time range parses as HH:MM-HH:MM become timed events; everything
// else is an all-day event. Records with an unparseable date are skipped.
func Export(records []model.EventRecord, cfg ExportConfig) string {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//lifeplan//schedule//EN")
	if cfg.Name != "" {
		cal.SetName(cfg.Name)
		cal.SetXWRCalName(cfg.Name)
	}
	cal.SetXWRTimezone(cfg.Location.String())

	for _, rec := range records {
		day, err := time.ParseInLocation(model.DateLayout, rec.Date, cfg.Location)
		if err != nil {
			continue
		}

		ev := cal.AddEvent(rec.ID.String() + "@lifeplan")
		ev.SetDtStampTime(cfg.Now)
		ev.SetSummary(rec.Activity)
		if rec.Location != "" {
			ev.SetLocation(rec.Location)
		}
		if rec.Type != "" {
			ev.AddCategory(rec.Type)
		}
		if rec.SeriesID.Valid {
			ev.SetProperty(ical.ComponentProperty("X-LIFEPLAN-SERIES"), rec.SeriesID.UUID.String())
		}
		if rec.Completed {
			ev.SetProperty(ical.ComponentPropertyStatus, "CONFIRMED")
		}

		if start, end, ok := ParseTimeRange(rec.TimeRange, day); ok {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			continue
		}
		ev.SetAllDayStartAt(day)
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
	}

	return cal.Serialize()
}

// ParseTimeRange resolves "HH:MM-HH:MM" on day. An end at or before the start
// rolls over to the next day (e.g. "23:00-00:00").
func ParseTimeRange(tr string, day time.Time) (time.Time, time.Time, bool) {
	if len(tr) != len("00:00-00:00") || tr[5] != '-' {
		return time.Time{}, time.Time{}, false
	}
	s, err := time.Parse("15:04", tr[:5])
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	e, err := time.Parse("15:04", tr[6:])
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), s.Hour(), s.Minute(), 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), e.Hour(), e.Minute(), 0, 0, day.Location())
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}
