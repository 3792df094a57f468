package ics

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "lifeplan/internal/log"
	"lifeplan/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ImportConfig controls how parsed events become event records.
type ImportConfig struct {
	// Location decides the calendar date and time range of timed events.
	// If nil, UTC is used.
	Location *time.Location

	// RangeStart / RangeEnd bound recurring expansion (inclusive).
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps each recurring UID. Zero means 500.
	MaxOccurrencesPerEvent int
}

// ImportResult holds the records to persist and the UIDs that hit the cap.
type ImportResult struct {
	Records   []model.EventRecord
	Truncated []string
}

// ImportEvents turns parsed VEVENTs into event records owned by userID.
//
//   - Single events become one record with no series id.
//   - RRULE events are expanded inside the range and share one series id
//     per UID.
//   - EXDATE removes instances; RECURRENCE-ID overrides replace them.
//
// Records are returned sorted by date.
func ImportEvents(events []ParsedEvent, userID uuid.UUID, cfg ImportConfig) (ImportResult, error) {
	var result ImportResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range uids {
		for _, ev := range baseByUID[uid] {
			if ev.RawRRule == "" {
				if inRange(ev.Start, cfg) {
					result.Records = append(result.Records, makeRecord(ev, userID, uuid.NullUUID{}, ev.Start, ev.End, cfg.Location))
				}
				continue
			}

			recs, hitCap := expandRecurring(ev, overridesByUID[uid], userID, cfg)
			result.Records = append(result.Records, recs...)
			if hitCap {
				result.Truncated = append(result.Truncated, uid)
				appLog.Warn("ics import truncated recurring event", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
		}
	}

	sort.SliceStable(result.Records, func(i, j int) bool { return result.Records[i].Date < result.Records[j].Date })
	return result, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, userID uuid.UUID, cfg ImportConfig) ([]model.EventRecord, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics import: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	times := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	series := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	dur := ev.End.Sub(ev.Start)
	out := make([]model.EventRecord, 0, len(times))
	for _, start := range times {
		base, s, e := ev, start, start.Add(dur)
		if o, ok := findOverride(overrides, start); ok {
			base, s, e = inherit(o, ev), o.Start, o.End
		}
		out = append(out, makeRecord(base, userID, series, s, e, cfg.Location))
	}
	return out, hitCap
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// inherit fills the fields an override leaves unset from its series.
func inherit(o, series ParsedEvent) ParsedEvent {
	if o.Summary == "" {
		o.Summary = series.Summary
	}
	if o.Description == "" {
		o.Description = series.Description
	}
	if o.Location == "" {
		o.Location = series.Location
	}
	if len(o.Categories) == 0 {
		o.Categories = series.Categories
	}
	if o.SourceID == "" {
		o.SourceID = series.SourceID
	}
	return o
}

func inRange(t time.Time, cfg ImportConfig) bool {
	return !t.Before(cfg.RangeStart) && !t.After(cfg.RangeEnd)
}

func makeRecord(ev ParsedEvent, userID uuid.UUID, series uuid.NullUUID, start, end time.Time, loc *time.Location) model.EventRecord {
	rec := model.EventRecord{
		ID:       uuid.New(),
		UserID:   userID,
		SeriesID: series,
		EventTemplate: model.EventTemplate{
			Activity:  ev.Summary,
			Location:  ev.Location,
			Type:      typeFromCategories(ev.Categories),
			TimeRange: model.Anytime,
			Meta:      model.Meta{"ics_uid": ev.UID},
		},
	}
	if ev.SourceID != "" {
		rec.Meta["ics_source"] = ev.SourceID
	}
	if len(ev.Categories) > 0 {
		rec.Meta["categories"] = append([]string(nil), ev.Categories...)
	}

	if ev.AllDay {
		// All-day values carry their date in their own location.
		rec.Date = model.FormatDate(start)
		return rec
	}
	s, e := start.In(loc), end.In(loc)
	rec.Date = model.FormatDate(s)
	rec.TimeRange = s.Format("15:04") + "-" + e.Format("15:04")
	return rec
}

var knownTypes = []string{
	model.TypeWork, model.TypeStudy, model.TypeFitness, model.TypePhysical,
	model.TypeCoaching, model.TypeSpiritual, model.TypeHoliday,
}

func typeFromCategories(categories []string) string {
	for _, c := range categories {
		c = strings.ToUpper(strings.TrimSpace(c))
		for _, t := range knownTypes {
			if c == t {
				return t
			}
		}
	}
	return model.TypeGeneral
}
