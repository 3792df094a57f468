package recurrence

import (
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/model"
)

// HorizonMonths caps expansion when no end date is supplied.
const HorizonMonths = 12

// Request is the input of a single expansion.
type Request struct {
	UserID   uuid.UUID
	Template model.EventTemplate
	Rule     Rule
	Start    time.Time
	// End is inclusive. Nil means Start + HorizonMonths.
	End *time.Time
}

// Expand turns a template plus rule into dated records. Dates are compared as
// calendar dates; any time-of-day on Start/End is ignored. Records of one call
// share a fresh series id, except for None which always yields exactly one
// record dated Start with a null series id, whatever End says.
func Expand(req Request) []model.EventRecord {
	start := model.DateOnly(req.Start)

	if req.Rule.Kind == None || req.Rule.Kind == "" {
		return []model.EventRecord{newRecord(req, start, uuid.NullUUID{})}
	}

	end := start.AddDate(0, HorizonMonths, 0)
	if req.End != nil {
		end = model.DateOnly(*req.End)
	}

	out := make([]model.EventRecord, 0)
	if end.Before(start) {
		return out
	}

	series := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	for cur := start; !cur.After(end); cur = req.Rule.advance(cur) {
		if req.Rule.includes(cur) {
			out = append(out, newRecord(req, cur, series))
		}
	}
	return out
}

func newRecord(req Request, date time.Time, series uuid.NullUUID) model.EventRecord {
	tmpl := req.Template
	tmpl.Meta = copyMeta(tmpl.Meta)
	return model.EventRecord{
		ID:            uuid.New(),
		UserID:        req.UserID,
		SeriesID:      series,
		Date:          model.FormatDate(date),
		EventTemplate: tmpl,
		Completed:     false,
	}
}

func copyMeta(m model.Meta) model.Meta {
	out := make(model.Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
