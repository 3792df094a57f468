package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/holiday"
	"lifeplan/internal/ics"
	appLog "lifeplan/internal/log"
	"lifeplan/internal/model"
	"lifeplan/internal/recurrence"
	"lifeplan/internal/store"
)

const defaultCoachingClient = "Unknown Client"

// ScheduleService manages calendar records and the side effects of
// completing them.
type ScheduleService struct {
	store    store.Store
	holidays HolidaySource
	wealth   *WealthService
	settings Settings
	clock    clock
}

func NewScheduleService(s store.Store, holidays HolidaySource, wealth *WealthService, settings Settings) *ScheduleService {
	return &ScheduleService{
		store:    s,
		holidays: holidays,
		wealth:   wealth,
		settings: settings,
		clock:    clock{now: time.Now, loc: settings.location()},
	}
}

// CreateRequest is one user-authored block plus its repetition.
type CreateRequest struct {
	Template model.EventTemplate
	Rule     recurrence.Rule
	Start    string
	// End is optional; empty caps expansion at one year.
	End string
}

// Create expands the request and stores every record in one batch.
func (s *ScheduleService) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) ([]model.EventRecord, error) {
	tpl, err := normalizeTemplate(req.Template)
	if err != nil {
		return nil, err
	}
	start, err := model.ParseDate(req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start date %q", ErrInvalidInput, req.Start)
	}
	var end *time.Time
	if req.End != "" {
		e, err := model.ParseDate(req.End)
		if err != nil {
			return nil, fmt.Errorf("%w: end date %q", ErrInvalidInput, req.End)
		}
		if err := s.settings.checkWindow(start, e); err != nil {
			return nil, err
		}
		end = &e
	}

	recs := recurrence.Expand(recurrence.Request{
		UserID:   userID,
		Template: tpl,
		Rule:     req.Rule,
		Start:    start,
		End:      end,
	})
	if err := s.store.InsertEvents(ctx, recs); err != nil {
		return nil, err
	}
	appLog.Info("events created", "user", userID, "rule", req.Rule.Kind, "count", len(recs))
	return recs, nil
}

func normalizeTemplate(tpl model.EventTemplate) (model.EventTemplate, error) {
	tpl.Activity = strings.TrimSpace(tpl.Activity)
	if tpl.Activity == "" {
		return tpl, fmt.Errorf("%w: activity is required", ErrInvalidInput)
	}
	tpl.Type = strings.ToUpper(strings.TrimSpace(tpl.Type))
	if tpl.Type == "" {
		tpl.Type = model.TypeGeneral
	}
	if strings.TrimSpace(tpl.TimeRange) == "" {
		tpl.TimeRange = model.Anytime
	}
	return tpl, nil
}

// Day returns one day's blocks, holidays first.
func (s *ScheduleService) Day(ctx context.Context, userID uuid.UUID, date string) ([]model.ScheduleBlock, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, date)
	}
	recs, err := s.store.ListEvents(ctx, userID, date, date)
	if err != nil {
		return nil, err
	}
	return holiday.Merge(toBlocks(recs), s.monthHolidays(ctx, day), date), nil
}

// Range returns the blocks dated from..to inclusive, holidays first.
func (s *ScheduleService) Range(ctx context.Context, userID uuid.UUID, from, to string) ([]model.ScheduleBlock, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidInput, from)
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidInput, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	if err := s.settings.checkWindow(start, end); err != nil {
		return nil, err
	}

	recs, err := s.store.ListEvents(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	var hols []model.Holiday
	seen := make(map[string]bool)
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
		for _, h := range s.monthHolidays(ctx, m) {
			if seen[h.UID+h.Start] || h.Start < from || h.Start > to {
				continue
			}
			seen[h.UID+h.Start] = true
			hols = append(hols, h)
		}
	}
	return holiday.Merge(toBlocks(recs), hols, ""), nil
}

// Records returns the stored records dated from..to for export.
func (s *ScheduleService) Records(ctx context.Context, userID uuid.UUID, from, to string) ([]model.EventRecord, error) {
	return s.store.ListEvents(ctx, userID, from, to)
}

// Holidays returns the public holidays for the month containing date.
func (s *ScheduleService) Holidays(ctx context.Context, date time.Time) ([]model.Holiday, error) {
	if s.holidays == nil {
		return []model.Holiday{}, nil
	}
	return s.holidays.ForMonth(ctx, date)
}

// monthHolidays never fails; a broken feed only removes holidays from the view.
func (s *ScheduleService) monthHolidays(ctx context.Context, date time.Time) []model.Holiday {
	hols, err := s.Holidays(ctx, date)
	if err != nil {
		appLog.Warn("holidays unavailable", "month", date.Format("2006-01"), "error", err)
		return nil
	}
	return hols
}

func toBlocks(recs []model.EventRecord) []model.ScheduleBlock {
	out := make([]model.ScheduleBlock, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.BlockFromRecord(r))
	}
	return out
}

// Complete marks a record done and applies its side effects: a coaching
// block books a session and credits the wallet, a run completes the day's
// training log. Completing an already completed record changes nothing. When
// a side effect fails the record is reopened so the call can be retried.
func (s *ScheduleService) Complete(ctx context.Context, userID, id uuid.UUID) (model.EventRecord, error) {
	rec, err := s.store.GetEvent(ctx, userID, id)
	if err != nil {
		return model.EventRecord{}, err
	}
	changed, err := s.store.SetEventCompleted(ctx, userID, id, true)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec.Completed = true
	if !changed {
		return rec, nil
	}

	if err := s.applyCompletion(ctx, rec); err != nil {
		if _, rbErr := s.store.SetEventCompleted(context.WithoutCancel(ctx), userID, id, false); rbErr != nil {
			appLog.Error("failed to reopen event", rbErr, "event", id)
		}
		rec.Completed = false
		return rec, err
	}
	return rec, nil
}

func (s *ScheduleService) applyCompletion(ctx context.Context, rec model.EventRecord) error {
	switch {
	case rec.Type == model.TypeCoaching:
		return s.bookCoaching(ctx, rec)
	case isRun(rec):
		n, err := s.store.CompleteFitnessOn(ctx, rec.UserID, rec.Date)
		if err != nil {
			return err
		}
		appLog.Debug("training runs completed", "user", rec.UserID, "date", rec.Date, "count", n)
	}
	return nil
}

func isRun(rec model.EventRecord) bool {
	switch rec.Type {
	case model.TypeFitness:
		return true
	case model.TypePhysical:
		return strings.Contains(strings.ToUpper(rec.Activity), "RUN")
	}
	return false
}

func (s *ScheduleService) bookCoaching(ctx context.Context, rec model.EventRecord) error {
	client := defaultCoachingClient
	if v, ok := rec.Meta["client"].(string); ok && strings.TrimSpace(v) != "" {
		client = strings.TrimSpace(v)
	}
	// The session shares the record id, so a retry after a failed credit
	// finds the earlier booking instead of adding a second one.
	session := model.CoachingSession{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Date:       rec.Date,
		ClientName: client,
		Amount:     s.settings.CoachingFee,
		Location:   s.settings.CoachingLocation,
	}
	if err := s.store.AddCoachingSession(ctx, session); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	if _, err := s.wealth.CreditIncome(ctx, rec.UserID, session.Amount, "Coaching: "+client, rec.Date); err != nil {
		return err
	}
	appLog.Info("coaching session booked", "user", rec.UserID, "client", client, "amount", session.Amount.String())
	return nil
}

// Edit replaces the template of one record, or of it and every later record
// of its series. A record without a series is always edited alone. It
// returns how many records changed.
func (s *ScheduleService) Edit(ctx context.Context, userID, id uuid.UUID, tpl model.EventTemplate, scope Scope) (int, error) {
	tpl, err := normalizeTemplate(tpl)
	if err != nil {
		return 0, err
	}
	rec, err := s.store.GetEvent(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if scope == ScopeFuture && rec.SeriesID.Valid {
		return s.store.UpdateSeriesFrom(ctx, userID, rec.SeriesID.UUID, rec.Date, tpl)
	}
	if err := s.store.UpdateEvent(ctx, userID, id, tpl); err != nil {
		return 0, err
	}
	return 1, nil
}

// Delete removes one record, or it and every later record of its series.
func (s *ScheduleService) Delete(ctx context.Context, userID, id uuid.UUID, scope Scope) (int, error) {
	rec, err := s.store.GetEvent(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if scope == ScopeFuture && rec.SeriesID.Valid {
		return s.store.DeleteSeriesFrom(ctx, userID, rec.SeriesID.UUID, rec.Date)
	}
	if err := s.store.DeleteEvent(ctx, userID, id); err != nil {
		return 0, err
	}
	return 1, nil
}

// ImportResult reports an ICS import.
type ImportResult struct {
	Imported  int      `json:"imported"`
	Truncated []string `json:"truncated,omitempty"`
}

// Import stores the events of an ICS document. Recurring events are expanded
// from today for one year.
func (s *ScheduleService) Import(ctx context.Context, userID uuid.UUID, body []byte) (ImportResult, error) {
	parsed, err := ics.ParseICS("upload", body)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	today := model.DateOnly(s.clock.Now())
	res, err := ics.ImportEvents(parsed, userID, ics.ImportConfig{
		Location:   s.settings.location(),
		RangeStart: today,
		RangeEnd:   today.AddDate(0, recurrence.HorizonMonths, 0),
	})
	if err != nil {
		return ImportResult{}, err
	}
	if err := s.store.InsertEvents(ctx, res.Records); err != nil {
		return ImportResult{}, err
	}
	if len(res.Truncated) > 0 {
		appLog.Warn("ics import truncated", "user", userID, "uids", strings.Join(res.Truncated, ","))
	}
	return ImportResult{Imported: len(res.Records), Truncated: res.Truncated}, nil
}

// Export renders the records dated from..to as an ICS calendar.
func (s *ScheduleService) Export(ctx context.Context, userID uuid.UUID, from, to string) (string, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return "", fmt.Errorf("%w: from %q", ErrInvalidInput, from)
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return "", fmt.Errorf("%w: to %q", ErrInvalidInput, to)
	}
	if err := s.settings.checkWindow(start, end); err != nil {
		return "", err
	}
	recs, err := s.Records(ctx, userID, from, to)
	if err != nil {
		return "", err
	}
	return ics.Export(recs, ics.ExportConfig{Name: "lifeplan", Location: s.settings.location()}), nil
}
