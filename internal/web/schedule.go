package web

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lifeplan/internal/app"
	"lifeplan/internal/model"
	"lifeplan/internal/recurrence"
)

// createEventRequest is a template plus its repetition rule.
type createEventRequest struct {
	model.EventTemplate
	Rule     string `json:"rule"`
	Interval int    `json:"interval"`
	Days     []int  `json:"days"`
	// Date is the first occurrence; Until optionally bounds expansion.
	Date  string `json:"date"`
	Until string `json:"until"`
}

type editEventRequest struct {
	model.EventTemplate
	Scope string `json:"scope"`
}

type changedResponse struct {
	Changed int `json:"changed"`
}

// eventsWindow resolves ?from&to, falling back to ?days (default 7) ahead and
// ?backfill (default 1) behind today.
func (s *Server) eventsWindow(r *http.Request) (string, string) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from != "" && to != "" {
		return from, to
	}

	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}
	now := time.Now().In(s.cfg.Location())
	return model.FormatDate(now.AddDate(0, 0, -backfill)), model.FormatDate(now.AddDate(0, 0, days))
}

// handleEvents returns the blocks in a date window, holidays first.
//
// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
// GET /api/events?days=7&backfill=1
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, to := s.eventsWindow(r)
	blocks, err := s.svc.Schedule.Range(r.Context(), userID(r), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.svc.Schedule.Day(r.Context(), userID(r), chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *Server) handleCreateEvents(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := recurrence.ParseRule(req.Rule, req.Interval, req.Days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	recs, err := s.svc.Schedule.Create(r.Context(), userID(r), app.CreateRequest{
		Template: req.EventTemplate,
		Rule:     rule,
		Start:    req.Date,
		End:      req.Until,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recs)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	res, err := s.svc.Schedule.Import(r.Context(), userID(r), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func eventID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

// handleEditEvent replaces an event's template. scope may be given in the
// body or as a query parameter.
func (s *Server) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	var req editEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Scope == "" {
		req.Scope = r.URL.Query().Get("scope")
	}
	scope, err := app.ParseScope(req.Scope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	n, err := s.svc.Schedule.Edit(r.Context(), userID(r), id, req.EventTemplate, scope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: n})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	scope, err := app.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	n, err := s.svc.Schedule.Delete(r.Context(), userID(r), id, scope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: n})
}

func (s *Server) handleCompleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Schedule.Complete(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleHolidays returns the public holidays of ?month=YYYY-MM (default: the
// current month).
func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	month := time.Now().In(s.cfg.Location())
	if m := r.URL.Query().Get("month"); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month %q", m))
			return
		}
		month = t
	}
	hols, err := s.svc.Schedule.Holidays(r.Context(), month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hols)
}

// handleCalendar serves the user's records as an ICS feed. Calendar clients
// usually cannot send headers, so ?user= is accepted as well.
//
// GET /calendar.ics?user=<uuid>&days=90&backfill=30
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("days") == "" {
			q.Set("days", "90")
		}
		if q.Get("backfill") == "" {
			q.Set("backfill", "30")
		}
		r.URL.RawQuery = q.Encode()

		from, to := s.eventsWindow(r)
		body, err := s.svc.Schedule.Export(r.Context(), userID(r), from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	})).ServeHTTP(w, r)
}
