package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/app"
	"lifeplan/internal/model"
	"lifeplan/internal/waterfall"
)

type switchPlanRequest struct {
	Plan string `json:"plan"`
}

type expenseRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
	Confirm bool            `json:"confirm"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Source string          `json:"source"`
}

type priorityRequest struct {
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	TargetDate string          `json:"target_date"`
	Force      bool            `json:"force"`
}

type recurringRequest struct {
	Title        string          `json:"title"`
	Amount       decimal.Decimal `json:"amount"`
	PeriodMonths int             `json:"period_months"`
}

type payoutResponse struct {
	Moved decimal.Decimal `json:"moved"`
	Stats model.UserStats `json:"stats"`
}

// riskResponse is returned when an unforced priority is at risk, so the
// client can show the forecast before retrying with force.
type riskResponse struct {
	Error    string                     `json:"error"`
	Forecast waterfall.PriorityForecast `json:"forecast"`
}

type planSummary struct {
	waterfall.Plan
	Total decimal.Decimal `json:"total"`
}

type plansResponse struct {
	Rate  decimal.Decimal `json:"rate"`
	Plans []planSummary   `json:"plans"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Wealth.Dashboard(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSwitchPlan(w http.ResponseWriter, r *http.Request) {
	var req switchPlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := s.svc.Wealth.SwitchPlan(r.Context(), userID(r), req.Plan)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := s.svc.Wealth.LogExpense(r.Context(), userID(r), req.Amount, req.Reason, req.Confirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	moved, st, err := s.svc.Wealth.PayoutToFund(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{Moved: moved, Stats: st})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := s.svc.Wealth.Deposit(r.Context(), userID(r), req.Amount, req.Date, req.Source)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAddPriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := s.svc.Wealth.AddPriority(r.Context(), userID(r), req.Title, req.Amount, req.TargetDate, req.Force)
	if errors.Is(err, app.ErrRiskOverride) {
		writeJSON(w, http.StatusUnprocessableEntity, riskResponse{Error: err.Error(), Forecast: view.Forecast})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleAddRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := s.svc.Wealth.AddRecurring(r.Context(), userID(r), req.Title, req.Amount, req.PeriodMonths)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// handleHistory returns wallet movements, newest first. ?limit defaults to 50;
// 0 returns everything.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	if limit < 0 {
		limit = 50
	}
	entries, err := s.svc.Wealth.History(r.Context(), userID(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleWaterfall computes a requirement with optional overrides.
//
// GET /api/waterfall?plan=Plan%2001&balance=250000&rate=390&as_of=2026-03-01
func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := app.RequirementQuery{Plan: q.Get("plan")}

	var ok bool
	if query.Balance, ok = decimalParam(w, q.Get("balance"), "balance"); !ok {
		return
	}
	if query.Rate, ok = decimalParam(w, q.Get("rate"), "rate"); !ok {
		return
	}
	if v := q.Get("as_of"); v != "" {
		t, err := parseAsOf(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of: "+v)
			return
		}
		query.AsOf = t
	}

	req, err := s.svc.Wealth.Requirement(r.Context(), userID(r), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func decimalParam(w http.ResponseWriter, v, name string) (*decimal.Decimal, bool) {
	if v == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+v)
		return nil, false
	}
	return &d, true
}

// parseAsOf accepts YYYY-MM-DD or RFC 3339.
func parseAsOf(v string) (time.Time, error) {
	if t, err := model.ParseDate(v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// handlePlans lists configured plans with their totals at the current rate.
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	quote, err := s.svc.Wealth.Rate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	plans := s.svc.Wealth.Plans()
	resp := plansResponse{Rate: quote.Rate, Plans: make([]planSummary, 0, len(plans))}
	for _, p := range plans {
		resp.Plans = append(resp.Plans, planSummary{
			Plan:  p,
			Total: waterfall.PlanTotals(p, quote.Rate, decimal.Zero).Total,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFX(w http.ResponseWriter, r *http.Request) {
	quote, err := s.svc.Wealth.Rate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleCoaching(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Coaching.Summary(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFitness(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Fitness.Runs(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleToggleFitness flips one training run between done and not done.
func (s *Server) handleToggleFitness(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	l, err := s.svc.Fitness.Toggle(r.Context(), userID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
