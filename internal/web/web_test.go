package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/app"
	"lifeplan/internal/config"
	"lifeplan/internal/fx"
	"lifeplan/internal/model"
	"lifeplan/internal/store"
	"lifeplan/internal/waterfall"
)

type stubRates struct{}

func (stubRates) Rate(ctx context.Context) (fx.Quote, error) {
	return fx.Quote{Rate: decimal.NewFromInt(385), Source: fx.SourceFallback}, nil
}

type stubHolidays struct{}

func (stubHolidays) ForMonth(ctx context.Context, date time.Time) ([]model.Holiday, error) {
	return []model.Holiday{{UID: "poya", Summary: "Poya", Categories: []string{"Poya"}, Start: "2030-03-02", End: "2030-03-03"}}, nil
}

func testServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	settings := app.Settings{
		EmergencyFloor:   decimal.NewFromInt(20000),
		MonthlySalary:    decimal.NewFromInt(46775),
		CoachingFee:      decimal.NewFromInt(8000),
		CoachingLocation: "Port City",
		RecommendMargin:  decimal.NewFromInt(10000),
		DefaultPlan:      "Plan A",
		Plans: []waterfall.Plan{
			{Name: "Plan A", Obligations: []waterfall.Obligation{
				{Amount: waterfall.Amount{Currency: waterfall.GBP, Value: decimal.NewFromInt(600)}, Due: time.Date(2030, 4, 15, 0, 0, 0, 0, time.UTC)},
			}},
			{Name: "Plan B", Obligations: []waterfall.Obligation{
				{Amount: waterfall.Amount{Currency: waterfall.LKR, Value: decimal.NewFromInt(30000)}, Due: time.Date(2030, 7, 15, 0, 0, 0, 0, time.UTC)},
			}},
		},
		TrainingPlan: []model.FitnessLog{
			{Phase: "Base", Date: "2030-03-02", Description: "Easy run", DistanceCmd: "5km"},
			{Phase: "Base", Date: "2030-03-04", Description: "Tempo", DistanceCmd: "6km"},
		},
		Location: time.UTC,
	}
	st := store.NewMemory()
	wealth := app.NewWealthService(st, stubRates{}, settings)
	srv := NewServer(cfg, Services{
		Schedule: app.NewScheduleService(st, stubHolidays{}, wealth, settings),
		Wealth:   wealth,
		Coaching: app.NewCoachingService(st),
		Fitness:  app.NewFitnessService(st, settings),
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set(UserHeader, user.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := testServer(t, nil)
	rec := do(t, h, "GET", "/health", uuid.Nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health: %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}
	h := testServer(t, cfg)

	if rec := do(t, h, "GET", "/health", uuid.Nil, ""); rec.Code != http.StatusOK {
		t.Errorf("health should bypass auth, got %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/plans", uuid.Nil, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/plans", nil)
	req.SetBasicAuth("me", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with credentials, got %d", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	h := testServer(t, nil)
	rec := do(t, h, "GET", "/api/wealth", uuid.Nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct{ Error string }
	decode(t, rec, &resp)
	if !strings.Contains(resp.Error, UserHeader) {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestEventsLifecycle(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()

	rec := do(t, h, "POST", "/api/events", user,
		`{"activity":"Study","type":"STUDY","time_range":"18:00-20:00","rule":"CUSTOM_DAYS","days":[1,3],"date":"2030-03-03","until":"2030-03-16"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created []model.EventRecord
	decode(t, rec, &created)
	if len(created) != 4 {
		t.Fatalf("expected 4 records (Mon/Wed over two weeks), got %d", len(created))
	}
	for _, r := range created {
		d, _ := model.ParseDate(r.Date)
		if wd := d.Weekday(); wd != time.Monday && wd != time.Wednesday {
			t.Errorf("record on %s (%s)", r.Date, wd)
		}
		if r.SeriesID != created[0].SeriesID || !r.SeriesID.Valid {
			t.Errorf("records do not share a series id")
		}
	}

	rec = do(t, h, "GET", "/api/events?from=2030-03-01&to=2030-03-31", user, "")
	var blocks []model.ScheduleBlock
	decode(t, rec, &blocks)
	if len(blocks) != 5 || !blocks[0].Holiday {
		t.Errorf("expected holiday + 4 events, got %+v", blocks)
	}

	rec = do(t, h, "PATCH", "/api/events/"+created[1].ID.String(), user,
		`{"activity":"Exam prep","type":"STUDY","scope":"future"}`)
	var changed changedResponse
	decode(t, rec, &changed)
	if rec.Code != http.StatusOK || changed.Changed != 3 {
		t.Errorf("patch future: %d %+v", rec.Code, changed)
	}

	rec = do(t, h, "GET", "/api/day/"+created[3].Date, user, "")
	decode(t, rec, &blocks)
	if len(blocks) != 1 || blocks[0].Activity != "Exam prep" {
		t.Errorf("day view = %+v", blocks)
	}

	if rec := do(t, h, "DELETE", "/api/events/"+created[0].ID.String()+"?scope=everything", user, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad scope: expected 400, got %d", rec.Code)
	}
	rec = do(t, h, "DELETE", "/api/events/"+created[2].ID.String()+"?scope=future", user, "")
	decode(t, rec, &changed)
	if changed.Changed != 2 {
		t.Errorf("delete future changed %d", changed.Changed)
	}
	if rec := do(t, h, "DELETE", "/api/events/"+uuid.NewString(), user, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, "DELETE", "/api/events/not-a-uuid", user, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestCreateEventsValidation(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown rule", `{"activity":"x","rule":"YEARLY","date":"2030-01-01"}`},
		{"bad weekday", `{"activity":"x","rule":"CUSTOM_DAYS","days":[7],"date":"2030-01-01"}`},
		{"missing activity", `{"rule":"DAILY","date":"2030-01-01"}`},
		{"bad date", `{"activity":"x","date":"tomorrow"}`},
		{"unbounded until", `{"activity":"x","rule":"DAILY","date":"2030-01-01","until":"9999-12-31"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, "POST", "/api/events", user, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestToggleFitnessRun(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()

	var p app.FitnessProgress
	decode(t, do(t, h, "GET", "/api/fitness", user, ""), &p)
	if p.Total != 2 || p.Next == nil || p.Next.Date != "2030-03-02" {
		t.Fatalf("seeded progress = %+v", p)
	}

	rec := do(t, h, "PATCH", "/api/fitness/"+p.Runs[0].ID.String(), user, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body.String())
	}
	var l model.FitnessLog
	decode(t, rec, &l)
	if !l.Completed || l.ID != p.Runs[0].ID {
		t.Errorf("toggled run = %+v", l)
	}

	decode(t, do(t, h, "GET", "/api/fitness", user, ""), &p)
	if p.Completed != 1 || p.Next == nil || p.Next.Date != "2030-03-04" {
		t.Errorf("progress after toggle = %+v", p)
	}

	if rec := do(t, h, "PATCH", "/api/fitness/"+uuid.NewString(), user, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run: %d", rec.Code)
	}
	if rec := do(t, h, "PATCH", "/api/fitness/nope", user, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", rec.Code)
	}
}

func TestCompleteCoachingUpdatesWealth(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()

	rec := do(t, h, "POST", "/api/events", user, `{"activity":"Coaching","type":"COACHING","meta":{"client":"Nimal"},"date":"2030-01-10"}`)
	var created []model.EventRecord
	decode(t, rec, &created)
	if len(created) != 1 || created[0].SeriesID.Valid {
		t.Fatalf("single event = %+v", created)
	}

	if rec := do(t, h, "POST", "/api/events/"+created[0].ID.String()+"/complete", user, ""); rec.Code != http.StatusOK {
		t.Fatalf("complete: %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/wealth", user, "")
	var dash app.Dashboard
	decode(t, rec, &dash)
	if !dash.Stats.WalletBalance.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("wallet = %s", dash.Stats.WalletBalance)
	}

	rec = do(t, h, "GET", "/api/coaching", user, "")
	var sum app.CoachingSummary
	decode(t, rec, &sum)
	if sum.Count != 1 || sum.Months[0].Month != "2030-01" {
		t.Errorf("coaching = %+v", sum)
	}
}

func TestWealthEndpoints(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()

	if rec := do(t, h, "POST", "/api/wealth/expense", user, `{"amount":"100","reason":"tea"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("below floor: expected 422, got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/wealth/expense", user, `{"amount":"100","reason":"tea","confirm":true}`); rec.Code != http.StatusOK {
		t.Errorf("confirmed expense: %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/wealth/payout", user, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("payout without surplus: expected 422, got %d", rec.Code)
	}

	rec := do(t, h, "POST", "/api/wealth/deposit", user, `{"amount":"50000","source":"Bonus","date":"2030-01-02"}`)
	var st model.UserStats
	decode(t, rec, &st)
	if !st.UniFund.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("fund = %s", st.UniFund)
	}

	rec = do(t, h, "GET", "/api/wealth/history", user, "")
	var hist []model.WalletEntry
	decode(t, rec, &hist)
	if len(hist) != 2 || hist[0].Type != model.EntryFundIn || hist[1].Type != model.EntryOut {
		t.Errorf("history = %+v", hist)
	}

	if rec := do(t, h, "PUT", "/api/wealth/plan", user, `{"plan":"Plan Z"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown plan: expected 422, got %d", rec.Code)
	}
	rec = do(t, h, "PUT", "/api/wealth/plan", user, `{"plan":"Plan B"}`)
	decode(t, rec, &st)
	if st.ActivePlan != "Plan B" {
		t.Errorf("active plan = %q", st.ActivePlan)
	}

	if rec := do(t, h, "POST", "/api/wealth/recurring", user, `{"title":"Gym","amount":"5000"}`); rec.Code != http.StatusCreated {
		t.Errorf("recurring: %d", rec.Code)
	}
}

func TestAddPriorityAtRisk(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()
	target := model.FormatDate(time.Now().AddDate(0, 1, 0))

	rec := do(t, h, "POST", "/api/wealth/priorities", user, `{"title":"Car","amount":"10000000","target_date":"`+target+`"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var risk riskResponse
	decode(t, rec, &risk)
	if !risk.Forecast.AtRisk || risk.Error == "" {
		t.Errorf("risk response = %+v", risk)
	}

	rec = do(t, h, "POST", "/api/wealth/priorities", user, `{"title":"Car","amount":"10000000","target_date":"`+target+`","force":true}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("forced priority: %d", rec.Code)
	}
}

func TestWaterfallEndpoint(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()

	rec := do(t, h, "GET", "/api/waterfall?plan=Plan%20A&balance=0&rate=385&as_of=2030-01-15", user, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("waterfall: %d %s", rec.Code, rec.Body.String())
	}
	var req app.Requirement
	decode(t, rec, &req)
	if req.Result.Binding == nil || !req.Totals.Total.Equal(decimal.NewFromInt(231000)) {
		t.Errorf("requirement = %+v", req)
	}
	// 231000 over ~2.95 average months.
	if r := req.Result.RequiredMonthlyRate; r.LessThan(decimal.NewFromInt(75000)) || r.GreaterThan(decimal.NewFromInt(80000)) {
		t.Errorf("rate = %s", r)
	}

	tests := []struct {
		query string
		code  int
	}{
		{"rate=0", http.StatusBadRequest},
		{"rate=abc", http.StatusBadRequest},
		{"as_of=someday", http.StatusBadRequest},
		{"plan=nope", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		if rec := do(t, h, "GET", "/api/waterfall?"+tt.query, user, ""); rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.query, tt.code, rec.Code)
		}
	}
}

func TestPlansAndHolidays(t *testing.T) {
	h := testServer(t, nil)

	rec := do(t, h, "GET", "/api/plans", uuid.Nil, "")
	var plans plansResponse
	decode(t, rec, &plans)
	if len(plans.Plans) != 2 || !plans.Plans[0].Total.Equal(decimal.NewFromInt(231000)) {
		t.Errorf("plans = %+v", plans)
	}

	rec = do(t, h, "GET", "/api/holidays?month=2030-03", uuid.Nil, "")
	var hols []model.Holiday
	decode(t, rec, &hols)
	if len(hols) != 1 {
		t.Errorf("holidays = %+v", hols)
	}
	if rec := do(t, h, "GET", "/api/holidays?month=March", uuid.Nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month: expected 400, got %d", rec.Code)
	}
}

func TestCalendarFeed(t *testing.T) {
	h := testServer(t, nil)
	user := uuid.New()
	today := model.FormatDate(time.Now())

	do(t, h, "POST", "/api/events", user, `{"activity":"Standup","time_range":"09:00-09:15","date":"`+today+`"}`)

	rec := do(t, h, "GET", "/calendar.ics?user="+user.String(), uuid.Nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Standup") {
		t.Errorf("calendar body:\n%s", rec.Body.String())
	}

	if rec := do(t, h, "GET", "/calendar.ics", uuid.Nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("calendar without user: expected 400, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testServer(t, nil)
	req := httptest.NewRequest("OPTIONS", "/api/wealth", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", UserHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{app.ErrInvalidInput, http.StatusBadRequest},
		{waterfall.ErrInvalidRate, http.StatusBadRequest},
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{app.ErrNoSurplus, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
