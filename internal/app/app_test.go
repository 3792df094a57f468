package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/fx"
	"lifeplan/internal/model"
	"lifeplan/internal/recurrence"
	"lifeplan/internal/store"
	"lifeplan/internal/waterfall"
)

var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type fakeRates struct{ rate decimal.Decimal }

func (f fakeRates) Rate(ctx context.Context) (fx.Quote, error) {
	return fx.Quote{Rate: f.rate, Source: fx.SourceFallback}, nil
}

type fakeHolidays struct {
	hols []model.Holiday
	err  error
}

func (f fakeHolidays) ForMonth(ctx context.Context, date time.Time) ([]model.Holiday, error) {
	if f.err != nil {
		return nil, f.err
	}
	prefix := date.Format("2006-01")
	out := make([]model.Holiday, 0)
	for _, h := range f.hols {
		if strings.HasPrefix(h.Start, prefix) {
			out = append(out, h)
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSettings() Settings {
	return Settings{
		EmergencyFloor:   dec("20000"),
		MonthlySalary:    dec("46775"),
		CoachingFee:      dec("8000"),
		CoachingLocation: "Port City",
		RecommendMargin:  dec("10000"),
		DefaultPlan:      "Plan A",
		Plans: []waterfall.Plan{
			{Name: "Plan A", Obligations: []waterfall.Obligation{
				{Amount: waterfall.Amount{Currency: waterfall.GBP, Value: dec("600")}, Due: time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)},
			}},
			{Name: "Plan B", Obligations: []waterfall.Obligation{
				{Amount: waterfall.Amount{Currency: waterfall.LKR, Value: dec("30000")}, Due: time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)},
			}},
		},
		TrainingPlan: []model.FitnessLog{
			{Phase: "Base", Date: "2026-03-02", Description: "Easy run", DistanceCmd: "5km"},
			{Phase: "Base", Date: "2026-03-04", Description: "Tempo", DistanceCmd: "6km"},
		},
	}
}

type services struct {
	store    store.Store
	schedule *ScheduleService
	wealth   *WealthService
	coaching *CoachingService
	fitness  *FitnessService
}

func newServices(t *testing.T, hols HolidaySource) services {
	t.Helper()
	return newServicesWithStore(t, hols, store.NewMemory())
}

func newServicesWithStore(t *testing.T, hols HolidaySource, st store.Store) services {
	t.Helper()
	settings := testSettings()
	fixed := clock{now: func() time.Time { return testNow }, loc: time.UTC}

	wealth := NewWealthService(st, fakeRates{rate: dec("385")}, settings)
	wealth.clock = fixed
	schedule := NewScheduleService(st, hols, wealth, settings)
	schedule.clock = fixed
	fitness := NewFitnessService(st, settings)
	fitness.clock = fixed

	return services{
		store:    st,
		schedule: schedule,
		wealth:   wealth,
		coaching: NewCoachingService(st),
		fitness:  fitness,
	}
}

// flakyStore fails the next N coaching bookings or wallet writes.
type flakyStore struct {
	store.Store
	sessionFailures int
	walletFailures  int
}

var errTransient = errors.New("transient")

func (f *flakyStore) AddCoachingSession(ctx context.Context, cs model.CoachingSession) error {
	if f.sessionFailures > 0 {
		f.sessionFailures--
		return errTransient
	}
	return f.Store.AddCoachingSession(ctx, cs)
}

func (f *flakyStore) ApplyWalletChange(ctx context.Context, st model.UserStats, entries ...model.WalletEntry) error {
	if f.walletFailures > 0 {
		f.walletFailures--
		return errTransient
	}
	return f.Store.ApplyWalletChange(ctx, st, entries...)
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": ScopeSingle, "single": ScopeSingle, " FUTURE ": ScopeFuture} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseScope("all"); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
}

func TestScheduleCreateAndDay(t *testing.T) {
	svc := newServices(t, fakeHolidays{hols: []model.Holiday{
		{UID: "h1", Summary: "Medin Full Moon Poya Day", Categories: []string{"Public", "Bank", "Poya"}, Start: "2026-03-02", End: "2026-03-03"},
		{UID: "h2", Summary: "Other", Categories: []string{"Public"}, Start: "2026-03-20", End: "2026-03-21"},
	}})
	ctx := context.Background()
	user := uuid.New()

	recs, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: " Deep work ", Type: "work"},
		Rule:     recurrence.Rule{Kind: recurrence.Daily},
		Start:    "2026-03-01",
		End:      "2026-03-03",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Activity != "Deep work" || recs[0].Type != model.TypeWork || recs[0].TimeRange != model.Anytime {
		t.Errorf("template not normalized: %+v", recs[0].EventTemplate)
	}

	blocks, err := svc.schedule.Day(ctx, user, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected holiday + event, got %d blocks", len(blocks))
	}
	if !blocks[0].Holiday || !blocks[0].IsPriority {
		t.Errorf("first block should be a priority holiday: %+v", blocks[0])
	}
	if blocks[1].Holiday || blocks[1].Date != "2026-03-02" {
		t.Errorf("second block should be the event: %+v", blocks[1])
	}

	blocks, err = svc.schedule.Range(ctx, user, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 5 {
		t.Errorf("expected 2 holidays + 3 events, got %d", len(blocks))
	}
}

func TestScheduleCreateRejectsBadInput(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	cases := []CreateRequest{
		{Template: model.EventTemplate{Activity: "  "}, Start: "2026-03-01"},
		{Template: model.EventTemplate{Activity: "x"}, Start: "03/01/2026"},
		{Template: model.EventTemplate{Activity: "x"}, Start: "2026-03-01", End: "soon"},
		{Template: model.EventTemplate{Activity: "x"}, Rule: recurrence.Rule{Kind: recurrence.Daily}, Start: "2026-03-01", End: "9999-12-31"},
	}
	for i, c := range cases {
		if _, err := svc.schedule.Create(ctx, uuid.New(), c); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestScheduleWindowLimit(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.schedule.Range(ctx, user, "2026-01-01", "2099-12-31"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Range: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.schedule.Export(ctx, user, "2026-01-01", "2099-12-31"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Export: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.schedule.Range(ctx, user, "2026-01-01", "2028-12-31"); err != nil {
		t.Errorf("three year range: %v", err)
	}

	svc.schedule.settings.MaxWindowDays = 30
	if _, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "x"},
		Rule:     recurrence.Rule{Kind: recurrence.Daily},
		Start:    "2026-03-01",
		End:      "2026-04-15",
	}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Create past configured limit: expected ErrInvalidInput, got %v", err)
	}
}

func TestScheduleHolidayFailureIsIgnored(t *testing.T) {
	svc := newServices(t, fakeHolidays{err: errors.New("feed down")})
	ctx := context.Background()
	user := uuid.New()
	if _, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "Read"},
		Start:    "2026-03-02",
	}); err != nil {
		t.Fatal(err)
	}
	blocks, err := svc.schedule.Day(ctx, user, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].Holiday {
		t.Errorf("expected only the event, got %+v", blocks)
	}
}

func TestScheduleEditAndDeleteScopes(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	recs, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "Study", Type: model.TypeStudy},
		Rule:     recurrence.Rule{Kind: recurrence.Daily},
		Start:    "2026-03-01",
		End:      "2026-03-05",
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := svc.schedule.Edit(ctx, user, recs[2].ID, model.EventTemplate{Activity: "Revision", Type: model.TypeStudy}, ScopeFuture)
	if err != nil || n != 3 {
		t.Fatalf("edit future: n=%d err=%v", n, err)
	}
	before, _ := svc.store.GetEvent(ctx, user, recs[1].ID)
	after, _ := svc.store.GetEvent(ctx, user, recs[4].ID)
	if before.Activity != "Study" || after.Activity != "Revision" {
		t.Errorf("edit scope wrong: before=%q after=%q", before.Activity, after.Activity)
	}

	if n, err := svc.schedule.Delete(ctx, user, recs[3].ID, ScopeSingle); err != nil || n != 1 {
		t.Fatalf("delete single: n=%d err=%v", n, err)
	}
	if n, err := svc.schedule.Delete(ctx, user, recs[1].ID, ScopeFuture); err != nil || n != 3 {
		t.Fatalf("delete future: n=%d err=%v", n, err)
	}
	left, err := svc.store.ListEvents(ctx, user, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Date != "2026-03-01" {
		t.Errorf("expected only 2026-03-01 left, got %+v", left)
	}

	if _, err := svc.schedule.Delete(ctx, user, uuid.New(), ScopeSingle); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteCoachingCreditsWalletOnce(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	recs, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "Swim coaching", Type: model.TypeCoaching, Meta: model.Meta{"client": "Ali"}},
		Start:    "2026-01-10",
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		rec, err := svc.schedule.Complete(ctx, user, recs[0].ID)
		if err != nil {
			t.Fatal(err)
		}
		if !rec.Completed {
			t.Fatal("record not completed")
		}
	}

	st, err := svc.wealth.Stats(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !st.WalletBalance.Equal(dec("8000")) {
		t.Errorf("wallet = %s, want 8000", st.WalletBalance)
	}
	hist, err := svc.wealth.History(ctx, user, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Type != model.EntryIn || hist[0].Description != "Coaching: Ali" {
		t.Errorf("history = %+v", hist)
	}

	sum, err := svc.coaching.Summary(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 1 || !sum.Total.Equal(dec("8000")) || sum.Months[0].Sessions[0].Location != "Port City" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestCompleteRetriesAfterFailedBooking(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flaky *flakyStore
	}{
		{"session insert fails", &flakyStore{Store: store.NewMemory(), sessionFailures: 1}},
		{"wallet credit fails", &flakyStore{Store: store.NewMemory(), walletFailures: 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := newServicesWithStore(t, nil, tc.flaky)
			ctx := context.Background()
			user := uuid.New()

			if _, err := svc.wealth.Stats(ctx, user); err != nil {
				t.Fatal(err)
			}
			recs, err := svc.schedule.Create(ctx, user, CreateRequest{
				Template: model.EventTemplate{Activity: "Swim coaching", Type: model.TypeCoaching},
				Start:    "2026-01-10",
			})
			if err != nil {
				t.Fatal(err)
			}

			if _, err := svc.schedule.Complete(ctx, user, recs[0].ID); !errors.Is(err, errTransient) {
				t.Fatalf("first complete: got %v, want errTransient", err)
			}
			rec, err := svc.store.GetEvent(ctx, user, recs[0].ID)
			if err != nil {
				t.Fatal(err)
			}
			if rec.Completed {
				t.Error("record stays completed after a failed booking")
			}

			if _, err := svc.schedule.Complete(ctx, user, recs[0].ID); err != nil {
				t.Fatalf("retry: %v", err)
			}
			st, err := svc.wealth.Stats(ctx, user)
			if err != nil {
				t.Fatal(err)
			}
			if !st.WalletBalance.Equal(dec("8000")) {
				t.Errorf("wallet = %s, want 8000", st.WalletBalance)
			}
			sum, err := svc.coaching.Summary(ctx, user)
			if err != nil {
				t.Fatal(err)
			}
			if sum.Count != 1 {
				t.Errorf("sessions = %d, want 1", sum.Count)
			}
		})
	}
}

func TestCompleteConcurrentCreditsOnce(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	recs, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "Swim coaching", Type: model.TypeCoaching},
		Start:    "2026-01-10",
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.schedule.Complete(ctx, user, recs[0].ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	st, err := svc.wealth.Stats(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !st.WalletBalance.Equal(dec("8000")) {
		t.Errorf("wallet = %s, want 8000", st.WalletBalance)
	}
}

func TestCompleteRunMarksTrainingLog(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	p, err := svc.fitness.Runs(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 2 || p.Completed != 0 || p.Next == nil || p.Next.Date != "2026-03-02" {
		t.Fatalf("seeded progress = %+v", p)
	}

	recs, err := svc.schedule.Create(ctx, user, CreateRequest{
		Template: model.EventTemplate{Activity: "Morning run", Type: model.TypePhysical},
		Start:    "2026-03-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.schedule.Complete(ctx, user, recs[0].ID); err != nil {
		t.Fatal(err)
	}

	p, err = svc.fitness.Runs(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 2 || p.Completed != 1 || p.Next == nil || p.Next.Date != "2026-03-04" {
		t.Errorf("progress after run = %+v", p)
	}
}

func TestFitnessToggleAndNextRun(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	p, err := svc.fitness.Runs(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	first := p.Runs[0]

	l, err := svc.fitness.Toggle(ctx, user, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Completed || l.ID != first.ID {
		t.Errorf("toggle on = %+v", l)
	}
	if p, err = svc.fitness.Runs(ctx, user); err != nil {
		t.Fatal(err)
	}
	if p.Completed != 1 || p.Next == nil || p.Next.Date != "2026-03-04" {
		t.Errorf("after toggle on = %+v", p)
	}

	if l, err = svc.fitness.Toggle(ctx, user, first.ID); err != nil || l.Completed {
		t.Errorf("toggle off = %+v, %v", l, err)
	}
	if _, err := svc.fitness.Toggle(ctx, uuid.New(), first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("toggle for other user: got %v, want ErrNotFound", err)
	}

	// Once the first run date has passed, an incomplete first run is missed
	// and the next run is the one still ahead.
	svc.fitness.clock = clock{now: func() time.Time { return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC) }, loc: time.UTC}
	if p, err = svc.fitness.Runs(ctx, user); err != nil {
		t.Fatal(err)
	}
	if p.Completed != 0 || p.Next == nil || p.Next.Date != "2026-03-04" {
		t.Errorf("after first run date = %+v", p)
	}

	svc.fitness.clock = clock{now: func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }, loc: time.UTC}
	if p, err = svc.fitness.Runs(ctx, user); err != nil {
		t.Fatal(err)
	}
	if p.Next != nil {
		t.Errorf("next after plan ended = %+v", p.Next)
	}
}

func TestCoachingSummaryGroupsByMonth(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()
	for _, d := range []string{"2026-01-05", "2026-02-10", "2026-01-20"} {
		if err := svc.store.AddCoachingSession(ctx, model.CoachingSession{ID: uuid.New(), UserID: user, Date: d, ClientName: "c", Amount: dec("8000")}); err != nil {
			t.Fatal(err)
		}
	}
	sum, err := svc.coaching.Summary(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 3 || !sum.Total.Equal(dec("24000")) {
		t.Fatalf("summary totals = %+v", sum)
	}
	if len(sum.Months) != 2 || sum.Months[0].Month != "2026-02" || !sum.Months[1].Total.Equal(dec("16000")) {
		t.Errorf("months = %+v", sum.Months)
	}
}

func TestLogExpenseFloor(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.wealth.CreditIncome(ctx, user, dec("25000"), "salary", "2026-01-01"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.wealth.LogExpense(ctx, user, dec("-5"), "refund", false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.wealth.LogExpense(ctx, user, dec("6000"), "shoes", false); !errors.Is(err, ErrBelowFloor) {
		t.Fatalf("expected ErrBelowFloor, got %v", err)
	}
	st, err := svc.wealth.LogExpense(ctx, user, dec("6000"), "shoes", true)
	if err != nil {
		t.Fatal(err)
	}
	if !st.WalletBalance.Equal(dec("19000")) {
		t.Errorf("wallet = %s", st.WalletBalance)
	}
	hist, _ := svc.wealth.History(ctx, user, 1)
	if len(hist) != 1 || hist[0].Type != model.EntryOut || !hist[0].Amount.Equal(dec("-6000")) || hist[0].Description != "shoes" {
		t.Errorf("latest history = %+v", hist)
	}
}

func TestPayoutAndDeposit(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	if _, _, err := svc.wealth.PayoutToFund(ctx, user); !errors.Is(err, ErrNoSurplus) {
		t.Fatalf("expected ErrNoSurplus, got %v", err)
	}
	if _, err := svc.wealth.CreditIncome(ctx, user, dec("30000"), "salary", "2026-01-01"); err != nil {
		t.Fatal(err)
	}
	moved, st, err := svc.wealth.PayoutToFund(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !moved.Equal(dec("10000")) || !st.WalletBalance.Equal(dec("20000")) || !st.UniFund.Equal(dec("10000")) {
		t.Errorf("payout moved=%s stats=%+v", moved, st)
	}

	st, err = svc.wealth.Deposit(ctx, user, dec("5000"), "", "Grandma")
	if err != nil {
		t.Fatal(err)
	}
	if !st.UniFund.Equal(dec("15000")) || !st.LiquidBalance().Equal(dec("35000")) {
		t.Errorf("after deposit = %+v", st)
	}
	hist, _ := svc.wealth.History(ctx, user, 0)
	if hist[0].Type != model.EntryFundIn || hist[0].Description != "Uni Fund Direct: Grandma" || hist[0].Date != "2026-01-15" {
		t.Errorf("deposit entry = %+v", hist[0])
	}
	if _, err := svc.wealth.Deposit(ctx, user, dec("1"), "yesterday", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad date, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	if _, err := svc.wealth.AddRecurring(ctx, user, "Phone", dec("1775"), 0); err != nil {
		t.Fatal(err)
	}
	d, err := svc.wealth.Dashboard(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if d.Stats.ActivePlan != "Plan A" || d.Requirement.Binding == nil {
		t.Fatalf("dashboard = %+v", d)
	}
	if !d.Totals.Total.Equal(dec("231000")) {
		t.Errorf("plan total = %s", d.Totals.Total)
	}
	if !d.RecurringTotal.Equal(dec("1775")) || !d.Capacity.Equal(dec("45000")) {
		t.Errorf("recurring=%s capacity=%s", d.RecurringTotal, d.Capacity)
	}
	if !d.SafeToSpend.Monthly.IsNegative() {
		t.Errorf("plan A should exceed salary, monthly = %s", d.SafeToSpend.Monthly)
	}
	if d.RecommendedPlan != "Plan B" {
		t.Errorf("recommended = %q", d.RecommendedPlan)
	}

	if _, err := svc.wealth.SwitchPlan(ctx, user, "Plan Z"); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
	if _, err := svc.wealth.SwitchPlan(ctx, user, "Plan B"); err != nil {
		t.Fatal(err)
	}
	d, err = svc.wealth.Dashboard(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if d.Stats.ActivePlan != "Plan B" || !d.SafeToSpend.Monthly.IsPositive() {
		t.Errorf("after switch = %+v", d.SafeToSpend)
	}
}

func TestAddPriorityRiskCheck(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	// Plan A leaves no monthly surplus, so any priority is at risk.
	view, err := svc.wealth.AddPriority(ctx, user, "Laptop", dec("300000"), "2026-06-01", false)
	if !errors.Is(err, ErrRiskOverride) || !view.Forecast.AtRisk {
		t.Fatalf("expected ErrRiskOverride, got %v (%+v)", err, view.Forecast)
	}
	if _, err := svc.wealth.AddPriority(ctx, user, "Laptop", dec("300000"), "2026-06-01", true); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.wealth.SwitchPlan(ctx, user, "Plan B"); err != nil {
		t.Fatal(err)
	}
	view, err = svc.wealth.AddPriority(ctx, user, "Watch", dec("20000"), "2026-12-01", false)
	if err != nil {
		t.Fatal(err)
	}
	if view.Forecast.AtRisk || view.Forecast.ProjectedDate == nil {
		t.Errorf("watch forecast = %+v", view.Forecast)
	}

	d, err := svc.wealth.Dashboard(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Priorities) != 2 || d.Priorities[0].Title != "Laptop" {
		t.Errorf("priorities = %+v", d.Priorities)
	}

	if _, err := svc.wealth.AddPriority(ctx, user, "", dec("1"), "2026-12-01", true); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestImportAndExport(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:gym@test",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260119T063000Z",
		"DTEND:20260119T073000Z",
		"RRULE:FREQ=WEEKLY;COUNT=3",
		"SUMMARY:Gym",
		"CATEGORIES:FITNESS",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	res, err := svc.schedule.Import(ctx, user, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 3 {
		t.Fatalf("imported = %d", res.Imported)
	}

	out, err := svc.schedule.Export(ctx, user, "2026-01-01", "2026-12-31")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "BEGIN:VEVENT") != 3 || !strings.Contains(out, "SUMMARY:Gym") {
		t.Errorf("export:\n%s", out)
	}

	if _, err := svc.schedule.Import(ctx, user, []byte("not a calendar")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRequirementOverrides(t *testing.T) {
	svc := newServices(t, nil)
	ctx := context.Background()
	user := uuid.New()

	balance := dec("0")
	req, err := svc.wealth.Requirement(ctx, user, RequirementQuery{Plan: "Plan A", Balance: &balance})
	if err != nil {
		t.Fatal(err)
	}
	if !req.Rate.Equal(dec("385")) || req.Result.Binding == nil || !req.Totals.Total.Equal(dec("231000")) {
		t.Errorf("requirement = %+v", req)
	}

	// Already covered by the balance.
	rich := dec("300000")
	req, err = svc.wealth.Requirement(ctx, user, RequirementQuery{Plan: "Plan A", Balance: &rich})
	if err != nil {
		t.Fatal(err)
	}
	if !req.Result.RequiredMonthlyRate.IsZero() || req.Result.Binding != nil {
		t.Errorf("covered plan still requires %s", req.Result.RequiredMonthlyRate)
	}

	zero := dec("0")
	if _, err := svc.wealth.Requirement(ctx, user, RequirementQuery{Rate: &zero}); !errors.Is(err, waterfall.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := svc.wealth.Requirement(ctx, user, RequirementQuery{Plan: "nope"}); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
}
