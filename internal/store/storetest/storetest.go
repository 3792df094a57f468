// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/model"
	"lifeplan/internal/store"
)

// Run exercises s against the Store contract. newStore must return an empty
// store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("SeriesScope", func(t *testing.T) { testSeriesScope(t, newStore(t)) })
	t.Run("Wallet", func(t *testing.T) { testWallet(t, newStore(t)) })
	t.Run("Expenses", func(t *testing.T) { testExpenses(t, newStore(t)) })
	t.Run("Fitness", func(t *testing.T) { testFitness(t, newStore(t)) })
}

func record(user uuid.UUID, series uuid.NullUUID, date, activity string) model.EventRecord {
	return model.EventRecord{
		ID:       uuid.New(),
		UserID:   user,
		SeriesID: series,
		Date:     date,
		EventTemplate: model.EventTemplate{
			Activity:  activity,
			Type:      model.TypeGeneral,
			TimeRange: model.Anytime,
			Meta:      model.Meta{"note": activity},
		},
	}
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()

	recs := []model.EventRecord{
		record(user, uuid.NullUUID{}, "2026-03-02", "b"),
		record(user, uuid.NullUUID{}, "2026-03-01", "a"),
		record(user, uuid.NullUUID{}, "2026-04-01", "out of range"),
		record(other, uuid.NullUUID{}, "2026-03-01", "other user"),
	}
	if err := s.InsertEvents(ctx, recs); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListEvents(ctx, user, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Activity != "a" || got[1].Activity != "b" {
		t.Fatalf("ListEvents: %+v", got)
	}
	if got[0].Meta["note"] != "a" {
		t.Errorf("meta not persisted: %+v", got[0].Meta)
	}

	if _, err := s.GetEvent(ctx, other, recs[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetEvent for other user: got %v, want ErrNotFound", err)
	}

	tpl := recs[0].EventTemplate
	tpl.Activity = "renamed"
	if err := s.UpdateEvent(ctx, user, recs[0].ID, tpl); err != nil {
		t.Fatal(err)
	}
	changed, err := s.SetEventCompleted(ctx, user, recs[0].ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first completion: got unchanged")
	}
	if changed, err = s.SetEventCompleted(ctx, user, recs[0].ID, true); err != nil || changed {
		t.Errorf("second completion: got changed=%v err=%v, want false, nil", changed, err)
	}
	if _, err := s.SetEventCompleted(ctx, other, recs[0].ID, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("complete for other user: got %v, want ErrNotFound", err)
	}
	r, err := s.GetEvent(ctx, user, recs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Activity != "renamed" || !r.Completed || r.Date != "2026-03-02" {
		t.Errorf("after update: %+v", r)
	}

	if err := s.DeleteEvent(ctx, user, recs[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteEvent(ctx, user, recs[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
	if err := s.UpdateEvent(ctx, user, uuid.New(), tpl); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update missing: got %v", err)
	}
}

func testSeriesScope(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	series := uuid.NullUUID{UUID: uuid.New(), Valid: true}

	var recs []model.EventRecord
	for _, d := range []string{"2026-03-01", "2026-03-08", "2026-03-15", "2026-03-22"} {
		recs = append(recs, record(user, series, d, "weekly"))
	}
	if err := s.InsertEvents(ctx, recs); err != nil {
		t.Fatal(err)
	}

	tpl := recs[0].EventTemplate
	tpl.Activity = "weekly v2"
	n, err := s.UpdateSeriesFrom(ctx, user, series.UUID, "2026-03-08", tpl)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("updated: got %d, want 3", n)
	}

	n, err = s.DeleteSeriesFrom(ctx, user, series.UUID, "2026-03-15")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted: got %d, want 2", n)
	}

	left, err := s.ListEvents(ctx, user, "2026-01-01", "2026-12-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 || left[0].Activity != "weekly" || left[1].Activity != "weekly v2" {
		t.Errorf("remaining: %+v", left)
	}
}

func testWallet(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	defaults := model.UserStats{
		UserID:       user,
		WalletSalary: decimal.NewFromInt(46775),
		ActivePlan:   "Plan 02",
	}
	st, err := s.GetOrCreateStats(ctx, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if st.ActivePlan != "Plan 02" || !st.WalletBalance.IsZero() {
		t.Fatalf("stats: %+v", st)
	}

	st.WalletBalance = decimal.NewFromInt(8000)
	entry := model.WalletEntry{
		ID: uuid.New(), UserID: user, Date: "2026-03-02",
		Amount: decimal.NewFromInt(8000), Description: "Coaching", Type: model.EntryIn,
	}
	if err := s.ApplyWalletChange(ctx, st, entry); err != nil {
		t.Fatal(err)
	}

	again, err := s.GetOrCreateStats(ctx, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if !again.WalletBalance.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("balance: got %s", again.WalletBalance)
	}

	second := entry
	second.ID = uuid.New()
	second.Description = "Later"
	if err := s.ApplyWalletChange(ctx, again, second); err != nil {
		t.Fatal(err)
	}
	hist, err := s.ListWalletEntries(ctx, user, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Description != "Later" {
		t.Errorf("history: %+v", hist)
	}

	if err := s.ApplyWalletChange(ctx, model.UserStats{UserID: uuid.New()}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user: got %v", err)
	}

	for _, d := range []string{"2026-01-10", "2026-03-02"} {
		cs := model.CoachingSession{ID: uuid.New(), UserID: user, Date: d, ClientName: "Ali", Amount: decimal.NewFromInt(8000), Location: "Port City", Paid: true}
		if err := s.AddCoachingSession(ctx, cs); err != nil {
			t.Fatal(err)
		}
	}
	dup := model.CoachingSession{ID: uuid.New(), UserID: user, Date: "2026-01-20", Amount: decimal.NewFromInt(8000)}
	if err := s.AddCoachingSession(ctx, dup); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCoachingSession(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate session: got %v, want ErrConflict", err)
	}
	sessions, err := s.ListCoachingSessions(ctx, user, "2026-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Date != "2026-03-02" {
		t.Errorf("sessions: %+v", sessions)
	}
}

func testExpenses(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	for _, p := range []model.PriorityExpense{
		{ID: uuid.New(), UserID: user, Title: "Laptop", Amount: decimal.NewFromInt(250000), TargetDate: "2026-08-01"},
		{ID: uuid.New(), UserID: user, Title: "Shoes", Amount: decimal.NewFromInt(30000), TargetDate: "2026-04-01"},
		{ID: uuid.New(), UserID: user, Title: "Done", Amount: decimal.NewFromInt(1), TargetDate: "2026-01-01", IsFulfilled: true},
	} {
		if err := s.AddPriorityExpense(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	open, err := s.ListOpenPriorityExpenses(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 || open[0].Title != "Shoes" {
		t.Errorf("open priorities: %+v", open)
	}

	if err := s.AddRecurringExpense(ctx, model.RecurringExpense{ID: uuid.New(), UserID: user, Title: "Gym", Amount: decimal.NewFromInt(5000), PeriodMonths: 1}); err != nil {
		t.Fatal(err)
	}
	rec, err := s.ListRecurringExpenses(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec) != 1 || !rec[0].Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("recurring: %+v", rec)
	}
}

func testFitness(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	logs := []model.FitnessLog{
		{ID: uuid.New(), UserID: user, Phase: "Base", Date: "2026-02-19", Description: "Run/Walk", DistanceCmd: "3-4km"},
		{ID: uuid.New(), UserID: user, Phase: "Base", Date: "2026-02-17", Description: "Easy Run", DistanceCmd: "3-4km"},
	}
	if err := s.InsertFitnessLogs(ctx, logs); err != nil {
		t.Fatal(err)
	}

	n, err := s.CompleteFitnessOn(ctx, user, "2026-02-17")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("completed: got %d", n)
	}

	got, err := s.ListFitnessLogs(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Date != "2026-02-17" || !got[0].Completed || got[1].Completed {
		t.Errorf("logs: %+v", got)
	}

	toggled, err := s.ToggleFitnessLog(ctx, user, got[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if toggled.ID != got[1].ID || !toggled.Completed {
		t.Errorf("toggle on: %+v", toggled)
	}
	if toggled, err = s.ToggleFitnessLog(ctx, user, got[1].ID); err != nil || toggled.Completed {
		t.Errorf("toggle off: got %+v, %v", toggled, err)
	}
	if _, err := s.ToggleFitnessLog(ctx, uuid.New(), got[1].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("toggle for other user: got %v, want ErrNotFound", err)
	}
}
