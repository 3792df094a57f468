package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/fx"
	appLog "lifeplan/internal/log"
	"lifeplan/internal/model"
	"lifeplan/internal/store"
	"lifeplan/internal/waterfall"
)

// variableIncomeWindow is how far back coaching income counts towards
// capacity when recommending a plan.
const variableIncomeWindow = 30

// WealthService owns the wallet, the earmarked fund and plan requirements.
type WealthService struct {
	store    store.Store
	rates    RateSource
	settings Settings
	clock    clock

	// serializes read-modify-write of a user's stats row
	mu sync.Mutex
}

func NewWealthService(s store.Store, rates RateSource, settings Settings) *WealthService {
	return &WealthService{
		store:    s,
		rates:    rates,
		settings: settings,
		clock:    clock{now: time.Now, loc: settings.location()},
	}
}

// PriorityView is an open priority expense with its forecast.
type PriorityView struct {
	model.PriorityExpense
	Forecast waterfall.PriorityForecast `json:"forecast"`
}

// Dashboard is the full financial picture for one user.
type Dashboard struct {
	Stats                model.UserStats       `json:"stats"`
	LiquidBalance        decimal.Decimal       `json:"liquid_balance"`
	Quote                fx.Quote              `json:"fx"`
	Requirement          waterfall.Result      `json:"requirement"`
	Totals               waterfall.Totals      `json:"totals"`
	SafeToSpend          waterfall.SafeToSpend `json:"safe_to_spend"`
	EmergencyFloor       decimal.Decimal       `json:"emergency_floor"`
	RecurringTotal       decimal.Decimal       `json:"recurring_total"`
	RecentVariableIncome decimal.Decimal       `json:"recent_variable_income"`
	Capacity             decimal.Decimal       `json:"capacity"`
	RecommendedPlan      string                `json:"recommended_plan"`
	Priorities           []PriorityView        `json:"priorities"`
}

// Stats returns the user's stats row, creating it with configured defaults.
func (w *WealthService) Stats(ctx context.Context, userID uuid.UUID) (model.UserStats, error) {
	return w.store.GetOrCreateStats(ctx, w.settings.statsDefaults(userID))
}

// Plans returns the configured plans in preference order.
func (w *WealthService) Plans() []waterfall.Plan {
	return w.settings.Plans
}

// Plan looks up a configured plan by name.
func (w *WealthService) Plan(name string) (waterfall.Plan, error) {
	p, ok := w.settings.plan(name)
	if !ok {
		return waterfall.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	return p, nil
}

// Rate returns the current conversion quote.
func (w *WealthService) Rate(ctx context.Context) (fx.Quote, error) {
	return w.rates.Rate(ctx)
}

func (w *WealthService) Dashboard(ctx context.Context, userID uuid.UUID) (Dashboard, error) {
	st, err := w.Stats(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	quote, err := w.rates.Rate(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	plan, ok := w.settings.plan(st.ActivePlan)
	if !ok {
		appLog.Warn("active plan not configured, using default", "user", userID, "plan", st.ActivePlan)
		plan, _ = w.settings.plan(w.settings.DefaultPlan)
	}

	now := w.clock.Now()
	liquid := st.LiquidBalance()
	req, err := waterfall.Compute(plan, quote.Rate, liquid, now)
	if err != nil {
		return Dashboard{}, err
	}

	recurring, err := w.recurringTotal(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	since := model.FormatDate(now.AddDate(0, 0, -variableIncomeWindow))
	sessions, err := w.store.ListCoachingSessions(ctx, userID, since)
	if err != nil {
		return Dashboard{}, err
	}
	variable := decimal.Zero
	for _, s := range sessions {
		variable = variable.Add(s.Amount)
	}

	safe := waterfall.ComputeSafeToSpend(st.WalletSalary, req.RequiredMonthlyRate, recurring, st.WalletBalance, w.settings.EmergencyFloor)
	capacity := st.WalletSalary.Add(variable).Sub(recurring)

	open, err := w.store.ListOpenPriorityExpenses(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	priorities := make([]PriorityView, 0, len(open))
	for _, p := range open {
		priorities = append(priorities, w.forecast(p, safe.Monthly, now))
	}

	return Dashboard{
		Stats:                st,
		LiquidBalance:        liquid,
		Quote:                quote,
		Requirement:          req,
		Totals:               waterfall.PlanTotals(plan, quote.Rate, st.UniFund),
		SafeToSpend:          safe,
		EmergencyFloor:       w.settings.EmergencyFloor,
		RecurringTotal:       recurring,
		RecentVariableIncome: variable,
		Capacity:             capacity,
		RecommendedPlan:      waterfall.Recommend(w.settings.Plans, capacity, w.settings.RecommendMargin, quote.Rate, liquid, now),
		Priorities:           priorities,
	}, nil
}

// RequirementQuery overrides the inputs of one waterfall computation. Zero
// values fall back to the user's active plan, liquid balance, the live rate
// and now.
type RequirementQuery struct {
	Plan    string
	Balance *decimal.Decimal
	Rate    *decimal.Decimal
	AsOf    time.Time
}

type Requirement struct {
	Plan    string           `json:"plan"`
	Rate    decimal.Decimal  `json:"rate"`
	Balance decimal.Decimal  `json:"balance"`
	AsOf    time.Time        `json:"as_of"`
	Result  waterfall.Result `json:"result"`
	Totals  waterfall.Totals `json:"totals"`
}

// Requirement computes the monthly savings requirement for one plan.
func (w *WealthService) Requirement(ctx context.Context, userID uuid.UUID, q RequirementQuery) (Requirement, error) {
	var st model.UserStats
	if q.Plan == "" || q.Balance == nil {
		var err error
		if st, err = w.Stats(ctx, userID); err != nil {
			return Requirement{}, err
		}
	}

	name := q.Plan
	if name == "" {
		name = st.ActivePlan
	}
	plan, err := w.Plan(name)
	if err != nil {
		return Requirement{}, err
	}

	req := Requirement{Plan: plan.Name, AsOf: q.AsOf, Balance: st.LiquidBalance()}
	if q.Balance != nil {
		req.Balance = *q.Balance
	}
	if req.AsOf.IsZero() {
		req.AsOf = w.clock.Now()
	}
	if q.Rate != nil {
		req.Rate = *q.Rate
	} else {
		quote, err := w.rates.Rate(ctx)
		if err != nil {
			return Requirement{}, err
		}
		req.Rate = quote.Rate
	}

	if req.Result, err = waterfall.Compute(plan, req.Rate, req.Balance, req.AsOf); err != nil {
		return Requirement{}, err
	}
	req.Totals = waterfall.PlanTotals(plan, req.Rate, st.UniFund)
	return req, nil
}

func (w *WealthService) forecast(p model.PriorityExpense, surplus decimal.Decimal, now time.Time) PriorityView {
	target, err := model.ParseDate(p.TargetDate)
	if err != nil {
		target = now
	}
	return PriorityView{
		PriorityExpense: p,
		Forecast:        waterfall.ForecastPriority(p.Amount, surplus, target, now),
	}
}

func (w *WealthService) recurringTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	rec, err := w.store.ListRecurringExpenses(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rec {
		total = total.Add(r.Amount)
	}
	return total, nil
}

// SwitchPlan changes the user's active plan.
func (w *WealthService) SwitchPlan(ctx context.Context, userID uuid.UUID, plan string) (model.UserStats, error) {
	if _, err := w.Plan(plan); err != nil {
		return model.UserStats{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.Stats(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	st.ActivePlan = plan
	if err := w.store.ApplyWalletChange(ctx, st); err != nil {
		return model.UserStats{}, err
	}
	appLog.Info("active plan switched", "user", userID, "plan", plan)
	return st, nil
}

// LogExpense debits the wallet. Unless confirm is set, an expense that leaves
// the wallet below the emergency floor is rejected with ErrBelowFloor.
func (w *WealthService) LogExpense(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reason string, confirm bool) (model.UserStats, error) {
	if !amount.IsPositive() {
		return model.UserStats{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.Stats(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	final := st.WalletBalance.Sub(amount)
	if final.LessThan(w.settings.EmergencyFloor) && !confirm {
		return st, fmt.Errorf("%w: balance would be %s", ErrBelowFloor, final.StringFixed(2))
	}

	st.WalletBalance = final
	entry := w.entry(userID, amount.Neg(), strings.TrimSpace(reason), model.EntryOut, w.clock.Today())
	if err := w.store.ApplyWalletChange(ctx, st, entry); err != nil {
		return model.UserStats{}, err
	}
	return st, nil
}

// PayoutToFund moves everything above the emergency floor into the fund.
func (w *WealthService) PayoutToFund(ctx context.Context, userID uuid.UUID) (decimal.Decimal, model.UserStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.Stats(ctx, userID)
	if err != nil {
		return decimal.Zero, model.UserStats{}, err
	}
	amount := st.WalletBalance.Sub(w.settings.EmergencyFloor)
	if !amount.IsPositive() {
		return decimal.Zero, st, ErrNoSurplus
	}

	st.WalletBalance = w.settings.EmergencyFloor
	st.UniFund = st.UniFund.Add(amount)
	entry := w.entry(userID, amount.Neg(), "Uni Fund Contribution", model.EntryOut, w.clock.Today())
	if err := w.store.ApplyWalletChange(ctx, st, entry); err != nil {
		return decimal.Zero, model.UserStats{}, err
	}
	appLog.Info("wallet surplus moved to fund", "user", userID, "amount", amount.String())
	return amount, st, nil
}

// Deposit records an external deposit straight into the fund. An empty date
// means today.
func (w *WealthService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, date, source string) (model.UserStats, error) {
	if !amount.IsPositive() {
		return model.UserStats{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if date == "" {
		date = w.clock.Today()
	} else if _, err := model.ParseDate(date); err != nil {
		return model.UserStats{}, fmt.Errorf("%w: date %q", ErrInvalidInput, date)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.Stats(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	st.UniFund = st.UniFund.Add(amount)
	entry := w.entry(userID, amount, "Uni Fund Direct: "+strings.TrimSpace(source), model.EntryFundIn, date)
	if err := w.store.ApplyWalletChange(ctx, st, entry); err != nil {
		return model.UserStats{}, err
	}
	return st, nil
}

// CreditIncome adds income to the wallet and records it as IN.
func (w *WealthService) CreditIncome(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, date string) (model.UserStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.Stats(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	st.WalletBalance = st.WalletBalance.Add(amount)
	if err := w.store.ApplyWalletChange(ctx, st, w.entry(userID, amount, description, model.EntryIn, date)); err != nil {
		return model.UserStats{}, err
	}
	return st, nil
}

// AddPriority stores a priority expense. Unless force is set, an expense the
// current monthly surplus cannot fund by its target date is rejected with
// ErrRiskOverride; the returned view still carries the forecast.
func (w *WealthService) AddPriority(ctx context.Context, userID uuid.UUID, title string, amount decimal.Decimal, targetDate string, force bool) (PriorityView, error) {
	title = strings.TrimSpace(title)
	if title == "" || !amount.IsPositive() {
		return PriorityView{}, fmt.Errorf("%w: title and positive amount required", ErrInvalidInput)
	}
	if _, err := model.ParseDate(targetDate); err != nil {
		return PriorityView{}, fmt.Errorf("%w: target date %q", ErrInvalidInput, targetDate)
	}

	dash, err := w.Dashboard(ctx, userID)
	if err != nil {
		return PriorityView{}, err
	}

	p := model.PriorityExpense{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      title,
		Amount:     amount,
		TargetDate: targetDate,
	}
	view := w.forecast(p, dash.SafeToSpend.Monthly, w.clock.Now())
	if view.Forecast.AtRisk && !force {
		return view, fmt.Errorf("%w: requires %s/month", ErrRiskOverride, view.Forecast.RequiredRate.StringFixed(0))
	}

	if err := w.store.AddPriorityExpense(ctx, p); err != nil {
		return PriorityView{}, err
	}
	return view, nil
}

// AddRecurring stores a standing monthly debit.
func (w *WealthService) AddRecurring(ctx context.Context, userID uuid.UUID, title string, amount decimal.Decimal, periodMonths int) (model.RecurringExpense, error) {
	title = strings.TrimSpace(title)
	if title == "" || !amount.IsPositive() {
		return model.RecurringExpense{}, fmt.Errorf("%w: title and positive amount required", ErrInvalidInput)
	}
	if periodMonths < 1 {
		periodMonths = 1
	}
	e := model.RecurringExpense{ID: uuid.New(), UserID: userID, Title: title, Amount: amount, PeriodMonths: periodMonths}
	if err := w.store.AddRecurringExpense(ctx, e); err != nil {
		return model.RecurringExpense{}, err
	}
	return e, nil
}

// History returns wallet movements, newest first.
func (w *WealthService) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.WalletEntry, error) {
	return w.store.ListWalletEntries(ctx, userID, limit)
}

func (w *WealthService) entry(userID uuid.UUID, amount decimal.Decimal, description, kind, date string) model.WalletEntry {
	return model.WalletEntry{
		ID:          uuid.New(),
		UserID:      userID,
		Date:        date,
		Amount:      amount,
		Description: description,
		Type:        kind,
	}
}
