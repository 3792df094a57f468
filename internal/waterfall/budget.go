package waterfall

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals summarises a whole plan regardless of due dates.
type Totals struct {
	Total     decimal.Decimal `json:"total"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PlanTotals converts every obligation into the reporting currency and
// subtracts what is already saved.
func PlanTotals(plan Plan, rate, saved decimal.Decimal) Totals {
	total := decimal.Zero
	for _, ob := range plan.Obligations {
		total = total.Add(ob.Amount.InReporting(rate))
	}
	return Totals{
		Total:     total,
		Remaining: decimal.Max(decimal.Zero, total.Sub(saved)),
	}
}

// SafeToSpend is the spending headroom after the plan is funded.
type SafeToSpend struct {
	// Monthly is salary minus plan requirement minus recurring debits. A
	// negative value is the variable income still needed this month.
	Monthly decimal.Decimal `json:"monthly"`
	// Immediate is the wallet balance above the emergency floor.
	Immediate decimal.Decimal `json:"immediate"`
}

func ComputeSafeToSpend(salary, required, recurring, wallet, floor decimal.Decimal) SafeToSpend {
	return SafeToSpend{
		Monthly:   salary.Sub(required).Sub(recurring),
		Immediate: decimal.Max(decimal.Zero, wallet.Sub(floor)),
	}
}

// Recommend picks the first plan, in preference order, whose required rate
// plus margin stays below capacity. When none fits the last plan is returned.
// Plans whose computation fails are skipped.
func Recommend(plans []Plan, capacity, margin, rate, balance decimal.Decimal, asOf time.Time) string {
	if len(plans) == 0 {
		return ""
	}
	for _, p := range plans {
		res, err := Compute(p, rate, balance, asOf)
		if err != nil {
			continue
		}
		if capacity.GreaterThan(res.RequiredMonthlyRate.Add(margin)) {
			return p.Name
		}
	}
	return plans[len(plans)-1].Name
}

// PriorityForecast projects when a priority expense can be afforded from the
// monthly surplus.
type PriorityForecast struct {
	MonthsNeeded  *decimal.Decimal `json:"months_needed"`
	ProjectedDate *time.Time       `json:"projected_date"`
	RequiredRate  decimal.Decimal  `json:"required_rate"`
	AtRisk        bool             `json:"at_risk"`
}

// ForecastPriority projects completion of amount by target given the monthly
// surplus. A non-positive surplus never completes and is always at risk.
func ForecastPriority(amount, surplus decimal.Decimal, target, now time.Time) PriorityForecast {
	f := PriorityForecast{RequiredRate: RequiredRate(amount, target, now)}
	if !surplus.IsPositive() {
		f.AtRisk = true
		return f
	}

	months := amount.Div(surplus)
	f.MonthsNeeded = &months

	available := decimal.NewFromInt(target.Sub(now).Milliseconds()).Div(msPerMonth)
	f.AtRisk = months.GreaterThan(available)
	if projected, ok := projectMonths(now, months); ok {
		f.ProjectedDate = &projected
	}
	return f
}

// maxProjectionDays bounds ProjectedDate; longer projections are left unset.
const maxProjectionDays = 1000 * 366

var msPerDay = decimal.NewFromInt(24 * 60 * 60 * 1000)

// projectMonths adds average months to now in whole days plus a remainder,
// so spans beyond time.Duration's range do not wrap.
func projectMonths(now time.Time, months decimal.Decimal) (time.Time, bool) {
	total := months.Mul(msPerMonth)
	days := total.Div(msPerDay).Floor()
	if days.GreaterThan(decimal.NewFromInt(maxProjectionDays)) {
		return time.Time{}, false
	}
	rest := total.Sub(days.Mul(msPerDay)).IntPart()
	return now.AddDate(0, 0, int(days.IntPart())).Add(time.Duration(rest) * time.Millisecond), true
}

// RequiredRate is the monthly saving needed to reach amount by target.
func RequiredRate(amount decimal.Decimal, target, now time.Time) decimal.Decimal {
	return amount.Div(MonthsBetween(now, target))
}
