// Package waterfall computes the monthly savings rate needed to meet a
// schedule of future lump-sum obligations.
//
// Obligations are swept in due-date order as rising cumulative thresholds;
// the binding obligation is whichever demands the highest sustained monthly
// rate, not necessarily the nearest or the largest.
package waterfall

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the denomination of an obligation.
type Currency string

const (
	// LKR is the reporting currency; amounts pass through unconverted.
	LKR Currency = "LKR"
	// GBP is the foreign currency; amounts are multiplied by the rate.
	GBP Currency = "GBP"
)

var (
	ErrInvalidRate     = errors.New("waterfall: conversion rate must be positive")
	ErrUnknownCurrency = errors.New("waterfall: unknown currency")
)

var (
	// DaysPerMonth is the fixed average month length used for runway.
	DaysPerMonth = decimal.RequireFromString("30.44")
	// MinMonths floors the runway of imminent obligations.
	MinMonths = decimal.RequireFromString("0.5")

	msPerMonth = DaysPerMonth.Mul(decimal.NewFromInt(24 * 60 * 60 * 1000))
)

// Amount is a value in exactly one currency.
type Amount struct {
	Currency Currency        `json:"currency" yaml:"currency"`
	Value    decimal.Decimal `json:"amount" yaml:"amount"`
}

// ParseCurrency accepts "LKR"/"GBP" in any case.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case LKR, GBP:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
}

// InReporting converts the amount into the reporting currency.
func (a Amount) InReporting(rate decimal.Decimal) decimal.Decimal {
	if a.Currency == GBP {
		return a.Value.Mul(rate)
	}
	return a.Value
}

// Obligation is one future lump-sum payment.
type Obligation struct {
	Amount Amount    `json:"amount"`
	Due    time.Time `json:"due"`
}

// Plan is a named, immutable list of obligations.
type Plan struct {
	Name        string       `json:"name"`
	Obligations []Obligation `json:"obligations"`
}

// Result is the outcome of one sweep. CumulativeRequired and MonthsRemaining
// describe the binding obligation and are zero when Binding is nil.
type Result struct {
	RequiredMonthlyRate decimal.Decimal `json:"required_monthly_rate"`
	Binding             *Obligation     `json:"binding_obligation"`
	CumulativeRequired  decimal.Decimal `json:"cumulative_required"`
	MonthsRemaining     decimal.Decimal `json:"months_remaining"`
}

// Compute runs the cumulative-deficit sweep as of asOf. Obligations due at or
// before asOf are ignored. Ties on the maximum rate keep the earliest due
// obligation.
func Compute(plan Plan, rate, liquidBalance decimal.Decimal, asOf time.Time) (Result, error) {
	if !rate.IsPositive() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}

	upcoming := Upcoming(plan, asOf)

	res := Result{RequiredMonthlyRate: decimal.Zero}
	cumulative := decimal.Zero
	for i := range upcoming {
		ob := upcoming[i]
		cumulative = cumulative.Add(ob.Amount.InReporting(rate))

		deficit := decimal.Max(decimal.Zero, cumulative.Sub(liquidBalance))
		months := MonthsBetween(asOf, ob.Due)
		implied := deficit.Div(months)

		if implied.GreaterThan(res.RequiredMonthlyRate) {
			res.RequiredMonthlyRate = implied
			res.Binding = &ob
			res.CumulativeRequired = cumulative
			res.MonthsRemaining = months
		}
	}
	return res, nil
}

// Upcoming returns the plan's obligations due strictly after asOf, sorted by
// due date. The plan itself is not modified.
func Upcoming(plan Plan, asOf time.Time) []Obligation {
	out := make([]Obligation, 0, len(plan.Obligations))
	for _, ob := range plan.Obligations {
		if ob.Due.After(asOf) {
			out = append(out, ob)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// MonthsBetween is the average-month runway from asOf to due, floored at
// MinMonths.
func MonthsBetween(asOf, due time.Time) decimal.Decimal {
	ms := decimal.NewFromInt(due.Sub(asOf).Milliseconds())
	return decimal.Max(MinMonths, ms.Div(msPerMonth))
}
