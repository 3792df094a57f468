package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind selects how the cursor advances between occurrences.
type Kind string

const (
	None       Kind = "NONE"
	Daily      Kind = "DAILY"
	Weekly     Kind = "WEEKLY"
	Monthly    Kind = "MONTHLY"
	Custom     Kind = "CUSTOM"      // every Interval days
	CustomDays Kind = "CUSTOM_DAYS" // selected weekdays only
)

var (
	ErrUnknownRule    = errors.New("recurrence: unknown rule")
	ErrInvalidWeekday = errors.New("recurrence: weekday out of range 0-6")
)

// Rule is a single repetition rule. Interval is only read for Custom and
// Weekdays only for CustomDays.
type Rule struct {
	Kind     Kind           `json:"kind"`
	Interval int            `json:"interval,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// ParseRule builds a Rule from its wire form. days are weekday indices with
// 0=Sunday. A non-positive interval is accepted here and clamped at expansion.
func ParseRule(kind string, interval int, days []int) (Rule, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(kind)))
	if k == "" {
		k = None
	}
	switch k {
	case None, Daily, Weekly, Monthly:
		return Rule{Kind: k}, nil
	case Custom:
		return Rule{Kind: k, Interval: interval}, nil
	case CustomDays:
		wd := make([]time.Weekday, 0, len(days))
		seen := make(map[int]bool, len(days))
		for _, d := range days {
			if d < 0 || d > 6 {
				return Rule{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			wd = append(wd, time.Weekday(d))
		}
		sort.Slice(wd, func(i, j int) bool { return wd[i] < wd[j] })
		return Rule{Kind: k, Weekdays: wd}, nil
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownRule, kind)
	}
}

// step returns the effective custom interval; n < 1 is treated as 1.
func (r Rule) step() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r Rule) includes(t time.Time) bool {
	if r.Kind != CustomDays {
		return true
	}
	wd := t.Weekday()
	for _, d := range r.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

func (r Rule) advance(t time.Time) time.Time {
	switch r.Kind {
	case Daily, CustomDays:
		return t.AddDate(0, 0, 1)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		// Day-of-month overflow normalises forward (Jan 31 -> Mar 3).
		return t.AddDate(0, 1, 0)
	case Custom:
		return t.AddDate(0, 0, r.step())
	default:
		return t
	}
}
