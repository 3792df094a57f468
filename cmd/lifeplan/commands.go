package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"lifeplan/internal/model"
	"lifeplan/internal/recurrence"
	"lifeplan/internal/waterfall"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- expand ---

var expandCmd = &cobra.Command{
	Use:   "expand <activity>",
	Short: "Expand a recurrence rule and print the records as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		ruleName, _ := f.GetString("rule")
		interval, _ := f.GetInt("interval")
		daysRaw, _ := f.GetString("days")
		startRaw, _ := f.GetString("start")
		untilRaw, _ := f.GetString("until")
		typ, _ := f.GetString("type")
		timeRange, _ := f.GetString("time")

		days, err := parseWeekdays(daysRaw)
		if err != nil {
			return err
		}
		rule, err := recurrence.ParseRule(ruleName, interval, days)
		if err != nil {
			return err
		}

		start := time.Now().In(cfg.Location())
		if startRaw != "" {
			if start, err = model.ParseDate(startRaw); err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
		}
		var until *time.Time
		if untilRaw != "" {
			u, err := model.ParseDate(untilRaw)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			until = &u
		}

		recs := recurrence.Expand(recurrence.Request{
			UserID: uuid.Nil,
			Template: model.EventTemplate{
				Activity:  args[0],
				Type:      strings.ToUpper(typ),
				TimeRange: timeRange,
			},
			Rule:  rule,
			Start: start,
			End:   until,
		})
		return printJSON(recs)
	},
}

func init() {
	f := expandCmd.Flags()
	f.String("rule", "NONE", "NONE, DAILY, WEEKLY, MONTHLY, CUSTOM or CUSTOM_DAYS")
	f.Int("interval", 1, "day interval for CUSTOM")
	f.String("days", "", "comma separated weekdays for CUSTOM_DAYS (0=Sunday)")
	f.String("start", "", "first date YYYY-MM-DD (default today)")
	f.String("until", "", "last date YYYY-MM-DD (default start + 12 months)")
	f.String("type", "GENERAL", "category tag")
	f.String("time", "Anytime", "time range, e.g. 06:00-07:00")
}

func parseWeekdays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// --- waterfall ---

var waterfallCmd = &cobra.Command{
	Use:   "waterfall <plan>",
	Short: "Compute the monthly savings requirement for a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		balanceRaw, _ := f.GetString("balance")
		rateRaw, _ := f.GetString("rate")
		asOfRaw, _ := f.GetString("as-of")

		plan, err := findPlan(args[0])
		if err != nil {
			return err
		}

		balance, err := decimal.NewFromString(balanceRaw)
		if err != nil {
			return fmt.Errorf("invalid --balance: %w", err)
		}

		var rate decimal.Decimal
		if rateRaw != "" {
			if rate, err = decimal.NewFromString(rateRaw); err != nil {
				return fmt.Errorf("invalid --rate: %w", err)
			}
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.FX.TimeoutSec)*time.Second)
			defer cancel()
			q, _ := newRateProvider(cfg, newFetcher(cfg)).Rate(ctx)
			rate = q.Rate
			fmt.Fprintf(os.Stderr, "using %s rate %s\n", q.Source, rate)
		}

		asOf := time.Now()
		if asOfRaw != "" {
			if asOf, err = model.ParseDate(asOfRaw); err != nil {
				return fmt.Errorf("invalid --as-of: %w", err)
			}
		}

		res, err := waterfall.Compute(plan, rate, balance, asOf)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	f := waterfallCmd.Flags()
	f.String("balance", "0", "liquid balance (wallet + fund)")
	f.String("rate", "", "GBP->LKR rate (default: live, else fallback)")
	f.String("as-of", "", "evaluation date YYYY-MM-DD (default now)")
}

func findPlan(name string) (waterfall.Plan, error) {
	plans, err := cfg.WaterfallPlans()
	if err != nil {
		return waterfall.Plan{}, err
	}
	for _, p := range plans {
		if p.Name == name {
			return p, nil
		}
	}
	return waterfall.Plan{}, fmt.Errorf("unknown plan %q", name)
}

// --- plans ---

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List configured plans with totals at the fallback rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		plans, err := cfg.WaterfallPlans()
		if err != nil {
			return err
		}
		rate := decimal.NewFromFloat(cfg.FX.FallbackRate)

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PLAN\tOBLIGATIONS\tFIRST DUE\tLAST DUE\tTOTAL (LKR)")
		for _, p := range plans {
			first, last := "-", "-"
			if up := waterfall.Upcoming(p, time.Time{}); len(up) > 0 {
				first = model.FormatDate(up[0].Due)
				last = model.FormatDate(up[len(up)-1].Due)
			}
			total := waterfall.PlanTotals(p, rate, decimal.Zero).Total
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", p.Name, len(p.Obligations), first, last, total.StringFixed(2))
		}
		return tw.Flush()
	},
}
