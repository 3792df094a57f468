// Package app holds the use-case services behind the HTTP API and CLI:
// schedule, wealth, coaching and fitness.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/config"
	"lifeplan/internal/fx"
	"lifeplan/internal/model"
	"lifeplan/internal/waterfall"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidScope = errors.New("scope must be \"single\" or \"future\"")
	ErrUnknownPlan  = errors.New("unknown plan")
	// ErrBelowFloor rejects an unconfirmed expense that would leave the
	// wallet below the emergency floor.
	ErrBelowFloor = errors.New("expense would breach the emergency floor")
	// ErrNoSurplus is returned by a payout when nothing sits above the floor.
	ErrNoSurplus = errors.New("no funds above the emergency floor")
	// ErrRiskOverride rejects an unforced priority expense that the current
	// surplus cannot fund by its target date.
	ErrRiskOverride = errors.New("priority expense cannot be funded by its target date")
)

// RateSource supplies the GBP->LKR conversion rate.
type RateSource interface {
	Rate(ctx context.Context) (fx.Quote, error)
}

// HolidaySource supplies public holidays for a month view.
type HolidaySource interface {
	ForMonth(ctx context.Context, date time.Time) ([]model.Holiday, error)
}

// Scope selects which records of a series an edit or delete touches.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeFuture Scope = "future"
)

// ParseScope accepts "single", "future" and empty (single).
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSingle:
		return ScopeSingle, nil
	case ScopeFuture:
		return ScopeFuture, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Settings are the wallet and plan parameters shared by the services.
type Settings struct {
	EmergencyFloor   decimal.Decimal
	MonthlySalary    decimal.Decimal
	CoachingFee      decimal.Decimal
	CoachingLocation string
	RecommendMargin  decimal.Decimal
	DefaultPlan      string
	// Plans in preference order.
	Plans []waterfall.Plan
	// TrainingPlan seeds a user's fitness log; IDs and user are filled in.
	TrainingPlan []model.FitnessLog
	Location     *time.Location
	// MaxWindowDays bounds series end dates and listing ranges.
	MaxWindowDays int
}

// SettingsFromConfig converts the loaded configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	plans, err := cfg.WaterfallPlans()
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		EmergencyFloor:   decimal.NewFromFloat(cfg.Wallet.EmergencyFloor),
		MonthlySalary:    decimal.NewFromFloat(cfg.Wallet.MonthlySalary),
		CoachingFee:      decimal.NewFromFloat(cfg.Wallet.CoachingFee),
		CoachingLocation: cfg.Wallet.CoachingLocation,
		RecommendMargin:  decimal.NewFromFloat(cfg.Wallet.RecommendMargin),
		DefaultPlan:      cfg.Wallet.DefaultPlan,
		Plans:            plans,
		Location:         cfg.Location(),
		MaxWindowDays:    cfg.MaxWindowDays,
	}
	for _, r := range cfg.TrainingPlan {
		if _, err := model.ParseDate(r.Date); err != nil {
			return Settings{}, fmt.Errorf("training plan date %q: %w", r.Date, err)
		}
		s.TrainingPlan = append(s.TrainingPlan, model.FitnessLog{
			Phase:       r.Phase,
			Date:        r.Date,
			Description: r.Description,
			DistanceCmd: r.DistanceCmd,
		})
	}
	if _, ok := s.plan(s.DefaultPlan); !ok {
		return Settings{}, fmt.Errorf("default plan %q: %w", s.DefaultPlan, ErrUnknownPlan)
	}
	return s, nil
}

func (s Settings) plan(name string) (waterfall.Plan, bool) {
	for _, p := range s.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return waterfall.Plan{}, false
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

const defaultMaxWindowDays = 1096

// checkWindow rejects a from..to span longer than the configured maximum.
func (s Settings) checkWindow(from, to time.Time) error {
	limit := s.MaxWindowDays
	if limit <= 0 {
		limit = defaultMaxWindowDays
	}
	if to.Sub(from) > time.Duration(limit)*24*time.Hour {
		return fmt.Errorf("%w: window longer than %d days", ErrInvalidInput, limit)
	}
	return nil
}

func (s Settings) statsDefaults(userID uuid.UUID) model.UserStats {
	return model.UserStats{
		UserID:       userID,
		WalletSalary: s.MonthlySalary,
		ActivePlan:   s.DefaultPlan,
	}
}

// clock returns "now" and today's date in the configured location.
type clock struct {
	now func() time.Time
	loc *time.Location
}

func (c clock) Now() time.Time { return c.now().In(c.loc) }

func (c clock) Today() string { return model.FormatDate(c.Now()) }
