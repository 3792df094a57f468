package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"lifeplan/internal/model"
	"lifeplan/internal/waterfall"
)

// HolidaySource describes one public-holiday feed. URL may contain the
// placeholder {year}.
type HolidaySource struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
	// Format is "json" (array of holiday objects) or "ics".
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type DatabaseConfig struct {
	// URL is a PostgreSQL DSN. Empty selects the in-memory store.
	URL string `yaml:"url" json:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// FXConfig controls the GBP->LKR exchange-rate feed.
type FXConfig struct {
	URL          string  `yaml:"url" json:"url"`
	Quote        string  `yaml:"quote" json:"quote"`
	FallbackRate float64 `yaml:"fallback_rate" json:"fallback_rate"`
	TimeoutSec   int     `yaml:"timeout_sec" json:"timeout_sec"`
	TTLMinutes   int     `yaml:"ttl_minutes" json:"ttl_minutes"`
	// Refresh is a cron spec for background refresh.
	Refresh string `yaml:"refresh" json:"refresh"`
}

type HolidayConfig struct {
	Sources []HolidaySource `yaml:"sources" json:"sources"`
	Refresh string          `yaml:"refresh" json:"refresh"`
}

type WalletConfig struct {
	EmergencyFloor   float64 `yaml:"emergency_floor" json:"emergency_floor"`
	MonthlySalary    float64 `yaml:"monthly_salary" json:"monthly_salary"`
	DefaultPlan      string  `yaml:"default_plan" json:"default_plan"`
	CoachingFee      float64 `yaml:"coaching_fee" json:"coaching_fee"`
	CoachingLocation string  `yaml:"coaching_location" json:"coaching_location"`
	// RecommendMargin is the headroom a plan needs to be recommended.
	RecommendMargin float64 `yaml:"recommend_margin" json:"recommend_margin"`
}

type InstallmentConfig struct {
	Amount   string `yaml:"amount" json:"amount"`
	Currency string `yaml:"currency" json:"currency"`
	// Due is YYYY-MM-DD (midnight UTC) or RFC 3339.
	Due string `yaml:"due" json:"due"`
}

type PlanConfig struct {
	Name         string              `yaml:"name" json:"name"`
	Installments []InstallmentConfig `yaml:"installments" json:"installments"`
}

type TrainingRunConfig struct {
	Phase       string `yaml:"phase" json:"phase"`
	Date        string `yaml:"date" json:"date"`
	Description string `yaml:"description" json:"description"`
	DistanceCmd string `yaml:"distance_cmd" json:"distance_cmd"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to decide "today".
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// CacheDir holds HTTP feed caches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// MaxWindowDays bounds explicit date windows: series end dates and
	// from/to ranges.
	MaxWindowDays int `yaml:"max_window_days" json:"max_window_days"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Log      LogConfig      `yaml:"log" json:"log"`
	FX       FXConfig       `yaml:"fx" json:"fx"`
	Holidays HolidayConfig  `yaml:"holidays" json:"holidays"`
	Wallet   WalletConfig   `yaml:"wallet" json:"wallet"`

	// Plans is ordered by preference; the first affordable plan is recommended.
	Plans []PlanConfig `yaml:"plans" json:"plans"`

	TrainingPlan []TrainingRunConfig `yaml:"training_plan" json:"training_plan"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Colombo"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/cache"
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = 1096
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.FX.URL == "" {
		c.FX.URL = "https://open.er-api.com/v6/latest/GBP"
	}
	if c.FX.Quote == "" {
		c.FX.Quote = "LKR"
	}
	if c.FX.FallbackRate <= 0 {
		c.FX.FallbackRate = 385.0
	}
	if c.FX.TimeoutSec <= 0 {
		c.FX.TimeoutSec = 10
	}
	if c.FX.TTLMinutes <= 0 {
		c.FX.TTLMinutes = 60
	}
	if c.FX.Refresh == "" {
		c.FX.Refresh = "0 * * * *"
	}

	if c.Holidays.Sources == nil {
		c.Holidays.Sources = []HolidaySource{{
			ID:     "lk",
			URL:    "https://raw.githubusercontent.com/Dilshan-H/srilanka-holidays/main/json/{year}.json",
			Format: "json",
		}}
	}
	for i := range c.Holidays.Sources {
		if c.Holidays.Sources[i].Format == "" {
			c.Holidays.Sources[i].Format = "json"
		}
	}
	if c.Holidays.Refresh == "" {
		c.Holidays.Refresh = "30 3 * * *"
	}

	if c.Wallet.EmergencyFloor <= 0 {
		c.Wallet.EmergencyFloor = 20000
	}
	if c.Wallet.MonthlySalary <= 0 {
		c.Wallet.MonthlySalary = 46775
	}
	if c.Wallet.CoachingFee <= 0 {
		c.Wallet.CoachingFee = 8000
	}
	if c.Wallet.CoachingLocation == "" {
		c.Wallet.CoachingLocation = "Port City"
	}
	if c.Wallet.RecommendMargin <= 0 {
		c.Wallet.RecommendMargin = 10000
	}

	if c.Plans == nil {
		c.Plans = defaultPlans()
	}
	if c.Wallet.DefaultPlan == "" {
		c.Wallet.DefaultPlan = "Plan 02"
	}
	if c.TrainingPlan == nil {
		c.TrainingPlan = defaultTrainingPlan()
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WaterfallPlans converts the configured plans into calculator input, preserving
// preference order.
func (c *Config) WaterfallPlans() ([]waterfall.Plan, error) {
	out := make([]waterfall.Plan, 0, len(c.Plans))
	for _, pc := range c.Plans {
		p := waterfall.Plan{Name: pc.Name, Obligations: make([]waterfall.Obligation, 0, len(pc.Installments))}
		for i, inst := range pc.Installments {
			ob, err := inst.obligation()
			if err != nil {
				return nil, fmt.Errorf("plan %q installment %d: %w", pc.Name, i, err)
			}
			p.Obligations = append(p.Obligations, ob)
		}
		out = append(out, p)
	}
	return out, nil
}

func (ic InstallmentConfig) obligation() (waterfall.Obligation, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(ic.Amount))
	if err != nil {
		return waterfall.Obligation{}, fmt.Errorf("amount %q: %w", ic.Amount, err)
	}
	cur, err := waterfall.ParseCurrency(ic.Currency)
	if err != nil {
		return waterfall.Obligation{}, err
	}
	due, err := model.ParseDate(ic.Due)
	if err != nil {
		due, err = time.Parse(time.RFC3339, ic.Due)
		if err != nil {
			return waterfall.Obligation{}, fmt.Errorf("due %q: %w", ic.Due, err)
		}
	}
	return waterfall.Obligation{
		Amount: waterfall.Amount{Currency: cur, Value: amount},
		Due:    due,
	}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config with 0600 perms.
//   - Otherwise read YAML and normalize defaults.
//   - In both cases .env and LIFEPLAN_* environment variables are applied last
//     and are never written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays values from a .env file (if present) and the process
// environment. Existing environment variables win over .env entries.
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	if v := os.Getenv("LIFEPLAN_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("LIFEPLAN_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("LIFEPLAN_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LIFEPLAN_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("LIFEPLAN_FX_FALLBACK_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate <= 0 {
			return fmt.Errorf("invalid LIFEPLAN_FX_FALLBACK_RATE %q", v)
		}
		c.FX.FallbackRate = rate
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lifeplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
