package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"lifeplan/internal/app"
	"lifeplan/internal/config"
	"lifeplan/internal/feed"
	"lifeplan/internal/fx"
	"lifeplan/internal/holiday"
	appLog "lifeplan/internal/log"
	"lifeplan/internal/scheduler"
	"lifeplan/internal/store"
	"lifeplan/internal/store/postgres"
	"lifeplan/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background refresh jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("lifeplan starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"plans", len(cfg.Plans),
		"holiday_sources", len(cfg.Holidays.Sources),
		"postgres", cfg.Database.URL != "",
	)

	settings, err := app.SettingsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := newFetcher(cfg)
	rates := newRateProvider(cfg, fetcher)
	holidays := holiday.NewService(fetcher, holidaySources(cfg))

	wealth := app.NewWealthService(st, rates, settings)
	srv := web.NewServer(cfg, web.Services{
		Schedule: app.NewScheduleService(st, holidays, wealth, settings),
		Wealth:   wealth,
		Coaching: app.NewCoachingService(st),
		Fitness:  app.NewFitnessService(st, settings),
	})

	sched := scheduler.New(cfg.Location(),
		scheduler.Job{
			Name:    "fx.refresh",
			Spec:    cfg.FX.Refresh,
			Timeout: time.Duration(cfg.FX.TimeoutSec) * time.Second * 2,
			Run: func(ctx context.Context) error {
				q, err := rates.Refresh(ctx)
				if err == nil {
					appLog.Info("fx rate refreshed", "rate", q.Rate.String())
				}
				return err
			},
		},
		scheduler.Job{
			Name:    "holidays.refresh",
			Spec:    cfg.Holidays.Refresh,
			Timeout: 2 * time.Minute,
			Run: func(ctx context.Context) error {
				return holidays.Refresh(ctx, time.Now().In(cfg.Location()))
			},
		},
	)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// Warm caches without delaying startup.
	go sched.RunNow()

	err = srv.ListenAndServe(ctx)
	appLog.Info("lifeplan exiting")
	return err
}

// openStore returns the PostgreSQL store when a DSN is configured, otherwise
// the in-memory store.
func openStore(ctx context.Context, c *config.Config) (store.Store, func(), error) {
	if c.Database.URL == "" {
		appLog.Warn("no database configured, data will not survive a restart")
		return store.NewMemory(), func() {}, nil
	}

	db, err := postgres.NewPostgresConnection(c.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return postgres.NewStore(db), func() { closeDB(db) }, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		appLog.Error("failed to close database", err)
	}
}

func newFetcher(c *config.Config) *feed.Fetcher {
	cacheDir := c.CacheDir
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o700); err != nil {
			appLog.Error("cache dir unavailable, feed cache disabled", err, "dir", cacheDir)
			cacheDir = ""
		} else {
			cacheDir = filepath.Clean(cacheDir)
		}
	}
	return feed.NewFetcher(cacheDir, time.Duration(c.FX.TimeoutSec)*time.Second)
}

func newRateProvider(c *config.Config, f *feed.Fetcher) *fx.Provider {
	return fx.NewProvider(f, c.FX.URL, c.FX.Quote,
		decimal.NewFromFloat(c.FX.FallbackRate),
		time.Duration(c.FX.TTLMinutes)*time.Minute)
}

func holidaySources(c *config.Config) []holiday.Source {
	out := make([]holiday.Source, 0, len(c.Holidays.Sources))
	for _, s := range c.Holidays.Sources {
		if s.URL == "" {
			continue
		}
		out = append(out, holiday.Source{ID: s.ID, URL: s.URL, Format: s.Format})
	}
	return out
}
