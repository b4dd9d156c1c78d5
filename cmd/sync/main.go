// Command sync is the VitalSync pipeline CLI.
//
// Usage:
//
//	vitalsync-sync day --user u1 --provider withings
//	vitalsync-sync day --user u1 --provider fitbit --date 2026-08-20 --debug
//	vitalsync-sync backfill --user u1 --provider withings --from 2026-08-01 --to 2026-08-20
//	vitalsync-sync alerts run
//	vitalsync-sync scheduler run
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vitalsync/vitalsync/internal/alert"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/normalize"
	"github.com/vitalsync/vitalsync/internal/notify"
	"github.com/vitalsync/vitalsync/internal/provider"
	"github.com/vitalsync/vitalsync/internal/provider/fitbit"
	"github.com/vitalsync/vitalsync/internal/provider/withings"
	"github.com/vitalsync/vitalsync/internal/scheduler"
	"github.com/vitalsync/vitalsync/internal/store"
	"github.com/vitalsync/vitalsync/internal/window"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env from repo root if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "vitalsync-sync",
		Short: "VitalSync pipeline CLI",
	}

	root.AddCommand(dayCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(alertsCmd())
	root.AddCommand(schedulerCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// day command
// --------------------------------------------------------------------------

func dayCmd() *cobra.Command {
	var (
		user  string
		prov  string
		date  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Sync one (user, provider, local date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, p *pipeline) error {
				cred, err := p.store.ResolveAccount(ctx, user, prov)
				if err != nil {
					return err
				}
				if cred == nil {
					return fmt.Errorf("user %s has not linked %s", user, prov)
				}

				day := p.windows.Today(cred.TimezoneHint)
				if date != "" {
					if day, err = metric.ParseDate(date); err != nil {
						return fmt.Errorf("parse date: %w", err)
					}
				}

				res, err := p.normalizer.SyncDay(ctx, *cred, day, normalize.Options{
					Fallback: true,
					Debug:    debug,
				})
				if err != nil {
					return err
				}
				if res.NoData {
					logger.Info("No data found in lookback window",
						"user_id", user, "provider", prov,
						"requested", day.String(), "days_searched", res.DaysSearched)
					return nil
				}
				logger.Info("Sync complete",
					"user_id", user, "provider", prov,
					"date", res.Record.Date.String(), "rows", res.RowsPersisted,
					"values", res.Record.Values)
				if debug && res.Record.RawRollUp != nil {
					fmt.Println(string(res.Record.RawRollUp))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&prov, "provider", "", "Provider name (required)")
	cmd.Flags().StringVar(&date, "date", "", "Local date YYYY-MM-DD (default: today in account tz)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Print raw provider payloads")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

// --------------------------------------------------------------------------
// backfill command
// --------------------------------------------------------------------------

func backfillCmd() *cobra.Command {
	var (
		user string
		prov string
		from string
		to   string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Sync a date range day by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, p *pipeline) error {
				cred, err := p.store.ResolveAccount(ctx, user, prov)
				if err != nil {
					return err
				}
				if cred == nil {
					return fmt.Errorf("user %s has not linked %s", user, prov)
				}

				start, err := metric.ParseDate(from)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				end, err := metric.ParseDate(to)
				if err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
				if end.Before(start) {
					return fmt.Errorf("--to is before --from")
				}

				synced, empty := 0, 0
				for day := start; !end.Before(day); day = day.AddDays(1) {
					// No fallback during backfill: each day stands alone.
					res, err := p.normalizer.SyncDay(ctx, *cred, day, normalize.Options{})
					if err != nil {
						logger.Error("Backfill day failed",
							"date", day.String(), "error", err)
						continue
					}
					if res.NoData {
						empty++
						continue
					}
					synced++
				}
				logger.Info("Backfill complete",
					"user_id", user, "provider", prov,
					"from", start.String(), "to", end.String(),
					"synced", synced, "empty", empty)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&prov, "provider", "", "Provider name (required)")
	cmd.Flags().StringVar(&from, "from", "", "Start date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "End date YYYY-MM-DD inclusive (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// --------------------------------------------------------------------------
// alerts command
// --------------------------------------------------------------------------

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Threshold alert operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Evaluate thresholds for all eligible users once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, p *pipeline) error {
				users, err := p.store.UsersWithThresholds(ctx)
				if err != nil {
					return err
				}
				fired := 0
				for _, user := range users {
					decision, err := p.engine.EvaluateUser(ctx, user)
					if err != nil {
						logger.Error("Evaluation failed", "user_id", user.ID, "error", err)
						continue
					}
					if decision.Fired() {
						fired++
					}
					logger.Info("Evaluated",
						"user_id", user.ID,
						"high", string(decision.High.Outcome),
						"low", string(decision.Low.Outcome))
				}
				logger.Info("Alert run complete", "users", len(users), "fired", fired)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// scheduler command
// --------------------------------------------------------------------------

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Scheduler operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the sync-and-alert cycle in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, p *pipeline) error {
				sched := scheduler.New(p.store, p.normalizer, p.engine, p.windows,
					p.cfg.PollInterval, p.cfg.SchedulerWorkers, logger)
				sched.Run(ctx)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// pipeline bundles the wired components every subcommand needs.
type pipeline struct {
	cfg        *config.Config
	store      *store.Store
	windows    *window.Resolver
	normalizer *normalize.Normalizer
	engine     *alert.Engine
}

// run handles config loading, DB connection, wiring, and context
// cancellation.
func run(fn func(ctx context.Context, p *pipeline) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.EnsureSchema(ctx); err != nil {
		return err
	}

	st := store.New(pool.Pool)
	windows := window.New(cfg.DefaultTimezone, logger)
	sources := map[string]provider.ReadingSource{
		config.ProviderFitbit:   fitbit.New(cfg.FitbitBaseURL, cfg.ProviderReqPerMin, cfg.ProviderTimeout, logger),
		config.ProviderWithings: withings.New(cfg.WithingsBaseURL, cfg.ProviderReqPerMin, cfg.ProviderTimeout, logger),
	}
	normalizer := normalize.New(sources, st, windows, cfg.FallbackDays, cfg.IntradayResolution, logger)
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, logger)
	engine := alert.New(st, mailer, alert.Config{
		Delta:         cfg.AlertDelta,
		ReNotifyAfter: cfg.AlertInterval,
		Freshness:     cfg.AlertFreshness,
		LookbackDays:  cfg.HRFallbackDays,
	}, logger)

	start := time.Now()
	err = fn(ctx, &pipeline{
		cfg:        cfg,
		store:      st,
		windows:    windows,
		normalizer: normalizer,
		engine:     engine,
	})
	if err != nil {
		return err
	}
	logger.Info("Done", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
