package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"celsync/internal/celcat"
	"celsync/internal/config"
	"celsync/internal/gcal"
	"celsync/internal/retry"
	"celsync/internal/store"
	syncer "celsync/internal/sync"
	"celsync/internal/timetable"
)

func main() {
	app := &cli.App{
		Name:  "celsync",
		Usage: "Mirror a CELCAT timetable into Google Calendar.",
		Commands: []*cli.Command{
			fetchCommand(),
			syncCommand(),
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("celsync failed", "error", err)
		os.Exit(1)
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch events from the timetable portal and write them to a file.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "weeks", Value: 4, Usage: "Number of weeks to fetch, starting from the current week."},
			&cli.StringFlag{Name: "output", Usage: "Output JSON path (default: auto-generated)."},
			&cli.StringFlag{Name: "ics", Usage: "Also export the events as an ICS file at this path."},
			&cli.BoolFlag{Name: "headless", Value: true, Usage: "Run the browser without a visible window."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			events, dropped, err := harvest(ctx, cfg, logger, c.Int("weeks"), c.Bool("headless"))
			if err != nil {
				return err
			}
			logDropped(logger, dropped)

			output := c.String("output")
			if output == "" {
				output = fmt.Sprintf("events_%s.json", time.Now().Format("20060102_150405"))
			}
			if err := store.SaveJSON(output, events); err != nil {
				return err
			}
			logger.Info("saved events", "path", output, "count", len(events))

			if icsPath := c.String("ics"); icsPath != "" {
				if err := store.WriteICS(icsPath, events); err != nil {
					return err
				}
				logger.Info("exported ics", "path", icsPath)
			}

			if len(dropped) > 0 {
				return cli.Exit(fmt.Sprintf("fetch finished with %d dropped week(s)", len(dropped)), 1)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile a previously fetched event file against Google Calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true, Usage: "Path to the JSON file written by 'fetch'."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			events, err := store.LoadJSON(c.String("file"))
			if err != nil {
				return err
			}
			logger.Info("loaded events", "path", c.String("file"), "count", len(events))

			rec, err := newReconciler(ctx, cfg, logger)
			if err != nil {
				return err
			}

			_, report, err := rec.Reconcile(ctx, events)
			if err != nil {
				return err
			}
			logSyncReport(logger, &report)

			if len(report.Failures) > 0 {
				return cli.Exit(fmt.Sprintf("sync finished with %d failed operation(s)", len(report.Failures)), 1)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch the timetable and reconcile it against Google Calendar in one pass.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "weeks", Value: 4, Usage: "Number of weeks to fetch, starting from the current week."},
			&cli.BoolFlag{Name: "best-effort", Usage: "Reconcile even when some weeks were dropped from the harvest."},
			&cli.StringFlag{Name: "watch", Usage: "Cron schedule to re-run on (e.g. '*/30 * * * *'). Runs until interrupted."},
			&cli.BoolFlag{Name: "headless", Value: true, Usage: "Run the browser without a visible window."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			rec, err := newReconciler(ctx, cfg, logger)
			if err != nil {
				return err
			}

			runOnce := func(ctx context.Context) (*syncer.RunReport, error) {
				return fullRun(ctx, cfg, logger, rec, c.Int("weeks"), c.Bool("best-effort"), c.Bool("headless"))
			}

			if spec := c.String("watch"); spec != "" {
				return watch(ctx, logger, spec, runOnce)
			}

			report, err := runOnce(ctx)
			if err != nil {
				return err
			}
			logRunReport(logger, report)
			if report.Failed() {
				return cli.Exit("run finished with failures", 1)
			}
			return nil
		},
	}
}

// setup loads configuration and installs the logger. Config problems are
// terminal before anything touches the network.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newSession(cfg *config.Config, logger *slog.Logger, headless bool) *celcat.Session {
	return celcat.NewSession(celcat.SessionOptions{
		BaseURL:   cfg.BaseURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		StudentID: cfg.StudentID,
		DebugDir:  cfg.DebugDir,
		Headless:  headless,
		Logger:    logger,
	})
}

func newReconciler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*syncer.Reconciler, error) {
	oauthConfig, err := gcal.NewOAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	httpClient, err := gcal.AuthenticatedClient(ctx, oauthConfig, gcal.NewFileTokenStore(cfg.TokenPath))
	if err != nil {
		return nil, err
	}

	client, err := gcal.NewClient(ctx, httpClient, cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return syncer.NewReconciler(client, cfg.CalendarID, 4, logger), nil
}

// harvest runs the fetch-only pipeline: open a session, log in (with one
// retry on transient failures), fetch the requested weeks and normalize.
func harvest(ctx context.Context, cfg *config.Config, logger *slog.Logger, weeks int, headless bool) ([]timetable.Event, []celcat.WeekFailure, error) {
	session := newSession(cfg, logger, headless)
	if err := session.Start(ctx); err != nil {
		return nil, nil, err
	}
	defer session.Close()

	policy := retry.Default(func(err error) bool {
		var authErr *celcat.AuthError
		return errors.As(err, &authErr) && authErr.Retryable()
	})
	if err := policy.Do(ctx, session.Login); err != nil {
		return nil, nil, err
	}

	harvester := celcat.NewHarvester(session, cfg.Location, logger)
	cells, dropped, err := harvester.FetchWeeks(ctx, weekOffsets(weeks))
	if err != nil {
		return nil, nil, err
	}

	return timetable.Normalize(cells), dropped, nil
}

// fullRun executes one complete authenticate/harvest/reconcile pass with
// the session lifecycle owned here.
func fullRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, rec *syncer.Reconciler, weeks int, bestEffort, headless bool) (*syncer.RunReport, error) {
	session := newSession(cfg, logger, headless)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Close()

	harvester := celcat.NewHarvester(session, cfg.Location, logger)
	runner := syncer.NewRunner(session, harvester, rec, bestEffort, logger)
	return runner.Run(ctx, weekOffsets(weeks))
}

// watch re-runs the pipeline on a cron schedule until the context is
// cancelled. Individual run failures are logged, never fatal.
func watch(ctx context.Context, logger *slog.Logger, spec string, runOnce func(context.Context) (*syncer.RunReport, error)) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		report, err := runOnce(ctx)
		if err != nil {
			logger.Error("scheduled run failed", "error", err)
			return
		}
		logRunReport(logger, report)
	})
	if err != nil {
		return fmt.Errorf("invalid --watch schedule %q: %w", spec, err)
	}

	logger.Info("watching", "schedule", spec)
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("watch stopped")
	return nil
}

func weekOffsets(weeks int) []int {
	if weeks < 1 {
		weeks = 1
	}
	offsets := make([]int, weeks)
	for i := range offsets {
		offsets[i] = i
	}
	return offsets
}

func logDropped(logger *slog.Logger, dropped []celcat.WeekFailure) {
	for _, wf := range dropped {
		logger.Warn("week dropped from harvest", "offset", wf.Offset, "error", wf.Err)
	}
}

func logSyncReport(logger *slog.Logger, report *syncer.SyncReport) {
	logger.Info("sync report",
		"created", report.Created, "updated", report.Updated, "deleted", report.Deleted,
		"failed", len(report.Failures))
	for _, f := range report.Failures {
		logger.Error("operation failed", "op", f.Op, "key", f.Key, "error", f.Err)
	}
}

func logRunReport(logger *slog.Logger, report *syncer.RunReport) {
	logger.Info("run report",
		"weeksRequested", report.WeeksRequested,
		"weeksDropped", len(report.DroppedWeeks),
		"events", report.Events,
		"syncSkipped", report.SyncSkipped)
	logDropped(logger, report.DroppedWeeks)
	if report.Sync != nil {
		logSyncReport(logger, report.Sync)
	}
}
