package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"celsync/internal/celcat"
	"celsync/internal/retry"
	"celsync/internal/timetable"
)

// Authenticator establishes the portal session. celcat.Session implements
// it.
type Authenticator interface {
	Login(ctx context.Context) error
}

// Harvester fetches raw timetable cells for a set of week offsets.
// celcat.Harvester implements it.
type Harvester interface {
	FetchWeeks(ctx context.Context, offsets []int) ([]timetable.RawCell, []celcat.WeekFailure, error)
}

// RunReport is the end-to-end result of one run. The run always ends with a
// report: every dropped week and every failed calendar operation is listed,
// and re-running is always safe because reconciliation is idempotent.
type RunReport struct {
	WeeksRequested int
	DroppedWeeks   []celcat.WeekFailure
	Events         int

	// SyncSkipped is set when dropped weeks blocked reconciliation (the
	// default, to avoid deleting events belonging to a week that merely
	// failed to parse).
	SyncSkipped bool
	Sync        *SyncReport
}

// Failed reports whether anything in the run needs attention.
func (r *RunReport) Failed() bool {
	if len(r.DroppedWeeks) > 0 || r.SyncSkipped {
		return true
	}
	return r.Sync != nil && len(r.Sync.Failures) > 0
}

// Runner sequences authenticate, harvest, normalize and reconcile.
type Runner struct {
	auth       Authenticator
	harvester  Harvester
	reconciler *Reconciler
	policy     retry.Policy
	bestEffort bool
	logger     *slog.Logger
}

// NewRunner wires a full pipeline. When bestEffort is true, reconciliation
// proceeds even if some weeks were dropped from the harvest.
func NewRunner(auth Authenticator, harvester Harvester, reconciler *Reconciler, bestEffort bool, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		auth:       auth,
		harvester:  harvester,
		reconciler: reconciler,
		policy:     retry.Default(loginRetryable),
		bestEffort: bestEffort,
		logger:     logger,
	}
}

func loginRetryable(err error) bool {
	var authErr *celcat.AuthError
	return errors.As(err, &authErr) && authErr.Retryable()
}

// Run executes one full sync pass.
//
// Login failures are retried once when transient, then surfaced. A harvest
// that dies with session_expired triggers exactly one re-login and one
// retry of the whole fetch. Terminal errors halt the run before the
// calendar is touched.
func (r *Runner) Run(ctx context.Context, offsets []int) (*RunReport, error) {
	report := &RunReport{WeeksRequested: len(offsets)}

	if err := r.policy.Do(ctx, r.auth.Login); err != nil {
		return report, fmt.Errorf("authenticate: %w", err)
	}

	cells, dropped, err := r.harvester.FetchWeeks(ctx, offsets)
	if err != nil {
		var fetchErr *celcat.FetchError
		if !errors.As(err, &fetchErr) || fetchErr.Reason != celcat.FetchSessionExpired {
			return report, fmt.Errorf("harvest: %w", err)
		}

		r.logger.Warn("portal session expired, re-authenticating")
		if err := r.auth.Login(ctx); err != nil {
			return report, fmt.Errorf("re-authenticate: %w", err)
		}
		if cells, dropped, err = r.harvester.FetchWeeks(ctx, offsets); err != nil {
			return report, fmt.Errorf("harvest after re-authentication: %w", err)
		}
	}
	report.DroppedWeeks = dropped

	events := timetable.Normalize(cells)
	report.Events = len(events)
	r.logger.Info("normalized harvest", "cells", len(cells), "events", len(events), "droppedWeeks", len(dropped))

	if len(dropped) > 0 && !r.bestEffort {
		r.logger.Warn("skipping reconciliation: harvest incomplete", "droppedWeeks", len(dropped))
		report.SyncSkipped = true
		return report, nil
	}

	_, syncReport, err := r.reconciler.Reconcile(ctx, events)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Sync = &syncReport

	return report, nil
}
