package celcat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"celsync/internal/timetable"
)

// WeekPager supplies rendered week pages. Session implements it; tests
// substitute canned HTML.
type WeekPager interface {
	FetchWeekPage(ctx context.Context, weekStart time.Time, weekOffset int) (string, error)
}

// WeekFailure records one week whose contribution was dropped from a
// harvest. Dropped weeks are never silent: they travel up into the run
// report.
type WeekFailure struct {
	Offset int
	Err    error
}

// Harvester fetches and parses timetable weeks over an authenticated
// session. Weeks are fetched strictly sequentially: the portal session is a
// single shared resource and concurrent requests risk invalidating it.
type Harvester struct {
	pager  WeekPager
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewHarvester creates a harvester scraping in the given portal timezone.
func NewHarvester(pager WeekPager, loc *time.Location, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{pager: pager, loc: loc, logger: logger, now: time.Now}
}

// FetchWeeks fetches the requested week offsets (0 = current week) in order.
//
// A week that fails with calendar_element_not_found or parse_error is
// dropped and reported in the returned failures, so one malformed week does
// not poison the run. session_expired and context cancellation are terminal
// for the whole call; the orchestrator may re-authenticate and retry once.
//
// Returned cells preserve the requested offset order and, within an offset,
// chronological start order. A week with zero events is a valid empty
// result.
func (h *Harvester) FetchWeeks(ctx context.Context, offsets []int) ([]timetable.RawCell, []WeekFailure, error) {
	var cells []timetable.RawCell
	var dropped []WeekFailure

	for _, offset := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		weekStart := h.weekStart(offset)
		html, err := h.pager.FetchWeekPage(ctx, weekStart, offset)
		if err != nil {
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) && fetchErr.Reason != FetchSessionExpired {
				h.logger.Warn("dropping week", "offset", offset, "reason", fetchErr.Reason, "error", err)
				dropped = append(dropped, WeekFailure{Offset: offset, Err: err})
				continue
			}
			return nil, nil, err
		}

		weekCells, err := ParseWeek(html, weekStart, h.loc, offset)
		if err != nil {
			reason := FetchParseError
			if errors.Is(err, ErrCalendarMissing) {
				reason = FetchCalendarNotFound
			}
			ferr := &FetchError{Reason: reason, WeekOffset: offset, Err: err}
			h.logger.Warn("dropping week", "offset", offset, "reason", reason, "error", err)
			dropped = append(dropped, WeekFailure{Offset: offset, Err: ferr})
			continue
		}

		h.logger.Info("harvested week", "offset", offset, "weekStart", weekStart.Format("2006-01-02"), "cells", len(weekCells))
		cells = append(cells, weekCells...)
	}

	return cells, dropped, nil
}

// weekStart returns the Monday of the week at the given offset from the
// current week, at midnight portal time.
func (h *Harvester) weekStart(offset int) time.Time {
	now := h.now().In(h.loc)

	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	monday = monday.AddDate(0, 0, -(weekday - 1))

	return monday.AddDate(0, 0, 7*offset)
}
