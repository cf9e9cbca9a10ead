package celcat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"celsync/internal/timetable"
)

// ErrCalendarMissing is reported when a week page rendered without the
// calendar element at all.
var ErrCalendarMissing = errors.New("calendar element not found in page")

// ParseWeek extracts raw timetable cells from the rendered agendaWeek grid.
//
// The portal renders a FullCalendar time grid: day columns are headed by
// .fc-day-header elements carrying a data-date attribute, and each event is
// an .fc-time-grid-event anchor whose .fc-time element holds the clock range
// (in the data-full attribute), .fc-title the course text, and
// .fc-description the room and instructor lines.
//
// Cells whose day column cannot be resolved fall back to weekStart (the
// Monday of the requested week). Cells without a parseable time range are
// skipped; an empty grid is a valid empty week, not an error.
func ParseWeek(html string, weekStart time.Time, loc *time.Location, weekOffset int) ([]timetable.RawCell, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse week page: %w", err)
	}

	cal := doc.Find("#calendar")
	if cal.Length() == 0 {
		return nil, ErrCalendarMissing
	}

	days := dayColumns(cal, loc)

	var cells []timetable.RawCell
	cal.Find("a.fc-time-grid-event").Each(func(_ int, ev *goquery.Selection) {
		startClock, endClock, ok := parseTimeRange(eventTimeText(ev))
		if !ok {
			return
		}

		day := columnDate(ev, days, weekStart)
		start := time.Date(day.Year(), day.Month(), day.Day(),
			startClock.Hour(), startClock.Minute(), 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(),
			endClock.Hour(), endClock.Minute(), 0, 0, loc)
		if !start.Before(end) {
			return
		}

		title := strings.TrimSpace(ev.Find(".fc-title").First().Text())
		room, instructor := splitDescription(ev.Find(".fc-description").First())

		cells = append(cells, timetable.RawCell{
			Start:      start,
			End:        end,
			Title:      title,
			Room:       room,
			Instructor: instructor,
			WeekOffset: weekOffset,
		})
	})

	// Chronological order within the week, regardless of DOM column order.
	sortCells(cells)
	return cells, nil
}

// dayColumns maps grid column index to calendar date via the day headers.
func dayColumns(cal *goquery.Selection, loc *time.Location) []time.Time {
	var days []time.Time
	cal.Find(".fc-day-header").Each(func(_ int, h *goquery.Selection) {
		attr, ok := h.Attr("data-date")
		if !ok {
			days = append(days, time.Time{})
			return
		}
		day, err := time.ParseInLocation("2006-01-02", attr, loc)
		if err != nil {
			days = append(days, time.Time{})
			return
		}
		days = append(days, day)
	})
	return days
}

// columnDate resolves the day an event cell belongs to by the position of
// its containing td among the grid columns (axis cells excluded).
func columnDate(ev *goquery.Selection, days []time.Time, fallback time.Time) time.Time {
	td := ev.Closest("td")
	if td.Length() == 0 {
		return fallback
	}
	col := td.PrevAllFiltered("td").Length() - td.PrevAllFiltered("td.fc-axis").Length()
	if col < 0 || col >= len(days) || days[col].IsZero() {
		return fallback
	}
	return days[col]
}

// eventTimeText prefers the data-full attribute, which carries the complete
// range even when the visible label is truncated to the start time.
func eventTimeText(ev *goquery.Selection) string {
	timeEl := ev.Find(".fc-time").First()
	if full, ok := timeEl.Attr("data-full"); ok && strings.TrimSpace(full) != "" {
		return full
	}
	return timeEl.Text()
}

// parseTimeRange parses "9:00 AM - 10:30 AM" or "14:00 - 15:30" into two
// clock values on the zero date.
func parseTimeRange(s string) (start, end time.Time, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, false
	}
	start, ok = parseClock(parts[0])
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok = parseClock(parts[1])
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

func parseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// splitDescription breaks the event description element into its room and
// instructor lines. The portal separates them with <br>; a single line is
// treated as the room.
func splitDescription(desc *goquery.Selection) (room, instructor string) {
	if desc.Length() == 0 {
		return "", ""
	}

	var lines []string
	var current strings.Builder
	desc.Contents().Each(func(_ int, n *goquery.Selection) {
		if goquery.NodeName(n) == "br" {
			if line := strings.TrimSpace(current.String()); line != "" {
				lines = append(lines, line)
			}
			current.Reset()
			return
		}
		current.WriteString(n.Text())
	})
	if line := strings.TrimSpace(current.String()); line != "" {
		lines = append(lines, line)
	}

	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return lines[0], ""
	default:
		return lines[0], strings.Join(lines[1:], ", ")
	}
}

func sortCells(cells []timetable.RawCell) {
	// Insertion sort keeps DOM order for equal start times, which makes
	// normalisation's first-wins dedup deterministic.
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && cells[j].Start.Before(cells[j-1].Start); j-- {
			cells[j], cells[j-1] = cells[j-1], cells[j]
		}
	}
}
