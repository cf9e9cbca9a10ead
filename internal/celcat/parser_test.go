package celcat

import (
	"strings"
	"testing"
	"time"
)

var london = mustLoadLocation("Europe/London")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// weekPage builds a minimal agendaWeek grid in the portal's FullCalendar
// markup: a header row with data-date day columns and a time grid with one
// td per day.
func weekPage(eventsByDay map[int][]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="calendar"><table><thead><tr><th class="fc-axis"></th>`)
	dates := []string{"2025-05-26", "2025-05-27", "2025-05-28", "2025-05-29", "2025-05-30", "2025-05-31", "2025-06-01"}
	for _, d := range dates {
		b.WriteString(`<th class="fc-day-header" data-date="` + d + `">` + d + `</th>`)
	}
	b.WriteString(`</tr></thead></table><div class="fc-time-grid"><table><tbody><tr><td class="fc-axis"></td>`)
	for day := 0; day < 7; day++ {
		b.WriteString(`<td>`)
		for _, ev := range eventsByDay[day] {
			b.WriteString(ev)
		}
		b.WriteString(`</td>`)
	}
	b.WriteString(`</tr></tbody></table></div></div></body></html>`)
	return b.String()
}

func eventCell(timeRange, title, desc string) string {
	var b strings.Builder
	b.WriteString(`<a class="fc-time-grid-event"><div class="fc-content">`)
	b.WriteString(`<div class="fc-time" data-full="` + timeRange + `"><span>x</span></div>`)
	b.WriteString(`<div class="fc-title">` + title + `</div>`)
	if desc != "" {
		b.WriteString(`<div class="fc-description">` + desc + `</div>`)
	}
	b.WriteString(`</div></a>`)
	return b.String()
}

var weekStart = time.Date(2025, 5, 26, 0, 0, 0, 0, london)

func TestParseWeek_ExtractsCells(t *testing.T) {
	html := weekPage(map[int][]string{
		0: {eventCell("9:00 AM - 10:00 AM", "CS101 Lecture", "Room B204<br/>Dr Smith")},
		2: {eventCell("2:00 PM - 4:00 PM", "MATH2040 Tutorial", "Room A1")},
	})

	cells, err := ParseWeek(html, weekStart, london, 0)
	if err != nil {
		t.Fatalf("ParseWeek: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}

	first := cells[0]
	if first.Title != "CS101 Lecture" {
		t.Errorf("title = %q", first.Title)
	}
	wantStart := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	if !first.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", first.Start, wantStart)
	}
	if !first.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("end = %v", first.End)
	}
	if first.Room != "Room B204" {
		t.Errorf("room = %q", first.Room)
	}
	if first.Instructor != "Dr Smith" {
		t.Errorf("instructor = %q", first.Instructor)
	}

	second := cells[1]
	wantWednesday := time.Date(2025, 5, 28, 14, 0, 0, 0, london)
	if !second.Start.Equal(wantWednesday) {
		t.Errorf("day column resolution: start = %v, want %v", second.Start, wantWednesday)
	}
	if second.Instructor != "" {
		t.Errorf("single description line should be the room only, instructor = %q", second.Instructor)
	}
}

func TestParseWeek_TwentyFourHourClock(t *testing.T) {
	html := weekPage(map[int][]string{
		1: {eventCell("14:00 - 15:30", "PHYS150 Lab", "")},
	})

	cells, err := ParseWeek(html, weekStart, london, 0)
	if err != nil {
		t.Fatalf("ParseWeek: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(cells))
	}
	want := time.Date(2025, 5, 27, 14, 0, 0, 0, london)
	if !cells[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", cells[0].Start, want)
	}
}

func TestParseWeek_ChronologicalOrder(t *testing.T) {
	html := weekPage(map[int][]string{
		4: {eventCell("9:00 AM - 10:00 AM", "Friday Early", "")},
		0: {eventCell("11:00 AM - 12:00 PM", "Monday Late", "")},
	})

	cells, err := ParseWeek(html, weekStart, london, 0)
	if err != nil {
		t.Fatalf("ParseWeek: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].Title != "Monday Late" || cells[1].Title != "Friday Early" {
		t.Errorf("cells not in chronological order: %q then %q", cells[0].Title, cells[1].Title)
	}
}

func TestParseWeek_SkipsUnparseableTimes(t *testing.T) {
	html := weekPage(map[int][]string{
		0: {
			eventCell("whenever", "Broken", ""),
			eventCell("9:00 AM - 10:00 AM", "CS101 Lecture", ""),
		},
	})

	cells, err := ParseWeek(html, weekStart, london, 0)
	if err != nil {
		t.Fatalf("ParseWeek: %v", err)
	}
	if len(cells) != 1 || cells[0].Title != "CS101 Lecture" {
		t.Fatalf("expected only the parseable cell, got %+v", cells)
	}
}

func TestParseWeek_EmptyWeekIsValid(t *testing.T) {
	html := weekPage(nil)

	cells, err := ParseWeek(html, weekStart, london, 0)
	if err != nil {
		t.Fatalf("an empty week must not be an error, got %v", err)
	}
	if len(cells) != 0 {
		t.Errorf("expected no cells, got %d", len(cells))
	}
}

func TestParseWeek_MissingCalendarElement(t *testing.T) {
	_, err := ParseWeek("<html><body><p>maintenance</p></body></html>", weekStart, london, 0)
	if err != ErrCalendarMissing {
		t.Errorf("expected ErrCalendarMissing, got %v", err)
	}
}
