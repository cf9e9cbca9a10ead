package timetable

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

func cellAt(title string, start time.Time, d time.Duration) RawCell {
	return RawCell{
		Start: start,
		End:   start.Add(d),
		Title: title,
	}
}

func TestIdentityKey_StableAcrossRoomChange(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	end := start.Add(time.Hour)

	a := RawCell{Start: start, End: end, Title: "CS101 Lecture", Room: "B204"}
	b := RawCell{Start: start, End: end, Title: "CS101 Lecture", Room: "Moved to A101"}

	eventsA := Normalize([]RawCell{a})
	eventsB := Normalize([]RawCell{b})

	if len(eventsA) != 1 || len(eventsB) != 1 {
		t.Fatalf("expected one event from each cell, got %d and %d", len(eventsA), len(eventsB))
	}
	if eventsA[0].Key != eventsB[0].Key {
		t.Errorf("identity key changed with room text: %q != %q", eventsA[0].Key, eventsB[0].Key)
	}
}

func TestIdentityKey_DependsOnTimeSlot(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)

	original := IdentityKey("CS101 Lecture", start, start.Add(time.Hour))
	shifted := IdentityKey("CS101 Lecture", start.Add(time.Hour), start.Add(2*time.Hour))

	if original == shifted {
		t.Error("a time-shifted occurrence must get a new identity key")
	}
}

func TestIdentityKey_ZoneIndependent(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	end := start.Add(time.Hour)

	local := IdentityKey("CS101", start, end)
	utc := IdentityKey("CS101", start.UTC(), end.UTC())

	if local != utc {
		t.Errorf("key depends on zone representation: %q != %q", local, utc)
	}
}

func TestCourseCode(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"CS101 Lecture", "CS101"},
		{"MATH2040 Tutorial Group B", "MATH2040"},
		{"Introduction to Philosophy", "Introduction to Philosophy"},
		{"  CS101 Lab  ", "CS101"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CourseCode(tt.title); got != tt.want {
			t.Errorf("CourseCode(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestNormalize_DeduplicatesFirstWins(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	first := RawCell{Start: start, End: start.Add(time.Hour), Title: "CS101 Lecture", Room: "B204"}
	second := RawCell{Start: start, End: start.Add(time.Hour), Title: "CS101 Lecture", Room: "A101"}

	events := Normalize([]RawCell{first, second})

	if len(events) != 1 {
		t.Fatalf("expected 1 event after dedup, got %d", len(events))
	}
	if events[0].Location != "B204" {
		t.Errorf("dedup kept the wrong occurrence: location = %q, want B204", events[0].Location)
	}
}

func TestNormalize_SkipsInvalidRanges(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	cells := []RawCell{
		{Start: start, End: start, Title: "zero length"},
		{Start: start.Add(time.Hour), End: start, Title: "inverted"},
		{Title: "no times at all"},
		cellAt("CS101 Lecture", start, time.Hour),
	}

	events := Normalize(cells)

	if len(events) != 1 {
		t.Fatalf("expected only the valid cell to survive, got %d events", len(events))
	}
	if events[0].Title != "CS101 Lecture" {
		t.Errorf("wrong survivor: %q", events[0].Title)
	}
}

func TestNormalize_Description(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, london)
	cell := RawCell{
		Start:      start,
		End:        start.Add(time.Hour),
		Title:      "CS101 Lecture",
		Room:       "B204",
		Instructor: "Dr Smith",
	}

	events := Normalize([]RawCell{cell})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	desc := events[0].Description
	if !strings.Contains(desc, "Instructor: Dr Smith") {
		t.Errorf("description missing instructor: %q", desc)
	}
	if !strings.Contains(desc, "Course: CS101 Lecture") {
		t.Errorf("description missing course: %q", desc)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if events := Normalize(nil); len(events) != 0 {
		t.Errorf("expected no events from empty input, got %d", len(events))
	}
}
