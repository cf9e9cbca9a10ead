package timetable

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RawCell is one scraped timetable cell, as extracted from the rendered
// week grid. It is transient: produced by the harvester and consumed
// immediately by Normalize.
type RawCell struct {
	Start      time.Time
	End        time.Time
	Title      string
	Room       string
	Instructor string
	WeekOffset int
}

// Event is the canonical, provider-independent representation of one
// timetable occurrence. The remote calendar is the only durable store;
// events are rebuilt from scratch on every run and compared by Key.
type Event struct {
	// Key is deterministic across re-fetches: two scrapes of the same
	// real-world occurrence always produce the same key, even if the
	// room or instructor text changed in between.
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// courseCodeRe matches a leading course code such as "CS101" or "MATH2040".
var courseCodeRe = regexp.MustCompile(`^[A-Z]{2,}[0-9]+`)

// CourseCode extracts the course code from a scraped title, or returns the
// raw title when no code is present.
func CourseCode(title string) string {
	trimmed := strings.TrimSpace(title)
	if code := courseCodeRe.FindString(trimmed); code != "" {
		return code
	}
	return trimmed
}

// IdentityKey derives the stable identity of an occurrence from its course
// code and start/end instants. Room and instructor changes do not affect it.
// Instants are normalised to UTC so the key is independent of the zone the
// portal happened to render in.
func IdentityKey(title string, start, end time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s",
		CourseCode(title),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

// Normalize maps raw scraped cells into canonical events. It is pure and
// best-effort: cells that cannot form a valid event (zero or inverted time
// range) are skipped, and unparseable display fields fall back to their raw
// text. Exact key collisions within one run keep the first occurrence, so
// the harvester's ordering determines the winner.
func Normalize(cells []RawCell) []Event {
	seen := make(map[string]struct{}, len(cells))
	events := make([]Event, 0, len(cells))

	for _, cell := range cells {
		if cell.Start.IsZero() || cell.End.IsZero() || !cell.Start.Before(cell.End) {
			continue
		}

		key := IdentityKey(cell.Title, cell.Start, cell.End)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		events = append(events, Event{
			Key:         key,
			Title:       strings.TrimSpace(cell.Title),
			Location:    strings.TrimSpace(cell.Room),
			Description: description(cell),
			Start:       cell.Start,
			End:         cell.End,
		})
	}

	return events
}

func description(cell RawCell) string {
	var lines []string
	if inst := strings.TrimSpace(cell.Instructor); inst != "" {
		lines = append(lines, "Instructor: "+inst)
	}
	lines = append(lines, "Course: "+strings.TrimSpace(cell.Title))
	return strings.Join(lines, "\n")
}
