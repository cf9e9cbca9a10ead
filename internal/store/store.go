// Package store persists normalized event sets between the fetch and sync
// modes. The JSON form is the canonical intermediate: it round-trips every
// event field losslessly, identity key and zoned instants included. An ICS
// export is available for importing into other calendar applications.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/emersion/go-ical"

	"celsync/internal/timetable"
)

// SaveJSON writes the event set to path as indented JSON.
func SaveJSON(path string, events []timetable.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write events file: %w", err)
	}
	return nil
}

// LoadJSON reads an event set previously written by SaveJSON.
func LoadJSON(path string) ([]timetable.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	var events []timetable.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return events, nil
}

// WriteICS exports the event set as an iCalendar file. Each VEVENT's UID is
// derived from the identity key, so repeated exports stay stable.
func WriteICS(path string, events []timetable.Event) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//celsync//EN")

	now := time.Now().UTC()
	for _, ev := range events {
		vevent := ical.NewComponent(ical.CompEvent)
		vevent.Props.SetText(ical.PropUID, ev.Key+"@celsync")
		vevent.Props.SetText(ical.PropSummary, ev.Title)
		if ev.Location != "" {
			vevent.Props.SetText(ical.PropLocation, ev.Location)
		}
		if ev.Description != "" {
			vevent.Props.SetText(ical.PropDescription, ev.Description)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
		cal.Children = append(cal.Children, vevent)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ics file: %w", err)
	}
	defer f.Close()

	if err := ical.NewEncoder(f).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode ics: %w", err)
	}
	return nil
}
