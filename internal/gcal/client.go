// Package gcal wraps the Google Calendar API as the external calendar
// capability: list, create, update and delete events in one target
// calendar. Created events carry the timetable identity key in their
// private extended properties so later runs can recognise their own
// events.
package gcal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"celsync/internal/timetable"
)

// keyProperty is the private extended-property name under which the
// identity key is stored on every event this tool creates. Reconciliation
// loses its idempotence guarantee if this ever changes.
const keyProperty = "celcatKey"

// RemoteEvent is an event read back from the target calendar. Key is empty
// for events this tool did not create.
type RemoteEvent struct {
	ID          string
	Key         string
	Title       string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
}

// Calendar is the capability the reconciler needs. Client implements it
// against Google Calendar; tests implement it in memory.
type Calendar interface {
	ListEvents(ctx context.Context, calendarID string) ([]RemoteEvent, error)
	CreateEvent(ctx context.Context, calendarID string, ev timetable.Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev timetable.Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Client is a wrapper around the Google Calendar API service.
type Client struct {
	service  *calendar.Service
	timezone string
}

// NewClient creates a Google Calendar client using the provided
// authenticated HTTP client. Events are written with the given IANA
// timezone.
func NewClient(ctx context.Context, httpClient *http.Client, timezone string) (*Client, error) {
	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Client{service: service, timezone: timezone}, nil
}

// ListEvents retrieves all events from the calendar, expanding recurring
// events to individual instances and following pagination.
func (c *Client) ListEvents(ctx context.Context, calendarID string) ([]RemoteEvent, error) {
	var remote []RemoteEvent

	pageToken := ""
	for {
		call := c.service.Events.List(calendarID).
			SingleEvents(true).
			ShowDeleted(false).
			MaxResults(2500).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		for _, item := range page.Items {
			remote = append(remote, toRemote(item))
		}

		if page.NextPageToken == "" {
			return remote, nil
		}
		pageToken = page.NextPageToken
	}
}

// CreateEvent inserts a new event and returns its Google-assigned id.
// Notifications are suppressed.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev timetable.Event) (string, error) {
	created, err := c.service.Events.Insert(calendarID, c.googleEvent(ev)).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return created.Id, nil
}

// UpdateEvent replaces an existing event's fields.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, ev timetable.Event) error {
	_, err := c.service.Events.Update(calendarID, eventID, c.googleEvent(ev)).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event from the calendar.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.service.Events.Delete(calendarID, eventID).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func (c *Client) googleEvent(ev timetable.Event) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: c.timezone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      true,
			ForceSendFields: []string{"UseDefault"},
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{keyProperty: ev.Key},
		},
	}
}

func toRemote(item *calendar.Event) RemoteEvent {
	ev := RemoteEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Location:    item.Location,
		Description: item.Description,
	}
	if item.ExtendedProperties != nil && item.ExtendedProperties.Private != nil {
		ev.Key = item.ExtendedProperties.Private[keyProperty]
	}
	if item.Start != nil && item.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			ev.Start = t
		}
	}
	if item.End != nil && item.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
			ev.End = t
		}
	}
	return ev
}
