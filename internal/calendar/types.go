package calendar

import (
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// wallClockLayout is a local date-time without offset; the zone travels in TimeZone.
const wallClockLayout = "2006-01-02T15:04:05"

// ReminderOverride is one reminder lead time on the calendar event itself.
type ReminderOverride struct {
	Method  string // "email" or "popup"
	Minutes int64
}

// EventSpec is the input for creating an event.
type EventSpec struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Reminders   []ReminderOverride
}

// Event is an event as returned by the calendar.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Status      string
	HTMLLink    string
	Attendees   []string
}

// EventPatch changes selected fields of an existing event. Nil fields are kept.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
}

// Window bounds ListUpcoming.
type Window struct {
	From       time.Time // zero means now
	To         time.Time // zero means unbounded
	MaxResults int64     // zero means 10
}

// Status is the result of CheckStatus.
type Status struct {
	Exists       bool       `json:"exists"`
	Modified     bool       `json:"modified"`
	CurrentStart *time.Time `json:"currentStart,omitempty"`
}

func (g *Gateway) toAPIEvent(spec EventSpec) *calendar.Event {
	ev := &calendar.Event{
		Summary:     spec.Title,
		Description: spec.Description,
		Location:    spec.Location,
		Start:       g.dateTime(spec.Start),
		End:         g.dateTime(spec.End),
	}
	for _, email := range spec.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}
	if len(spec.Reminders) > 0 {
		ev.Reminders = &calendar.EventReminders{
			UseDefault: false,
			// UseDefault is omitempty; false has to be sent explicitly.
			ForceSendFields: []string{"UseDefault"},
		}
		for _, r := range spec.Reminders {
			ev.Reminders.Overrides = append(ev.Reminders.Overrides, &calendar.EventReminder{
				Method:  r.Method,
				Minutes: r.Minutes,
			})
		}
	}
	return ev
}

func (g *Gateway) dateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.In(g.loc).Format(wallClockLayout),
		TimeZone: g.loc.String(),
	}
}

func (g *Gateway) fromAPIEvent(ev *calendar.Event) (Event, error) {
	if ev == nil {
		return Event{}, fmt.Errorf("empty event in response")
	}
	out := Event{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      ev.Status,
		HTMLLink:    ev.HtmlLink,
	}
	var err error
	if out.Start, err = g.parseDateTime(ev.Start); err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	if ev.End != nil {
		if out.End, err = g.parseDateTime(ev.End); err != nil {
			return Event{}, fmt.Errorf("event %s end: %w", ev.Id, err)
		}
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	return out, nil
}

// parseDateTime accepts an RFC3339 DateTime, a wall-clock DateTime with a
// TimeZone, or an all-day Date.
func (g *Gateway) parseDateTime(dt *calendar.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, fmt.Errorf("missing date")
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t, nil
		}
		loc := g.loc
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		return time.ParseInLocation(wallClockLayout, dt.DateTime, loc)
	}
	if dt.Date != "" {
		return time.ParseInLocation("2006-01-02", dt.Date, g.loc)
	}
	return time.Time{}, fmt.Errorf("missing date")
}
