package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlowType names one of the three milestone flows tracked per record.
type FlowType string

const (
	FlowMeeting    FlowType = "meeting"
	FlowTicketSale FlowType = "ticketSale"
	FlowEventDay   FlowType = "eventDay"
)

// Flows lists every flow in scan order.
var Flows = []FlowType{FlowMeeting, FlowTicketSale, FlowEventDay}

// ParseFlow accepts the canonical flow names plus a few operator-friendly aliases.
func ParseFlow(s string) (FlowType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meeting", "mou":
		return FlowMeeting, nil
	case "ticketsale", "ticket-sale", "ticket_sale", "ticketsaleopen":
		return FlowTicketSale, nil
	case "eventday", "event-day", "event_day":
		return FlowEventDay, nil
	}
	return "", fmt.Errorf("unknown flow %q (want meeting, ticketSale or eventDay)", s)
}

func (f FlowType) String() string { return string(f) }

// FlowState is the per-flow synchronization state of a record.
type FlowState struct {
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	ExternalEventID *string    `json:"externalEventId,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	// Venue is only meaningful for the event day flow.
	Venue *string `json:"venue,omitempty"`
}

// Synced reports whether an external event is currently linked.
func (s FlowState) Synced() bool {
	return s.ExternalEventID != nil && *s.ExternalEventID != ""
}

// Pending reports whether the flow has a scheduled time but no external event.
func (s FlowState) Pending() bool {
	return s.ScheduledAt != nil && !s.Synced()
}

// EventID returns the linked external event id or "".
func (s FlowState) EventID() string {
	if s.ExternalEventID == nil {
		return ""
	}
	return *s.ExternalEventID
}

// ReminderKey identifies one reminder threshold of one flow, e.g. "ticketSale:3".
type ReminderKey string

// NewReminderKey builds the key for a flow and a lead time in days.
func NewReminderKey(flow FlowType, days int) ReminderKey {
	return ReminderKey(string(flow) + ":" + strconv.Itoa(days))
}

// Parts splits the key back into flow and day count.
func (k ReminderKey) Parts() (FlowType, int, error) {
	flow, days, ok := strings.Cut(string(k), ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed reminder key %q", k)
	}
	n, err := strconv.Atoi(days)
	if err != nil {
		return "", 0, fmt.Errorf("malformed reminder key %q: %w", k, err)
	}
	return FlowType(flow), n, nil
}

// ClientRecord is one counterparty with its profile and milestone state.
type ClientRecord struct {
	// ID is the chat address of the counterparty and doubles as the reminder recipient.
	ID string `json:"id"`

	Name               *string `json:"name,omitempty"`
	Organization       *string `json:"organization,omitempty"`
	EventName          *string `json:"eventName,omitempty"`
	PIC                *string `json:"pic,omitempty"`
	ContactFirst       *string `json:"contactFirst,omitempty"`
	ContactSecond      *string `json:"contactSecond,omitempty"`
	EventInstagram     *string `json:"eventInstagram,omitempty"`
	OrganizerInstagram *string `json:"organizerInstagram,omitempty"`
	PricingScheme      *string `json:"pricingScheme,omitempty"`
	Capacity           *int64  `json:"capacity,omitempty"`
	TicketPrice        *int64  `json:"ticketPrice,omitempty"`

	Active bool `json:"active"`

	Meeting    FlowState `json:"meeting"`
	TicketSale FlowState `json:"ticketSale"`
	EventDay   FlowState `json:"eventDay"`

	RemindersSent map[ReminderKey]time.Time `json:"remindersSent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Flow returns the state of the given flow.
func (r *ClientRecord) Flow(flow FlowType) FlowState {
	if st := r.flowPtr(flow); st != nil {
		return *st
	}
	return FlowState{}
}

func (r *ClientRecord) flowPtr(flow FlowType) *FlowState {
	switch flow {
	case FlowMeeting:
		return &r.Meeting
	case FlowTicketSale:
		return &r.TicketSale
	case FlowEventDay:
		return &r.EventDay
	}
	return nil
}

// ReminderSent reports whether the marker for key is present.
func (r *ClientRecord) ReminderSent(key ReminderKey) (time.Time, bool) {
	at, ok := r.RemindersSent[key]
	return at, ok
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r ClientRecord) Clone() ClientRecord {
	out := r
	out.Name = cloneString(r.Name)
	out.Organization = cloneString(r.Organization)
	out.EventName = cloneString(r.EventName)
	out.PIC = cloneString(r.PIC)
	out.ContactFirst = cloneString(r.ContactFirst)
	out.ContactSecond = cloneString(r.ContactSecond)
	out.EventInstagram = cloneString(r.EventInstagram)
	out.OrganizerInstagram = cloneString(r.OrganizerInstagram)
	out.PricingScheme = cloneString(r.PricingScheme)
	out.Capacity = cloneInt(r.Capacity)
	out.TicketPrice = cloneInt(r.TicketPrice)
	out.Meeting = r.Meeting.clone()
	out.TicketSale = r.TicketSale.clone()
	out.EventDay = r.EventDay.clone()
	if r.RemindersSent != nil {
		out.RemindersSent = make(map[ReminderKey]time.Time, len(r.RemindersSent))
		for k, v := range r.RemindersSent {
			out.RemindersSent[k] = v
		}
	}
	return out
}

func (s FlowState) clone() FlowState {
	out := FlowState{
		ExternalEventID: cloneString(s.ExternalEventID),
		Notes:           cloneString(s.Notes),
		Venue:           cloneString(s.Venue),
	}
	if s.ScheduledAt != nil {
		t := *s.ScheduledAt
		out.ScheduledAt = &t
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// String returns a pointer to s, for building records and patches.
func String(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int64) *int64 { return &i }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
