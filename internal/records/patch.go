package records

import (
	"fmt"
	"time"
)

// FlowPatch describes changes to one flow. Nil pointer fields are left untouched;
// the Clear* flags null a field explicitly.
type FlowPatch struct {
	Flow FlowType

	ScheduledAt      *time.Time
	ClearScheduledAt bool

	ExternalEventID      *string
	ClearExternalEventID bool

	Notes *string
	Venue *string
}

// Patch is one atomic mutation of a record.
type Patch struct {
	Flows  []FlowPatch
	Active *bool
}

// LinkEvent sets the scheduled time and external id of a flow together.
func LinkEvent(flow FlowType, when time.Time, eventID string, notes *string) Patch {
	return Patch{Flows: []FlowPatch{{
		Flow:            flow,
		ScheduledAt:     &when,
		ExternalEventID: &eventID,
		Notes:           notes,
	}}}
}

// UnlinkEvent clears the external id of a flow, making it re-creatable.
func UnlinkEvent(flow FlowType) Patch {
	return Patch{Flows: []FlowPatch{{Flow: flow, ClearExternalEventID: true}}}
}

// Reschedule overwrites the scheduled time of a flow.
func Reschedule(flow FlowType, when time.Time) Patch {
	return Patch{Flows: []FlowPatch{{Flow: flow, ScheduledAt: &when}}}
}

// Validate rejects patches that name unknown flows or set and clear the same field.
func (p Patch) Validate() error {
	for _, fp := range p.Flows {
		switch fp.Flow {
		case FlowMeeting, FlowTicketSale, FlowEventDay:
		default:
			return fmt.Errorf("patch names unknown flow %q", fp.Flow)
		}
		if fp.ScheduledAt != nil && fp.ClearScheduledAt {
			return fmt.Errorf("patch for %s both sets and clears scheduledAt", fp.Flow)
		}
		if fp.ExternalEventID != nil && fp.ClearExternalEventID {
			return fmt.Errorf("patch for %s both sets and clears externalEventId", fp.Flow)
		}
		if fp.Venue != nil && fp.Flow != FlowEventDay {
			return fmt.Errorf("venue is only valid for %s", FlowEventDay)
		}
	}
	return nil
}

// Apply mutates r in place. Callers validate first.
func (p Patch) Apply(r *ClientRecord, now time.Time) {
	for _, fp := range p.Flows {
		st := r.flowPtr(fp.Flow)
		if st == nil {
			continue
		}
		switch {
		case fp.ClearScheduledAt:
			st.ScheduledAt = nil
		case fp.ScheduledAt != nil:
			t := *fp.ScheduledAt
			st.ScheduledAt = &t
		}
		switch {
		case fp.ClearExternalEventID:
			st.ExternalEventID = nil
		case fp.ExternalEventID != nil:
			st.ExternalEventID = cloneString(fp.ExternalEventID)
		}
		if fp.Notes != nil {
			st.Notes = cloneString(fp.Notes)
		}
		if fp.Venue != nil {
			st.Venue = cloneString(fp.Venue)
		}
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	r.UpdatedAt = now
}
