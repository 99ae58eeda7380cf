package reminder

import (
	"time"

	"github.com/teemow/milestonesync/internal/records"
)

const day = 24 * time.Hour

// Threshold is one reminder lead time of a flow.
type Threshold struct {
	Flow  records.FlowType
	Days  int
	Label string
}

// Key is the idempotency marker key, e.g. "ticketSale:3".
func (t Threshold) Key() records.ReminderKey {
	return records.NewReminderKey(t.Flow, t.Days)
}

// sameDay is the meeting reminder on the day itself.
func (t Threshold) sameDay() bool {
	return t.Flow == records.FlowMeeting && t.Days == 0
}

// Thresholds lists the lead times per flow.
var Thresholds = map[records.FlowType][]Threshold{
	records.FlowMeeting: {
		{Flow: records.FlowMeeting, Days: 1, Label: "1 day"},
		{Flow: records.FlowMeeting, Days: 0, Label: "today"},
	},
	records.FlowTicketSale: {
		{Flow: records.FlowTicketSale, Days: 3, Label: "3 days"},
		{Flow: records.FlowTicketSale, Days: 1, Label: "1 day"},
	},
	records.FlowEventDay: {
		{Flow: records.FlowEventDay, Days: 7, Label: "1 week"},
		{Flow: records.FlowEventDay, Days: 1, Label: "1 day"},
	},
}

// dayOffset is floor((scheduled - now) / 24h).
func dayOffset(scheduled, now time.Time) int {
	d := scheduled.Sub(now)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// due reports whether th fires for a flow scheduled at scheduled when scanned
// at now. The same-day meeting reminder additionally needs the meeting to be
// later on the current local date.
func due(th Threshold, scheduled, now time.Time, loc *time.Location) bool {
	if dayOffset(scheduled, now) != th.Days {
		return false
	}
	if th.sameDay() {
		return scheduled.After(now) && sameDate(scheduled, now, loc)
	}
	return true
}

// exclusiveWith returns the marker that suppresses th when it was written on
// the same local date. The two meeting reminders never both fire in one day.
func exclusiveWith(th Threshold) (records.ReminderKey, bool) {
	if th.Flow != records.FlowMeeting {
		return "", false
	}
	if th.Days == 0 {
		return records.NewReminderKey(records.FlowMeeting, 1), true
	}
	if th.Days == 1 {
		return records.NewReminderKey(records.FlowMeeting, 0), true
	}
	return "", false
}

// blocked reports whether rec already holds th's marker or an exclusive
// sibling marker from today.
func blocked(rec *records.ClientRecord, th Threshold, now time.Time, loc *time.Location) (string, bool) {
	if _, ok := rec.ReminderSent(th.Key()); ok {
		return StatusAlreadySent, true
	}
	if other, ok := exclusiveWith(th); ok {
		if at, sent := rec.ReminderSent(other); sent && sameDate(at, now, loc) {
			return StatusSuppressed, true
		}
	}
	return "", false
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
