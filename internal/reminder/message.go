package reminder

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/teemow/milestonesync/internal/records"
)

const footer = "This is an automated reminder from NovaTix"

var amounts = message.NewPrinter(language.Indonesian)

// Render builds the chat message for th. Times are shown in loc.
func Render(rec *records.ClientRecord, th Threshold, scheduled time.Time, loc *time.Location) string {
	local := scheduled.In(loc)
	date := local.Format("Monday, 2 January 2006")
	clock := local.Format("15:04 MST")
	state := rec.Flow(th.Flow)

	var b strings.Builder
	if th.sameDay() {
		b.WriteString("*Reminder: today*\n\n")
	} else {
		b.WriteString("*Reminder: " + th.Label + " before event*\n\n")
	}

	switch th.Flow {
	case records.FlowMeeting:
		b.WriteString("*Meeting Appointment*\n")
		b.WriteString("Date: " + date + "\n")
		b.WriteString("Time: " + clock + "\n")
		if state.Notes != nil && *state.Notes != "" {
			b.WriteString("Notes: " + *state.Notes + "\n")
		}
		b.WriteString("\nDon't forget! See you soon!")
	case records.FlowTicketSale:
		b.WriteString("*Ticket Sale Opens*\n")
		b.WriteString("Event: " + text(rec.EventName, "Your Event") + "\n")
		b.WriteString("Opening Date: " + date + "\n")
		b.WriteString("Opening Time: " + clock + "\n")
		b.WriteString("Ticket Price: " + price(rec.TicketPrice) + "\n")
		b.WriteString("\nAll set? Let's launch!")
	case records.FlowEventDay:
		b.WriteString("*Event Day Coming Up!*\n")
		b.WriteString("Event: " + text(rec.EventName, "Your Event") + "\n")
		b.WriteString("Date: " + date + "\n")
		b.WriteString("Time: " + clock + "\n")
		b.WriteString("Venue: " + text(state.Venue, "TBD") + "\n")
		b.WriteString("Expected Attendance: " + attendance(rec.Capacity) + "\n")
		if state.Notes != nil && *state.Notes != "" {
			b.WriteString("Notes: " + *state.Notes + "\n")
		}
		b.WriteString("\nGood luck with your event!")
	}

	b.WriteString("\n\n_" + footer + "_")
	return b.String()
}

func text(v *string, fallback string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return fallback
	}
	return *v
}

func price(n *int64) string {
	if n == nil || *n <= 0 {
		return "TBD"
	}
	return amounts.Sprintf("Rp %d", *n)
}

func attendance(n *int64) string {
	if n == nil || *n <= 0 {
		return "TBD"
	}
	return amounts.Sprintf("%d pax", *n)
}
