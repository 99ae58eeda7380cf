package syncer

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/records"
)

// Placeholders for absent optional fields.
const (
	placeholderTBD = "TBD"
	placeholderNA  = "N/A"
)

// Default event locations per flow.
const (
	DefaultMeetingLocation    = "NovaTix Office / Video Call"
	DefaultTicketSaleLocation = "Online - NovaTix Platform"
)

// amounts are rendered the way the organizers read them (1.500 pax, Rp 150.000).
var amounts = message.NewPrinter(language.Indonesian)

type flowTemplate struct {
	duration  time.Duration
	reminders []calendar.ReminderOverride
	title     func(r *records.ClientRecord) string
	location  func(r *records.ClientRecord, opts PushOptions) string
	describe  func(r *records.ClientRecord, opts PushOptions) []string
}

var templates = map[records.FlowType]flowTemplate{
	records.FlowMeeting: {
		duration: 60 * time.Minute,
		reminders: []calendar.ReminderOverride{
			{Method: "email", Minutes: 24 * 60},
			{Method: "popup", Minutes: 30},
		},
		title: func(r *records.ClientRecord) string {
			return fmt.Sprintf("MoU Meeting: %s - %s", orPlaceholder(r.Name, r.ID), eventName(r, "Event"))
		},
		location: func(_ *records.ClientRecord, opts PushOptions) string {
			return orPlaceholder(nonEmpty(opts.Location), DefaultMeetingLocation)
		},
		describe: describeMeeting,
	},
	records.FlowTicketSale: {
		duration: 60 * time.Minute,
		reminders: []calendar.ReminderOverride{
			{Method: "email", Minutes: 3 * 24 * 60},
			{Method: "email", Minutes: 24 * 60},
			{Method: "popup", Minutes: 60},
		},
		title: func(r *records.ClientRecord) string {
			return "Ticket Sale Opens: " + eventName(r, "Event")
		},
		location: func(_ *records.ClientRecord, opts PushOptions) string {
			return orPlaceholder(nonEmpty(opts.Location), DefaultTicketSaleLocation)
		},
		describe: describeTicketSale,
	},
	records.FlowEventDay: {
		duration: 240 * time.Minute,
		reminders: []calendar.ReminderOverride{
			{Method: "email", Minutes: 7 * 24 * 60},
			{Method: "email", Minutes: 24 * 60},
			{Method: "popup", Minutes: 120},
		},
		title: func(r *records.ClientRecord) string {
			return "Event Day: " + eventName(r, "Event Day")
		},
		location: func(r *records.ClientRecord, opts PushOptions) string {
			if opts.Location != "" {
				return opts.Location
			}
			return venue(r, opts)
		},
		describe: describeEventDay,
	},
}

func templateFor(flow records.FlowType) (flowTemplate, error) {
	tpl, ok := templates[flow]
	if !ok {
		return flowTemplate{}, fmt.Errorf("unknown flow %q", flow)
	}
	return tpl, nil
}

// buildSpec renders the calendar event for one flow of a record.
func buildSpec(r *records.ClientRecord, flow records.FlowType, when time.Time, opts PushOptions) (calendar.EventSpec, error) {
	tpl, err := templateFor(flow)
	if err != nil {
		return calendar.EventSpec{}, err
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = tpl.duration
	}
	return calendar.EventSpec{
		Title:       tpl.title(r),
		Description: strings.Join(tpl.describe(r, opts), "\n"),
		Location:    tpl.location(r, opts),
		Start:       when,
		End:         when.Add(duration),
		Attendees:   opts.Attendees,
		Reminders:   tpl.reminders,
	}, nil
}

func describeMeeting(r *records.ClientRecord, opts PushOptions) []string {
	lines := []string{
		"Meeting - " + eventName(r, "Event"),
		"",
		"Contact:",
		"   Name: " + orPlaceholder(r.Name, placeholderNA),
		"   Organization: " + orPlaceholder(r.Organization, placeholderNA),
		"   WhatsApp: " + r.ID,
		"",
		"Event Details:",
		"   Event: " + orPlaceholder(r.EventName, placeholderTBD),
		"   Expected Capacity: " + orPlaceholder(quantity(r.Capacity, "pax"), placeholderTBD),
		"   Ticket Price: " + orPlaceholder(rupiah(r.TicketPrice), placeholderTBD),
		"",
		"Discussion Topics:",
		"   - MoU and contract terms",
		"   - Platform features and demo",
		"   - Pricing negotiation",
		"   - Timeline and implementation",
		"",
	}
	lines = append(lines, notesSection("Notes:", opts.Notes)...)
	return append(lines, "Quick Actions:", "   View in CRM: [Dashboard Link]")
}

func describeTicketSale(r *records.ClientRecord, opts PushOptions) []string {
	lines := []string{
		"Ticket Sale Opening - " + eventName(r, "Event"),
		"",
		"Ticket Information:",
		"   Ticket Price: " + orPlaceholder(rupiah(r.TicketPrice), placeholderTBD),
		"   Expected Sales: " + orPlaceholder(quantity(r.Capacity, "tickets"), placeholderTBD),
		"   Revenue Target: " + orPlaceholder(revenue(r), placeholderTBD),
		"   Pricing Scheme: " + orPlaceholder(r.PricingScheme, "Standard"),
		"",
		"Event Organizer:",
		"   Name: " + orPlaceholder(r.Name, placeholderNA),
		"   Organization: " + orPlaceholder(r.Organization, placeholderNA),
		"   Contact: " + r.ID,
		"",
	}
	lines = append(lines, contactSection("Contact Persons:", r, false)...)
	lines = append(lines, socialSection(r)...)
	lines = append(lines,
		"Pre-Launch Checklist:",
		"   [ ] Platform setup complete",
		"   [ ] Payment gateway tested",
		"   [ ] Event page live",
		"   [ ] Marketing materials ready",
		"   [ ] Customer support prepared",
		"",
	)
	lines = append(lines, notesSection("Notes:", opts.Notes)...)
	return append(lines, "Dashboard: [View Event Details]")
}

func describeEventDay(r *records.ClientRecord, opts PushOptions) []string {
	lines := []string{
		"Concert / Event Day - " + eventName(r, "Event Day"),
		"",
		"Venue Information:",
		"   Location: " + venue(r, opts),
		"   Expected Attendance: " + orPlaceholder(quantity(r.Capacity, "attendees"), placeholderTBD),
		"   Event Type: " + orPlaceholder(r.EventName, "Concert/Event"),
		"",
		"Ticketing Summary:",
		"   Ticket Price: " + orPlaceholder(rupiah(r.TicketPrice), placeholderNA),
		"   Total Capacity: " + orPlaceholder(quantity(r.Capacity, "tickets"), placeholderTBD),
		"   Expected Revenue: " + orPlaceholder(revenue(r), placeholderTBD),
		"",
		"Event Organizer:",
		"   Organization: " + orPlaceholder(r.Organization, placeholderNA),
		"   PIC: " + orPlaceholder(firstSet(r.PIC, r.Name), placeholderNA),
		"",
	}
	lines = append(lines, contactSection("On-Site Contacts:", r, true)...)
	lines = append(lines, socialSection(r)...)
	lines = append(lines,
		"Event Day Checklist:",
		"   [ ] Venue setup complete",
		"   [ ] Ticketing system operational",
		"   [ ] QR scanners ready",
		"   [ ] Staff briefed",
		"   [ ] Emergency protocols in place",
		"   [ ] Customer support on standby",
		"",
		"Technical Setup:",
		"   [ ] Internet connection verified",
		"   [ ] Backup devices ready",
		"   [ ] Payment gateway active",
		"   [ ] Real-time dashboard monitoring",
		"",
	)
	lines = append(lines, notesSection("Additional Notes:", opts.Notes)...)
	return append(lines,
		"Resources:",
		"   Dashboard: [Real-time Event Monitoring]",
		"   Support: [Emergency Contact]",
	)
}

func contactSection(header string, r *records.ClientRecord, withChat bool) []string {
	lines := []string{
		header,
		"   CP 1: " + orPlaceholder(r.ContactFirst, placeholderNA),
		"   CP 2: " + orPlaceholder(r.ContactSecond, placeholderNA),
	}
	if withChat {
		lines = append(lines, "   WhatsApp: "+r.ID)
	}
	return append(lines, "")
}

func socialSection(r *records.ClientRecord) []string {
	return []string{
		"Social Media:",
		"   Event IG: " + orPlaceholder(r.EventInstagram, placeholderNA),
		"   Organizer IG: " + orPlaceholder(r.OrganizerInstagram, placeholderNA),
		"",
	}
}

func notesSection(header, notes string) []string {
	if notes == "" {
		return nil
	}
	return []string{header, "   " + notes, ""}
}

// orPlaceholder is the one fallback for every optional field rendered into an
// event: nil or blank values become placeholder.
func orPlaceholder(v *string, placeholder string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return placeholder
	}
	return *v
}

func eventName(r *records.ClientRecord, fallback string) string {
	return orPlaceholder(firstSet(r.EventName, r.Organization), fallback)
}

func venue(r *records.ClientRecord, opts PushOptions) string {
	return orPlaceholder(firstSet(nonEmpty(opts.Venue), r.EventDay.Venue), placeholderTBD)
}

func firstSet(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return v
		}
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func quantity(n *int64, unit string) *string {
	if n == nil || *n <= 0 {
		return nil
	}
	s := amounts.Sprintf("%d %s", *n, unit)
	return &s
}

func rupiah(n *int64) *string {
	if n == nil || *n <= 0 {
		return nil
	}
	s := amounts.Sprintf("Rp %d", *n)
	return &s
}

func revenue(r *records.ClientRecord) *string {
	if r.TicketPrice == nil || r.Capacity == nil {
		return nil
	}
	total := *r.TicketPrice * *r.Capacity
	return rupiah(&total)
}
