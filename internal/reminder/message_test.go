package reminder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/milestonesync/internal/records"
)

func TestDayOffset(t *testing.T) {
	now := scanTime
	tests := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{"exactly one day", day, 1},
		{"just under one day", day - time.Second, 0},
		{"a week and most of a day", 7*day + 23*time.Hour, 7},
		{"same instant", 0, 0},
		{"one second ago", -time.Second, -1},
		{"exactly one day ago", -day, -1},
		{"a day and a bit ago", -day - time.Second, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dayOffset(now.Add(tt.delta), now))
		})
	}
}

func TestThresholdKeys(t *testing.T) {
	var keys []string
	for _, flow := range records.Flows {
		for _, th := range Thresholds[flow] {
			keys = append(keys, string(th.Key()))
		}
	}
	assert.ElementsMatch(t, []string{
		"meeting:1", "meeting:0",
		"ticketSale:3", "ticketSale:1",
		"eventDay:7", "eventDay:1",
	}, keys)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the hour",
			now:  time.Date(2026, 5, 1, 8, 59, 0, 0, wib),
			want: time.Date(2026, 5, 1, 9, 0, 0, 0, wib),
		},
		{
			name: "at the hour",
			now:  time.Date(2026, 5, 1, 9, 0, 0, 0, wib),
			want: time.Date(2026, 5, 2, 9, 0, 0, 0, wib),
		},
		{
			name: "end of month",
			now:  time.Date(2026, 5, 31, 22, 0, 0, 0, wib),
			want: time.Date(2026, 6, 1, 9, 0, 0, 0, wib),
		},
		{
			name: "utc input",
			now:  time.Date(2026, 5, 1, 1, 30, 0, 0, time.UTC), // 08:30 WIB
			want: time.Date(2026, 5, 1, 9, 0, 0, 0, wib),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, NextRun(tt.now, 9, wib).Equal(tt.want))
		})
	}
}

func TestRender_Meeting(t *testing.T) {
	rec := &records.ClientRecord{
		ID: "r1",
		Meeting: records.FlowState{
			Notes: records.String("bring the contract draft"),
		},
	}
	at := time.Date(2026, 5, 2, 14, 30, 0, 0, wib)
	msg := Render(rec, Thresholds[records.FlowMeeting][0], at, wib)

	assert.True(t, strings.HasPrefix(msg, "*Reminder: 1 day before event*\n\n"))
	assert.Contains(t, msg, "*Meeting Appointment*")
	assert.Contains(t, msg, "Date: Saturday, 2 May 2026")
	assert.Contains(t, msg, "Time: 14:30 WIB")
	assert.Contains(t, msg, "Notes: bring the contract draft")
	assert.True(t, strings.HasSuffix(msg, "_This is an automated reminder from NovaTix_"))
}

func TestRender_TicketSale(t *testing.T) {
	rec := &records.ClientRecord{
		ID:          "r1",
		EventName:   records.String("Jazz Night"),
		TicketPrice: records.Int(150000),
	}
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, wib)
	msg := Render(rec, Thresholds[records.FlowTicketSale][0], at, wib)

	assert.Contains(t, msg, "Reminder: 3 days before event")
	assert.Contains(t, msg, "Event: Jazz Night")
	assert.Contains(t, msg, "Opening Time: 10:00 WIB")
	assert.Contains(t, msg, "Ticket Price: Rp 150.000")
}

func TestRender_EventDayPlaceholders(t *testing.T) {
	rec := &records.ClientRecord{ID: "r1"}
	at := time.Date(2026, 5, 8, 19, 0, 0, 0, wib)
	msg := Render(rec, Thresholds[records.FlowEventDay][0], at, wib)

	assert.Contains(t, msg, "Reminder: 1 week before event")
	assert.Contains(t, msg, "Event: Your Event")
	assert.Contains(t, msg, "Venue: TBD")
	assert.Contains(t, msg, "Expected Attendance: TBD")
	assert.NotContains(t, msg, "Notes:")

	rec.Capacity = records.Int(1500)
	rec.EventDay.Venue = records.String("Istora Senayan")
	msg = Render(rec, Thresholds[records.FlowEventDay][1], at, wib)
	assert.Contains(t, msg, "Venue: Istora Senayan")
	assert.Contains(t, msg, "Expected Attendance: 1.500 pax")
}
