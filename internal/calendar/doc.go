// Package calendar is the gateway to the Google Calendar API.
//
// A Gateway performs create, update, delete, get and list operations against a
// single calendar. Every operation shares one retry policy: an authorization
// failure triggers exactly one credential refresh and one retry; a second
// authorization failure is returned as *AuthError and never retried further.
//
// Event times are sent as wall-clock values in the configured zone together
// with the zone name, never as fixed-offset strings, so Google interprets them
// the same way a person reading the calendar would.
//
// Example usage:
//
//	gw, err := calendar.NewGateway(manager, calendar.GatewayConfig{
//	    CalendarID: "primary",
//	    Location:   jakarta,
//	})
//	if err != nil {
//	    return err
//	}
//	ev, err := gw.CreateEvent(ctx, calendar.EventSpec{
//	    Title: "Event Day: Jakarta Jazz Night",
//	    Start: start,
//	    End:   start.Add(4 * time.Hour),
//	})
package calendar
