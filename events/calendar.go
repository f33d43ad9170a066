package events

import "time"

// DefaultDuration is assumed when the API gives no end time.
const DefaultDuration = 2 * time.Hour

// CalendarEntry is a draft for the device calendar.
type CalendarEntry struct {
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
	Location string
	Notes    string
}

// NewCalendarEntry builds a device-calendar draft from an event. The ticket
// URL rides along in the notes so the user can buy from the calendar item.
func NewCalendarEntry(event Event) CalendarEntry {
	return CalendarEntry{
		Title:    event.Name,
		StartsAt: event.Date,
		EndsAt:   event.Date.Add(DefaultDuration),
		Location: event.Location,
		Notes:    event.TicketURL,
	}
}
