// Package events holds the event model and the presentation helpers the home
// feed and calendar integration are built on.
package events

import (
	"sort"
	"time"
)

// Event is one upstream event as served by the events API.
type Event struct {
	TicketmasterID string    `json:"ticketmaster_id"`
	Name           string    `json:"name"`
	Date           time.Time `json:"date"`
	Location       string    `json:"location,omitempty"`
	TicketURL      string    `json:"ticket_url,omitempty"`
	PriceMin       *float64  `json:"price_min,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
}

// MonthGroup is one home-feed section: every event sharing a calendar month.
type MonthGroup struct {
	Year   int
	Month  time.Month
	Events []Event
}

// GroupByMonth buckets events by calendar month. Groups come back in
// chronological order, and events within a group are ordered by date.
func GroupByMonth(list []Event) []MonthGroup {
	type monthKey struct {
		year  int
		month time.Month
	}

	buckets := make(map[monthKey][]Event)
	for _, event := range list {
		key := monthKey{year: event.Date.Year(), month: event.Date.Month()}
		buckets[key] = append(buckets[key], event)
	}

	keys := make([]monthKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	groups := make([]MonthGroup, 0, len(keys))
	for _, key := range keys {
		bucket := buckets[key]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].Date.Before(bucket[j].Date) })
		groups = append(groups, MonthGroup{Year: key.year, Month: key.month, Events: bucket})
	}
	return groups
}
