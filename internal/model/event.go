package model

import "time"

// Event is one recorded earthquake. Rows are created once by the feed
// scanner and never updated or deleted by the pipeline.
type Event struct {
	EventID   string    `json:"event_id" db:"event_id"`
	Latitude  float64   `json:"lat" db:"lat"`
	Longitude float64   `json:"lon" db:"lon"`
	Depth     float64   `json:"depth" db:"depth"` // km
	Magnitude float64   `json:"magnitude" db:"magnitude"`
	Time      time.Time `json:"time" db:"time"` // origin time, UTC
	Sent      time.Time `json:"sent" db:"sent"` // report sent time, UTC
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventFromAttributes builds an Event from validated parser output.
func EventFromAttributes(a *Attributes) *Event {
	return &Event{
		EventID:   a.EventName,
		Latitude:  *a.Latitude,
		Longitude: *a.Longitude,
		Depth:     a.Depth,
		Magnitude: *a.Magnitude,
		Time:      a.Time.UTC(),
		Sent:      a.Sent.UTC(),
	}
}
