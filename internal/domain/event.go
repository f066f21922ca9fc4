package domain

import "time"

// EventStatus tracks a shared event through the approval workflow.
type EventStatus string

const (
	// StatusApproved events are part of the shared schedule.
	StatusApproved EventStatus = "approved"
	// StatusProposed events wait for approval outside the schedule.
	StatusProposed EventStatus = "proposed"
	// StatusRejected events are never shown on the schedule.
	StatusRejected EventStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusProposed, StatusRejected:
		return true
	default:
		return false
	}
}

// Author is the snapshot of an event's creator taken at creation time.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Coordinates is a lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CalendarEvent is one itinerary item, either on the shared schedule or in a
// user's personal overlay.
type CalendarEvent struct {
	CreatedAt       time.Time    `json:"created_at"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	CreatedBy       Author       `json:"created_by"`
	ID              string       `json:"id"`
	TripID          string       `json:"trip_id"`
	Activity        string       `json:"activity"`
	Time            string       `json:"time"`
	EndTime         string       `json:"end_time"`
	Location        string       `json:"location,omitempty"`
	Status          EventStatus  `json:"status,omitempty"`
	OriginalEventID string       `json:"original_event_id,omitempty"`

	// UserID owns a personal edit row. Empty for shared events.
	UserID string `json:"user_id,omitempty"`

	DayIndex       int  `json:"day_index"`
	IsPersonalEdit bool `json:"is_personal_edit"`
	IsActive       bool `json:"is_active,omitempty"`

	// OtherUserEdit marks a personal edit authored by someone other than the
	// acting user. It is derived, never trusted from storage.
	OtherUserEdit bool `json:"other_user_edit"`
}

// Clone returns a deep copy.
func (e CalendarEvent) Clone() CalendarEvent {
	if e.Coordinates != nil {
		c := *e.Coordinates
		e.Coordinates = &c
	}
	return e
}

// IsPersonalCopy reports whether the event was copied from a shared event.
func (e *CalendarEvent) IsPersonalCopy() bool {
	return e.IsPersonalEdit && e.OriginalEventID != ""
}

// SameContent reports whether the fields that drive the calendar view match.
func (e *CalendarEvent) SameContent(o *CalendarEvent) bool {
	return e.ID == o.ID &&
		e.DayIndex == o.DayIndex &&
		e.Time == o.Time &&
		e.EndTime == o.EndTime &&
		e.Activity == o.Activity
}
