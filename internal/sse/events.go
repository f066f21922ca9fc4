// Package sse streams calendar session updates to browsers with Server-Sent Events.
package sse

import (
	"time"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is sent once when a stream opens.
	EventConnected EventType = "connected"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"

	// EventCalendarShared carries the shared schedule after it changed.
	EventCalendarShared EventType = "calendar.shared"
	// EventCalendarPersonal carries the personal overlay after it changed.
	EventCalendarPersonal EventType = "calendar.personal"
	// EventCalendarMode reports a view/edit mode change.
	EventCalendarMode EventType = "calendar.mode"

	// EventPresenceSync carries the full presence list of a trip.
	EventPresenceSync EventType = "presence.sync"
	// EventNotification carries one transient notification.
	EventNotification EventType = "notification"
	// EventTripUpdated reports a change to trip settings.
	EventTripUpdated EventType = "trip.updated"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	// TripID routes the event to streams of one trip. Required.
	TripID string `json:"trip_id"`
	// UserID limits delivery to one participant. Empty means all participants.
	UserID string `json:"-"`
}

// SharedEventData is the payload of calendar.shared.
type SharedEventData struct {
	Heights      map[string]float64     `json:"event_heights"`
	Days         []domain.Day           `json:"shared_days"`
	Pending      []domain.CalendarEvent `json:"pending_approval"`
	OwnProposals []domain.CalendarEvent `json:"own_proposals"`
}

// PersonalEventData is the payload of calendar.personal.
type PersonalEventData struct {
	Heights  map[string]float64 `json:"event_heights"`
	Days     []domain.Day       `json:"personal_days"`
	Unsynced int                `json:"unsynced"`
}

// ModeEventData is the payload of calendar.mode.
type ModeEventData struct {
	Mode    string `json:"mode"`
	EditDay int    `json:"edit_day"`
}

// PresenceEventData is the payload of presence.sync.
type PresenceEventData struct {
	Users []domain.Presence `json:"users"`
}

// HeartbeatEventData is the payload of heartbeat.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewSharedEvent builds a calendar.shared event for one participant.
func NewSharedEvent(tripID, userID string, data SharedEventData) Event {
	return Event{Type: EventCalendarShared, TripID: tripID, UserID: userID, Data: data, Timestamp: time.Now()}
}

// NewPersonalEvent builds a calendar.personal event for one participant.
func NewPersonalEvent(tripID, userID string, data PersonalEventData) Event {
	return Event{Type: EventCalendarPersonal, TripID: tripID, UserID: userID, Data: data, Timestamp: time.Now()}
}

// NewModeEvent builds a calendar.mode event for one participant.
func NewModeEvent(tripID, userID, mode string, editDay int) Event {
	return Event{
		Type:      EventCalendarMode,
		TripID:    tripID,
		UserID:    userID,
		Data:      ModeEventData{Mode: mode, EditDay: editDay},
		Timestamp: time.Now(),
	}
}

// NewPresenceEvent builds a presence.sync event for every participant of a trip.
func NewPresenceEvent(tripID string, users []domain.Presence) Event {
	return Event{Type: EventPresenceSync, TripID: tripID, Data: PresenceEventData{Users: users}, Timestamp: time.Now()}
}

// NewNotificationEvent builds a notification event for one participant.
func NewNotificationEvent(tripID, userID string, n domain.Notification) Event {
	return Event{Type: EventNotification, TripID: tripID, UserID: userID, Data: n, Timestamp: time.Now()}
}

// NewTripUpdatedEvent builds a trip.updated event for every participant.
func NewTripUpdatedEvent(trip *domain.Trip) Event {
	return Event{Type: EventTripUpdated, TripID: trip.ID, Data: trip, Timestamp: time.Now()}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{Type: EventHeartbeat, Data: HeartbeatEventData{ServerTime: now}, Timestamp: now}
}
