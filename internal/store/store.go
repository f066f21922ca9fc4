// Package store is the record store client used by calendar sessions.
//
// A Client wraps one Backend (sqlite, badger, or postgres) and a change Feed.
// Backends without a native change stream have the Client publish a Change
// after each successful write. Backends implementing ChangeSource publish
// their own, which lets writes made by other server instances reach local
// subscribers.
package store

import (
	"context"
	"fmt"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

// Collection names a table of calendar events.
type Collection string

// Event collections.
const (
	SharedEvents  Collection = "shared_events"
	PersonalEdits Collection = "personal_edits"
)

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	return c == SharedEvents || c == PersonalEdits
}

// Filter selects events of one trip. UserID and ActiveOnly only apply to
// personal edits.
type Filter struct {
	TripID     string
	UserID     string
	ActiveOnly bool
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev *domain.CalendarEvent) bool {
	if f.TripID != "" && ev.TripID != f.TripID {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.ActiveOnly && !ev.IsActive {
		return false
	}
	return true
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Time        *string
	EndTime     *string
	Activity    *string
	Location    *string
	Coordinates *domain.Coordinates
	DayIndex    *int
	Status      *domain.EventStatus
	IsActive    *bool

	// ClearCoordinates removes coordinates. Ignored when Coordinates is set.
	ClearCoordinates bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Time == nil && p.EndTime == nil && p.Activity == nil && p.Location == nil &&
		p.Coordinates == nil && !p.ClearCoordinates && p.DayIndex == nil &&
		p.Status == nil && p.IsActive == nil
}

// Apply writes the patch onto ev.
func (p Patch) Apply(ev *domain.CalendarEvent) {
	if p.Time != nil {
		ev.Time = *p.Time
	}
	if p.EndTime != nil {
		ev.EndTime = *p.EndTime
	}
	if p.Activity != nil {
		ev.Activity = *p.Activity
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	switch {
	case p.Coordinates != nil:
		c := *p.Coordinates
		ev.Coordinates = &c
	case p.ClearCoordinates:
		ev.Coordinates = nil
	}
	if p.DayIndex != nil {
		ev.DayIndex = *p.DayIndex
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.IsActive != nil {
		ev.IsActive = *p.IsActive
	}
}

// ContentPatch carries the schedule fields of ev: times, activity, location,
// coordinates and day. Authorship and creation time are never included.
func ContentPatch(ev *domain.CalendarEvent) Patch {
	p := Patch{
		Time:     &ev.Time,
		EndTime:  &ev.EndTime,
		Activity: &ev.Activity,
		Location: &ev.Location,
		DayIndex: &ev.DayIndex,
	}
	if ev.Coordinates != nil {
		p.Coordinates = ev.Coordinates
	} else {
		p.ClearCoordinates = true
	}
	return p
}

// Backend is a concrete record store.
type Backend interface {
	ListEvents(ctx context.Context, coll Collection, f Filter) ([]domain.CalendarEvent, error)
	GetEvent(ctx context.Context, coll Collection, id string) (*domain.CalendarEvent, error)
	InsertEvent(ctx context.Context, coll Collection, ev *domain.CalendarEvent) error
	// UpdateEvent applies p and returns the stored record. ErrNotFound when id is unknown.
	UpdateEvent(ctx context.Context, coll Collection, id string, p Patch) (*domain.CalendarEvent, error)
	// DeleteEvents removes ids and returns the records that existed.
	DeleteEvents(ctx context.Context, coll Collection, ids []string) ([]domain.CalendarEvent, error)

	GetTrip(ctx context.Context, id string) (*domain.Trip, error)
	CreateTrip(ctx context.Context, trip *domain.Trip) error
	SetTripPublic(ctx context.Context, id string, public bool) (*domain.Trip, error)

	Close() error
}

// ChangeSource is implemented by backends that stream their own changes.
// The channel is closed when ctx is done or the backend shuts down.
type ChangeSource interface {
	Changes(ctx context.Context) (<-chan Change, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkCollection(coll Collection) error {
	if !coll.Valid() {
		return ErrInvalidInput.WithCause(fmt.Errorf("unknown collection %q", coll))
	}
	return nil
}
