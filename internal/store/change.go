package store

import (
	"time"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

// ChangeType is the kind of write a Change reports.
type ChangeType string

// Change types.
const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one record-level notification. For deletes Record holds the last
// known state, at minimum its ID and TripID.
type Change struct {
	At         time.Time            `json:"at"`
	Collection Collection           `json:"collection"`
	Type       ChangeType           `json:"type"`
	Record     domain.CalendarEvent `json:"record"`
}

// TripID returns the trip the change belongs to.
func (c Change) TripID() string {
	return c.Record.TripID
}
