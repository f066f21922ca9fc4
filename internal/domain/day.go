package domain

import (
	"slices"

	"github.com/waypointapp/waypoint-server/internal/clock"
)

// Day holds the events of one trip day, ordered by start time.
type Day struct {
	Events []CalendarEvent `json:"events"`
	Index  int             `json:"index"`
}

// NewDays allocates n empty days.
func NewDays(n int) []Day {
	days := make([]Day, n)
	for i := range days {
		days[i] = Day{Index: i, Events: []CalendarEvent{}}
	}
	return days
}

// Sort orders events by minutes since midnight. Ties keep insertion order.
func (d *Day) Sort() {
	slices.SortStableFunc(d.Events, func(a, b CalendarEvent) int {
		return clock.Minutes(a.Time) - clock.Minutes(b.Time)
	})
}

// Find returns the position of the event with the given ID, or -1.
func (d *Day) Find(id string) int {
	return slices.IndexFunc(d.Events, func(e CalendarEvent) bool { return e.ID == id })
}

// Upsert replaces or appends an event and re-sorts.
func (d *Day) Upsert(ev CalendarEvent) {
	d.Remove(ev.ID)
	d.Events = append(d.Events, ev)
	d.Sort()
}

// Remove deletes the event with the given ID and reports whether it was present.
func (d *Day) Remove(id string) bool {
	i := d.Find(id)
	if i < 0 {
		return false
	}
	d.Events = slices.Delete(d.Events, i, i+1)
	return true
}

// IsSorted reports whether the day satisfies the ordering invariant.
func (d *Day) IsSorted() bool {
	return slices.IsSortedFunc(d.Events, func(a, b CalendarEvent) int {
		return clock.Minutes(a.Time) - clock.Minutes(b.Time)
	})
}

// CloneDays deep-copies a day list. A nil input stays nil.
func CloneDays(days []Day) []Day {
	if days == nil {
		return nil
	}
	out := make([]Day, len(days))
	for i, d := range days {
		events := make([]CalendarEvent, len(d.Events))
		for j, e := range d.Events {
			events[j] = e.Clone()
		}
		out[i] = Day{Index: d.Index, Events: events}
	}
	return out
}

// CountEvents totals events across days.
func CountEvents(days []Day) int {
	n := 0
	for _, d := range days {
		n += len(d.Events)
	}
	return n
}
