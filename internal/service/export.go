package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/domain"
)

const (
	icsProductID = "-//Waypoint//Trip Calendar//EN"
	// Floating local time: no zone, the event happens at this wall-clock
	// time wherever the trip is.
	icsFloatingFormat = "20060102T150405"
)

// ExportICS renders the trip's shared schedule as an iCalendar document.
func (s *TripService) ExportICS(ctx context.Context, tripID, userID string) ([]byte, error) {
	trip, events, err := s.SharedEvents(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	return []byte(BuildICS(trip, events, s.now())), nil
}

// BuildICS converts shared events to VEVENTs. Start dates come from the
// trip start date plus the day index; an end time earlier than the start
// time falls on the next day.
func BuildICS(trip *domain.Trip, events []domain.CalendarEvent, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(trip.Name)

	for _, ev := range events {
		start, err := clock.Parse(ev.Time)
		if err != nil {
			continue
		}
		duration, err := clock.Duration(ev.Time, ev.EndTime)
		if err != nil {
			duration = defaultEventMinutes
		}

		day := trip.DayDate(ev.DayIndex)
		startAt := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).
			Add(time.Duration(start) * time.Minute)
		endAt := startAt.Add(time.Duration(duration) * time.Minute)

		vevent := cal.AddEvent(ev.ID + "@" + trip.ID)
		vevent.SetDtStampTime(stamp)
		vevent.SetProperty(ics.ComponentPropertyDtStart, startAt.Format(icsFloatingFormat))
		vevent.SetProperty(ics.ComponentPropertyDtEnd, endAt.Format(icsFloatingFormat))
		vevent.SetSummary(ev.Activity)
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		if ev.Coordinates != nil {
			vevent.SetProperty(ics.ComponentPropertyGeo,
				strconv.FormatFloat(ev.Coordinates.Lat, 'f', -1, 64)+";"+
					strconv.FormatFloat(ev.Coordinates.Lng, 'f', -1, 64))
		}
		if ev.CreatedBy.Name != "" {
			vevent.SetDescription(fmt.Sprintf("Added by %s", ev.CreatedBy.Name))
		}
		if !ev.CreatedAt.IsZero() {
			vevent.SetCreatedTime(ev.CreatedAt)
		}
	}
	return cal.Serialize()
}

// defaultEventMinutes is the exported length of an event whose end time
// cannot be read.
const defaultEventMinutes = 60
