package service

import (
	"context"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/store"
)

func propValue(ev *ics.VEvent, p ics.ComponentProperty) string {
	prop := ev.GetProperty(p)
	if prop == nil {
		return ""
	}
	return prop.Value
}

func TestBuildICS(t *testing.T) {
	trip := &domain.Trip{
		ID:           tripID,
		Name:         "Lisbon",
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		NumberOfDays: 3,
	}
	events := []domain.CalendarEvent{
		{
			ID: "evt-1", DayIndex: 0, Activity: "Bairro Alto", Time: "23:30", EndTime: "00:30",
			Location: "Bairro Alto", CreatedBy: domain.Author{ID: ada.ID, Name: "Ada"},
		},
		{
			ID: "evt-2", DayIndex: 2, Activity: "Sintra", Time: "09:15", EndTime: "13:00",
			Coordinates: &domain.Coordinates{Lat: 38.7876, Lng: -9.3904},
		},
	}

	out := BuildICS(trip, events, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	cal, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	vevents := cal.Events()
	require.Len(t, vevents, 2)

	first := vevents[0]
	assert.Equal(t, "evt-1@"+tripID, propValue(first, ics.ComponentPropertyUniqueId))
	assert.Equal(t, "Bairro Alto", propValue(first, ics.ComponentPropertySummary))
	assert.Equal(t, "20260601T233000", propValue(first, ics.ComponentPropertyDtStart))
	assert.Equal(t, "20260602T003000", propValue(first, ics.ComponentPropertyDtEnd))
	assert.Equal(t, "Added by Ada", propValue(first, ics.ComponentPropertyDescription))

	second := vevents[1]
	assert.Equal(t, "20260603T091500", propValue(second, ics.ComponentPropertyDtStart))
	assert.Equal(t, "20260603T130000", propValue(second, ics.ComponentPropertyDtEnd))
	assert.Contains(t, out, "GEO:38.7876;-9.3904")
}

func TestTripService_ExportICS(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, ev := range []*domain.CalendarEvent{
		{ID: "evt-approved", DayIndex: 0, Activity: "Alfama walk", Status: domain.StatusApproved},
		{ID: "evt-proposed", DayIndex: 0, Activity: "Surf lesson", Status: domain.StatusProposed},
		{ID: "evt-outside", DayIndex: 7, Activity: "Flight home", Status: domain.StatusApproved},
	} {
		ev.TripID = tripID
		ev.Time, ev.EndTime = "10:00", "11:00"
		ev.CreatedBy = grace.Author()
		ev.CreatedAt = time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
		require.NoError(t, env.store.Insert(ctx, store.SharedEvents, ev))
	}

	out, err := env.trips.ExportICS(ctx, tripID, ada.ID)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Alfama walk")
	assert.NotContains(t, string(out), "Surf lesson")
	assert.NotContains(t, string(out), "Flight home")

	_, err = env.trips.ExportICS(ctx, tripID, linus.ID)
	assert.Equal(t, domainerrors.CodeForbidden, domainerrors.CodeOf(err))
}
