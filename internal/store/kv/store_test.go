package kv

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "waypoint-kv-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func personalEdit(id, user, at string, active bool) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		ID:        id,
		TripID:    "trip-1",
		UserID:    user,
		Activity:  "Museum",
		Time:      at,
		EndTime:   "18:00",
		CreatedBy: domain.Author{ID: user, Name: user},
		CreatedAt: time.Now(),
		IsActive:  active,
	}
}

func TestEntity_IndexesAreNonUnique(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		ev := &domain.CalendarEvent{ID: id, TripID: "trip-1", Time: "09:00", EndTime: "10:00"}
		require.NoError(t, s.InsertEvent(ctx, store.SharedEvents, ev))
	}
	require.NoError(t, s.InsertEvent(ctx, store.SharedEvents, &domain.CalendarEvent{ID: "evt-x", TripID: "trip-10"}))

	events, err := s.ListEvents(ctx, store.SharedEvents, store.Filter{TripID: "trip-1"})
	require.NoError(t, err)
	assert.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, domain.StatusApproved, ev.Status)
	}
}

func TestEvents_CreateDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := personalEdit("pe-1", "user-a", "09:00", true)
	require.NoError(t, s.InsertEvent(ctx, store.PersonalEdits, ev))
	assert.ErrorIs(t, s.InsertEvent(ctx, store.PersonalEdits, ev), store.ErrAlreadyExists)
}

func TestEvents_UpdateMovesIndexes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEvent(ctx, store.PersonalEdits, personalEdit("pe-1", "user-a", "09:00", true)))

	inactive := false
	updated, err := s.UpdateEvent(ctx, store.PersonalEdits, "pe-1", store.Patch{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.IsPersonalEdit)

	active, err := s.ListEvents(ctx, store.PersonalEdits, store.Filter{TripID: "trip-1", UserID: "user-a", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListEvents(ctx, store.PersonalEdits, store.Filter{TripID: "trip-1", UserID: "user-a"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.UpdateEvent(ctx, store.PersonalEdits, "pe-missing", store.Patch{IsActive: &inactive})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvents_ListOrdersByDayThenTime(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	late := personalEdit("pe-late", "user-a", "15:00", true)
	early := personalEdit("pe-early", "user-a", "08:00", true)
	nextDay := personalEdit("pe-next", "user-a", "07:00", true)
	nextDay.DayIndex = 1
	for _, ev := range []*domain.CalendarEvent{nextDay, late, early} {
		require.NoError(t, s.InsertEvent(ctx, store.PersonalEdits, ev))
	}
	require.NoError(t, s.InsertEvent(ctx, store.PersonalEdits, personalEdit("pe-b", "user-b", "06:00", true)))

	events, err := s.ListEvents(ctx, store.PersonalEdits, store.Filter{TripID: "trip-1", UserID: "user-a"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"pe-early", "pe-late", "pe-next"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestEvents_DeleteIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEvent(ctx, store.PersonalEdits, personalEdit("pe-1", "user-a", "09:00", true)))

	deleted, err := s.DeleteEvents(ctx, store.PersonalEdits, []string{"pe-1"})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	deleted, err = s.DeleteEvents(ctx, store.PersonalEdits, []string{"pe-1"})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	events, err := s.ListEvents(ctx, store.PersonalEdits, store.Filter{TripID: "trip-1", UserID: "user-a"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTrips(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	trip := &domain.Trip{ID: "trip-1", Name: "Lisbon", NumberOfDays: 4,
		Participants: []domain.Participant{{ID: "user-a", Name: "Ada", Role: domain.RoleOwner}}}
	require.NoError(t, s.CreateTrip(ctx, trip))

	got, err := s.SetTripPublic(ctx, "trip-1", true)
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
	assert.Len(t, got.Participants, 1)

	_, err = s.GetTrip(ctx, "trip-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
