package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/store"
)

func TestCopyMovePublishExit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, store.SharedEvents, sharedEvent("e1", 0, "09:00", "10:00", "Museum", grace))

	e := newTestEngine(t, s, ada)
	require.NoError(t, e.LoadSharedSchedule(ctx))

	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)

	r, err := e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)
	require.True(t, r.OK, r.Message)
	assert.Equal(t, 1, r.Succeeded)

	st := e.Snapshot()
	require.Len(t, st.Personal[0].Events, 1)
	cp := st.Personal[0].Events[0]
	assert.Equal(t, "e1", cp.OriginalEventID)
	assert.Equal(t, "09:00", cp.Time)
	assert.Equal(t, "Museum", cp.Activity)
	assert.Equal(t, ada.ID, cp.CreatedBy.ID)

	_, err = e.MoveEvent(ctx, MoveEventInput{EventID: cp.ID, Time: "11:00", EndTime: "12:00"})
	require.NoError(t, err)
	moved := e.Snapshot().Personal[0].Events[0]
	assert.Equal(t, "11:00", moved.Time)
	assert.Equal(t, "12:00", moved.EndTime)
	assert.Equal(t, "09:00", e.Snapshot().Shared[0].Events[0].Time)

	r, err = e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	require.True(t, r.OK, r.Message)
	assert.Equal(t, 0, e.Snapshot().Unsynced)

	stored, err := s.Get(ctx, store.SharedEvents, "e1")
	require.NoError(t, err)
	assert.Equal(t, "11:00", stored.Time)
	assert.Equal(t, "12:00", stored.EndTime)
	assert.Equal(t, grace.ID, stored.CreatedBy.ID)
	assert.True(t, stored.CreatedAt.Equal(baseTime))

	r, err = e.ExitEditMode(ctx, false)
	require.NoError(t, err)
	assert.True(t, r.OK)

	st = e.Snapshot()
	assert.Equal(t, ModeView, st.Mode)
	assert.Nil(t, st.Personal)
	require.Len(t, st.Shared[0].Events, 1)
	assert.Equal(t, "11:00", st.Shared[0].Events[0].Time)
	assert.Equal(t, "12:00", st.Shared[0].Events[0].EndTime)
}

func TestCopySharedToPersonal_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, store.SharedEvents,
		sharedEvent("evt-a", 0, "09:00", "10:00", "Museum", grace),
		sharedEvent("evt-b", 0, "12:00", "13:00", "Lunch", grace),
		sharedEvent("evt-c", 1, "12:00", "13:00", "Other day", grace),
	)
	e := newTestEngine(t, s, ada)
	require.NoError(t, e.LoadSharedSchedule(ctx))
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)

	r, err := e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Succeeded)

	r, err = e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Zero(t, r.Succeeded)
	assert.Equal(t, 2, r.Skipped)

	assert.Len(t, e.Snapshot().Personal[0].Events, 2)
	rows, err := s.List(ctx, store.PersonalEdits, store.Filter{TripID: "trip-lisbon", UserID: ada.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCopySharedToPersonal_SkipsCopiesMovedToOtherDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, store.SharedEvents, sharedEvent("evt-a", 0, "09:00", "10:00", "Museum", grace))
	e := newTestEngine(t, s, ada)
	require.NoError(t, e.LoadSharedSchedule(ctx))
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)
	_, err = e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)

	day := 1
	copyID := e.Snapshot().Personal[0].Events[0].ID
	_, err = e.MoveEvent(ctx, MoveEventInput{EventID: copyID, Time: "09:00", DayIndex: &day})
	require.NoError(t, err)

	r, err := e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, domain.CountEvents(e.Snapshot().Personal))
}

func TestCopySharedToPersonal_RequiresEditMode(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), ada)
	_, err := e.CopySharedToPersonal(context.Background(), 0)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
}

func TestPublishPersonalToShared_InsertsThenUpdatesNewEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, s, ada)
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)

	added, err := e.AddEvent(ctx, AddEventInput{DayIndex: 0, Activity: "Sunset", Time: "19:00", DurationMinutes: 60})
	require.NoError(t, err)

	r, err := e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	require.True(t, r.OK, r.Message)

	stored, err := s.Get(ctx, store.SharedEvents, added.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Equal(t, "19:00", stored.Time)

	_, err = e.MoveEvent(ctx, MoveEventInput{EventID: added.EventID, Time: "19:30"})
	require.NoError(t, err)
	_, err = e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)

	stored, err = s.Get(ctx, store.SharedEvents, added.EventID)
	require.NoError(t, err)
	assert.Equal(t, "19:30", stored.Time)
	assert.Equal(t, "20:30", stored.EndTime)

	shared, err := s.List(ctx, store.SharedEvents, store.Filter{TripID: "trip-lisbon"})
	require.NoError(t, err)
	assert.Len(t, shared, 1)
	assert.Equal(t, []string{added.EventID}, dayIDs(e.Snapshot().Shared[0]))
}

func TestCopySharedToPersonal_SkipsPublishedEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, s, ada)
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)

	added, err := e.AddEvent(ctx, AddEventInput{DayIndex: 0, Activity: "Fado", Time: "21:00", DurationMinutes: 90})
	require.NoError(t, err)
	r, err := e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	require.True(t, r.OK, r.Message)

	r, err = e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Zero(t, r.Succeeded)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, []string{added.EventID}, dayIDs(e.Snapshot().Personal[0]))

	personal, err := s.List(ctx, store.PersonalEdits, store.Filter{TripID: "trip-lisbon", UserID: ada.ID})
	require.NoError(t, err)
	assert.Len(t, personal, 1)
}

func TestPublishPersonalToShared_PartialAndTotalFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, store.SharedEvents,
		sharedEvent("evt-a", 0, "09:00", "10:00", "Museum", grace),
		sharedEvent("evt-b", 0, "12:00", "13:00", "Lunch", grace),
	)
	faulty := newFaultyStore(s, "evt-b")
	e := newTestEngine(t, faulty, ada)
	require.NoError(t, e.LoadSharedSchedule(ctx))
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)
	_, err = e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)

	r, err := e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.True(t, r.Partial)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.ErrorIs(t, r.Err, errStoreDown)

	faulty.mu.Lock()
	faulty.failAll = true
	faulty.mu.Unlock()

	r, err = e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.False(t, r.Partial)
	assert.Equal(t, 2, r.Failed)
	// Local state is never rolled back.
	assert.Len(t, e.Snapshot().Personal[0].Events, 2)
}

func TestPublishPersonalToShared_OriginDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, store.SharedEvents, sharedEvent("evt-a", 0, "09:00", "10:00", "Museum", grace))
	e := newTestEngine(t, s, ada)
	require.NoError(t, e.LoadSharedSchedule(ctx))
	_, err := e.EnterEditMode(ctx, 0)
	require.NoError(t, err)
	_, err = e.CopySharedToPersonal(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, store.SharedEvents, "evt-a"))

	r, err := e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(r.Err))

	_, err = s.Get(ctx, store.SharedEvents, "evt-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublishPersonalToShared_NothingToPublish(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), ada)
	ctx := context.Background()

	_, err := e.PublishPersonalToShared(ctx, 0)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))

	_, err = e.EnterEditMode(ctx, 0)
	require.NoError(t, err)
	r, err := e.PublishPersonalToShared(ctx, 0)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Equal(t, "Nothing to publish", r.Message)
}
