package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/store/sqlite"
)

var (
	ada      = domain.Participant{ID: "user-ada", Name: "Ada", Role: domain.RoleOwner}
	grace    = domain.Participant{ID: "user-grace", Name: "Grace", Role: domain.RoleMember}
	baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

func testTrip() *domain.Trip {
	return &domain.Trip{
		ID:           "trip-lisbon",
		Name:         "Lisbon",
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		NumberOfDays: 3,
		Participants: []domain.Participant{ada, grace},
	}
}

func newTestStore(t *testing.T) *store.Client {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "calendar.db"), logger)
	require.NoError(t, err)
	client, err := store.NewClient(backend, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// sequentialIDs returns an ID generator producing prefix-1, prefix-2, ...
func sequentialIDs() func(string) (string, error) {
	var n atomic.Int64
	return func(prefix string) (string, error) {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1)), nil
	}
}

func newTestEngine(t *testing.T, s Store, user domain.Participant) *Engine {
	t.Helper()
	var tick atomic.Int64
	e, err := New(s, testTrip(), user.ID, Options{
		NewID: sequentialIDs(),
		Now: func() time.Time {
			return baseTime.Add(time.Duration(tick.Add(1)) * time.Second)
		},
	})
	require.NoError(t, err)
	return e
}

func sharedEvent(id string, day int, start, end, activity string, author domain.Participant) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		ID:        id,
		TripID:    "trip-lisbon",
		DayIndex:  day,
		Activity:  activity,
		Time:      start,
		EndTime:   end,
		CreatedBy: author.Author(),
		CreatedAt: baseTime,
		Status:    domain.StatusApproved,
	}
}

func personalEvent(id string, day int, start, end, activity string, owner domain.Participant) *domain.CalendarEvent {
	return &domain.CalendarEvent{
		ID:             id,
		TripID:         "trip-lisbon",
		UserID:         owner.ID,
		DayIndex:       day,
		Activity:       activity,
		Time:           start,
		EndTime:        end,
		CreatedBy:      owner.Author(),
		CreatedAt:      baseTime,
		IsPersonalEdit: true,
		IsActive:       true,
	}
}

func seed(t *testing.T, s *store.Client, coll store.Collection, events ...*domain.CalendarEvent) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, s.Insert(context.Background(), coll, ev))
	}
}

func dayIDs(d domain.Day) []string {
	ids := make([]string, len(d.Events))
	for i, ev := range d.Events {
		ids[i] = ev.ID
	}
	return ids
}

var errStoreDown = errors.New("store unavailable")

// faultyStore fails writes for selected IDs, or all writes when failAll is set.
type faultyStore struct {
	Store
	mu      sync.Mutex
	failIDs map[string]bool
	failAll bool
}

func newFaultyStore(inner Store, ids ...string) *faultyStore {
	f := &faultyStore{Store: inner, failIDs: make(map[string]bool)}
	for _, id := range ids {
		f.failIDs[id] = true
	}
	return f
}

func (f *faultyStore) fails(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failAll || f.failIDs[id]
}

func (f *faultyStore) Insert(ctx context.Context, coll store.Collection, ev *domain.CalendarEvent) error {
	if f.fails(ev.ID) {
		return errStoreDown
	}
	return f.Store.Insert(ctx, coll, ev)
}

func (f *faultyStore) Update(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error) {
	if f.fails(id) {
		return nil, errStoreDown
	}
	return f.Store.Update(ctx, coll, id, p)
}

func (f *faultyStore) Delete(ctx context.Context, coll store.Collection, ids ...string) error {
	for _, id := range ids {
		if f.fails(id) {
			return errStoreDown
		}
	}
	return f.Store.Delete(ctx, coll, ids...)
}

// gatedStore blocks updates and deletes until release is closed.
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(inner Store) *gatedStore {
	return &gatedStore{Store: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedStore) Update(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Update(ctx, coll, id, p)
}

func (g *gatedStore) Delete(ctx context.Context, coll store.Collection, ids ...string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Delete(ctx, coll, ids...)
}
