package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/store/sqlite"
)

var (
	ada   = domain.Participant{ID: "user-ada", Name: "Ada", Role: domain.RoleOwner}
	grace = domain.Participant{ID: "user-grace", Name: "Grace", Role: domain.RoleMember}
	linus = domain.Participant{ID: "user-linus", Name: "Linus", Role: domain.RoleMember}
)

const tripID = "trip-lisbon"

type testEnv struct {
	dbPath   string
	store    *store.Client
	events   *sse.Manager
	tracker  *presence.Tracker
	sessions *SessionManager
	calendar *CalendarService
	trips    *TripService
}

func openClient(t *testing.T, path string) *store.Client {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	backend, err := sqlite.Open(path, logger)
	require.NoError(t, err)
	client, err := store.NewClient(backend, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	env := &testEnv{dbPath: filepath.Join(t.TempDir(), "waypoint.db")}
	env.store = openClient(t, env.dbPath)

	env.events = sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go env.events.Start(ctx)
	t.Cleanup(cancel)

	env.tracker = presence.NewTracker(logger)
	env.sessions = NewSessionManager(env.store, env.events, env.tracker, SessionConfig{
		NotificationTTL: time.Minute,
	}, logger)
	t.Cleanup(func() { env.sessions.Shutdown(context.Background()) })

	env.calendar = NewCalendarService(env.sessions, logger)
	env.trips = NewTripService(env.store, env.events, logger)

	require.NoError(t, env.store.CreateTrip(context.Background(), &domain.Trip{
		ID:           tripID,
		Name:         "Lisbon",
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		NumberOfDays: 3,
		Participants: []domain.Participant{ada, grace},
		CreatedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
	return env
}

func connectStream(t *testing.T, m *sse.Manager, tripID, userID string) *sse.Client {
	t.Helper()
	c, err := m.Connect(tripID, userID)
	require.NoError(t, err)
	t.Cleanup(func() { m.Disconnect(c.ID) })
	return c
}

// waitFor reads events from c until one of type want arrives.
func waitFor(t *testing.T, c *sse.Client, want sse.EventType) sse.Event {
	t.Helper()
	return waitUntil(t, c, func(ev sse.Event) bool { return ev.Type == want })
}

// waitUntil reads events from c until match accepts one.
func waitUntil(t *testing.T, c *sse.Client, match func(sse.Event) bool) sse.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.EventChan:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return sse.Event{}
		}
	}
}

func sharedIDs(days []domain.Day, day int) []string {
	ids := []string{}
	for _, ev := range days[day].Events {
		ids = append(ids, ev.ID)
	}
	return ids
}
