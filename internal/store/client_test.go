package store_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/store/sqlite"
)

func newClient(t *testing.T) *store.Client {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "client.db"), logger)
	require.NoError(t, err)
	client, err := store.NewClient(backend, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

type recorder struct {
	mu      sync.Mutex
	changes []store.Change
}

func (r *recorder) handle(c store.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []store.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Change(nil), r.changes...)
}

func TestClient_PublishesAfterWrites(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	rec := &recorder{}
	sub := client.Subscribe("trip-1", rec.handle)
	defer sub.Close()

	ev := &domain.CalendarEvent{
		ID: "evt-1", TripID: "trip-1", Activity: "Breakfast", Time: "08:00", EndTime: "09:00",
		CreatedBy: domain.Author{ID: "user-a", Name: "Ada"}, CreatedAt: time.Now(),
	}
	require.NoError(t, client.Insert(ctx, store.SharedEvents, ev))

	at := "08:30"
	_, err := client.Update(ctx, store.SharedEvents, "evt-1", store.Patch{Time: &at})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, store.SharedEvents, "evt-1", "evt-unknown"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	changes := rec.snapshot()
	assert.Equal(t, store.ChangeInsert, changes[0].Type)
	assert.Equal(t, store.ChangeUpdate, changes[1].Type)
	assert.Equal(t, "08:30", changes[1].Record.Time)
	assert.Equal(t, store.ChangeDelete, changes[2].Type)
	assert.Equal(t, "evt-1", changes[2].Record.ID)
}

func TestClient_FailedWriteDoesNotPublish(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	rec := &recorder{}
	sub := client.Subscribe("trip-1", rec.handle)
	defer sub.Close()

	at := "10:00"
	_, err := client.Update(ctx, store.SharedEvents, "evt-missing", store.Patch{Time: &at})
	assert.ErrorIs(t, err, store.ErrNotFound)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestClient_RejectsUnknownCollection(t *testing.T) {
	client := newClient(t)

	_, err := client.List(context.Background(), store.Collection("trips"), store.Filter{TripID: "trip-1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	err = client.Insert(context.Background(), store.SharedEvents, &domain.CalendarEvent{ID: "evt-1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
