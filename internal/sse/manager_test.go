package sse

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_FiltersByTripAndUser(t *testing.T) {
	m := newTestManager(t)

	adaLisbon, err := m.Connect("trip-lisbon", "user-ada")
	require.NoError(t, err)
	graceLisbon, err := m.Connect("trip-lisbon", "user-grace")
	require.NoError(t, err)
	adaPorto, err := m.Connect("trip-porto", "user-ada")
	require.NoError(t, err)
	assert.Equal(t, 3, m.ClientCount())

	m.Emit(NewPresenceEvent("trip-lisbon", []domain.Presence{{UserID: "user-ada"}}))
	assert.Equal(t, EventPresenceSync, receive(t, adaLisbon).Type)
	assert.Equal(t, EventPresenceSync, receive(t, graceLisbon).Type)
	assertNothing(t, adaPorto)

	m.Emit(NewModeEvent("trip-lisbon", "user-ada", "edit", 1))
	ev := receive(t, adaLisbon)
	assert.Equal(t, EventCalendarMode, ev.Type)
	assert.Equal(t, ModeEventData{Mode: "edit", EditDay: 1}, ev.Data)
	assertNothing(t, graceLisbon)
}

func TestManager_Watching(t *testing.T) {
	m := newTestManager(t)
	c, err := m.Connect("trip-lisbon", "user-ada")
	require.NoError(t, err)

	assert.True(t, m.Watching("trip-lisbon", "user-ada"))
	assert.False(t, m.Watching("trip-lisbon", "user-grace"))

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.False(t, m.Watching("trip-lisbon", "user-ada"))
	assert.Zero(t, m.ClientCount())
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	m := newTestManager(t)
	c, err := m.Connect("trip-lisbon", "user-ada")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	select {
	case <-c.Done:
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
	// Emit after shutdown is dropped silently.
	m.Emit(NewHeartbeatEvent())
	assert.Zero(t, m.ClientCount())
}
