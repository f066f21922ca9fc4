package presence

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

var (
	ada   = domain.Participant{ID: "user-ada", Name: "Ada"}
	grace = domain.Participant{ID: "user-grace", Name: "Grace"}
)

func newTestTracker() *Tracker {
	tr := NewTracker(nil)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return tr
}

func TestTracker_CollapsesConnectionsPerUser(t *testing.T) {
	tr := newTestTracker()

	tr.Join("trip-1", "c1", ada)
	tr.Join("trip-1", "c2", grace)
	users := tr.Join("trip-1", "c3", ada)

	require.Len(t, users, 2)
	assert.Equal(t, "user-ada", users[0].UserID)
	assert.Equal(t, "user-grace", users[1].UserID)
	assert.Equal(t, -1, users[0].ViewingDay)
	assert.Equal(t, 3, tr.Connections("trip-1"))

	users = tr.Leave("trip-1", "c1")
	require.Len(t, users, 2, "ada still has a second connection")

	users = tr.Leave("trip-1", "c3")
	require.Len(t, users, 1)
	assert.Equal(t, "user-grace", users[0].UserID)

	tr.Leave("trip-1", "c2")
	assert.Empty(t, tr.List("trip-1"))
	assert.Zero(t, tr.Connections("trip-1"))
}

func TestTracker_UpdateUsesLatestConnection(t *testing.T) {
	tr := newTestTracker()
	tr.Join("trip-1", "phone", ada)
	tr.Join("trip-1", "laptop", ada)

	_, ok := tr.Update("trip-1", "phone", 2, false)
	require.True(t, ok)
	users, ok := tr.Update("trip-1", "laptop", 1, true)
	require.True(t, ok)

	require.Len(t, users, 1)
	assert.Equal(t, 1, users[0].ViewingDay)
	assert.True(t, users[0].EditMode)

	_, ok = tr.Update("trip-1", "missing", 0, false)
	assert.False(t, ok)
}

func TestTracker_OnSync(t *testing.T) {
	tr := newTestTracker()
	var got [][]domain.Presence
	tr.OnSync(func(tripID string, users []domain.Presence) {
		assert.Equal(t, "trip-1", tripID)
		got = append(got, users)
	})

	tr.Join("trip-1", "c1", ada)
	tr.Update("trip-1", "c1", 0, false)
	tr.Leave("trip-1", "c1")
	tr.Leave("trip-1", "c1")

	require.Len(t, got, 3)
	assert.Len(t, got[0], 1)
	assert.Empty(t, got[2])
}

func TestTracker_TripsAreIndependent(t *testing.T) {
	tr := newTestTracker()
	tr.Join("trip-1", "c1", ada)
	tr.Join("trip-2", "c2", grace)

	assert.Len(t, tr.List("trip-1"), 1)
	assert.Equal(t, "user-grace", tr.List("trip-2")[0].UserID)
}

func TestColors(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9A-F]{6}$`)

	assert.Equal(t, ColorFor("user-ada"), ColorFor("user-ada"))
	assert.Regexp(t, hex, ColorFor("user-ada"))
	assert.Regexp(t, hex, ColorFor(""))

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	colors := assignColors(ids)
	seen := make(map[string]bool)
	for _, uid := range ids {
		assert.Regexp(t, hex, colors[uid])
		assert.False(t, seen[colors[uid]], "color %s assigned twice", colors[uid])
		seen[colors[uid]] = true
	}
}

func TestTracker_PresenceCarriesColor(t *testing.T) {
	tr := newTestTracker()
	users := tr.Join("trip-1", "c1", ada)
	require.Len(t, users, 1)
	assert.NotEmpty(t, users[0].Color)
}
