// Package presence tracks who is connected to a trip's live calendar and
// holds the transient notifications shown to each session.
package presence

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

// SyncHandler receives the full presence list of a trip after any change.
type SyncHandler func(tripID string, users []domain.Presence)

type connection struct {
	joinedAt   time.Time
	updatedAt  time.Time
	user       domain.Participant
	viewingDay int
	editMode   bool
}

// Tracker holds live connections per trip. Several connections of one user
// collapse into a single presence entry.
type Tracker struct {
	logger   *slog.Logger
	now      func() time.Time
	trips    map[string]map[string]*connection // tripID -> connID -> connection
	handlers []SyncHandler
	mu       sync.Mutex
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		logger: logger,
		now:    time.Now,
		trips:  make(map[string]map[string]*connection),
	}
}

// OnSync registers a handler called after every join, leave, or update.
// Handlers run synchronously without the tracker lock held.
func (t *Tracker) OnSync(h SyncHandler) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

// Join registers a connection of user on tripID.
func (t *Tracker) Join(tripID, connID string, user domain.Participant) []domain.Presence {
	now := t.now()
	t.mu.Lock()
	conns, ok := t.trips[tripID]
	if !ok {
		conns = make(map[string]*connection)
		t.trips[tripID] = conns
	}
	conns[connID] = &connection{
		user:       user,
		joinedAt:   now,
		updatedAt:  now,
		viewingDay: -1,
	}
	users := t.listLocked(tripID)
	t.mu.Unlock()

	t.logger.Debug("presence joined",
		slog.String("trip_id", tripID),
		slog.String("user_id", user.ID),
		slog.String("conn_id", connID))
	t.sync(tripID, users)
	return users
}

// Leave removes a connection. Unknown connections are ignored.
func (t *Tracker) Leave(tripID, connID string) []domain.Presence {
	t.mu.Lock()
	conns := t.trips[tripID]
	if _, ok := conns[connID]; !ok {
		users := t.listLocked(tripID)
		t.mu.Unlock()
		return users
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(t.trips, tripID)
	}
	users := t.listLocked(tripID)
	t.mu.Unlock()

	t.sync(tripID, users)
	return users
}

// Update records what a connection is looking at. It reports false when
// the connection is unknown.
func (t *Tracker) Update(tripID, connID string, viewingDay int, editMode bool) ([]domain.Presence, bool) {
	t.mu.Lock()
	c, ok := t.trips[tripID][connID]
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	c.viewingDay = viewingDay
	c.editMode = editMode
	c.updatedAt = t.now()
	users := t.listLocked(tripID)
	t.mu.Unlock()

	t.sync(tripID, users)
	return users, true
}

// List returns the current presence list of a trip.
func (t *Tracker) List(tripID string) []domain.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listLocked(tripID)
}

// Connections returns the number of open connections on a trip.
func (t *Tracker) Connections(tripID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trips[tripID])
}

func (t *Tracker) listLocked(tripID string) []domain.Presence {
	byUser := make(map[string]*domain.Presence)
	latest := make(map[string]time.Time)
	for _, c := range t.trips[tripID] {
		p, ok := byUser[c.user.ID]
		if !ok {
			p = &domain.Presence{
				UserID:      c.user.ID,
				Name:        c.user.Name,
				Avatar:      c.user.Avatar,
				ConnectedAt: c.joinedAt,
				ViewingDay:  c.viewingDay,
				EditMode:    c.editMode,
			}
			byUser[c.user.ID] = p
			latest[c.user.ID] = c.updatedAt
			continue
		}
		if c.joinedAt.Before(p.ConnectedAt) {
			p.ConnectedAt = c.joinedAt
		}
		if c.updatedAt.After(latest[c.user.ID]) {
			p.ViewingDay, p.EditMode = c.viewingDay, c.editMode
			latest[c.user.ID] = c.updatedAt
		}
	}

	users := make([]domain.Presence, 0, len(byUser))
	for _, p := range byUser {
		users = append(users, *p)
	}
	slices.SortFunc(users, func(a, b domain.Presence) int {
		return cmp.Or(a.ConnectedAt.Compare(b.ConnectedAt), cmp.Compare(a.UserID, b.UserID))
	})

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}
	colors := assignColors(ids)
	for i := range users {
		users[i].Color = colors[users[i].UserID]
	}
	return users
}

func (t *Tracker) sync(tripID string, users []domain.Presence) {
	t.mu.Lock()
	handlers := slices.Clone(t.handlers)
	t.mu.Unlock()
	for _, h := range handlers {
		h(tripID, slices.Clone(users))
	}
}
