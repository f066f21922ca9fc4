// Package calendar holds the per-user calendar session engine: the shared
// schedule and personal overlay of one trip, kept consistent across local
// optimistic mutations, pushed store changes, and periodic full reconciles.
//
// All state lives in an Engine and is guarded by its mutex. Store calls are
// made with the mutex released; results that arrive after a mode change are
// ignored for state purposes.
package calendar

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/id"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// Store is the subset of the record store client the engine needs.
type Store interface {
	List(ctx context.Context, coll store.Collection, f store.Filter) ([]domain.CalendarEvent, error)
	Get(ctx context.Context, coll store.Collection, id string) (*domain.CalendarEvent, error)
	Insert(ctx context.Context, coll store.Collection, ev *domain.CalendarEvent) error
	Update(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error)
	Delete(ctx context.Context, coll store.Collection, ids ...string) error
}

// Mode is the calendar display mode.
type Mode string

// Display modes.
const (
	ModeView Mode = "view"
	ModeEdit Mode = "edit"
)

// ChangeKind tells an observer which part of the state changed.
type ChangeKind string

// Change kinds.
const (
	ChangedShared   ChangeKind = "shared"
	ChangedPersonal ChangeKind = "personal"
	ChangedMode     ChangeKind = "mode"
	ChangedPresence ChangeKind = "presence"
)

// DefaultPixelsPerHour is used when no scale is configured.
const DefaultPixelsPerHour = 60

// Options configures an Engine.
type Options struct {
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func(prefix string) (string, error)
	PixelsPerHour float64
}

// Engine is one user's calendar session on one trip.
type Engine struct {
	store     Store
	trip      domain.Trip
	user      domain.Participant
	logger    *slog.Logger
	now       func() time.Time
	newID     func(prefix string) (string, error)
	observer  func(ChangeKind)
	pxPerHour float64

	mu           sync.Mutex
	shared       []domain.Day
	pending      []domain.CalendarEvent
	ownProposals []domain.CalendarEvent
	personal     []domain.Day
	activeUsers  []domain.Presence
	mode         Mode
	editDay      int
	// inflight counts unsettled local writes per record.
	inflight map[writeKey]int
	// unsynced holds personal edits changed since the last publish.
	unsynced map[string]struct{}
	epoch    uint64
}

// New creates a session for userID. The user must be a participant of trip.
func New(s Store, trip *domain.Trip, userID string, opts Options) (*Engine, error) {
	user, ok := trip.Participant(userID)
	if !ok {
		for _, p := range trip.Participants {
			if UserIDsMatch(p.ID, userID) {
				user, ok = p, true
				break
			}
		}
	}
	if !ok {
		return nil, domainerrors.Forbiddenf("user %s is not a participant of trip %s", userID, trip.ID)
	}
	if trip.NumberOfDays <= 0 {
		return nil, domainerrors.Validationf("trip %s has no days", trip.ID)
	}

	e := &Engine{
		store:     s,
		trip:      *trip,
		user:      user,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		pxPerHour: opts.PixelsPerHour,
		shared:    domain.NewDays(trip.NumberOfDays),
		mode:      ModeView,
		inflight:  make(map[writeKey]int),
		unsynced:  make(map[string]struct{}),
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With(slog.String("trip_id", trip.ID), slog.String("user_id", user.ID))
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = id.Generate
	}
	if e.pxPerHour <= 0 {
		e.pxPerHour = DefaultPixelsPerHour
	}
	return e, nil
}

// SetObserver registers fn to be called after state changes. fn runs
// without the engine lock held and may call Snapshot.
func (e *Engine) SetObserver(fn func(ChangeKind)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

func (e *Engine) notify(kinds ...ChangeKind) {
	e.mu.Lock()
	fn := e.observer
	e.mu.Unlock()
	if fn == nil {
		return
	}
	for _, k := range kinds {
		fn(k)
	}
}

// TripID returns the session's trip.
func (e *Engine) TripID() string { return e.trip.ID }

// User returns the acting participant.
func (e *Engine) User() domain.Participant { return e.user }

// Mode returns the current mode and edit day (-1 in view mode).
func (e *Engine) Mode() (Mode, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeView {
		return ModeView, -1
	}
	return e.mode, e.editDay
}

// State is a deep copy of the engine state.
type State struct {
	Heights      map[string]float64     `json:"event_heights"`
	Mode         Mode                   `json:"mode"`
	Shared       []domain.Day           `json:"shared_days"`
	Personal     []domain.Day           `json:"personal_days"`
	Pending      []domain.CalendarEvent `json:"pending_approval"`
	OwnProposals []domain.CalendarEvent `json:"own_proposals"`
	ActiveUsers  []domain.Presence      `json:"active_users"`
	EditDay      int                    `json:"edit_day"`
	Unsynced     int                    `json:"unsynced"`
	Epoch        uint64                 `json:"epoch"`
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Mode:         e.mode,
		EditDay:      -1,
		Shared:       domain.CloneDays(e.shared),
		Personal:     domain.CloneDays(e.personal),
		Pending:      slices.Clone(e.pending),
		OwnProposals: slices.Clone(e.ownProposals),
		ActiveUsers:  slices.Clone(e.activeUsers),
		Heights:      e.heightsLocked(),
		Unsynced:     len(e.unsynced),
		Epoch:        e.epoch,
	}
	if e.mode == ModeEdit {
		st.EditDay = e.editDay
	}
	return st
}

// EventHeights returns the display height of every loaded event.
func (e *Engine) EventHeights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heightsLocked()
}

func (e *Engine) heightsLocked() map[string]float64 {
	heights := make(map[string]float64)
	for _, days := range [][]domain.Day{e.shared, e.personal} {
		for _, d := range days {
			for _, ev := range d.Events {
				heights[ev.ID] = clock.Height(ev.Time, ev.EndTime, e.pxPerHour)
			}
		}
	}
	return heights
}

// SetActiveUsers replaces the presence list shown with the session.
func (e *Engine) SetActiveUsers(users []domain.Presence) {
	e.mu.Lock()
	e.activeUsers = slices.Clone(users)
	e.mu.Unlock()
	e.notify(ChangedPresence)
}

// Unsynced returns the IDs of personal edits changed since the last publish.
func (e *Engine) Unsynced() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.unsynced))
}

type writeKey struct {
	coll store.Collection
	id   string
}

func (e *Engine) beginWrite(coll store.Collection, ids ...string) {
	for _, id := range ids {
		e.inflight[writeKey{coll, id}]++
	}
}

func (e *Engine) endWrite(coll store.Collection, ids ...string) {
	for _, id := range ids {
		k := writeKey{coll, id}
		if e.inflight[k] <= 1 {
			delete(e.inflight, k)
			continue
		}
		e.inflight[k]--
	}
}

func (e *Engine) writing(coll store.Collection, id string) bool {
	return e.inflight[writeKey{coll, id}] > 0
}

// locate finds an event in the layer the current mode edits: the overlay in
// edit mode, the shared schedule otherwise.
func (e *Engine) locate(eventID string) (days []domain.Day, dayIdx, pos int, err error) {
	if e.mode == ModeEdit {
		if ds, di, p, ok := findIn(e.personal, eventID); ok {
			return ds, di, p, nil
		}
		if _, _, _, ok := findIn(e.shared, eventID); ok {
			return nil, 0, 0, domainerrors.Conflictf("event %s is on the shared schedule; copy it to your personal schedule first", eventID)
		}
		return nil, 0, 0, domainerrors.NotFoundf("event %s not found", eventID)
	}
	if ds, di, p, ok := findIn(e.shared, eventID); ok {
		return ds, di, p, nil
	}
	return nil, 0, 0, domainerrors.NotFoundf("event %s not found", eventID)
}

// removeEverywhere deletes id from every day of days.
func removeEverywhere(days []domain.Day, id string) bool {
	removed := false
	for i := range days {
		if days[i].Remove(id) {
			removed = true
		}
	}
	return removed
}

// isOwnEdit recomputes whether a personal edit belongs to the acting user.
func (e *Engine) isOwnEdit(ev *domain.CalendarEvent) bool {
	if !UserIDsMatch(ev.CreatedBy.ID, e.user.ID) {
		return false
	}
	return ev.UserID == "" || UserIDsMatch(ev.UserID, e.user.ID)
}
