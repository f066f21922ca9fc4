// Package kv is a Badger-backed record store backend.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

const (
	prefixTrip     = "trip:"
	prefixShared   = "shared:"
	prefixPersonal = "personal:"

	indexTrip     = "trip"
	indexTripUser = "trip_user"
)

// Store implements store.Backend on a Badger database.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	trips    *Entity[domain.Trip]
	shared   *Entity[domain.CalendarEvent]
	personal *Entity[domain.CalendarEvent]
}

func eventID(ev *domain.CalendarEvent) string { return ev.ID }

func byTrip(ev *domain.CalendarEvent) []string { return []string{ev.TripID} }

func byTripUser(ev *domain.CalendarEvent) []string {
	return []string{ev.TripID + "|" + ev.UserID}
}

// Open opens or creates a Badger database in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		trips:  NewEntity(db, prefixTrip, func(t *domain.Trip) string { return t.ID }),
		shared: NewEntity(db, prefixShared, eventID).
			WithIndex(indexTrip, byTrip),
		personal: NewEntity(db, prefixPersonal, eventID).
			WithIndex(indexTrip, byTrip).
			WithIndex(indexTripUser, byTripUser),
	}

	logger.Info("badger store opened", slog.String("path", dir))
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) entity(coll store.Collection) *Entity[domain.CalendarEvent] {
	if coll == store.PersonalEdits {
		return s.personal
	}
	return s.shared
}

// ListEvents returns matching events ordered by day then time.
func (s *Store) ListEvents(ctx context.Context, coll store.Collection, f store.Filter) ([]domain.CalendarEvent, error) {
	idxName, idxValue := indexTrip, f.TripID
	if coll == store.PersonalEdits && f.UserID != "" {
		idxName, idxValue = indexTripUser, f.TripID+"|"+f.UserID
	}

	events := []domain.CalendarEvent{}
	for ev, err := range s.entity(coll).ListByIndex(ctx, idxName, idxValue) {
		if err != nil {
			return nil, err
		}
		if f.Matches(ev) {
			events = append(events, *ev)
		}
	}

	slices.SortStableFunc(events, func(a, b domain.CalendarEvent) int {
		if a.DayIndex != b.DayIndex {
			return a.DayIndex - b.DayIndex
		}
		if d := clock.Minutes(a.Time) - clock.Minutes(b.Time); d != 0 {
			return d
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return events, nil
}

// GetEvent returns one event.
func (s *Store) GetEvent(ctx context.Context, coll store.Collection, id string) (*domain.CalendarEvent, error) {
	ev, err := s.entity(coll).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	normalize(coll, ev)
	return ev, nil
}

// InsertEvent stores a new event.
func (s *Store) InsertEvent(ctx context.Context, coll store.Collection, ev *domain.CalendarEvent) error {
	rec := ev.Clone()
	normalize(coll, &rec)
	rec.OtherUserEdit = false
	return s.entity(coll).Create(ctx, &rec)
}

// UpdateEvent applies p.
func (s *Store) UpdateEvent(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error) {
	ev, err := s.entity(coll).Modify(ctx, id, p.Apply)
	if err != nil {
		return nil, err
	}
	normalize(coll, ev)
	return ev, nil
}

// DeleteEvents removes ids and returns what existed.
func (s *Store) DeleteEvents(ctx context.Context, coll store.Collection, ids []string) ([]domain.CalendarEvent, error) {
	var deleted []domain.CalendarEvent
	for _, id := range ids {
		ev, err := s.entity(coll).Delete(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ev != nil {
			deleted = append(deleted, *ev)
		}
	}
	return deleted, nil
}

// GetTrip returns a trip.
func (s *Store) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	return s.trips.Get(ctx, id)
}

// CreateTrip stores a trip.
func (s *Store) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	if strings.TrimSpace(trip.ID) == "" {
		return store.ErrInvalidInput
	}
	return s.trips.Create(ctx, trip)
}

// SetTripPublic flips the public flag.
func (s *Store) SetTripPublic(ctx context.Context, id string, public bool) (*domain.Trip, error) {
	return s.trips.Modify(ctx, id, func(t *domain.Trip) { t.IsPublic = public })
}

// normalize fixes the collection-derived flags so records read the same as
// from the SQL backends.
func normalize(coll store.Collection, ev *domain.CalendarEvent) {
	if coll == store.PersonalEdits {
		ev.IsPersonalEdit = true
		ev.Status = ""
		return
	}
	ev.IsPersonalEdit = false
	ev.UserID = ""
	ev.OriginalEventID = ""
	ev.IsActive = false
	if ev.Status == "" {
		ev.Status = domain.StatusApproved
	}
}
