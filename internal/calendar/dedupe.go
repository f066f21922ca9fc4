package calendar

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// DuplicateCopies returns the IDs of personal copies that repeat another copy
// of the same shared event. Per origin an active row outranks an inactive one
// even when the inactive row is newer, so a live overlay copy is never
// swapped for a stale one. Among rows of equal activity the newest survives,
// and ties on creation time keep the greatest ID. Rows without an origin are
// ignored.
func DuplicateCopies(rows []domain.CalendarEvent) []string {
	groups := make(map[string][]domain.CalendarEvent)
	for _, r := range rows {
		if r.OriginalEventID == "" {
			continue
		}
		groups[r.OriginalEventID] = append(groups[r.OriginalEventID], r)
	}

	var dupes []string
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keep := slices.MaxFunc(group, func(a, b domain.CalendarEvent) int {
			return cmp.Or(
				compareBool(a.IsActive, b.IsActive),
				a.CreatedAt.Compare(b.CreatedAt),
				cmp.Compare(a.ID, b.ID),
			)
		})
		for _, r := range group {
			if r.ID != keep.ID {
				dupes = append(dupes, r.ID)
			}
		}
	}
	slices.Sort(dupes)
	return dupes
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// DeduplicateCopies deletes duplicate personal copies of one user on one trip
// and returns the removed IDs.
func DeduplicateCopies(ctx context.Context, s Store, tripID, userID string) ([]string, error) {
	rows, err := s.List(ctx, store.PersonalEdits, store.Filter{TripID: tripID, UserID: userID})
	if err != nil {
		return nil, err
	}
	dupes := DuplicateCopies(rows)
	if len(dupes) == 0 {
		return nil, nil
	}
	if err := s.Delete(ctx, store.PersonalEdits, dupes...); err != nil {
		return nil, err
	}
	return dupes, nil
}

// DeduplicatePersonalCopies removes duplicate copies of the acting user from
// the store and from the loaded overlay.
func (e *Engine) DeduplicatePersonalCopies(ctx context.Context) (Result, error) {
	rows, err := e.store.List(ctx, store.PersonalEdits, store.Filter{TripID: e.trip.ID, UserID: e.user.ID})
	if err != nil {
		e.logger.Warn("failed to list personal edits for dedupe", slog.String("error", err.Error()))
		return failure("Could not check for duplicate copies", "", err), nil
	}
	dupes := DuplicateCopies(rows)
	if len(dupes) == 0 {
		return Result{OK: true, Message: "No duplicate copies found"}, nil
	}

	e.mu.Lock()
	changed := false
	for _, id := range dupes {
		if e.personal != nil && removeEverywhere(e.personal, id) {
			changed = true
		}
		delete(e.unsynced, id)
	}
	e.beginWrite(store.PersonalEdits, dupes...)
	e.mu.Unlock()
	if changed {
		e.notify(ChangedPersonal)
	}

	err = e.store.Delete(ctx, store.PersonalEdits, dupes...)
	e.finishWrite(store.PersonalEdits, dupes...)
	if err != nil {
		e.logger.Error("failed to delete duplicate copies",
			slog.Int("count", len(dupes)), slog.String("error", err.Error()))
		r := tally("Removed", "remove", 0, len(dupes), []error{err})
		return r, nil
	}

	e.logger.Info("removed duplicate personal copies", slog.Int("count", len(dupes)))
	return tally("Removed", "remove", len(dupes), 0, nil), nil
}
