package calendar

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// sharedView is the shared schedule split by approval status.
type sharedView struct {
	days         []domain.Day
	pending      []domain.CalendarEvent
	ownProposals []domain.CalendarEvent
}

// LoadSharedSchedule replaces the shared schedule with the store's state.
// On a read error the previous state is kept.
func (e *Engine) LoadSharedSchedule(ctx context.Context) error {
	events, err := e.store.List(ctx, store.SharedEvents, store.Filter{TripID: e.trip.ID})
	if err != nil {
		e.logger.Warn("failed to load shared schedule", slog.String("error", err.Error()))
		return err
	}

	e.mu.Lock()
	e.setSharedLocked(e.buildSharedLocked(events))
	e.mu.Unlock()

	e.notify(ChangedShared)
	return nil
}

// ReconcileFullSnapshot fetches the whole shared schedule and replaces local
// state only when it differs. Records with unsettled local writes keep their
// local version. Reports whether anything changed.
func (e *Engine) ReconcileFullSnapshot(ctx context.Context) (bool, error) {
	events, err := e.store.List(ctx, store.SharedEvents, store.Filter{TripID: e.trip.ID})
	if err != nil {
		e.logger.Warn("reconcile fetch failed", slog.String("error", err.Error()))
		return false, err
	}

	e.mu.Lock()
	next := e.buildSharedLocked(events)
	changed := !sameSchedule(e.shared, next.days) ||
		!sameIDs(e.pending, next.pending) ||
		!sameIDs(e.ownProposals, next.ownProposals)
	if changed {
		e.setSharedLocked(next)
	}
	e.mu.Unlock()

	if changed {
		e.logger.Debug("reconcile replaced shared schedule", slog.Int("events", len(events)))
		e.notify(ChangedShared)
	}
	return changed, nil
}

// LoadPersonalOverlay rebuilds the overlay from the store. It is a no-op in
// view mode, and its result is dropped if the mode changed meanwhile.
func (e *Engine) LoadPersonalOverlay(ctx context.Context) error {
	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	e.mu.Unlock()

	rows, err := e.store.List(ctx, store.PersonalEdits, store.Filter{
		TripID:     e.trip.ID,
		UserID:     e.user.ID,
		ActiveOnly: true,
	})
	if err != nil {
		e.logger.Warn("failed to load personal overlay", slog.String("error", err.Error()))
		return err
	}

	e.mu.Lock()
	if e.epoch != epoch || e.mode != ModeEdit {
		e.mu.Unlock()
		e.logger.Debug("dropping stale personal overlay load")
		return nil
	}

	days := domain.NewDays(e.trip.NumberOfDays)
	for _, row := range rows {
		// Local state wins until the write settles; the loop below re-adds it.
		if e.writing(store.PersonalEdits, row.ID) {
			continue
		}
		if !e.isOwnEdit(&row) {
			e.logger.Warn("skipping personal edit of another user",
				slog.String("event_id", row.ID),
				slog.String("created_by", row.CreatedBy.ID))
			continue
		}
		if !row.IsActive || !e.trip.HasDay(row.DayIndex) {
			continue
		}
		row.IsPersonalEdit = true
		row.OtherUserEdit = false
		days[row.DayIndex].Events = append(days[row.DayIndex].Events, row)
	}
	for k := range e.inflight {
		if k.coll != store.PersonalEdits {
			continue
		}
		if ds, di, pos, ok := findIn(e.personal, k.id); ok {
			days[di].Events = append(days[di].Events, ds[di].Events[pos])
		}
	}
	for i := range days {
		days[i].Sort()
	}
	e.personal = days
	e.mu.Unlock()

	e.notify(ChangedPersonal)
	return nil
}

func (e *Engine) setSharedLocked(v sharedView) {
	e.shared = v.days
	e.pending = v.pending
	e.ownProposals = v.ownProposals
}

// buildSharedLocked turns store rows into a shared view. Records with an
// unsettled local write keep their local presence or absence.
func (e *Engine) buildSharedLocked(events []domain.CalendarEvent) sharedView {
	v := sharedView{
		days:         domain.NewDays(e.trip.NumberOfDays),
		pending:      []domain.CalendarEvent{},
		ownProposals: []domain.CalendarEvent{},
	}
	for _, ev := range events {
		if e.writing(store.SharedEvents, ev.ID) {
			continue
		}
		e.placeShared(&v, ev)
	}
	for k := range e.inflight {
		if k.coll != store.SharedEvents {
			continue
		}
		if local, ok := e.localShared(k.id); ok {
			e.placeShared(&v, local)
		}
	}
	for i := range v.days {
		v.days[i].Sort()
	}
	sortProposals(v.pending)
	sortProposals(v.ownProposals)
	return v
}

// placeShared files ev by status. Rejected and out-of-range events are dropped.
func (e *Engine) placeShared(v *sharedView, ev domain.CalendarEvent) {
	if !e.trip.HasDay(ev.DayIndex) {
		e.logger.Debug("dropping shared event outside trip days",
			slog.String("event_id", ev.ID), slog.Int("day_index", ev.DayIndex))
		return
	}
	ev.IsPersonalEdit = false
	ev.OtherUserEdit = false
	switch ev.Status {
	case "", domain.StatusApproved:
		v.days[ev.DayIndex].Events = append(v.days[ev.DayIndex].Events, ev)
	case domain.StatusProposed:
		if UserIDsMatch(ev.CreatedBy.ID, e.user.ID) {
			v.ownProposals = append(v.ownProposals, ev)
		} else {
			v.pending = append(v.pending, ev)
		}
	}
}

// localShared finds the local copy of a shared record.
func (e *Engine) localShared(id string) (domain.CalendarEvent, bool) {
	if ds, di, pos, ok := findIn(e.shared, id); ok {
		return ds[di].Events[pos], true
	}
	for _, list := range [][]domain.CalendarEvent{e.pending, e.ownProposals} {
		if i := slices.IndexFunc(list, func(ev domain.CalendarEvent) bool { return ev.ID == id }); i >= 0 {
			return list[i], true
		}
	}
	return domain.CalendarEvent{}, false
}

// removeShared drops id from the schedule and both proposal lists.
func (e *Engine) removeShared(id string) bool {
	removed := removeEverywhere(e.shared, id)
	match := func(ev domain.CalendarEvent) bool { return ev.ID == id }
	if n := len(e.pending); n > 0 {
		e.pending = slices.DeleteFunc(e.pending, match)
		removed = removed || len(e.pending) != n
	}
	if n := len(e.ownProposals); n > 0 {
		e.ownProposals = slices.DeleteFunc(e.ownProposals, match)
		removed = removed || len(e.ownProposals) != n
	}
	return removed
}

// upsertShared files one shared record into local state.
func (e *Engine) upsertShared(ev domain.CalendarEvent) {
	e.removeShared(ev.ID)
	v := sharedView{days: e.shared, pending: e.pending, ownProposals: e.ownProposals}
	e.placeShared(&v, ev)
	e.pending, e.ownProposals = v.pending, v.ownProposals
	if e.trip.HasDay(ev.DayIndex) {
		e.shared[ev.DayIndex].Sort()
	}
	sortProposals(e.pending)
	sortProposals(e.ownProposals)
}

func findIn(days []domain.Day, id string) ([]domain.Day, int, int, bool) {
	for i := range days {
		if p := days[i].Find(id); p >= 0 {
			return days, i, p, true
		}
	}
	return nil, 0, 0, false
}

func sortProposals(list []domain.CalendarEvent) {
	slices.SortStableFunc(list, func(a, b domain.CalendarEvent) int {
		return cmp.Or(
			cmp.Compare(a.DayIndex, b.DayIndex),
			cmp.Compare(clock.Minutes(a.Time), clock.Minutes(b.Time)),
		)
	})
}

// sameSchedule compares two schedules by ID set and per-event content.
func sameSchedule(a, b []domain.Day) bool {
	index := func(days []domain.Day) map[string]domain.CalendarEvent {
		m := make(map[string]domain.CalendarEvent)
		for _, d := range days {
			for _, ev := range d.Events {
				m[ev.ID] = ev
			}
		}
		return m
	}
	ma, mb := index(a), index(b)
	if len(ma) != len(mb) {
		return false
	}
	for id, ea := range ma {
		eb, ok := mb[id]
		if !ok || !ea.SameContent(&eb) {
			return false
		}
	}
	return true
}

func sameIDs(a, b []domain.CalendarEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameContent(&b[i]) {
			return false
		}
	}
	return true
}
