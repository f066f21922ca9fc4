package calendar

import (
	"context"
	"log/slog"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// ApplyRemoteChange folds one pushed record change into local state.
// Changes to records with an unsettled local write are skipped unless they
// are deletes. Personal changes are ignored outside edit mode.
func (e *Engine) ApplyRemoteChange(ctx context.Context, change store.Change) {
	if change.TripID() != e.trip.ID {
		return
	}

	var (
		kind   ChangeKind
		reload bool
	)

	e.mu.Lock()
	switch change.Collection {
	case store.SharedEvents:
		if e.applySharedLocked(change) {
			kind = ChangedShared
		}
	case store.PersonalEdits:
		var changed bool
		changed, reload = e.applyPersonalLocked(change)
		if changed {
			kind = ChangedPersonal
		}
	}
	e.mu.Unlock()

	if reload {
		// A record of another user surfaced in the overlay; rebuild from the store.
		if err := e.LoadPersonalOverlay(ctx); err != nil {
			e.logger.Warn("overlay reload after foreign change failed", slog.String("error", err.Error()))
		}
		return
	}
	if kind != "" {
		e.notify(kind)
	}
}

func (e *Engine) applySharedLocked(change store.Change) bool {
	rec := change.Record
	if change.Type == store.ChangeDelete {
		return e.removeShared(rec.ID)
	}
	if e.writing(store.SharedEvents, rec.ID) {
		e.logger.Debug("skipping remote change for record with local write in flight",
			slog.String("event_id", rec.ID))
		return false
	}
	e.upsertShared(rec)
	return true
}

// applyPersonalLocked reports whether the overlay changed and whether it
// must be reloaded from the store.
func (e *Engine) applyPersonalLocked(change store.Change) (changed, reload bool) {
	if e.mode != ModeEdit || e.personal == nil {
		return false, false
	}

	rec := change.Record
	if !e.isOwnEdit(&rec) {
		if _, _, _, ok := findIn(e.personal, rec.ID); ok {
			return false, true
		}
		return false, false
	}

	if change.Type == store.ChangeDelete || !rec.IsActive {
		return removeEverywhere(e.personal, rec.ID), false
	}
	if e.writing(store.PersonalEdits, rec.ID) {
		return false, false
	}

	removeEverywhere(e.personal, rec.ID)
	if !e.trip.HasDay(rec.DayIndex) {
		return true, false
	}
	rec.IsPersonalEdit = true
	rec.OtherUserEdit = false
	e.personal[rec.DayIndex].Upsert(rec)
	return true, false
}

// markOwnership recomputes the derived foreign-edit flag on an overlay event.
func (e *Engine) markOwnership(ev *domain.CalendarEvent) {
	ev.OtherUserEdit = ev.IsPersonalEdit && !e.isOwnEdit(ev)
}
