package calendar

import (
	"context"

	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
)

// EnterEditMode switches to edit mode on dayIndex and loads the overlay.
// Entering the day already being edited is a no-op.
func (e *Engine) EnterEditMode(ctx context.Context, dayIndex int) (Result, error) {
	if !e.trip.HasDay(dayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", dayIndex)
	}

	e.mu.Lock()
	if e.mode == ModeEdit && e.editDay == dayIndex {
		e.mu.Unlock()
		return Result{OK: true, Message: "Already editing this day"}, nil
	}
	e.startEditLocked(dayIndex)
	e.mu.Unlock()
	e.notify(ChangedMode, ChangedPersonal)

	return e.reloadOverlay(ctx, "Editing personal schedule")
}

// SwitchDay moves edit mode to another day, discarding unsynced changes
// and reloading the overlay.
func (e *Engine) SwitchDay(ctx context.Context, dayIndex int) (Result, error) {
	if !e.trip.HasDay(dayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", dayIndex)
	}

	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return Result{}, domainerrors.Conflict("switching days requires edit mode")
	}
	e.startEditLocked(dayIndex)
	e.mu.Unlock()
	e.notify(ChangedMode, ChangedPersonal)

	return e.reloadOverlay(ctx, "Switched day")
}

// ExitEditMode returns to view mode and reloads the shared schedule. With
// unsynced changes the caller must pass discard, otherwise a conflict error
// is returned and nothing changes.
func (e *Engine) ExitEditMode(ctx context.Context, discard bool) (Result, error) {
	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return Result{OK: true, Message: "Not in edit mode"}, nil
	}
	if n := len(e.unsynced); n > 0 && !discard {
		e.mu.Unlock()
		return Result{}, domainerrors.Conflictf("%d unpublished personal %s; confirm discard to exit", n, plural(n))
	}
	e.epoch++
	e.mode = ModeView
	e.editDay = 0
	e.personal = nil
	clear(e.unsynced)
	e.mu.Unlock()
	e.notify(ChangedMode, ChangedPersonal)

	if err := e.LoadSharedSchedule(ctx); err != nil {
		return failure("Left edit mode, but the shared schedule could not be refreshed", "", err), nil
	}
	return Result{OK: true, Message: "Back to the shared schedule"}, nil
}

func (e *Engine) startEditLocked(dayIndex int) {
	e.epoch++
	e.mode = ModeEdit
	e.editDay = dayIndex
	e.personal = domain.NewDays(e.trip.NumberOfDays)
	clear(e.unsynced)
}

func (e *Engine) reloadOverlay(ctx context.Context, msg string) (Result, error) {
	if err := e.LoadPersonalOverlay(ctx); err != nil {
		return failure("Could not load your personal edits", "", err), nil
	}
	return Result{OK: true, Message: msg}, nil
}
