package calendar

import (
	"context"
	"log/slog"
	"strings"

	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/id"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// AddEventInput describes a new event.
type AddEventInput struct {
	Coordinates     *domain.Coordinates `json:"coordinates,omitempty"`
	Activity        string              `json:"activity" validate:"required,max=200"`
	Time            string              `json:"time" validate:"required,clock"`
	Location        string              `json:"location,omitempty" validate:"max=300"`
	DayIndex        int                 `json:"day_index" validate:"gte=0"`
	DurationMinutes int                 `json:"duration_minutes" validate:"gt=0,lte=1440"`
}

// MoveEventInput describes a reschedule. An empty EndTime keeps the
// event's duration; a nil DayIndex keeps its day.
type MoveEventInput struct {
	DayIndex *int   `json:"day_index,omitempty" validate:"omitempty,gte=0"`
	EventID  string `json:"-"`
	Time     string `json:"time" validate:"required,clock"`
	EndTime  string `json:"end_time,omitempty" validate:"omitempty,clock"`
}

// defaultDuration is used when a stored event has an unreadable end time.
const defaultDuration = 60

// AddEvent creates an event on the shared schedule in view mode, or in the
// personal overlay in edit mode. Local state updates before the store write.
func (e *Engine) AddEvent(ctx context.Context, in AddEventInput) (Result, error) {
	in.Activity = strings.TrimSpace(in.Activity)
	if in.Activity == "" {
		return Result{}, domainerrors.Validation("activity is required")
	}
	start, err := clock.Add(in.Time, 0)
	if err != nil {
		return Result{}, domainerrors.Validationf("invalid start time %q", in.Time)
	}
	if in.DurationMinutes <= 0 || in.DurationMinutes > clock.MinutesPerDay {
		return Result{}, domainerrors.Validationf("duration must be between 1 and %d minutes", clock.MinutesPerDay)
	}
	if !e.trip.HasDay(in.DayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", in.DayIndex)
	}
	end, _ := clock.Add(start, in.DurationMinutes)

	e.mu.Lock()
	coll, prefix, kind := store.SharedEvents, id.PrefixSharedEvent, ChangedShared
	if e.mode == ModeEdit {
		coll, prefix, kind = store.PersonalEdits, id.PrefixPersonalEdit, ChangedPersonal
	}
	eventID, err := e.newID(prefix)
	if err != nil {
		e.mu.Unlock()
		return Result{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate event id")
	}

	ev := domain.CalendarEvent{
		ID:        eventID,
		TripID:    e.trip.ID,
		DayIndex:  in.DayIndex,
		Activity:  in.Activity,
		Time:      start,
		EndTime:   end,
		Location:  strings.TrimSpace(in.Location),
		CreatedBy: e.user.Author(),
		CreatedAt: e.now().UTC(),
	}
	if in.Coordinates != nil {
		c := *in.Coordinates
		ev.Coordinates = &c
	}
	if coll == store.PersonalEdits {
		ev.IsPersonalEdit = true
		ev.IsActive = true
		ev.UserID = e.user.ID
		e.personal[ev.DayIndex].Upsert(ev)
		e.unsynced[ev.ID] = struct{}{}
	} else {
		ev.Status = domain.StatusApproved
		e.shared[ev.DayIndex].Upsert(ev)
	}
	e.beginWrite(coll, ev.ID)
	e.mu.Unlock()
	e.notify(kind)

	err = e.store.Insert(ctx, coll, &ev)
	e.finishWrite(coll, ev.ID)
	if err != nil {
		e.logger.Error("failed to save new event",
			slog.String("event_id", ev.ID),
			slog.String("collection", string(coll)),
			slog.String("error", err.Error()))
		return failure("Could not save the new event", ev.ID, err), nil
	}
	return success("Event added", ev.ID), nil
}

// MoveEvent reschedules an event, preserving its duration when no end time
// is given. Personal edits of other users are rejected.
func (e *Engine) MoveEvent(ctx context.Context, in MoveEventInput) (Result, error) {
	start, err := clock.Add(in.Time, 0)
	if err != nil {
		return Result{}, domainerrors.Validationf("invalid start time %q", in.Time)
	}
	if in.EndTime != "" && !clock.Valid(in.EndTime) {
		return Result{}, domainerrors.Validationf("invalid end time %q", in.EndTime)
	}
	if in.DayIndex != nil && !e.trip.HasDay(*in.DayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", *in.DayIndex)
	}

	e.mu.Lock()
	days, di, pos, err := e.locate(in.EventID)
	if err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	ev := days[di].Events[pos].Clone()
	if err := e.checkOwnership(&ev); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}

	end := in.EndTime
	if end == "" {
		dur, derr := clock.Duration(ev.Time, ev.EndTime)
		if derr != nil {
			dur = defaultDuration
		}
		end, _ = clock.Add(start, dur)
	} else {
		end, _ = clock.Add(end, 0)
	}
	target := ev.DayIndex
	if in.DayIndex != nil {
		target = *in.DayIndex
	}

	days[di].Remove(ev.ID)
	ev.Time, ev.EndTime, ev.DayIndex = start, end, target
	days[target].Upsert(ev)

	coll, kind := e.layer(&ev)
	if coll == store.PersonalEdits {
		e.unsynced[ev.ID] = struct{}{}
	}
	e.beginWrite(coll, ev.ID)
	e.mu.Unlock()
	e.notify(kind)

	_, err = e.store.Update(ctx, coll, ev.ID, store.Patch{
		Time:     &ev.Time,
		EndTime:  &ev.EndTime,
		DayIndex: &ev.DayIndex,
	})
	e.finishWrite(coll, ev.ID)
	if err != nil {
		e.logger.Error("failed to save moved event",
			slog.String("event_id", ev.ID),
			slog.String("collection", string(coll)),
			slog.String("error", err.Error()))
		return failure("Could not save the moved event", ev.ID, err), nil
	}
	return success("Event moved", ev.ID), nil
}

// DeleteEvent removes an event from the layer the current mode edits.
// Deleting a personal copy leaves its shared origin untouched.
func (e *Engine) DeleteEvent(ctx context.Context, eventID string) (Result, error) {
	e.mu.Lock()
	days, di, pos, err := e.locate(eventID)
	if err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	ev := days[di].Events[pos]
	if err := e.checkOwnership(&ev); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}

	days[di].Remove(ev.ID)
	coll, kind := e.layer(&ev)
	delete(e.unsynced, ev.ID)
	e.beginWrite(coll, ev.ID)
	e.mu.Unlock()
	e.notify(kind)

	err = e.store.Delete(ctx, coll, ev.ID)
	e.finishWrite(coll, ev.ID)
	if err != nil {
		e.logger.Error("failed to delete event",
			slog.String("event_id", ev.ID),
			slog.String("collection", string(coll)),
			slog.String("error", err.Error()))
		return failure("Could not delete the event", ev.ID, err), nil
	}
	return success("Event deleted", ev.ID), nil
}

// checkOwnership rejects overlay events that belong to someone else.
func (e *Engine) checkOwnership(ev *domain.CalendarEvent) error {
	if !ev.IsPersonalEdit {
		return nil
	}
	e.markOwnership(ev)
	if ev.OtherUserEdit {
		return domainerrors.Forbiddenf("event %s is another user's personal edit", ev.ID)
	}
	return nil
}

func (e *Engine) layer(ev *domain.CalendarEvent) (store.Collection, ChangeKind) {
	if ev.IsPersonalEdit {
		return store.PersonalEdits, ChangedPersonal
	}
	return store.SharedEvents, ChangedShared
}

func (e *Engine) finishWrite(coll store.Collection, ids ...string) {
	e.mu.Lock()
	e.endWrite(coll, ids...)
	e.mu.Unlock()
}
