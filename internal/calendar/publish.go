package calendar

import (
	"context"
	"log/slog"

	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/id"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// CopySharedToPersonal copies the shared events of a day into the overlay.
// Events that already have a personal version anywhere in the overlay are
// skipped: a copy of them, or an edit published under the same ID. Repeating
// the call creates nothing new.
func (e *Engine) CopySharedToPersonal(ctx context.Context, dayIndex int) (Result, error) {
	if !e.trip.HasDay(dayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", dayIndex)
	}

	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return Result{}, domainerrors.Conflict("copying requires edit mode")
	}

	copied := make(map[string]bool)
	for _, d := range e.personal {
		for _, ev := range d.Events {
			if ev.OriginalEventID != "" {
				copied[ev.OriginalEventID] = true
			} else {
				// An edit without an origin stands for the shared record with its own ID.
				copied[ev.ID] = true
			}
		}
	}

	var (
		copies  []domain.CalendarEvent
		skipped int
		now     = e.now().UTC()
	)
	for _, src := range e.shared[dayIndex].Events {
		if copied[src.ID] {
			skipped++
			continue
		}
		copyID, err := e.newID(id.PrefixPersonalEdit)
		if err != nil {
			e.mu.Unlock()
			return Result{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate event id")
		}
		c := src.Clone()
		c.ID = copyID
		c.UserID = e.user.ID
		c.CreatedBy = e.user.Author()
		c.CreatedAt = now
		c.Status = ""
		c.IsPersonalEdit = true
		c.IsActive = true
		c.OtherUserEdit = false
		c.OriginalEventID = src.ID
		copies = append(copies, c)
		copied[src.ID] = true
	}

	ids := make([]string, len(copies))
	for i, c := range copies {
		ids[i] = c.ID
		e.personal[dayIndex].Upsert(c)
		e.unsynced[c.ID] = struct{}{}
	}
	e.beginWrite(store.PersonalEdits, ids...)
	e.mu.Unlock()

	if len(copies) == 0 {
		return Result{OK: true, Message: "Nothing new to copy", Skipped: skipped}, nil
	}
	e.notify(ChangedPersonal)

	var (
		ok   int
		errs []error
	)
	for i := range copies {
		if err := e.store.Insert(ctx, store.PersonalEdits, &copies[i]); err != nil {
			e.logger.Error("failed to save personal copy",
				slog.String("event_id", copies[i].ID),
				slog.String("original_event_id", copies[i].OriginalEventID),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		ok++
	}
	e.finishWrite(store.PersonalEdits, ids...)

	r := tally("Copied", "copy", ok, len(errs), errs)
	r.Skipped = skipped
	return r, nil
}

// PublishPersonalToShared pushes the user's overlay events of a day to the
// shared schedule. Copies update their origin; other edits update the shared
// record with the same ID or create it. Failures do not stop the batch.
func (e *Engine) PublishPersonalToShared(ctx context.Context, dayIndex int) (Result, error) {
	if !e.trip.HasDay(dayIndex) {
		return Result{}, domainerrors.Validationf("day %d is outside the trip", dayIndex)
	}

	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return Result{}, domainerrors.Conflict("publishing requires edit mode")
	}

	var (
		batch   []domain.CalendarEvent
		targets []string
		skipped int
	)
	for _, ev := range e.personal[dayIndex].Events {
		if !e.isOwnEdit(&ev) {
			skipped++
			continue
		}
		batch = append(batch, ev.Clone())
		targets = append(targets, publishTarget(&ev))
	}
	e.beginWrite(store.SharedEvents, targets...)
	epoch := e.epoch
	e.mu.Unlock()

	if len(batch) == 0 {
		return Result{OK: true, Message: "Nothing to publish", Skipped: skipped}, nil
	}

	var (
		published []domain.CalendarEvent
		done      []string
		errs      []error
	)
	for i := range batch {
		rec, err := e.publishOne(ctx, &batch[i])
		if err != nil {
			e.logger.Error("failed to publish personal edit",
				slog.String("event_id", batch[i].ID),
				slog.String("target_id", targets[i]),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		published = append(published, *rec)
		done = append(done, batch[i].ID)
	}

	e.mu.Lock()
	e.endWrite(store.SharedEvents, targets...)
	for _, rec := range published {
		e.upsertShared(rec)
	}
	if e.epoch == epoch {
		for _, id := range done {
			delete(e.unsynced, id)
		}
	}
	e.mu.Unlock()
	if len(published) > 0 {
		e.notify(ChangedShared)
	}

	r := tally("Published", "publish", len(published), len(errs), errs)
	r.Skipped = skipped
	return r, nil
}

func publishTarget(ev *domain.CalendarEvent) string {
	if ev.IsPersonalCopy() {
		return ev.OriginalEventID
	}
	return ev.ID
}

// publishOne writes one overlay event to the shared collection and returns
// the stored shared record.
func (e *Engine) publishOne(ctx context.Context, ev *domain.CalendarEvent) (*domain.CalendarEvent, error) {
	patch := store.ContentPatch(ev)
	if ev.IsPersonalCopy() {
		rec, err := e.store.Update(ctx, store.SharedEvents, ev.OriginalEventID, patch)
		if err != nil {
			if domainerrors.Is(err, store.ErrNotFound) {
				return nil, domainerrors.NotFoundf("original event %s no longer exists", ev.OriginalEventID).WithCause(err)
			}
			return nil, err
		}
		return rec, nil
	}

	_, err := e.store.Get(ctx, store.SharedEvents, ev.ID)
	switch {
	case err == nil:
		return e.store.Update(ctx, store.SharedEvents, ev.ID, patch)
	case domainerrors.Is(err, store.ErrNotFound):
		shared := ev.Clone()
		shared.Status = domain.StatusApproved
		shared.IsPersonalEdit = false
		shared.IsActive = false
		shared.UserID = ""
		shared.OriginalEventID = ""
		shared.OtherUserEdit = false
		if err := e.store.Insert(ctx, store.SharedEvents, &shared); err != nil {
			return nil, err
		}
		return &shared, nil
	default:
		return nil, err
	}
}
