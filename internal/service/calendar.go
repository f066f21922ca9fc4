package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
)

// writeTimeout bounds a mutation's store writes once they are detached from
// the request.
const writeTimeout = 30 * time.Second

// CalendarService runs calendar operations against the caller's session.
// Mutation outcomes are returned and also posted to the session notifier.
type CalendarService struct {
	sessions *SessionManager
	logger   *slog.Logger
}

// NewCalendarService creates a new calendar service.
func NewCalendarService(sessions *SessionManager, logger *slog.Logger) *CalendarService {
	return &CalendarService{sessions: sessions, logger: logger}
}

// CalendarSnapshot is the full state of one session.
type CalendarSnapshot struct {
	calendar.State
	User          domain.Participant    `json:"user"`
	TripID        string                `json:"trip_id"`
	Notifications []domain.Notification `json:"notifications"`
}

// Snapshot opens the session if needed and returns its state.
func (s *CalendarService) Snapshot(ctx context.Context, tripID, userID string) (*CalendarSnapshot, error) {
	sess, err := s.sessions.Open(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	return &CalendarSnapshot{
		State:         sess.Engine.Snapshot(),
		User:          sess.Engine.User(),
		TripID:        tripID,
		Notifications: sess.Notifier.Active(),
	}, nil
}

// AddEvent adds an event to the shared schedule or, in edit mode, the overlay.
func (s *CalendarService) AddEvent(ctx context.Context, tripID, userID string, in calendar.AddEventInput) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "add_event", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.AddEvent(ctx, in)
	})
}

// MoveEvent reschedules an event.
func (s *CalendarService) MoveEvent(ctx context.Context, tripID, userID string, in calendar.MoveEventInput) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "move_event", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.MoveEvent(ctx, in)
	})
}

// DeleteEvent removes an event.
func (s *CalendarService) DeleteEvent(ctx context.Context, tripID, userID, eventID string) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "delete_event", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.DeleteEvent(ctx, eventID)
	})
}

// Edit enters edit mode on dayIndex, or switches day when already editing.
func (s *CalendarService) Edit(ctx context.Context, tripID, userID string, dayIndex int) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "edit", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		if mode, day := e.Mode(); mode == calendar.ModeEdit && day != dayIndex {
			return e.SwitchDay(ctx, dayIndex)
		}
		return e.EnterEditMode(ctx, dayIndex)
	})
}

// ExitEdit returns the session to view mode.
func (s *CalendarService) ExitEdit(ctx context.Context, tripID, userID string, discard bool) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "exit_edit", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.ExitEditMode(ctx, discard)
	})
}

// CopyDay copies a shared day into the personal overlay.
func (s *CalendarService) CopyDay(ctx context.Context, tripID, userID string, dayIndex int) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "copy_day", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.CopySharedToPersonal(ctx, dayIndex)
	})
}

// PublishDay publishes the user's personal edits of a day.
func (s *CalendarService) PublishDay(ctx context.Context, tripID, userID string, dayIndex int) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "publish_day", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.PublishPersonalToShared(ctx, dayIndex)
	})
}

// Dedupe removes duplicate personal copies.
func (s *CalendarService) Dedupe(ctx context.Context, tripID, userID string) (calendar.Result, error) {
	return s.run(ctx, tripID, userID, "dedupe", func(ctx context.Context, e *calendar.Engine) (calendar.Result, error) {
		return e.DeduplicatePersonalCopies(ctx)
	})
}

// Reconcile forces a full snapshot reconcile of the shared schedule.
func (s *CalendarService) Reconcile(ctx context.Context, tripID, userID string) (calendar.Result, error) {
	sess, err := s.sessions.Open(ctx, tripID, userID)
	if err != nil {
		return calendar.Result{}, err
	}
	changed, err := sess.Engine.ReconcileFullSnapshot(ctx)
	if err != nil {
		return calendar.Result{}, domainerrors.Unavailable("could not reach the record store", err)
	}
	if !changed {
		return calendar.Result{OK: true, Message: "Calendar is up to date"}, nil
	}
	res := calendar.Result{OK: true, Message: "Calendar refreshed"}
	sess.Notifier.Info(res.Message)
	return res, nil
}

func (s *CalendarService) run(
	ctx context.Context,
	tripID, userID, op string,
	fn func(context.Context, *calendar.Engine) (calendar.Result, error),
) (calendar.Result, error) {
	sess, err := s.sessions.Open(ctx, tripID, userID)
	if err != nil {
		return calendar.Result{}, err
	}

	// Local state is already optimistic once fn starts, so the write must
	// outlive a client that hangs up.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	res, err := fn(writeCtx, sess.Engine)
	if err != nil {
		return res, err
	}
	if res.Err != nil {
		s.logger.Warn("calendar write failed",
			"op", op,
			"trip_id", tripID,
			"user_id", userID,
			"failed", res.Failed,
			"error", res.Err,
		)
	}
	sess.Report(res)
	return res, nil
}
