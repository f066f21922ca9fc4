package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/service"
)

func (s *Server) registerCalendarRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCalendar",
		Method:      http.MethodGet,
		Path:        "/api/v1/trips/{tripID}/calendar",
		Summary:     "Get calendar",
		Description: "Returns the caller's calendar session: mode, shared and personal days, pending items and presence",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCalendar)

	huma.Register(s.api, huma.Operation{
		OperationID: "addEvent",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/events",
		Summary:     "Add event",
		Description: "Adds an event to the shared schedule, or to the personal schedule in edit mode",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAddEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "moveEvent",
		Method:      http.MethodPatch,
		Path:        "/api/v1/trips/{tripID}/calendar/events/{eventID}",
		Summary:     "Move event",
		Description: "Changes an event's start time and optionally its end time or day",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleMoveEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteEvent",
		Method:      http.MethodDelete,
		Path:        "/api/v1/trips/{tripID}/calendar/events/{eventID}",
		Summary:     "Delete event",
		Description: "Deletes an event",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "enterEditMode",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/edit",
		Summary:     "Edit day",
		Description: "Enters edit mode on a day, or switches the day being edited",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleEnterEdit)

	huma.Register(s.api, huma.Operation{
		OperationID: "exitEditMode",
		Method:      http.MethodDelete,
		Path:        "/api/v1/trips/{tripID}/calendar/edit",
		Summary:     "Stop editing",
		Description: "Returns to the shared schedule. Unsynced changes require discard=true.",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExitEdit)

	huma.Register(s.api, huma.Operation{
		OperationID: "copyDay",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/days/{day}/copy",
		Summary:     "Copy day",
		Description: "Copies the shared events of a day into the personal schedule",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCopyDay)

	huma.Register(s.api, huma.Operation{
		OperationID: "publishDay",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/days/{day}/publish",
		Summary:     "Publish day",
		Description: "Publishes the personal events of a day to the shared schedule",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handlePublishDay)

	huma.Register(s.api, huma.Operation{
		OperationID: "dedupeCopies",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/dedupe",
		Summary:     "Remove duplicate copies",
		Description: "Deletes duplicate personal copies of the same shared event",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDedupe)

	huma.Register(s.api, huma.Operation{
		OperationID: "reconcileCalendar",
		Method:      http.MethodPost,
		Path:        "/api/v1/trips/{tripID}/calendar/reconcile",
		Summary:     "Refresh calendar",
		Description: "Reloads the shared schedule from the store",
		Tags:        []string{"Calendar"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReconcile)
}

// === DTOs ===

// CalendarOutput wraps a session snapshot for Huma.
type CalendarOutput struct {
	Body *service.CalendarSnapshot
}

// MutationOutput reports the outcome of a calendar write. Persistence
// failures are reported with ok=false rather than an error status.
type MutationOutput struct {
	Body calendar.Result
}

// CoordinatesRequest is a map position.
type CoordinatesRequest struct {
	Lat float64 `json:"lat" validate:"latitude" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lng float64 `json:"lng" validate:"longitude" minimum:"-180" maximum:"180" doc:"Longitude"`
}

// AddEventRequest is the request body for adding an event.
type AddEventRequest struct {
	Activity        string              `json:"activity" validate:"required,max=200" doc:"What happens"`
	Time            string              `json:"time" validate:"required,clock" doc:"Start time, HH:MM"`
	DayIndex        int                 `json:"day_index" validate:"gte=0" doc:"Zero-based trip day"`
	DurationMinutes int                 `json:"duration_minutes" validate:"gt=0,lte=1440" doc:"Length in minutes"`
	Location        string              `json:"location,omitempty" validate:"max=300" doc:"Place name"`
	Coordinates     *CoordinatesRequest `json:"coordinates,omitempty" doc:"Map position"`
}

// AddEventInput wraps the add event request for Huma.
type AddEventInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	Body          AddEventRequest
}

// MoveEventRequest is the request body for moving an event.
type MoveEventRequest struct {
	Time     string `json:"time" validate:"required,clock" doc:"New start time, HH:MM"`
	EndTime  string `json:"end_time,omitempty" validate:"omitempty,clock" doc:"New end time, HH:MM. Defaults to keeping the duration."`
	DayIndex *int   `json:"day_index,omitempty" validate:"omitempty,gte=0" doc:"New day. Defaults to the current day."`
}

// MoveEventInput wraps the move event request for Huma.
type MoveEventInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	EventID       string `path:"eventID" doc:"Event ID"`
	Body          MoveEventRequest
}

// EventInput identifies an event.
type EventInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	EventID       string `path:"eventID" doc:"Event ID"`
}

// EnterEditRequest is the request body for entering edit mode.
type EnterEditRequest struct {
	DayIndex int `json:"day_index" validate:"gte=0" doc:"Day to edit"`
}

// EnterEditInput wraps the edit request for Huma.
type EnterEditInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	Body          EnterEditRequest
}

// ExitEditInput contains parameters for leaving edit mode.
type ExitEditInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	Discard       bool   `query:"discard" doc:"Drop unsynced personal changes"`
}

// DayInput identifies a trip day.
type DayInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	Day           int    `path:"day" minimum:"0" doc:"Zero-based trip day"`
}

// === Handlers ===

func (s *Server) handleGetCalendar(ctx context.Context, input *TripInput) (*CalendarOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	snap, err := s.services.Calendar.Snapshot(ctx, input.TripID, userID)
	if err != nil {
		return nil, err
	}

	return &CalendarOutput{Body: snap}, nil
}

func (s *Server) handleAddEvent(ctx context.Context, input *AddEventInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	in := calendar.AddEventInput{
		Activity:        input.Body.Activity,
		Time:            input.Body.Time,
		DayIndex:        input.Body.DayIndex,
		DurationMinutes: input.Body.DurationMinutes,
		Location:        input.Body.Location,
	}
	if c := input.Body.Coordinates; c != nil {
		in.Coordinates = &domain.Coordinates{Lat: c.Lat, Lng: c.Lng}
	}

	return mutation(s.services.Calendar.AddEvent(ctx, input.TripID, userID, in))
}

func (s *Server) handleMoveEvent(ctx context.Context, input *MoveEventInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.MoveEvent(ctx, input.TripID, userID, calendar.MoveEventInput{
		EventID:  input.EventID,
		Time:     input.Body.Time,
		EndTime:  input.Body.EndTime,
		DayIndex: input.Body.DayIndex,
	}))
}

func (s *Server) handleDeleteEvent(ctx context.Context, input *EventInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.DeleteEvent(ctx, input.TripID, userID, input.EventID))
}

func (s *Server) handleEnterEdit(ctx context.Context, input *EnterEditInput) (*MutationOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.Edit(ctx, input.TripID, userID, input.Body.DayIndex))
}

func (s *Server) handleExitEdit(ctx context.Context, input *ExitEditInput) (*MutationOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.ExitEdit(ctx, input.TripID, userID, input.Discard))
}

func (s *Server) handleCopyDay(ctx context.Context, input *DayInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.CopyDay(ctx, input.TripID, userID, input.Day))
}

func (s *Server) handlePublishDay(ctx context.Context, input *DayInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.PublishDay(ctx, input.TripID, userID, input.Day))
}

func (s *Server) handleDedupe(ctx context.Context, input *TripInput) (*MutationOutput, error) {
	userID, err := s.authenticateMutation(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.Dedupe(ctx, input.TripID, userID))
}

func (s *Server) handleReconcile(ctx context.Context, input *TripInput) (*MutationOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	return mutation(s.services.Calendar.Reconcile(ctx, input.TripID, userID))
}

func mutation(res calendar.Result, err error) (*MutationOutput, error) {
	if err != nil {
		return nil, err
	}
	return &MutationOutput{Body: res}, nil
}
