package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

func (s *Server) registerTripRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getTrip",
		Method:      http.MethodGet,
		Path:        "/api/v1/trips/{tripID}",
		Summary:     "Get trip",
		Description: "Returns a trip and its participants",
		Tags:        []string{"Trips"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetTrip)

	huma.Register(s.api, huma.Operation{
		OperationID: "setTripVisibility",
		Method:      http.MethodPatch,
		Path:        "/api/v1/trips/{tripID}/visibility",
		Summary:     "Set trip visibility",
		Description: "Makes a trip public or private. Only the owner may change it.",
		Tags:        []string{"Trips"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetTripVisibility)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportTripCalendar",
		Method:      http.MethodGet,
		Path:        "/api/v1/trips/{tripID}/calendar.ics",
		Summary:     "Export calendar",
		Description: "Returns the shared schedule as an iCalendar document",
		Tags:        []string{"Trips"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExportCalendar)
}

// === DTOs ===

// TripInput identifies a trip.
type TripInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
}

// ParticipantResponse is a trip member.
type ParticipantResponse struct {
	ID     string `json:"id" doc:"User ID"`
	Name   string `json:"name" doc:"Display name"`
	Avatar string `json:"avatar,omitempty" doc:"Avatar URL"`
	Role   string `json:"role" doc:"owner or member"`
}

// TripResponse contains trip data in API responses.
type TripResponse struct {
	ID           string                `json:"id" doc:"Trip ID"`
	Name         string                `json:"name" doc:"Trip name"`
	StartDate    string                `json:"start_date" doc:"First day, YYYY-MM-DD"`
	NumberOfDays int                   `json:"number_of_days" doc:"Number of days"`
	Participants []ParticipantResponse `json:"participants" doc:"Trip members"`
	IsPublic     bool                  `json:"is_public" doc:"Readable by any signed-in user"`
	CreatedAt    time.Time             `json:"created_at" doc:"Creation time"`
}

// TripOutput wraps the trip response for Huma.
type TripOutput struct {
	Body TripResponse
}

// SetVisibilityRequest is the request body for changing trip visibility.
type SetVisibilityRequest struct {
	IsPublic bool `json:"is_public" doc:"Whether the trip is public"`
}

// SetVisibilityInput wraps the visibility request for Huma.
type SetVisibilityInput struct {
	Authorization string `header:"Authorization"`
	TripID        string `path:"tripID" doc:"Trip ID"`
	Body          SetVisibilityRequest
}

// CalendarFileOutput is a raw iCalendar document.
type CalendarFileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// === Handlers ===

func (s *Server) handleGetTrip(ctx context.Context, input *TripInput) (*TripOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	trip, err := s.services.Trips.Get(ctx, input.TripID, userID)
	if err != nil {
		return nil, err
	}

	return &TripOutput{Body: toTripResponse(trip)}, nil
}

func (s *Server) handleSetTripVisibility(ctx context.Context, input *SetVisibilityInput) (*TripOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	trip, err := s.services.Trips.SetVisibility(ctx, input.TripID, userID, input.Body.IsPublic)
	if err != nil {
		return nil, err
	}

	return &TripOutput{Body: toTripResponse(trip)}, nil
}

func (s *Server) handleExportCalendar(ctx context.Context, input *TripInput) (*CalendarFileOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	data, err := s.services.Trips.ExportICS(ctx, input.TripID, userID)
	if err != nil {
		return nil, err
	}

	return &CalendarFileOutput{
		ContentType:        "text/calendar; charset=utf-8",
		ContentDisposition: `attachment; filename="` + input.TripID + `.ics"`,
		Body:               data,
	}, nil
}

func toTripResponse(trip *domain.Trip) TripResponse {
	participants := make([]ParticipantResponse, len(trip.Participants))
	for i, p := range trip.Participants {
		participants[i] = ParticipantResponse{
			ID:     p.ID,
			Name:   p.Name,
			Avatar: p.Avatar,
			Role:   string(p.Role),
		}
	}
	return TripResponse{
		ID:           trip.ID,
		Name:         trip.Name,
		StartDate:    trip.StartDate.Format(time.DateOnly),
		NumberOfDays: trip.NumberOfDays,
		Participants: participants,
		IsPublic:     trip.IsPublic,
		CreatedAt:    trip.CreatedAt,
	}
}
