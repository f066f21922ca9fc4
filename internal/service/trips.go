package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/id"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// TripService reads trips and manages their visibility.
type TripService struct {
	store  *store.Client
	events *sse.Manager
	logger *slog.Logger
	now    func() time.Time
}

// NewTripService creates a new trip service.
func NewTripService(s *store.Client, events *sse.Manager, logger *slog.Logger) *TripService {
	return &TripService{
		store:  s,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// CreateTripInput describes a new trip. The first participant owns it.
type CreateTripInput struct {
	StartDate    time.Time
	Name         string
	Participants []domain.Participant
	NumberOfDays int
}

// Create stores a new trip. Trips are normally created by the trip wizard;
// this exists for tooling and tests.
func (s *TripService) Create(ctx context.Context, in CreateTripInput) (*domain.Trip, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domainerrors.Validation("trip name is required")
	}
	if in.NumberOfDays <= 0 {
		return nil, domainerrors.Validation("a trip needs at least one day")
	}
	if len(in.Participants) == 0 {
		return nil, domainerrors.Validation("a trip needs at least one participant")
	}

	tripID, err := id.Generate(id.PrefixTrip)
	if err != nil {
		return nil, fmt.Errorf("generate trip ID: %w", err)
	}

	participants := make([]domain.Participant, len(in.Participants))
	copy(participants, in.Participants)
	for i := range participants {
		if participants[i].ID == "" {
			return nil, domainerrors.Validationf("participant %d has no id", i)
		}
		participants[i].Role = domain.RoleMember
	}
	participants[0].Role = domain.RoleOwner

	trip := &domain.Trip{
		ID:           tripID,
		Name:         in.Name,
		StartDate:    in.StartDate,
		NumberOfDays: in.NumberOfDays,
		Participants: participants,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.logger.Info("trip created", "trip_id", trip.ID, "days", trip.NumberOfDays)
	return trip, nil
}

// Get returns a trip readable by userID: participants always, anyone when public.
func (s *TripService) Get(ctx context.Context, tripID, userID string) (*domain.Trip, error) {
	trip, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if _, ok := participantOf(trip, userID); !ok && !trip.IsPublic {
		return nil, domainerrors.Forbidden("you are not a participant of this trip")
	}
	return trip, nil
}

// SetVisibility flips the public flag. Only the trip owner may do this.
func (s *TripService) SetVisibility(ctx context.Context, tripID, userID string, public bool) (*domain.Trip, error) {
	trip, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}

	p, ok := participantOf(trip, userID)
	if !ok || !p.IsOwner() {
		return nil, domainerrors.Forbidden("only the trip owner can change its visibility")
	}
	if trip.IsPublic == public {
		return trip, nil
	}

	updated, err := s.store.SetTripPublic(ctx, tripID, public)
	if err != nil {
		return nil, fmt.Errorf("set trip visibility: %w", err)
	}

	s.events.Emit(sse.NewTripUpdatedEvent(updated))
	s.logger.Info("trip visibility changed", "trip_id", tripID, "public", public)
	return updated, nil
}

// SharedEvents returns the approved shared events of a readable trip.
func (s *TripService) SharedEvents(ctx context.Context, tripID, userID string) (*domain.Trip, []domain.CalendarEvent, error) {
	trip, err := s.Get(ctx, tripID, userID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.store.List(ctx, store.SharedEvents, store.Filter{TripID: tripID})
	if err != nil {
		return nil, nil, domainerrors.Unavailable("could not read the shared schedule", err)
	}

	events := rows[:0]
	for _, ev := range rows {
		if !trip.HasDay(ev.DayIndex) {
			continue
		}
		if ev.Status != "" && ev.Status != domain.StatusApproved {
			continue
		}
		events = append(events, ev)
	}
	return trip, events, nil
}

func (s *TripService) load(ctx context.Context, tripID string) (*domain.Trip, error) {
	trip, err := s.store.Trip(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("trip %s not found", tripID)
		}
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return trip, nil
}

// participantOf finds userID among the trip's participants, tolerating
// formatting differences in the id.
func participantOf(trip *domain.Trip, userID string) (domain.Participant, bool) {
	if p, ok := trip.Participant(userID); ok {
		return p, true
	}
	for _, p := range trip.Participants {
		if calendar.UserIDsMatch(p.ID, userID) {
			return p, true
		}
	}
	return domain.Participant{}, false
}
