package api

import "github.com/waypointapp/waypoint-server/internal/service"

// Services groups the business logic used by the API server.
type Services struct {
	Trips    *service.TripService
	Calendar *service.CalendarService
	Sessions *service.SessionManager
}
