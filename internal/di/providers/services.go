package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/logger"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/service"
)

// ProvidePresenceTracker provides the live presence tracker.
func ProvidePresenceTracker(i do.Injector) (*presence.Tracker, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return presence.NewTracker(log.Logger), nil
}

// SessionManagerHandle wraps the calendar session manager for lifecycle management.
type SessionManagerHandle struct {
	*service.SessionManager
}

// Shutdown implements do.Shutdownable.
func (h *SessionManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.SessionManager.Shutdown(ctx)
}

// ProvideSessionManager provides the calendar session manager and starts its
// reconcile and eviction jobs.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	tracker := do.MustInvoke[*presence.Tracker](i)

	manager := service.NewSessionManager(storeHandle.Client, sseHandle.Manager, tracker, service.SessionConfig{
		PollInterval:    cfg.Calendar.PollInterval,
		IdleTimeout:     cfg.Calendar.SessionIdleTimeout,
		NotificationTTL: cfg.Calendar.NotificationTTL,
		PixelsPerHour:   cfg.Calendar.PixelsPerHour,
	}, log.Logger)

	if err := manager.Start(); err != nil {
		return nil, err
	}

	return &SessionManagerHandle{SessionManager: manager}, nil
}

// ProvideTripService provides the trip service.
func ProvideTripService(i do.Injector) (*service.TripService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return service.NewTripService(storeHandle.Client, sseHandle.Manager, log.Logger), nil
}

// ProvideCalendarService provides the calendar service.
func ProvideCalendarService(i do.Injector) (*service.CalendarService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	sessions := do.MustInvoke[*SessionManagerHandle](i)

	return service.NewCalendarService(sessions.SessionManager, log.Logger), nil
}
