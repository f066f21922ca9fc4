// Package di provides dependency injection configuration for the Waypoint server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/auth"
	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/di/providers"
	"github.com/waypointapp/waypoint-server/internal/logger"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage and streaming
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvidePresenceTracker)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideRateLimiters)

	// Business services
	do.Provide(injector, providers.ProvideSessionManager)
	do.Provide(injector, providers.ProvideTripService)
	do.Provide(injector, providers.ProvideCalendarService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*presence.Tracker](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*providers.RateLimitersHandle](injector)

	// Business services
	_ = do.MustInvoke[*providers.SessionManagerHandle](injector)
	_ = do.MustInvoke[*service.TripService](injector)
	_ = do.MustInvoke[*service.CalendarService](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
