// Package providers contains dependency injection providers for the Waypoint server.
package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/logger"
)

const (
	// shutdownTimeout bounds each handle's graceful shutdown.
	shutdownTimeout = 30 * time.Second
	// connectTimeout bounds dialing a remote store at startup.
	connectTimeout = 10 * time.Second
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Waypoint Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"store", cfg.Store.Backend,
	)

	return log, nil
}
