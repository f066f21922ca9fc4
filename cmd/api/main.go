// Package main runs the Waypoint calendar server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/di"
	"github.com/waypointapp/waypoint-server/internal/di/providers"
	"github.com/waypointapp/waypoint-server/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	<-ctx.Done()
	stop()

	sessions := do.MustInvoke[*providers.SessionManagerHandle](injector)
	log.Info("Shutting down", "open_sessions", sessions.Count())

	// Handles shut down in reverse dependency order: HTTP server, sessions,
	// store, SSE manager.
	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("Shutdown error")
		os.Exit(1)
	}

	log.Info("Safe travels")
}
