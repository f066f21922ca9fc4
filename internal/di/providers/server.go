package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/waypointapp/waypoint-server/internal/api"
	"github.com/waypointapp/waypoint-server/internal/auth"
	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/logger"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/ratelimit"
	"github.com/waypointapp/waypoint-server/internal/service"
)

// connectsPerMinute bounds stream and socket connections per client IP.
const connectsPerMinute = 60

// RateLimitersHandle holds the limiters used by the HTTP API.
type RateLimitersHandle struct {
	Mutations *ratelimit.KeyedRateLimiter
	Connects  *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimitersHandle) Shutdown() error {
	h.Mutations.Stop()
	h.Connects.Stop()
	return nil
}

// ProvideRateLimiters provides the mutation and connection limiters.
func ProvideRateLimiters(i do.Injector) (*RateLimitersHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return &RateLimitersHandle{
		Mutations: ratelimit.PerMinute(cfg.RateLimit.MutationsPerMinute, cfg.RateLimit.Burst),
		Connects:  ratelimit.PerMinute(connectsPerMinute, cfg.RateLimit.Burst),
	}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Sockets are hijacked and not tracked by http.Server.
	err := h.api.Shutdown()
	return errors.Join(err, h.Server.Shutdown(ctx))
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	tracker := do.MustInvoke[*presence.Tracker](i)
	sessions := do.MustInvoke[*SessionManagerHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	limiters := do.MustInvoke[*RateLimitersHandle](i)

	services := &api.Services{
		Trips:    do.MustInvoke[*service.TripService](i),
		Calendar: do.MustInvoke[*service.CalendarService](i),
		Sessions: sessions.SessionManager,
	}

	handler := api.NewServer(storeHandle.Client, services, tokens, sseHandle.Manager, tracker, api.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		Limiter:        limiters.Mutations,
		ConnectLimiter: limiters.Connects,
	}, log.Logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
