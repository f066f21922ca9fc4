// Package api provides the HTTP API server and handlers for Waypoint.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"

	"github.com/waypointapp/waypoint-server/internal/auth"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/ratelimit"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/validation"
)

// Options tunes the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty allows all.
	CORSOrigins []string
	// Limiter throttles calendar mutations per user. Nil disables limiting.
	Limiter *ratelimit.KeyedRateLimiter
	// ConnectLimiter throttles stream and socket connections per client IP.
	ConnectLimiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *store.Client
	services   *Services
	tokens     *auth.TokenService
	sseManager *sse.Manager
	tracker    *presence.Tracker
	melody     *melody.Melody
	limiter    *ratelimit.KeyedRateLimiter
	validator  *validation.Validator
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	st *store.Client,
	services *Services,
	tokens *auth.TokenService,
	sseManager *sse.Manager,
	tracker *presence.Tracker,
	opts Options,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:      st,
		services:   services,
		tokens:     tokens,
		sseManager: sseManager,
		tracker:    tracker,
		limiter:    opts.Limiter,
		validator:  validation.New(),
		router:     router,
		logger:     logger,
	}

	s.setupMiddleware(opts.CORSOrigins)

	s.api = humachi.New(router, newHumaConfig("Waypoint API", "1.0.0"))
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerTripRoutes()
	s.registerCalendarRoutes()

	s.melody = s.newPresenceSocket()
	var (
		stream http.Handler = s.newStreamHandler()
		socket http.Handler = http.HandlerFunc(s.handlePresenceSocket)
	)
	if opts.ConnectLimiter != nil {
		limit := RateLimitMiddleware(opts.ConnectLimiter, logger)
		stream, socket = limit(stream), limit(socket)
	}
	router.Method(http.MethodGet, "/api/v1/trips/{tripID}/stream", stream)
	router.Method(http.MethodGet, "/api/v1/trips/{tripID}/presence", socket)

	return s
}

func newHumaConfig(title, version string) huma.Config {
	cfg := huma.DefaultConfig(title, version)
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	cfg.Transformers = append(cfg.Transformers, EnvelopeTransformer)
	return cfg
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown closes presence sockets. Streams end with the SSE manager.
func (s *Server) Shutdown() error {
	if s.melody == nil {
		return nil
	}
	return s.melody.Close()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// requestLogger logs one line per request at debug level, warn for 5xx.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
