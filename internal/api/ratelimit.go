package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waypointapp/waypoint-server/internal/http/response"
	"github.com/waypointapp/waypoint-server/internal/ratelimit"
)

// RateLimitMiddleware limits how often one client may open a stream or a
// presence socket. Clients are keyed by IP; middleware.RealIP has already
// applied X-Forwarded-For / X-Real-IP to RemoteAddr.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Connection rate limit exceeded",
				"ip", ip,
				"trip_id", chi.URLParam(r, "tripID"),
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "60")
			response.TooManyRequests(w, "Too many connection attempts. Please try again later.", logger)
		})
	}
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
