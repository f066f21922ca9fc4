package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waypointapp/waypoint-server/internal/http/response"
	"github.com/waypointapp/waypoint-server/internal/sse"
)

// newStreamHandler serves GET /api/v1/trips/{tripID}/stream. Opening the
// stream opens the caller's calendar session, so the first frames carry the
// current state.
func (s *Server) newStreamHandler() *sse.Handler {
	return sse.NewHandler(s.sseManager, s.streamAccess, s.writeError, s.logger)
}

func (s *Server) streamAccess(r *http.Request) (string, string, []sse.Event, error) {
	claims, err := s.authenticateHTTP(r)
	if err != nil {
		return "", "", nil, err
	}

	tripID := chi.URLParam(r, "tripID")
	sess, err := s.services.Sessions.Open(r.Context(), tripID, claims.UserID)
	if err != nil {
		return "", "", nil, err
	}

	return tripID, sess.Engine.User().ID, sess.InitialEvents(), nil
}

func (s *Server) writeError(w http.ResponseWriter, _ *http.Request, err error) {
	response.HandleError(w, err, s.logger)
}
