package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/olahol/melody"

	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/sse"
)

// Session keys stored on each presence socket.
const (
	keyConnID = "conn_id"
	keyTripID = "trip_id"
	keyUserID = "user_id"
)

// presenceMessage is what clients send on the presence socket.
type presenceMessage struct {
	Type string `json:"type"`
	Day  *int   `json:"day,omitempty"`
}

func (s *Server) newPresenceSocket() *melody.Melody {
	m := melody.New()
	m.Config.MaxMessageSize = 4096
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(s.presenceConnected)
	m.HandleDisconnect(s.presenceDisconnected)
	m.HandleMessage(s.presenceMessage)
	m.HandleError(func(sess *melody.Session, err error) {
		tripID, _ := sess.Get(keyTripID)
		s.logger.Debug("presence socket error", "trip_id", tripID, "error", err)
	})

	s.tracker.OnSync(func(tripID string, users []domain.Presence) {
		s.broadcastPresence(m, tripID, users)
	})
	return m
}

// handlePresenceSocket upgrades GET /api/v1/trips/{tripID}/presence.
func (s *Server) handlePresenceSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticateHTTP(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tripID := chi.URLParam(r, "tripID")
	if _, err := s.services.Sessions.Open(r.Context(), tripID, claims.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}

	keys := map[string]any{
		keyConnID: uuid.NewString(),
		keyTripID: tripID,
		keyUserID: claims.UserID,
	}
	if err := s.melody.HandleRequestWithKeys(w, r, keys); err != nil {
		s.logger.Warn("presence upgrade failed", "trip_id", tripID, "error", err)
	}
}

func (s *Server) presenceConnected(sess *melody.Session) {
	connID, tripID, userID := socketKeys(sess)
	cs, ok := s.services.Sessions.Lookup(tripID, userID)
	if !ok {
		sess.Close()
		return
	}
	s.tracker.Join(tripID, connID, cs.Engine.User())
}

func (s *Server) presenceDisconnected(sess *melody.Session) {
	connID, tripID, _ := socketKeys(sess)
	s.tracker.Leave(tripID, connID)
}

func (s *Server) presenceMessage(sess *melody.Session, raw []byte) {
	connID, tripID, userID := socketKeys(sess)

	var msg presenceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("ignoring malformed presence message", "trip_id", tripID, "error", err)
		return
	}
	if msg.Type != "viewing" || msg.Day == nil {
		return
	}

	editing := false
	if cs, ok := s.services.Sessions.Lookup(tripID, userID); ok {
		mode, _ := cs.Engine.Mode()
		editing = mode == calendar.ModeEdit
	}
	s.tracker.Update(tripID, connID, *msg.Day, editing)
}

func (s *Server) broadcastPresence(m *melody.Melody, tripID string, users []domain.Presence) {
	msg, err := json.Marshal(sse.NewPresenceEvent(tripID, users))
	if err != nil {
		s.logger.Error("failed to encode presence", "trip_id", tripID, "error", err)
		return
	}
	err = m.BroadcastFilter(msg, func(q *melody.Session) bool {
		id, ok := q.Get(keyTripID)
		return ok && id == tripID
	})
	if err != nil && !errors.Is(err, melody.ErrClosed) {
		s.logger.Warn("presence broadcast failed", "trip_id", tripID, "error", err)
	}
}

func socketKeys(sess *melody.Session) (connID, tripID, userID string) {
	connID = sess.MustGet(keyConnID).(string)
	tripID = sess.MustGet(keyTripID).(string)
	userID = sess.MustGet(keyUserID).(string)
	return connID, tripID, userID
}
