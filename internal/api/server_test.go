package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/auth"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/ratelimit"
	"github.com/waypointapp/waypoint-server/internal/service"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
	"github.com/waypointapp/waypoint-server/internal/store/sqlite"
)

const testTripID = "trip-lisbon"

var (
	ada   = domain.Participant{ID: "user-ada", Name: "Ada", Role: domain.RoleOwner}
	grace = domain.Participant{ID: "user-grace", Name: "Grace", Role: domain.RoleMember}
	linus = domain.Participant{ID: "user-linus", Name: "Linus", Role: domain.RoleMember}
)

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api    humatest.TestAPI
	tokens *auth.TokenService
	store  *store.Client
}

// testEnvelope is the response envelope with typed data.
type testEnvelope[T any] struct {
	Data    T              `json:"data"`
	Details map[string]any `json:"details"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Version int            `json:"v"`
	Success bool           `json:"success"`
}

func decodeEnvelope[T any](t *testing.T, body *bytes.Buffer) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body.Bytes(), &env), body.String())
	return env
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	backend, err := sqlite.Open(filepath.Join(t.TempDir(), "waypoint.db"), logger)
	require.NoError(t, err)
	st, err := store.NewClient(backend, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{7}, 32), time.Hour)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go sseManager.Start(ctx)
	t.Cleanup(cancel)

	tracker := presence.NewTracker(logger)
	sessions := service.NewSessionManager(st, sseManager, tracker, service.SessionConfig{
		NotificationTTL: time.Minute,
	}, logger)
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })

	services := &Services{
		Trips:    service.NewTripService(st, sseManager, logger),
		Calendar: service.NewCalendarService(sessions, logger),
		Sessions: sessions,
	}

	s := NewServer(st, services, tokens, sseManager, tracker, opts, logger)
	t.Cleanup(func() { s.Shutdown() })

	require.NoError(t, st.CreateTrip(context.Background(), &domain.Trip{
		ID:           testTripID,
		Name:         "Lisbon",
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		NumberOfDays: 3,
		Participants: []domain.Participant{ada, grace},
		CreatedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}))

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		tokens: tokens,
		store:  st,
	}
}

// token returns a raw access token for user.
func (ts *testServer) token(t *testing.T, user domain.Participant) string {
	t.Helper()
	tok, _, err := ts.tokens.GenerateAccessToken(user.ID, user.Name)
	require.NoError(t, err)
	return tok
}

// bearer returns an Authorization header argument for humatest.
func (ts *testServer) bearer(t *testing.T, user domain.Participant) string {
	return "Authorization: Bearer " + ts.token(t, user)
}

func withLimiter(t *testing.T, perMinute, burst int) Options {
	t.Helper()
	l := ratelimit.PerMinute(perMinute, burst)
	t.Cleanup(l.Stop)
	return Options{Limiter: l}
}
