// Package service hosts calendar sessions and the trip operations exposed by the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/domain"
	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
	"github.com/waypointapp/waypoint-server/internal/presence"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// Session defaults.
const (
	DefaultPollInterval    = 30 * time.Second
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultNotificationTTL = 5 * time.Second

	reconcileTimeout = 20 * time.Second
	evictionSchedule = "@every 1m"
)

// SessionConfig tunes calendar sessions.
type SessionConfig struct {
	PollInterval    time.Duration
	IdleTimeout     time.Duration
	NotificationTTL time.Duration
	PixelsPerHour   float64
}

type sessionKey struct {
	tripID string
	userID string
}

// Session is one participant's live calendar on one trip.
type Session struct {
	Engine   *calendar.Engine
	Notifier *presence.Notifier

	sub      *store.Subscription
	key      sessionKey
	lastUsed time.Time // guarded by SessionManager.mu
}

// Report posts the outcome of a mutation as a notification.
func (s *Session) Report(res calendar.Result) {
	if res.Message == "" {
		return
	}
	switch {
	case res.OK:
		s.Notifier.Success(res.Message)
	case res.Partial:
		s.Notifier.Warning(res.Message)
	default:
		s.Notifier.Error(res.Message)
	}
}

// InitialEvents returns the events that bring a newly opened stream up to
// date with the session.
func (s *Session) InitialEvents() []sse.Event {
	st := s.Engine.Snapshot()
	tripID, userID := s.key.tripID, s.Engine.User().ID

	events := []sse.Event{
		sse.NewModeEvent(tripID, userID, string(st.Mode), st.EditDay),
		sharedEvent(tripID, userID, st),
	}
	if st.Mode == calendar.ModeEdit {
		events = append(events, personalEvent(tripID, userID, st))
	}
	events = append(events, sse.NewPresenceEvent(tripID, st.ActiveUsers))
	for _, n := range s.Notifier.Active() {
		events = append(events, sse.NewNotificationEvent(tripID, userID, n))
	}
	return events
}

// SessionManager owns the calendar sessions of this server. Each session is
// fed by the store change feed and by a periodic full reconcile.
type SessionManager struct {
	store   *store.Client
	events  *sse.Manager
	tracker *presence.Tracker
	logger  *slog.Logger
	cron    *cron.Cron
	now     func() time.Time
	cfg     SessionConfig

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	started  bool
}

// NewSessionManager creates a session manager. Presence changes reported by
// tracker are pushed into every session of the trip and streamed to clients.
func NewSessionManager(
	s *store.Client,
	events *sse.Manager,
	tracker *presence.Tracker,
	cfg SessionConfig,
	logger *slog.Logger,
) *SessionManager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = DefaultNotificationTTL
	}

	m := &SessionManager{
		store:    s,
		events:   events,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		sessions: make(map[sessionKey]*Session),
	}
	m.cron = cron.New(
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	tracker.OnSync(m.presenceChanged)
	return m
}

// Start schedules the periodic reconcile and idle eviction jobs.
func (m *SessionManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if _, err := m.cron.AddFunc("@every "+m.cfg.PollInterval.String(), m.ReconcileAll); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	if _, err := m.cron.AddFunc(evictionSchedule, func() { m.EvictIdle() }); err != nil {
		return fmt.Errorf("schedule eviction: %w", err)
	}
	m.cron.Start()
	m.started = true

	m.logger.Info("calendar sessions started",
		"poll_interval", m.cfg.PollInterval,
		"idle_timeout", m.cfg.IdleTimeout,
	)
	return nil
}

// Shutdown stops the scheduler, waits for running jobs, and closes every session.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range sessions {
		s.sub.Close()
	}
	m.logger.Info("calendar sessions closed", "count", len(sessions))
	return nil
}

// Open returns the session of userID on tripID, creating it on first use.
// The user must be a participant of the trip.
func (m *SessionManager) Open(ctx context.Context, tripID, userID string) (*Session, error) {
	key := sessionKey{tripID: tripID, userID: userID}

	if s, ok := m.touch(key); ok {
		return s, nil
	}

	trip, err := m.store.Trip(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFoundf("trip %s not found", tripID)
		}
		return nil, fmt.Errorf("get trip: %w", err)
	}

	engine, err := calendar.New(m.store, trip, userID, calendar.Options{
		Logger:        m.logger,
		PixelsPerHour: m.cfg.PixelsPerHour,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		Engine:   engine,
		Notifier: presence.NewNotifier(m.cfg.NotificationTTL, presence.DefaultCapacity),
		key:      key,
	}
	user := engine.User()
	s.Notifier.OnPost(func(n domain.Notification) {
		m.events.Emit(sse.NewNotificationEvent(tripID, user.ID, n))
	})
	engine.SetObserver(m.observer(engine))

	// Subscribe before loading so nothing written in between is missed.
	s.sub = m.store.Subscribe(tripID, func(change store.Change) {
		engine.ApplyRemoteChange(context.Background(), change)
	})
	if err := engine.LoadSharedSchedule(ctx); err != nil {
		// The next poll retries.
		s.Notifier.Warning("Could not load the shared schedule")
	}
	engine.SetActiveUsers(m.tracker.List(tripID))

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		existing.lastUsed = m.now()
		m.mu.Unlock()
		s.sub.Close()
		return existing, nil
	}
	s.lastUsed = m.now()
	m.sessions[key] = s
	m.mu.Unlock()

	m.logger.Info("calendar session opened", "trip_id", tripID, "user_id", user.ID)
	return s, nil
}

// Lookup returns an existing session without creating one.
func (m *SessionManager) Lookup(tripID, userID string) (*Session, bool) {
	return m.touch(sessionKey{tripID: tripID, userID: userID})
}

func (m *SessionManager) touch(key sessionKey) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if ok {
		s.lastUsed = m.now()
	}
	return s, ok
}

// Close ends one session. Unpublished personal edits stay in the store.
func (m *SessionManager) Close(tripID, userID string) bool {
	key := sessionKey{tripID: tripID, userID: userID}

	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.sub.Close()
	m.logger.Info("calendar session closed", "trip_id", tripID, "user_id", userID)
	return true
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TripSessions returns the open sessions of one trip.
func (m *SessionManager) TripSessions(tripID string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for key, s := range m.sessions {
		if key.tripID == tripID {
			out = append(out, s)
		}
	}
	return out
}

// ReconcileAll runs a full snapshot reconcile on every session.
func (m *SessionManager) ReconcileAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		changed, err := s.Engine.ReconcileFullSnapshot(ctx)
		cancel()
		if err != nil {
			continue
		}
		if changed {
			m.logger.Debug("reconcile replaced shared schedule",
				"trip_id", s.key.tripID,
				"user_id", s.key.userID,
			)
		}
	}
}

// EvictIdle closes sessions that were not used within the idle timeout and
// have no open event stream. It returns the number closed.
func (m *SessionManager) EvictIdle() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.lastUsed.Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, s := range idle {
		if m.events.Watching(s.key.tripID, s.Engine.User().ID) {
			continue
		}
		if m.Close(s.key.tripID, s.key.userID) {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("evicted idle calendar sessions", "count", closed)
	}
	return closed
}

// observer streams engine state changes to the session's user.
func (m *SessionManager) observer(engine *calendar.Engine) func(calendar.ChangeKind) {
	tripID, userID := engine.TripID(), engine.User().ID
	return func(kind calendar.ChangeKind) {
		switch kind {
		case calendar.ChangedShared:
			m.events.Emit(sharedEvent(tripID, userID, engine.Snapshot()))
		case calendar.ChangedPersonal:
			m.events.Emit(personalEvent(tripID, userID, engine.Snapshot()))
		case calendar.ChangedMode:
			mode, day := engine.Mode()
			m.events.Emit(sse.NewModeEvent(tripID, userID, string(mode), day))
		case calendar.ChangedPresence:
			// Presence is broadcast once per trip by presenceChanged.
		}
	}
}

func sharedEvent(tripID, userID string, st calendar.State) sse.Event {
	return sse.NewSharedEvent(tripID, userID, sse.SharedEventData{
		Heights:      st.Heights,
		Days:         st.Shared,
		Pending:      st.Pending,
		OwnProposals: st.OwnProposals,
	})
}

func personalEvent(tripID, userID string, st calendar.State) sse.Event {
	return sse.NewPersonalEvent(tripID, userID, sse.PersonalEventData{
		Heights:  st.Heights,
		Days:     st.Personal,
		Unsynced: st.Unsynced,
	})
}

func (m *SessionManager) presenceChanged(tripID string, users []domain.Presence) {
	for _, s := range m.TripSessions(tripID) {
		s.Engine.SetActiveUsers(users)
	}
	m.events.Emit(sse.NewPresenceEvent(tripID, users))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
