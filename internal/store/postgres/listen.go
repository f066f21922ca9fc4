package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

// notification is the payload built by waypoint_notify_change().
type notification struct {
	Collection store.Collection `json:"collection"`
	Type       store.ChangeType `json:"type"`
	ID         string           `json:"id"`
	TripID     string           `json:"trip_id"`
	UserID     string           `json:"user_id"`
}

// Changes listens on the notify channel and resolves each notification to a
// store.Change. Notifications missed while reconnecting are lost; callers
// are expected to reconcile periodically.
func (s *Store) Changes(ctx context.Context) (<-chan store.Change, error) {
	listener := pq.NewListener(s.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			s.logger.Warn("change listener disconnected", slog.Any("error", err))
		case pq.ListenerEventReconnected:
			s.logger.Info("change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			s.logger.Warn("change listener reconnect failed", slog.Any("error", err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	out := make(chan store.Change, 256)
	go func() {
		defer close(out)
		defer listener.Close()

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					// Connection was re-established; nothing to resolve.
					continue
				}
				change, ok := s.resolve(ctx, n.Extra)
				if !ok {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			case <-ping.C:
				if err := listener.Ping(); err != nil {
					s.logger.Warn("change listener ping failed", slog.Any("error", err))
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) resolve(ctx context.Context, payload string) (store.Change, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Warn("malformed change notification", slog.String("payload", payload), slog.Any("error", err))
		return store.Change{}, false
	}
	if !n.Collection.Valid() {
		return store.Change{}, false
	}

	change := store.Change{At: time.Now(), Collection: n.Collection, Type: n.Type}
	if n.Type == store.ChangeDelete {
		change.Record = domain.CalendarEvent{
			ID:             n.ID,
			TripID:         n.TripID,
			UserID:         n.UserID,
			IsPersonalEdit: n.Collection == store.PersonalEdits,
		}
		return change, true
	}

	ev, err := s.GetEvent(ctx, n.Collection, n.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted before we could read it; the delete notification follows.
		return store.Change{}, false
	}
	if err != nil {
		s.logger.Warn("resolve change failed",
			slog.String("collection", string(n.Collection)),
			slog.String("event_id", n.ID),
			slog.Any("error", err))
		return store.Change{}, false
	}
	change.Record = *ev
	return change, true
}
