package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

// Client is the record store client calendar sessions talk to.
type Client struct {
	backend Backend
	feed    *Feed
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	// selfPublish is true when the backend has no change stream of its own.
	selfPublish bool
	now         func() time.Time
}

// NewClient wraps backend. When the backend is a ChangeSource its stream is
// pumped into the feed until Close.
func NewClient(backend Backend, logger *slog.Logger) (*Client, error) {
	c := &Client{
		backend:     backend,
		feed:        NewFeed(logger),
		logger:      logger,
		selfPublish: true,
		now:         time.Now,
	}

	src, ok := backend.(ChangeSource)
	if !ok {
		return c, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := src.Changes(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start change stream: %w", err)
	}
	c.selfPublish = false
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		for change := range changes {
			c.feed.Publish(change)
		}
	}()
	return c, nil
}

// Feed exposes the change feed.
func (c *Client) Feed() *Feed {
	return c.feed
}

// Subscribe delivers changes of one trip to handler until the subscription is closed.
func (c *Client) Subscribe(tripID string, handler func(Change)) *Subscription {
	return c.feed.Subscribe(tripID, handler)
}

// List returns the events of coll matching f.
func (c *Client) List(ctx context.Context, coll Collection, f Filter) ([]domain.CalendarEvent, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	events, err := c.backend.ListEvents(ctx, coll, f)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll, err)
	}
	return events, nil
}

// Get returns one event or ErrNotFound.
func (c *Client) Get(ctx context.Context, coll Collection, id string) (*domain.CalendarEvent, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	return c.backend.GetEvent(ctx, coll, id)
}

// Insert stores a new event.
func (c *Client) Insert(ctx context.Context, coll Collection, ev *domain.CalendarEvent) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if ev.ID == "" || ev.TripID == "" {
		return ErrInvalidInput.WithCause(fmt.Errorf("event id and trip id are required"))
	}
	if err := c.backend.InsertEvent(ctx, coll, ev); err != nil {
		return fmt.Errorf("insert into %s: %w", coll, err)
	}
	c.publish(coll, ChangeInsert, *ev)
	return nil
}

// Update patches one event and returns the stored result.
func (c *Client) Update(ctx context.Context, coll Collection, id string, p Patch) (*domain.CalendarEvent, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	ev, err := c.backend.UpdateEvent(ctx, coll, id, p)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	c.publish(coll, ChangeUpdate, *ev)
	return ev, nil
}

// Delete removes ids. Unknown ids are ignored.
func (c *Client) Delete(ctx context.Context, coll Collection, ids ...string) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	deleted, err := c.backend.DeleteEvents(ctx, coll, ids)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", coll, err)
	}
	for _, ev := range deleted {
		c.publish(coll, ChangeDelete, ev)
	}
	return nil
}

// Trip returns a trip with its participants.
func (c *Client) Trip(ctx context.Context, id string) (*domain.Trip, error) {
	return c.backend.GetTrip(ctx, id)
}

// CreateTrip stores a trip and its participants.
func (c *Client) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	return c.backend.CreateTrip(ctx, trip)
}

// SetTripPublic flips the public flag.
func (c *Client) SetTripPublic(ctx context.Context, id string, public bool) (*domain.Trip, error) {
	return c.backend.SetTripPublic(ctx, id, public)
}

// Ping reports whether the backend is reachable. Backends without a
// connectivity check are assumed healthy.
func (c *Client) Ping(ctx context.Context) error {
	if p, ok := c.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops the change stream, ends subscriptions and closes the backend.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.feed.Close()
	return c.backend.Close()
}

func (c *Client) publish(coll Collection, typ ChangeType, ev domain.CalendarEvent) {
	if !c.selfPublish {
		return
	}
	c.feed.Publish(Change{At: c.now(), Collection: coll, Type: typ, Record: ev})
}
