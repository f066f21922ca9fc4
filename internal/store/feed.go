package store

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 256

// Feed fans changes out to per-trip subscribers.
//
// Each subscription has its own goroutine and buffer. A subscriber that falls
// behind loses changes instead of blocking writers; the periodic reconcile is
// expected to repair it.
type Feed struct {
	subs   map[uint64]*Subscription
	logger *slog.Logger
	next   uint64
	mu     sync.RWMutex
	closed bool
}

// Subscription is a live registration on a Feed.
type Subscription struct {
	feed    *Feed
	ch      chan Change
	done    chan struct{}
	handler func(Change)
	tripID  string
	id      uint64
	once    sync.Once
}

// NewFeed creates an empty feed.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe registers handler for changes of tripID. Handlers of one
// subscription run sequentially in publish order.
func (f *Feed) Subscribe(tripID string, handler func(Change)) *Subscription {
	sub := &Subscription{
		feed:    f,
		ch:      make(chan Change, subscriberBuffer),
		done:    make(chan struct{}),
		handler: handler,
		tripID:  tripID,
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.done)
		return sub
	}
	f.next++
	sub.id = f.next
	f.subs[sub.id] = sub
	f.mu.Unlock()

	go sub.run()
	return sub
}

func (s *Subscription) run() {
	for {
		select {
		case c := <-s.ch:
			s.handler(c)
		case <-s.done:
			return
		}
	}
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	})
}

// Publish delivers c to every subscriber of its trip without blocking.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}

	for _, sub := range f.subs {
		if sub.tripID != c.TripID() {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			f.logger.Warn("dropped change for slow subscriber",
				slog.String("trip_id", sub.tripID),
				slog.String("collection", string(c.Collection)),
				slog.String("event_id", c.Record.ID))
		}
	}
}

// Count returns the number of live subscriptions.
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close stops every subscription. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := make([]*Subscription, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
