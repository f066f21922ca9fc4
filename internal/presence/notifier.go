package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/id"
)

// DefaultCapacity bounds how many notifications a session keeps.
const DefaultCapacity = 20

// Notifier keeps the transient notifications of one session. Expired
// entries are pruned on read and on post; the oldest entries are dropped
// once capacity is reached.
type Notifier struct {
	now    func() time.Time
	onPost func(domain.Notification)
	items  []domain.Notification
	ttl    time.Duration
	cap    int
	mu     sync.Mutex
}

// NewNotifier creates a notifier. A zero ttl keeps notifications until they
// are dismissed or pushed out.
func NewNotifier(ttl time.Duration, capacity int) *Notifier {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Notifier{now: time.Now, ttl: ttl, cap: capacity}
}

// OnPost registers fn to receive every posted notification.
func (n *Notifier) OnPost(fn func(domain.Notification)) {
	n.mu.Lock()
	n.onPost = fn
	n.mu.Unlock()
}

// Post adds a notification and returns it.
func (n *Notifier) Post(level domain.NotificationLevel, message string) domain.Notification {
	now := n.now()
	note := domain.Notification{
		ID:        id.MustGenerate(id.PrefixNotification),
		Level:     level,
		Message:   message,
		CreatedAt: now,
	}
	if n.ttl > 0 {
		note.ExpiresAt = now.Add(n.ttl)
	}

	n.mu.Lock()
	n.pruneLocked(now)
	n.items = append(n.items, note)
	if over := len(n.items) - n.cap; over > 0 {
		n.items = slices.Delete(n.items, 0, over)
	}
	fn := n.onPost
	n.mu.Unlock()

	if fn != nil {
		fn(note)
	}
	return note
}

// Info posts an info notification.
func (n *Notifier) Info(msg string) domain.Notification { return n.Post(domain.NotifyInfo, msg) }

// Success posts a success notification.
func (n *Notifier) Success(msg string) domain.Notification { return n.Post(domain.NotifySuccess, msg) }

// Warning posts a warning notification.
func (n *Notifier) Warning(msg string) domain.Notification { return n.Post(domain.NotifyWarning, msg) }

// Error posts an error notification.
func (n *Notifier) Error(msg string) domain.Notification { return n.Post(domain.NotifyError, msg) }

// Active returns the unexpired notifications, oldest first.
func (n *Notifier) Active() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pruneLocked(n.now())
	return slices.Clone(n.items)
}

// Dismiss removes a notification by ID.
func (n *Notifier) Dismiss(notificationID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	before := len(n.items)
	n.items = slices.DeleteFunc(n.items, func(x domain.Notification) bool { return x.ID == notificationID })
	return len(n.items) != before
}

func (n *Notifier) pruneLocked(now time.Time) {
	n.items = slices.DeleteFunc(n.items, func(x domain.Notification) bool { return x.Expired(now) })
}
