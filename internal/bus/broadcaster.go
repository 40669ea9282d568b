// ABOUTME: In-memory fan-out broadcaster for real-time session event subscribers
// ABOUTME: Best-effort delivery over buffered channels; slow subscribers drop events

package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// KeyAll subscribes to events from every session.
	KeyAll = "*"
)

// subscriber pairs a delivery channel with a closed flag. Sends and the
// close share one mutex, so a publisher can never write to a closed channel.
type subscriber struct {
	mu     sync.Mutex
	ch     chan *Event
	closed bool
}

// send delivers without blocking. Returns false when the subscriber's buffer
// is full or it has already departed.
func (s *subscriber) send(event *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// shut closes the delivery channel exactly once.
func (s *subscriber) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster provides in-memory pub/sub for session events. Subscribers
// register for a session id (or KeyAll) and receive events as they are
// published. Delivery is best-effort: connected at publish time or nothing.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // key -> subID -> sub
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*subscriber),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given session key.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, key string) (<-chan *Event, string) {
	subID := uuid.New().String()
	sub := &subscriber{ch: make(chan *Event, subscriberBufferSize)}

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]*subscriber)
	}
	b.subscribers[key][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return sub.ch, subID
}

// Publish sends an event to all subscribers of the event's session id and to
// wildcard subscribers. Non-blocking: events are dropped for subscribers
// whose channels are full or who departed mid-publish.
func (b *Broadcaster) Publish(event *Event) {
	b.mu.RLock()
	// Copy subscribers under read lock to avoid holding lock during sends
	var targets []*subscriber
	for _, key := range []string{event.SessionID, KeyAll} {
		for _, sub := range b.subscribers[key] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.send(event) {
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", event.SessionID,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	subs, ok := b.subscribers[key]
	if !ok {
		b.mu.Unlock()
		return
	}

	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}

	delete(subs, subID)

	// Clean up empty key entries
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}
	b.mu.Unlock()

	sub.shut()
	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	var all []*subscriber
	for key, subs := range b.subscribers {
		for subID, sub := range subs {
			all = append(all, sub)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.shut()
	}

	b.logger.Debug("broadcaster closed")
}
